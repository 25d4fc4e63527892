package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/intellispire/commercestore/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

const orderColumns = `id, parent_id, subscription_id, customer_id, product_id, price_tier_id,
	 status, gateway, transaction_id, discount, subtotal, tax, total,
	 metadata, completed_date, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) InsertRenewal(ctx context.Context, db *gorm.DB, order *orderdomain.Order, item *orderdomain.OrderItem) error {
	if err := db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, parent_id, subscription_id, customer_id, product_id, price_tier_id,
			status, gateway, transaction_id, discount, subtotal, tax, total,
			metadata, completed_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.ParentID,
		order.SubscriptionID,
		order.CustomerID,
		order.ProductID,
		order.PriceTierID,
		order.Status,
		order.Gateway,
		order.TransactionID,
		order.Discount,
		order.Subtotal,
		order.Tax,
		order.Total,
		order.Metadata,
		order.CompletedDate,
		order.CreatedAt,
		order.UpdatedAt,
	).Error; err != nil {
		return err
	}

	if item == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO order_items (
			id, order_id, product_id, price_tier_id, item_price, tax, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.OrderID,
		item.ProductID,
		item.PriceTierID,
		item.ItemPrice,
		item.Tax,
		item.CreatedAt,
	).Error
}

func (r *repo) FindRenewalByTransaction(ctx context.Context, db *gorm.DB, gateway, transactionID string) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		 WHERE gateway = ? AND transaction_id = ? AND status = ?
		 LIMIT 1`,
		gateway,
		transactionID,
		orderdomain.OrderStatusRenewal,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) CountRenewalsBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (int, error) {
	var count int
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM orders
		 WHERE subscription_id = ? AND status = ?`,
		subscriptionID,
		orderdomain.OrderStatusRenewal,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) MarkRenewalRefunded(ctx context.Context, db *gorm.DB, orderID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		orderdomain.OrderStatusRefunded,
		orderID,
		orderdomain.OrderStatusRenewal,
	).Error
}

func (r *repo) IncreaseProductEarnings(ctx context.Context, db *gorm.DB, productID snowflake.ID, amount float64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products SET earnings = earnings + ?, sales = sales + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		amount,
		productID,
	).Error
}

func (r *repo) IncreaseCustomerValue(ctx context.Context, db *gorm.DB, customerID snowflake.ID, amount float64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customers SET lifetime_value = lifetime_value + ?, purchase_count = purchase_count + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		amount,
		customerID,
	).Error
}

func (r *repo) DetachSubscriptionMeta(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET subscription_id = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE subscription_id = ?`,
		subscriptionID,
	).Error
}
