// Package domain contains persistence models for the order ledger that
// renewal payments are recorded against.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OrderStatus distinguishes the original purchase from the renewal
// charges recorded against it.
type OrderStatus string

const (
	OrderStatusComplete OrderStatus = "complete"
	OrderStatusRenewal  OrderStatus = "subscription_renewal"
	OrderStatusRefunded OrderStatus = "refunded"
)

// Order is one ledger row. Renewal orders reference the original
// purchase through ParentID and the subscription through
// SubscriptionID so idempotency checks and billed-times counting can
// find them.
type Order struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	ParentID       *snowflake.ID `gorm:"index"`
	SubscriptionID *snowflake.ID `gorm:"index"`
	CustomerID     snowflake.ID  `gorm:"not null;index"`
	ProductID      snowflake.ID  `gorm:"not null;index"`
	PriceTierID    *snowflake.ID `gorm:""`
	Status         OrderStatus   `gorm:"type:text;not null"`
	Gateway        string        `gorm:"type:text;not null;uniqueIndex:ux_orders_gateway_txn,priority:1"`
	TransactionID  string        `gorm:"type:text;uniqueIndex:ux_orders_gateway_txn,priority:2"`
	Discount       float64       `gorm:"not null;default:0"`
	Subtotal       float64       `gorm:"not null;default:0"`
	Tax            float64       `gorm:"not null;default:0"`
	Total          float64       `gorm:"not null;default:0"`
	// Metadata keeps gateway context alongside the ledger row, e.g.
	// how the tax figure was resolved.
	Metadata      datatypes.JSONMap `gorm:"type:jsonb"`
	CompletedDate *time.Time        `gorm:""`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderItem is the single line item carried by a renewal order.
type OrderItem struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	OrderID     snowflake.ID  `gorm:"not null;index"`
	ProductID   snowflake.ID  `gorm:"not null"`
	PriceTierID *snowflake.ID `gorm:""`
	ItemPrice   float64       `gorm:"not null;default:0"`
	Tax         float64       `gorm:"not null;default:0"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OrderItem) TableName() string { return "order_items" }

// Customer carries the lifetime value counter updated on every
// recorded renewal.
type Customer struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	Email         string       `gorm:"type:text;not null"`
	Name          string       `gorm:"type:text"`
	LifetimeValue float64      `gorm:"not null;default:0"`
	PurchaseCount int          `gorm:"not null;default:0"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }

// Product carries the lifetime earnings counter.
type Product struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	Earnings  float64      `gorm:"not null;default:0"`
	Sales     int          `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }
