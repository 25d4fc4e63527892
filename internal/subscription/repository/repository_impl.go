package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
	"github.com/intellispire/commercestore/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, customer_id, product_id, price_tier_id, parent_order_id,
	 gateway_profile_id, gateway, period, initial_amount, initial_tax,
	 recurring_amount, recurring_tax, bill_times, trial_length, trial_unit,
	 status, expiration, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, customer_id, product_id, price_tier_id, parent_order_id,
			gateway_profile_id, gateway, period, initial_amount, initial_tax,
			recurring_amount, recurring_tax, bill_times, trial_length, trial_unit,
			status, expiration, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.CustomerID,
		sub.ProductID,
		sub.PriceTierID,
		sub.ParentOrderID,
		sub.GatewayProfileID,
		sub.Gateway,
		sub.Period,
		sub.InitialAmount,
		sub.InitialTax,
		sub.RecurringAmount,
		sub.RecurringTax,
		sub.BillTimes,
		sub.TrialLength,
		sub.TrialUnit,
		sub.Status,
		sub.Expiration,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`,
		id,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindByGatewayProfileID(ctx context.Context, db *gorm.DB, profileID string) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE gateway_profile_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		profileID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			gateway_profile_id = ?, gateway = ?, period = ?,
			recurring_amount = ?, recurring_tax = ?, bill_times = ?,
			status = ?, expiration = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		sub.GatewayProfileID,
		sub.Gateway,
		sub.Period,
		sub.RecurringAmount,
		sub.RecurringTax,
		sub.BillTimes,
		sub.Status,
		sub.Expiration,
		sub.ID,
	).Error
}

func (r *repo) UpdateStatusIf(ctx context.Context, db *gorm.DB, id snowflake.ID, expected, next subscriptiondomain.Status) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		next,
		id,
		expected,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM subscriptions WHERE id = ?`,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter subscriptiondomain.Filter, opts ...option.QueryOption) ([]*subscriptiondomain.Subscription, error) {
	stmt := db.WithContext(ctx).Table("subscriptions").Select(subscriptionColumns)

	if len(filter.Statuses) > 0 {
		stmt = stmt.Where("status IN ?", filter.Statuses)
	}
	if filter.ProductID != 0 {
		stmt = stmt.Where("product_id = ?", filter.ProductID)
	}
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.ParentOrderID != 0 {
		stmt = stmt.Where("parent_order_id = ?", filter.ParentOrderID)
	}
	if filter.ExpiringFrom != nil {
		stmt = stmt.Where("expiration >= ?", *filter.ExpiringFrom)
	}
	if filter.ExpiringTo != nil {
		stmt = stmt.Where("expiration < ?", *filter.ExpiringTo)
	}
	if filter.CreatedBefore != nil {
		stmt = stmt.Where("created_at < ?", *filter.CreatedBefore)
	}

	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var subs []*subscriptiondomain.Subscription
	if err := stmt.Scan(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) InsertNote(ctx context.Context, db *gorm.DB, note *subscriptiondomain.Note) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_notes (id, subscription_id, body, created_at)
		 VALUES (?, ?, ?, ?)`,
		note.ID,
		note.SubscriptionID,
		note.Body,
		note.CreatedAt,
	).Error
}

func (r *repo) ListNotes(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]subscriptiondomain.Note, error) {
	var notes []subscriptiondomain.Note
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, body, created_at
		 FROM subscription_notes
		 WHERE subscription_id = ?
		 ORDER BY created_at ASC, id ASC`,
		subscriptionID,
	).Scan(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *repo) DeleteNotes(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM subscription_notes WHERE subscription_id = ?`,
		subscriptionID,
	).Error
}
