package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/intellispire/commercestore/pkg/db/option"
	"gorm.io/gorm"
)

// Filter narrows List queries. Zero-valued fields are ignored.
type Filter struct {
	Statuses      []Status
	ProductID     snowflake.ID
	CustomerID    snowflake.ID
	ParentOrderID snowflake.ID
	ExpiringFrom  *time.Time
	ExpiringTo    *time.Time
	CreatedBefore *time.Time
}

// Repository is the storage gateway the lifecycle engine operates
// against. Callers own the transaction and pass the handle in.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByGatewayProfileID(ctx context.Context, db *gorm.DB, profileID string) (*Subscription, error)
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error
	// UpdateStatusIf flips status only when the stored status still
	// matches expected, returning whether a row changed. Lazy expire
	// relies on this to stay race-safe under concurrent reads.
	UpdateStatusIf(ctx context.Context, db *gorm.DB, id snowflake.ID, expected, next Status) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter Filter, opts ...option.QueryOption) ([]*Subscription, error)

	InsertNote(ctx context.Context, db *gorm.DB, note *Note) error
	ListNotes(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]Note, error)
	DeleteNotes(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) error
}
