package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
	"github.com/intellispire/commercestore/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE subscriptions (
		id BIGINT PRIMARY KEY,
		customer_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		price_tier_id BIGINT,
		parent_order_id BIGINT NOT NULL,
		gateway_profile_id TEXT NOT NULL DEFAULT '',
		gateway TEXT NOT NULL DEFAULT '',
		period TEXT NOT NULL,
		initial_amount REAL NOT NULL DEFAULT 0,
		initial_tax REAL NOT NULL DEFAULT 0,
		recurring_amount REAL NOT NULL DEFAULT 0,
		recurring_tax REAL NOT NULL DEFAULT 0,
		bill_times INTEGER NOT NULL DEFAULT 0,
		trial_length INTEGER NOT NULL DEFAULT 0,
		trial_unit TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		expiration TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`).Error)

	require.NoError(t, db.Exec(`CREATE TABLE subscription_notes (
		id BIGINT PRIMARY KEY,
		subscription_id BIGINT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`).Error)

	return db
}

func seedSubscription(t *testing.T, db *gorm.DB, r subscriptiondomain.Repository, sub subscriptiondomain.Subscription) subscriptiondomain.Subscription {
	t.Helper()
	require.NoError(t, r.Insert(context.Background(), db, &sub))
	return sub
}

func baseSubscription(id snowflake.ID) subscriptiondomain.Subscription {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return subscriptiondomain.Subscription{
		ID:               id,
		CustomerID:       7,
		ProductID:        9,
		ParentOrderID:    50,
		GatewayProfileID: "prof_" + id.String(),
		Gateway:          "stripe",
		Period:           "month",
		RecurringAmount:  25,
		Status:           subscriptiondomain.StatusActive,
		Expiration:       now.AddDate(0, 1, 0),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestInsertAndFindByID(t *testing.T) {
	db := openTestDB(t)
	r := Provide()

	want := seedSubscription(t, db, r, baseSubscription(100))

	got, err := r.FindByID(context.Background(), db, want.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.CustomerID, got.CustomerID)
	assert.Equal(t, subscriptiondomain.StatusActive, got.Status)
	assert.Equal(t, "prof_100", got.GatewayProfileID)

	missing, err := r.FindByID(context.Background(), db, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindByGatewayProfileIDPicksNewest(t *testing.T) {
	db := openTestDB(t)
	r := Provide()

	older := baseSubscription(100)
	older.GatewayProfileID = "prof_shared"
	seedSubscription(t, db, r, older)

	newer := baseSubscription(101)
	newer.GatewayProfileID = "prof_shared"
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	seedSubscription(t, db, r, newer)

	got, err := r.FindByGatewayProfileID(context.Background(), db, "prof_shared")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)
}

func TestUpdateStatusIf(t *testing.T) {
	db := openTestDB(t)
	r := Provide()
	sub := seedSubscription(t, db, r, baseSubscription(100))

	changed, err := r.UpdateStatusIf(context.Background(), db, sub.ID,
		subscriptiondomain.StatusActive, subscriptiondomain.StatusExpired)
	require.NoError(t, err)
	assert.True(t, changed)

	// Second caller loses the guard.
	changed, err = r.UpdateStatusIf(context.Background(), db, sub.ID,
		subscriptiondomain.StatusActive, subscriptiondomain.StatusExpired)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := r.FindByID(context.Background(), db, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusExpired, got.Status)
}

func TestListFilters(t *testing.T) {
	db := openTestDB(t)
	r := Provide()

	active := seedSubscription(t, db, r, baseSubscription(100))

	lapsed := baseSubscription(101)
	lapsed.Expiration = time.Date(2024, 5, 20, 23, 59, 59, 0, time.UTC)
	seedSubscription(t, db, r, lapsed)

	pending := baseSubscription(102)
	pending.Status = subscriptiondomain.StatusPending
	pending.CustomerID = 8
	seedSubscription(t, db, r, pending)

	byStatus, err := r.List(context.Background(), db, subscriptiondomain.Filter{
		Statuses: []subscriptiondomain.Status{subscriptiondomain.StatusPending},
	})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, pending.ID, byStatus[0].ID)

	from := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC)
	expiring, err := r.List(context.Background(), db, subscriptiondomain.Filter{
		ExpiringFrom: &from,
		ExpiringTo:   &to,
	})
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, lapsed.ID, expiring[0].ID)

	byCustomer, err := r.List(context.Background(), db, subscriptiondomain.Filter{CustomerID: 7})
	require.NoError(t, err)
	assert.Len(t, byCustomer, 2)

	_ = active
}

func TestListPaginatesByIDCursor(t *testing.T) {
	db := openTestDB(t)
	r := Provide()

	for i := 1; i <= 5; i++ {
		seedSubscription(t, db, r, baseSubscription(snowflake.ID(i)))
	}

	page, err := r.List(context.Background(), db, subscriptiondomain.Filter{},
		option.ApplyOperator(option.Condition{Field: "id", Operator: option.GT, Value: int64(2)}),
		option.WithSortBy(option.WithQuerySortBy("id", "asc", map[string]bool{"id": true})),
		option.WithLimit(2),
	)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, snowflake.ID(3), page[0].ID)
	assert.Equal(t, snowflake.ID(4), page[1].ID)
}

func TestNotesRoundTrip(t *testing.T) {
	db := openTestDB(t)
	r := Provide()
	sub := seedSubscription(t, db, r, baseSubscription(100))

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, body := range []string{"first", "second", "third"} {
		require.NoError(t, r.InsertNote(context.Background(), db, &subscriptiondomain.Note{
			ID:             snowflake.ID(200 + i),
			SubscriptionID: sub.ID,
			Body:           body,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	notes, err := r.ListNotes(context.Background(), db, sub.ID)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, "first", notes[0].Body)
	assert.Equal(t, "third", notes[2].Body)

	require.NoError(t, r.DeleteNotes(context.Background(), db, sub.ID))
	notes, err = r.ListNotes(context.Background(), db, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestDeleteReportsWhetherRowExisted(t *testing.T) {
	db := openTestDB(t)
	r := Provide()
	sub := seedSubscription(t, db, r, baseSubscription(100))

	deleted, err := r.Delete(context.Background(), db, sub.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = r.Delete(context.Background(), db, sub.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
