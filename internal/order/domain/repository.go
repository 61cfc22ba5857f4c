package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows List results. Exactly one of Active or Status may be
// set; both empty means no filter.
type ListFilter struct {
	Active bool
	Status string
}

type Repository interface {
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) error
	FindOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	// LockOrderByID acquires a row-level lock on the order inside the
	// caller's transaction, serializing concurrent transitions.
	LockOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListOrders(ctx context.Context, db *gorm.DB, filter ListFilter, limit int) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string) error
	InsertEvent(ctx context.Context, db *gorm.DB, event *OrderEvent) error
	ListEvents(ctx context.Context, db *gorm.DB, orderID snowflake.ID, limit int) ([]OrderEvent, error)
	FindIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*IdempotencyKey, error)
	// InsertIdempotencyKey inserts the token mapping, reporting false when
	// another writer already owns the token.
	InsertIdempotencyKey(ctx context.Context, db *gorm.DB, record *IdempotencyKey) (bool, error)
}
