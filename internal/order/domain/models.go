package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Order statuses. Pending is the implicit initial state and can never be
// re-entered through the event path.
const (
	StatusPending   = "pending"
	StatusAssigned  = "assigned"
	StatusEnRoute   = "en_route"
	StatusPickedUp  = "picked_up"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// ActiveStatuses is the open set used by the "active" list filter.
var ActiveStatuses = []string{StatusPending, StatusAssigned, StatusEnRoute, StatusPickedUp}

var allowedEventTypes = map[string]struct{}{
	StatusAssigned:  {},
	StatusEnRoute:   {},
	StatusPickedUp:  {},
	StatusDelivered: {},
	StatusCancelled: {},
}

// AllowedEventType reports whether t is a valid transition target.
func AllowedEventType(t string) bool {
	_, ok := allowedEventTypes[t]
	return ok
}

// IsActive reports whether status belongs to the open set.
func IsActive(status string) bool {
	for _, s := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Order represents one valet request.
type Order struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID       *string      `json:"user_id" gorm:"type:text"`
	VehicleMake  *string      `json:"vehicle_make" gorm:"type:text"`
	VehicleModel *string      `json:"vehicle_model" gorm:"type:text"`
	VehicleColor *string      `json:"vehicle_color" gorm:"type:text"`
	LicensePlate *string      `json:"license_plate" gorm:"type:text"`
	PickupLat    float64      `json:"pickup_lat" gorm:"not null"`
	PickupLng    float64      `json:"pickup_lng" gorm:"not null"`
	Notes        *string      `json:"notes" gorm:"type:text"`
	Status       string       `json:"status" gorm:"type:text;not null;default:pending;index"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;index"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "valet_orders" }

// OrderEvent is an immutable, append-only transition record. Events are
// never written for the initial pending state.
type OrderEvent struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrderID   snowflake.ID      `json:"order_id" gorm:"not null;index:idx_order_events_order_created,priority:1"`
	Type      string            `json:"type" gorm:"type:text;not null"`
	Payload   datatypes.JSONMap `json:"payload"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null;index:idx_order_events_order_created,priority:2"`
}

func (OrderEvent) TableName() string { return "order_events" }

// IdempotencyKey maps a client-supplied token to the order it produced.
// The primary key on the token is the enforcement of last resort for
// concurrent retries.
type IdempotencyKey struct {
	Key       string       `json:"key" gorm:"primaryKey;type:text"`
	OrderID   snowflake.ID `json:"order_id" gorm:"not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (IdempotencyKey) TableName() string { return "idempotency_keys" }

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
