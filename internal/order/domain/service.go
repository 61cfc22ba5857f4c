package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error)
	Get(ctx context.Context, id string) (*OrderResponse, error)
	List(ctx context.Context, req ListOrdersRequest) ([]OrderResponse, error)
	AppendEvent(ctx context.Context, req AppendEventRequest) error
	ListEvents(ctx context.Context, id string) ([]OrderEventResponse, error)
}

type CreateOrderRequest struct {
	UserID         *string  `json:"user_id"`
	VehicleMake    *string  `json:"vehicle_make"`
	VehicleModel   *string  `json:"vehicle_model"`
	VehicleColor   *string  `json:"vehicle_color"`
	LicensePlate   *string  `json:"license_plate"`
	PickupLat      *float64 `json:"pickup_lat"`
	PickupLng      *float64 `json:"pickup_lng"`
	Notes          *string  `json:"notes"`
	IdempotencyKey string   `json:"-"`
}

// CreateOrderResult reports the created (or deduplicated) order. Deduped is
// true when an idempotency token resolved to a previously created order.
type CreateOrderResult struct {
	Order   OrderResponse
	Deduped bool
}

type ListOrdersRequest struct {
	Status string `form:"status"`
}

type AppendEventRequest struct {
	OrderID string
	Type    string
	Payload map[string]any
}

type OrderResponse struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id"`
	Status    string    `json:"status"`
	PickupLat float64   `json:"pickup_lat"`
	PickupLng float64   `json:"pickup_lng"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderEventResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

var (
	ErrInvalidCoordinates   = errors.New("invalid_coordinates")
	ErrInvalidEventType     = errors.New("invalid_type")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrTransitionNotAllowed = errors.New("transition_not_allowed")
	ErrNotFound             = errors.New("not_found")
)

// TransitionPolicy decides whether an order may move from its current
// status to the requested target.
type TransitionPolicy interface {
	Allow(current, target string) error
}

// PermissivePolicy trusts the caller's requested target as long as it is in
// the allowed set. This preserves the historical behavior where sequencing
// is enforced by the orchestrating caller.
type PermissivePolicy struct{}

func (PermissivePolicy) Allow(current, target string) error {
	if !AllowedEventType(target) {
		return ErrInvalidEventType
	}
	return nil
}

// StrictPolicy enforces the forward graph: pending -> assigned -> en_route
// -> picked_up -> delivered, with cancellation allowed from any active
// state. Terminal states accept nothing.
type StrictPolicy struct{}

var strictNext = map[string]map[string]struct{}{
	StatusPending:  {StatusAssigned: {}, StatusCancelled: {}},
	StatusAssigned: {StatusEnRoute: {}, StatusCancelled: {}},
	StatusEnRoute:  {StatusPickedUp: {}, StatusCancelled: {}},
	StatusPickedUp: {StatusDelivered: {}, StatusCancelled: {}},
}

func (StrictPolicy) Allow(current, target string) error {
	if !AllowedEventType(target) {
		return ErrInvalidEventType
	}
	next, ok := strictNext[current]
	if !ok {
		return ErrTransitionNotAllowed
	}
	if _, ok := next[target]; !ok {
		return ErrTransitionNotAllowed
	}
	return nil
}
