package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/locbyt/valetd/internal/clock"
	obsmetrics "github.com/locbyt/valetd/internal/observability/metrics"
	orderdomain "github.com/locbyt/valetd/internal/order/domain"
	"github.com/locbyt/valetd/internal/stream"
	"github.com/locbyt/valetd/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	listOrdersLimit = 50
	listEventsLimit = 100
)

// errIdempotencyRace aborts the creation transaction when another writer
// claimed the token first; the caller re-reads the winning mapping.
var errIdempotencyRace = errors.New("idempotency_race")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    orderdomain.Repository
	Policy  orderdomain.TransitionPolicy
	Hub     *stream.Hub         `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    orderdomain.Repository
	policy  orderdomain.TransitionPolicy
	hub     *stream.Hub
	metrics *obsmetrics.Metrics
}

func New(p Params) orderdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		policy:  p.Policy,
		hub:     p.Hub,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req orderdomain.CreateOrderRequest) (*orderdomain.CreateOrderResult, error) {
	if req.PickupLat == nil || req.PickupLng == nil {
		return nil, orderdomain.ErrInvalidCoordinates
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	now := s.clock.Now()
	order := &orderdomain.Order{
		ID:           s.genID.Generate(),
		UserID:       req.UserID,
		VehicleMake:  req.VehicleMake,
		VehicleModel: req.VehicleModel,
		VehicleColor: req.VehicleColor,
		LicensePlate: req.LicensePlate,
		PickupLat:    *req.PickupLat,
		PickupLng:    *req.PickupLng,
		Notes:        req.Notes,
		Status:       orderdomain.StatusPending,
		CreatedAt:    now,
	}

	var result orderdomain.CreateOrderResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if key != "" {
			mapping, err := s.repo.FindIdempotencyKey(ctx, tx, key)
			if err != nil {
				return err
			}
			if mapping != nil {
				existing, err := s.repo.FindOrderByID(ctx, tx, mapping.OrderID)
				if err != nil {
					return err
				}
				if existing == nil {
					return orderdomain.ErrNotFound
				}
				result = orderdomain.CreateOrderResult{Order: toOrderResponse(existing), Deduped: true}
				return nil
			}
		}

		if err := s.repo.InsertOrder(ctx, tx, order); err != nil {
			return err
		}

		if key != "" {
			inserted, err := s.repo.InsertIdempotencyKey(ctx, tx, &orderdomain.IdempotencyKey{
				Key:       key,
				OrderID:   order.ID,
				CreatedAt: now,
			})
			if err != nil {
				if db.IsDuplicateKeyErr(err) {
					return errIdempotencyRace
				}
				return err
			}
			if !inserted {
				// Another writer committed the token between our read and
				// insert; roll back our order and surface the winner.
				return errIdempotencyRace
			}
		}

		result = orderdomain.CreateOrderResult{Order: toOrderResponse(order)}
		return nil
	})

	if errors.Is(err, errIdempotencyRace) {
		winner, raceErr := s.resolveIdempotencyWinner(ctx, key)
		if raceErr != nil {
			return nil, raceErr
		}
		result = orderdomain.CreateOrderResult{Order: *winner, Deduped: true}
		err = nil
	}
	if err != nil {
		return nil, err
	}

	if !result.Deduped {
		s.hub.Publish(stream.Notification{
			Event:   stream.EventOrderCreated,
			OrderID: result.Order.ID,
			Status:  result.Order.Status,
		})
	}
	s.metrics.RecordOrderCreated(ctx, result.Deduped)

	return &result, nil
}

// resolveIdempotencyWinner re-reads the committed token mapping after a
// lost race and returns the order it protects.
func (s *Service) resolveIdempotencyWinner(ctx context.Context, key string) (*orderdomain.OrderResponse, error) {
	mapping, err := s.repo.FindIdempotencyKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, errors.New("idempotency key vanished after conflict")
	}
	existing, err := s.repo.FindOrderByID(ctx, s.db, mapping.OrderID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, orderdomain.ErrNotFound
	}
	resp := toOrderResponse(existing)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*orderdomain.OrderResponse, error) {
	orderID, err := orderdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, orderdomain.ErrNotFound
	}

	order, err := s.repo.FindOrderByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}

	resp := toOrderResponse(order)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req orderdomain.ListOrdersRequest) ([]orderdomain.OrderResponse, error) {
	filter := orderdomain.ListFilter{}
	switch status := strings.TrimSpace(req.Status); status {
	case "":
	case "active":
		filter.Active = true
	default:
		filter.Status = status
	}

	orders, err := s.repo.ListOrders(ctx, s.db, filter, listOrdersLimit)
	if err != nil {
		return nil, err
	}

	resp := make([]orderdomain.OrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	return resp, nil
}

func (s *Service) AppendEvent(ctx context.Context, req orderdomain.AppendEventRequest) error {
	orderID, err := orderdomain.ParseID(strings.TrimSpace(req.OrderID))
	if err != nil {
		return orderdomain.ErrNotFound
	}

	eventType := strings.TrimSpace(req.Type)
	if !orderdomain.AllowedEventType(eventType) {
		return orderdomain.ErrInvalidEventType
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	event := &orderdomain.OrderEvent{
		ID:        s.genID.Generate(),
		OrderID:   orderID,
		Type:      eventType,
		Payload:   datatypes.JSONMap(payload),
		CreatedAt: s.clock.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.LockOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current == nil {
			return orderdomain.ErrNotFound
		}

		if err := s.policy.Allow(current.Status, eventType); err != nil {
			return err
		}

		if err := s.repo.InsertEvent(ctx, tx, event); err != nil {
			return err
		}
		return s.repo.UpdateOrderStatus(ctx, tx, orderID, eventType)
	})
	if err != nil {
		return err
	}

	s.hub.Publish(stream.Notification{
		Event:   stream.EventOrderUpdated,
		OrderID: orderID.String(),
		Status:  eventType,
	})
	s.metrics.RecordOrderEvent(ctx, eventType)

	return nil
}

func (s *Service) ListEvents(ctx context.Context, id string) ([]orderdomain.OrderEventResponse, error) {
	orderID, err := orderdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, orderdomain.ErrNotFound
	}

	// Unknown orders yield an empty history rather than an error; only the
	// append path asserts existence.
	events, err := s.repo.ListEvents(ctx, s.db, orderID, listEventsLimit)
	if err != nil {
		return nil, err
	}

	resp := make([]orderdomain.OrderEventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, toEventResponse(&events[i]))
	}
	return resp, nil
}

func toOrderResponse(o *orderdomain.Order) orderdomain.OrderResponse {
	return orderdomain.OrderResponse{
		ID:        o.ID.String(),
		UserID:    o.UserID,
		Status:    o.Status,
		PickupLat: o.PickupLat,
		PickupLng: o.PickupLng,
		CreatedAt: o.CreatedAt,
	}
}

func toEventResponse(e *orderdomain.OrderEvent) orderdomain.OrderEventResponse {
	payload := map[string]any(e.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	return orderdomain.OrderEventResponse{
		ID:        e.ID.String(),
		Type:      e.Type,
		Payload:   payload,
		CreatedAt: e.CreatedAt,
	}
}
