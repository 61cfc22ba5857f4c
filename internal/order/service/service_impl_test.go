package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/locbyt/valetd/internal/clock"
	orderdomain "github.com/locbyt/valetd/internal/order/domain"
	"github.com/locbyt/valetd/internal/order/repository"
	"github.com/locbyt/valetd/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	// Serialize writers so concurrent transactions queue instead of
	// failing with a locked database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&orderdomain.Order{},
		&orderdomain.OrderEvent{},
		&orderdomain.IdempotencyKey{},
	))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, opts ...func(*Params)) orderdomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	p := Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewSystemClock(),
		Repo:   repository.Provide(),
		Policy: orderdomain.PermissivePolicy{},
	}
	for _, opt := range opts {
		opt(&p)
	}
	return New(p)
}

func f64(v float64) *float64 { return &v }

func TestCreate_RequiresCoordinates(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	_, err := svc.Create(context.Background(), orderdomain.CreateOrderRequest{})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidCoordinates)

	_, err = svc.Create(context.Background(), orderdomain.CreateOrderRequest{PickupLat: f64(1.5)})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidCoordinates)
}

func TestCreate_WithoutToken_AlwaysFresh(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Create(ctx, orderdomain.CreateOrderRequest{
				PickupLat: f64(37.77),
				PickupLng: f64(-122.41),
			})
			assert.NoError(t, err)
			assert.False(t, res.Deduped)
			ids <- res.Order.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]struct{}{}
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n, "every tokenless create must mint a distinct order")
}

func TestCreate_IdempotencyToken_Dedupes(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	ctx := context.Background()

	req := orderdomain.CreateOrderRequest{
		PickupLat:      f64(37.77),
		PickupLng:      f64(-122.41),
		IdempotencyKey: "tok-1",
	}

	first, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Deduped)
	assert.Equal(t, orderdomain.StatusPending, first.Order.Status)

	second, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Deduped)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	var count int64
	require.NoError(t, svc.(*Service).db.Model(&orderdomain.Order{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreate_IdempotencyToken_ConcurrentRetries(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Create(ctx, orderdomain.CreateOrderRequest{
				PickupLat:      f64(1),
				PickupLng:      f64(2),
				IdempotencyKey: "race-token",
			})
			assert.NoError(t, err)
			ids <- res.Order.ID
		}()
	}
	wg.Wait()
	close(ids)

	var winner string
	for id := range ids {
		if winner == "" {
			winner = id
		}
		assert.Equal(t, winner, id, "all retries must resolve to the same order")
	}

	var count int64
	require.NoError(t, svc.(*Service).db.Model(&orderdomain.Order{}).Count(&count).Error)
	assert.EqualValues(t, 1, count, "a lost race must not leave a shadow order behind")
}

func TestCreate_DedupeSkipsPublish(t *testing.T) {
	hub := stream.NewHub()
	svc := newTestService(t, newTestDB(t), func(p *Params) { p.Hub = hub })
	ctx := context.Background()

	sub := hub.Subscribe()
	defer sub.Close()

	req := orderdomain.CreateOrderRequest{
		PickupLat:      f64(1),
		PickupLng:      f64(2),
		IdempotencyKey: "tok-pub",
	}
	_, err := svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = svc.Create(ctx, req)
	require.NoError(t, err)

	select {
	case n := <-sub.Events():
		assert.Equal(t, stream.EventOrderCreated, n.Event)
	default:
		t.Fatal("expected one created notification")
	}
	select {
	case n := <-sub.Events():
		t.Fatalf("deduped create must not publish, got %v", n)
	default:
	}
}

func TestAppendEvent_UpdatesStatusAndHistory(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, newTestDB(t), func(p *Params) { p.Clock = fake })
	ctx := context.Background()

	res, err := svc.Create(ctx, orderdomain.CreateOrderRequest{PickupLat: f64(1), PickupLng: f64(2)})
	require.NoError(t, err)
	id := res.Order.ID

	for _, status := range []string{orderdomain.StatusAssigned, orderdomain.StatusEnRoute, orderdomain.StatusPickedUp} {
		fake.Advance(time.Minute)
		require.NoError(t, svc.AppendEvent(ctx, orderdomain.AppendEventRequest{
			OrderID: id,
			Type:    status,
			Payload: map[string]any{"by": "attendant-7"},
		}))
	}

	order, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPickedUp, order.Status, "status must track the newest event")

	events, err := svc.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, orderdomain.StatusPickedUp, events[0].Type, "newest first")
	assert.Equal(t, orderdomain.StatusAssigned, events[2].Type)
	assert.Equal(t, "attendant-7", events[0].Payload["by"])
}

func TestAppendEvent_InvalidType_NoSideEffects(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	ctx := context.Background()

	res, err := svc.Create(ctx, orderdomain.CreateOrderRequest{PickupLat: f64(1), PickupLng: f64(2)})
	require.NoError(t, err)

	err = svc.AppendEvent(ctx, orderdomain.AppendEventRequest{OrderID: res.Order.ID, Type: "teleported"})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidEventType)

	// pending is the initial state, never a valid transition target
	err = svc.AppendEvent(ctx, orderdomain.AppendEventRequest{OrderID: res.Order.ID, Type: orderdomain.StatusPending})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidEventType)

	order, err := svc.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPending, order.Status)

	events, err := svc.ListEvents(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppendEvent_UnknownOrder(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	err := svc.AppendEvent(context.Background(), orderdomain.AppendEventRequest{
		OrderID: "123456789",
		Type:    orderdomain.StatusAssigned,
	})
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)

	err = svc.AppendEvent(context.Background(), orderdomain.AppendEventRequest{
		OrderID: "not-a-number",
		Type:    orderdomain.StatusAssigned,
	})
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)
}

func TestAppendEvent_StrictPolicy(t *testing.T) {
	svc := newTestService(t, newTestDB(t), func(p *Params) { p.Policy = orderdomain.StrictPolicy{} })
	ctx := context.Background()

	res, err := svc.Create(ctx, orderdomain.CreateOrderRequest{PickupLat: f64(1), PickupLng: f64(2)})
	require.NoError(t, err)
	id := res.Order.ID

	// pending -> picked_up skips assigned and en_route
	err = svc.AppendEvent(ctx, orderdomain.AppendEventRequest{OrderID: id, Type: orderdomain.StatusPickedUp})
	assert.ErrorIs(t, err, orderdomain.ErrTransitionNotAllowed)

	require.NoError(t, svc.AppendEvent(ctx, orderdomain.AppendEventRequest{OrderID: id, Type: orderdomain.StatusAssigned}))
	require.NoError(t, svc.AppendEvent(ctx, orderdomain.AppendEventRequest{OrderID: id, Type: orderdomain.StatusCancelled}))

	// cancelled is terminal
	err = svc.AppendEvent(ctx, orderdomain.AppendEventRequest{OrderID: id, Type: orderdomain.StatusEnRoute})
	assert.ErrorIs(t, err, orderdomain.ErrTransitionNotAllowed)
}

func TestList_Filters(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	svc := newTestService(t, newTestDB(t), func(p *Params) { p.Clock = fake })
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		fake.Advance(time.Second)
		res, err := svc.Create(ctx, orderdomain.CreateOrderRequest{PickupLat: f64(1), PickupLng: f64(2)})
		require.NoError(t, err)
		ids = append(ids, res.Order.ID)
	}

	require.NoError(t, svc.AppendEvent(ctx, orderdomain.AppendEventRequest{OrderID: ids[0], Type: orderdomain.StatusDelivered}))
	require.NoError(t, svc.AppendEvent(ctx, orderdomain.AppendEventRequest{OrderID: ids[1], Type: orderdomain.StatusCancelled}))

	all, err := svc.List(ctx, orderdomain.ListOrdersRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")

	active, err := svc.List(ctx, orderdomain.ListOrdersRequest{Status: "active"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ids[2], active[0].ID)

	delivered, err := svc.List(ctx, orderdomain.ListOrdersRequest{Status: orderdomain.StatusDelivered})
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, ids[0], delivered[0].ID)
}

func TestListEvents_UnknownOrderIsEmpty(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	events, err := svc.ListEvents(context.Background(), "987654321")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	_, err := svc.Get(context.Background(), "424242")
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)

	_, err = svc.Get(context.Background(), "garbage")
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)
}
