package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/locbyt/valetd/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, o *orderdomain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO valet_orders (id, user_id, vehicle_make, vehicle_model, vehicle_color, license_plate, pickup_lat, pickup_lng, notes, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.UserID,
		o.VehicleMake,
		o.VehicleModel,
		o.VehicleColor,
		o.LicensePlate,
		o.PickupLat,
		o.PickupLng,
		o.Notes,
		o.Status,
		o.CreatedAt,
	).Error
}

func (r *repo) FindOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, vehicle_make, vehicle_model, vehicle_color, license_plate, pickup_lat, pickup_lng, notes, status, created_at
		 FROM valet_orders WHERE id = ?`,
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

func (r *repo) LockOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	query := `SELECT id, user_id, vehicle_make, vehicle_model, vehicle_color, license_plate, pickup_lat, pickup_lng, notes, status, created_at
		 FROM valet_orders WHERE id = ?`
	if !isSQLite(db) {
		query += ` FOR UPDATE`
	}

	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(query, id).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListOrders(ctx context.Context, db *gorm.DB, filter orderdomain.ListFilter, limit int) ([]orderdomain.Order, error) {
	query := `SELECT id, user_id, status, pickup_lat, pickup_lng, created_at FROM valet_orders`
	args := []any{}
	switch {
	case filter.Active:
		query += ` WHERE status IN ?`
		args = append(args, orderdomain.ActiveStatuses)
	case filter.Status != "":
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var orders []orderdomain.Order
	err := db.WithContext(ctx).Raw(query, args...).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) UpdateOrderStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE valet_orders SET status = ? WHERE id = ?`,
		status,
		id,
	).Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *orderdomain.OrderEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO order_events (id, order_id, type, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.ID,
		event.OrderID,
		event.Type,
		event.Payload,
		event.CreatedAt,
	).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, orderID snowflake.ID, limit int) ([]orderdomain.OrderEvent, error) {
	var events []orderdomain.OrderEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, type, payload, created_at
		 FROM order_events WHERE order_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		orderID,
		limit,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) FindIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*orderdomain.IdempotencyKey, error) {
	var record orderdomain.IdempotencyKey
	err := db.WithContext(ctx).Raw(
		`SELECT key, order_id, created_at FROM idempotency_keys WHERE key = ?`,
		key,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.Key == "" {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) InsertIdempotencyKey(ctx context.Context, db *gorm.DB, record *orderdomain.IdempotencyKey) (bool, error) {
	query := `INSERT INTO idempotency_keys (key, order_id, created_at) VALUES (?, ?, ?) ON CONFLICT (key) DO NOTHING`
	if isMySQL(db) {
		query = `INSERT IGNORE INTO idempotency_keys (key, order_id, created_at) VALUES (?, ?, ?)`
	}

	result := db.WithContext(ctx).Exec(query, record.Key, record.OrderID, record.CreatedAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func isSQLite(db *gorm.DB) bool {
	return strings.EqualFold(db.Dialector.Name(), "sqlite")
}

func isMySQL(db *gorm.DB) bool {
	return strings.EqualFold(db.Dialector.Name(), "mysql")
}
