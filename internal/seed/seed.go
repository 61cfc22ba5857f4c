package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/locbyt/valetd/internal/order/domain"
	"gorm.io/gorm"
)

const (
	devUserID = "dev-user"
	devPlate  = "DEV-0001"
)

// EnsureSampleOrder inserts one pending order so a fresh development
// environment has something to list and stream. It is a no-op once any
// order exists.
func EnsureSampleOrder(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.WithContext(ctx).Model(&orderdomain.Order{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		user := devUserID
		plate := devPlate
		vehicleMake := "Toyota"
		model := "Corolla"
		color := "silver"
		order := orderdomain.Order{
			ID:           node.Generate(),
			UserID:       &user,
			VehicleMake:  &vehicleMake,
			VehicleModel: &model,
			VehicleColor: &color,
			LicensePlate: &plate,
			PickupLat:    37.7749,
			PickupLng:    -122.4194,
			Status:       orderdomain.StatusPending,
		}
		return tx.WithContext(ctx).Create(&order).Error
	})
}
