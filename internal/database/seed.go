package database

import (
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func sampleItems() []models.Item {
	return []models.Item{
		{
			Title:       "Classic Tee",
			Price:       decimal.RequireFromString("19.99"),
			Category:    models.CategoryShirt,
			Label:       models.LabelPrimary,
			Slug:        "classic-tee",
			Description: "Plain cotton t-shirt.",
			Image:       "/media/classic-tee.jpg",
		},
		{
			Title:         "Running Jacket",
			Price:         decimal.RequireFromString("89.00"),
			DiscountPrice: decimal.NewNullDecimal(decimal.RequireFromString("69.00")),
			Category:      models.CategoryOutwear,
			Label:         models.LabelDanger,
			Slug:          "running-jacket",
			Description:   "Light windproof jacket.",
			Image:         "/media/running-jacket.jpg",
			Variations: []models.Variation{
				{Name: "size", ItemVariations: []models.ItemVariation{{Value: "S"}, {Value: "M"}, {Value: "L"}}},
				{Name: "color", ItemVariations: []models.ItemVariation{{Value: "black"}, {Value: "orange", Attachment: "/media/orange.jpg"}}},
			},
		},
		{
			Title:    "Training Shorts",
			Price:    decimal.RequireFromString("25.00"),
			Category: models.CategorySportWear,
			Label:    models.LabelSecondary,
			Slug:     "training-shorts",
			Variations: []models.Variation{
				{Name: "size", ItemVariations: []models.ItemVariation{{Value: "M"}, {Value: "L"}}},
			},
		},
	}
}

func sampleCoupons() []models.Coupon {
	return []models.Coupon{
		{Code: "WELCOME5", Amount: decimal.NewFromInt(5), Kind: models.CouponFlat},
		{Code: "TENOFF", Amount: decimal.NewFromInt(10), Kind: models.CouponPercent},
	}
}

// SeedCatalog inserts the sample catalog and coupons. Existing slugs and codes are left alone.
func SeedCatalog(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, item := range sampleItems() {
			var existing models.Item
			err := tx.Where("slug = ?", item.Slug).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to look up item %s: %w", item.Slug, err)
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("failed to seed item %s: %w", item.Slug, err)
			}
		}
		for _, coupon := range sampleCoupons() {
			if err := tx.Where(models.Coupon{Code: coupon.Code}).FirstOrCreate(&coupon).Error; err != nil {
				return fmt.Errorf("failed to seed coupon %s: %w", coupon.Code, err)
			}
		}
		return nil
	})
}
