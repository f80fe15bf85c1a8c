package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Category groups catalog items.
type Category string

const (
	CategoryShirt     Category = "S"
	CategorySportWear Category = "SW"
	CategoryOutwear   Category = "OW"
)

// Display returns the human readable category name.
func (c Category) Display() string {
	switch c {
	case CategoryShirt:
		return "Shirt"
	case CategorySportWear:
		return "Sport wear"
	case CategoryOutwear:
		return "Outwear"
	default:
		return string(c)
	}
}

// Label is the badge shown next to an item.
type Label string

const (
	LabelPrimary   Label = "P"
	LabelSecondary Label = "S"
	LabelDanger    Label = "D"
)

// Display returns the label name used by the storefront styles.
func (l Label) Display() string {
	switch l {
	case LabelPrimary:
		return "primary"
	case LabelSecondary:
		return "secondary"
	case LabelDanger:
		return "danger"
	default:
		return string(l)
	}
}

// Item represents a catalog entry. Items are read-only from the cart's point of view.
type Item struct {
	gorm.Model
	Title         string              `json:"title" gorm:"type:varchar(100);not null"`
	Price         decimal.Decimal     `json:"price" gorm:"type:decimal(10,2);not null"`
	DiscountPrice decimal.NullDecimal `json:"discount_price" gorm:"type:decimal(10,2)"`
	Category      Category            `json:"category" gorm:"type:varchar(2)"`
	Label         Label               `json:"label" gorm:"type:varchar(1)"`
	Slug          string              `json:"slug" gorm:"uniqueIndex;type:varchar(100);not null"`
	Description   string              `json:"description" gorm:"type:text"`
	Image         string              `json:"image" gorm:"type:varchar(255)"`
	Variations    []Variation         `json:"variations,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

// UnitPrice is the price charged for one unit: the discount price when set.
func (i *Item) UnitPrice() decimal.Decimal {
	if i.DiscountPrice.Valid {
		return i.DiscountPrice.Decimal
	}
	return i.Price
}

// Variation is a named axis of customization of an item, e.g. "Size".
type Variation struct {
	gorm.Model
	ItemID         uint            `json:"item_id" gorm:"not null;uniqueIndex:idx_variation_item_name"`
	Name           string          `json:"name" gorm:"type:varchar(50);not null;uniqueIndex:idx_variation_item_name"`
	ItemVariations []ItemVariation `json:"item_variations,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

// ItemVariation is one concrete value of a Variation, e.g. "Large".
type ItemVariation struct {
	gorm.Model
	VariationID uint       `json:"variation_id" gorm:"not null;uniqueIndex:idx_item_variation_value"`
	Variation   *Variation `json:"variation,omitempty"`
	Value       string     `json:"value" gorm:"type:varchar(50);not null;uniqueIndex:idx_item_variation_value"`
	Attachment  string     `json:"attachment" gorm:"type:varchar(255)"`
}
