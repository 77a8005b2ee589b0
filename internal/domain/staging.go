package domain

import "time"

// PromotionStatus represents where a staging product sits in the promotion
// lifecycle. Promoted is terminal and write-once.
type PromotionStatus string

const (
	PromotionStatusNone     PromotionStatus = "none"
	PromotionStatusPending  PromotionStatus = "pending"
	PromotionStatusPromoted PromotionStatus = "promoted"
)

// StagingProduct is a provisionally-imported product awaiting promotion into
// the canonical catalog. PromotedToID is set if and only if PromotionStatus is
// promoted, and once set is never cleared or reassigned.
type StagingProduct struct {
	ID              string          `gorm:"type:text;primaryKey" json:"id"`
	OwnerID         string          `gorm:"type:text;not null;index:idx_staging_products_owner" json:"owner_id"`
	Source          string          `gorm:"type:text" json:"source"`
	Title           string          `gorm:"type:text;not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	SupplierURL     string          `gorm:"type:text" json:"supplier_url,omitempty"`
	ImageURL        string          `gorm:"type:text" json:"image_url,omitempty"`
	CostPrice       float64         `json:"cost_price"`
	Price           float64         `json:"price"`
	Currency        string          `gorm:"type:text;default:USD" json:"currency"`
	RawData         JSONMap         `gorm:"type:text" json:"raw_data,omitempty"`
	PromotionStatus PromotionStatus `gorm:"type:text;index:idx_staging_products_promotion;default:none" json:"promotion_status"`
	PromotedToID    *string         `gorm:"type:text" json:"promoted_to_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the database table name for StagingProduct.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (StagingProduct) TableName() string {
	return "staging_products"
}
