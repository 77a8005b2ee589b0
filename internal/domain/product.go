package domain

import "time"

// ProductStatus represents the publication status of a canonical product.
// Promotion always initializes products as draft; publication is a separate,
// explicit act outside this core.
type ProductStatus string

const (
	ProductStatusDraft    ProductStatus = "draft"
	ProductStatusActive   ProductStatus = "active"
	ProductStatusArchived ProductStatus = "archived"
)

// Product is the authoritative, user-facing catalog entry. Products are
// created exclusively by the promotion service, never directly by callers.
// StagingID is a back-reference to the originating staging record for audit,
// not ownership.
type Product struct {
	ID          string        `gorm:"type:text;primaryKey" json:"id"`
	OwnerID     string        `gorm:"type:text;not null;index:idx_products_owner" json:"owner_id"`
	StagingID   string        `gorm:"type:text;index:idx_products_staging" json:"staging_id"`
	Title       string        `gorm:"type:text;not null" json:"title"`
	Description string        `gorm:"type:text" json:"description"`
	ImageURL    string        `gorm:"type:text" json:"image_url,omitempty"`
	CostPrice   float64       `json:"cost_price"`
	Price       float64       `json:"price"`
	Currency    string        `gorm:"type:text;default:USD" json:"currency"`
	Status      ProductStatus `gorm:"type:text;index:idx_products_status;default:draft" json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Product.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Product) TableName() string {
	return "products"
}
