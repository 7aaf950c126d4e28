package listing

import (
	"time"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/shared"
)

// Listing is a draft marketplace listing created from a detected item.
// ScanID/FrameID/ItemID record which capture produced it.
type Listing struct {
	ID      string `json:"id" gorm:"primaryKey"`
	OwnerID string `json:"owner_id" gorm:"index"`

	ScanID  string `json:"scan_id,omitempty"`
	FrameID string `json:"frame_id,omitempty"`
	ItemID  string `json:"item_id,omitempty"`

	Title       string             `json:"title"`
	Description string             `json:"description"`
	Category    string             `json:"category"`
	Condition   string             `json:"condition"`
	PriceCents  int64              `json:"price_cents"`
	Currency    string             `json:"currency"`
	Tags        shared.StringSlice `json:"tags" gorm:"type:text"`
	Confidence  float64            `json:"confidence"`

	Status shared.ListingStatus `json:"status" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
