package validation

import (
	"fmt"
	"strings"

	"giftmarket/internal/domain"
)

// Limits holds the configurable bounds applied when checking a listing draft.
// Price floors differ per listing type.
type Limits struct {
	AskPriceFloor float64
	BidPriceFloor float64
	NotesMaxLen   int
	QtyPerPost    int
}

// DefaultLimits mirrors the production configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		AskPriceFloor: 0.01,
		BidPriceFloor: 0.50,
		NotesMaxLen:   500,
		QtyPerPost:    5,
	}
}

// PriceFloor returns the minimum accepted price for a listing type.
func (l Limits) PriceFloor(t domain.ListingType) float64 {
	if t == domain.ListingTypeBid {
		return l.BidPriceFloor
	}
	return l.AskPriceFloor
}

// ListingDraft is a proposed listing payload before submission.
type ListingDraft struct {
	Type     domain.ListingType `json:"type"`
	ItemID   string             `json:"item_id"`
	Price    float64            `json:"price"`
	Quantity int                `json:"quantity"`
	Notes    string             `json:"notes"`
}

// CheckListingDraft runs the ordered rule list over a draft and returns the
// first violation, or nil when the draft passes. It is pure: no storage or
// network access, only the draft and the configured limits.
func CheckListingDraft(d ListingDraft, limits Limits) error {
	if d.Type == domain.ListingTypeAsk && strings.TrimSpace(d.ItemID) == "" {
		return fmt.Errorf("item reference should be valid")
	}

	floor := limits.PriceFloor(d.Type)
	if d.Price < floor {
		return fmt.Errorf("price must be atleast %.2f USD", floor)
	}

	if d.Quantity > limits.QtyPerPost {
		return fmt.Errorf("quantity limit %d per post", limits.QtyPerPost)
	}

	if n := len(d.Notes); n > limits.NotesMaxLen {
		return fmt.Errorf("notes max length limit reached %d/%d", n, limits.NotesMaxLen)
	}

	return nil
}
