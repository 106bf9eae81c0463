package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListingType is the side of a listing: sell offer or buy order.
type ListingType string

const (
	ListingTypeAsk ListingType = "ask"
	ListingTypeBid ListingType = "bid"
)

// Valid reports whether t is a known listing type.
func (t ListingType) Valid() bool {
	return t == ListingTypeAsk || t == ListingTypeBid
}

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	// StatusLive is the initial state: posted and visible to counterparts.
	StatusLive ListingStatus = "live"
	// StatusReserved means a counterpart has been matched and delivery is pending.
	StatusReserved ListingStatus = "reserved"
	// StatusSold is terminal: delivery confirmed by the owner.
	StatusSold ListingStatus = "sold"
	// StatusCancelled is terminal: reservation abandoned by either party.
	StatusCancelled ListingStatus = "cancelled"
	// StatusRemoved is terminal: owner withdrew the listing.
	StatusRemoved ListingStatus = "removed"
	// StatusBidCompleted is terminal and bid-side only: set when a matching ask
	// was reserved to the bid's owner.
	StatusBidCompleted ListingStatus = "bid_completed"
)

// Terminal reports whether no transition may leave s.
func (s ListingStatus) Terminal() bool {
	switch s {
	case StatusSold, StatusCancelled, StatusRemoved, StatusBidCompleted:
		return true
	}
	return false
}

var (
	ErrListingNotFound      = errors.New("market listing not found")
	ErrInvalidTransition    = errors.New("market status transition not allowed")
	ErrTransitionNotesBlank = errors.New("notes are required for this status update")
	ErrInvalidAskPrice      = errors.New("market ask should be higher than highest bid price")
	ErrInvalidBidPrice      = errors.New("market bid should be lower than lowest ask price")
)

// transitionRule guards a single edge of the listing state machine.
type transitionRule struct {
	requireNotes bool
}

// transitions is the full from-state x to-state table. Absent entries are
// rejected; terminal states have no outgoing edges.
var transitions = map[ListingStatus]map[ListingStatus]transitionRule{
	StatusLive: {
		StatusReserved: {requireNotes: true},
		StatusRemoved:  {},
	},
	StatusReserved: {
		StatusSold:      {requireNotes: true},
		StatusCancelled: {},
		StatusRemoved:   {},
	},
}

// CheckTransition validates a requested status change against the transition
// table. It never touches storage; callers apply the change only after the
// authoritative write succeeds.
func CheckTransition(from, to ListingStatus, notes string) error {
	rules, ok := transitions[from]
	if !ok {
		return ErrInvalidTransition
	}
	rule, ok := rules[to]
	if !ok {
		return ErrInvalidTransition
	}
	if rule.requireNotes && strings.TrimSpace(notes) == "" {
		return ErrTransitionNotesBlank
	}
	return nil
}

// Listing is a persisted sell offer (ask) or buy order (bid) for a catalog item.
type Listing struct {
	ID             uuid.UUID     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Type           ListingType   `gorm:"column:type;type:varchar(10);not null" json:"type"`
	ItemID         uuid.UUID     `gorm:"column:item_id;type:uuid;not null;index" json:"item_id"`
	UserID         uuid.UUID     `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Price          float64       `gorm:"column:price;type:decimal(18,2);not null" json:"price"`
	Currency       string        `gorm:"column:currency;type:varchar(3);default:'USD'" json:"currency"`
	Notes          string        `gorm:"column:notes" json:"notes"`
	Status         ListingStatus `gorm:"column:status;type:varchar(20);index" json:"status"`
	PartnerSteamID string        `gorm:"column:partner_steam_id" json:"partner_steam_id"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	Item *Item `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Listing) TableName() string {
	return "listings"
}

// BeforeCreate sets id if not already set (DBs without default uuid).
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
