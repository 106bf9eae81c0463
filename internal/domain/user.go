package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a marketplace account. SteamID is the trade identity shown to
// matched counterparts.
type User struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SteamID      string         `gorm:"column:steam_id;uniqueIndex" json:"steam_id"`
	Name         string         `gorm:"column:name;not null" json:"name"`
	Avatar       string         `gorm:"column:avatar" json:"avatar"`
	Email        string         `gorm:"column:email;not null;uniqueIndex" json:"email"`
	PasswordHash string         `gorm:"column:password_hash;not null" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// MarketSummary is the per-status listing count block shown on a profile.
type MarketSummary struct {
	Live         int64 `json:"live"`
	Reserved     int64 `json:"reserved"`
	Sold         int64 `json:"sold"`
	Cancelled    int64 `json:"cancelled"`
	Removed      int64 `json:"removed"`
	BidCompleted int64 `json:"bid_completed"`
}
