package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Item is a tradeable catalog entry. Items are metadata only; neither party
// owns them and listings reference them by id.
type Item struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Slug      string    `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Image     string    `gorm:"column:image" json:"image"`
	Rarity    string    `gorm:"column:rarity" json:"rarity"`
	Origin    string    `gorm:"column:origin" json:"origin"`
	Hero      string    `gorm:"column:hero" json:"hero"`
	Active    bool      `gorm:"column:active;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Item) TableName() string {
	return "items"
}

func (i *Item) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
