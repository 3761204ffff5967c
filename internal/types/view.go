package types

import (
	"time"

	"github.com/google/uuid"
)

// View is append-only: one row per view event, no uniqueness.
type View struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ComicID  uuid.UUID `gorm:"type:uuid;not null;index" json:"comic_id"`
	ViewedAt time.Time `gorm:"column:viewed_at;not null;default:now()" json:"viewed_at"`
}

func (View) TableName() string { return "view" }
