package types

import (
	"time"

	"github.com/google/uuid"
)

type Favorite struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ComicID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_favorite_comic_user,priority:1" json:"comic_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_favorite_comic_user,priority:2" json:"user_id"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Favorite) TableName() string { return "favorite" }
