package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Comic struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	User         *User          `gorm:"constraint:OnDelete:SET NULL;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Title        string         `gorm:"column:title;not null" json:"title"`
	Prompt       string         `gorm:"column:prompt;not null" json:"prompt"`
	Style        string         `gorm:"column:style" json:"style"`
	Status       ComicStatus    `gorm:"column:status;not null;default:pending;index" json:"status"`
	StoryText    string         `gorm:"column:story_text;type:text" json:"story_text"`
	Options      datatypes.JSON `gorm:"column:options;type:jsonb" json:"options"`
	Metadata     datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	ThumbnailURL string         `gorm:"column:thumbnail_url" json:"thumbnail_url"`
	AudioURL     string         `gorm:"column:audio_url" json:"audio_url"`
	SearchVector string         `gorm:"column:search_vector;type:text;index" json:"-"`
	IsDeleted    bool           `gorm:"column:is_deleted;not null;default:false;index" json:"is_deleted"`
	ViewCount    int            `gorm:"column:view_count;not null;default:0" json:"view_count"`
	LikeCount    int            `gorm:"column:like_count;not null;default:0" json:"like_count"`
	CreatedAt    time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Comic) TableName() string { return "comic" }
