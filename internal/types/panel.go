package types

import (
	"github.com/google/uuid"
)

// Panel rows are created in one batch after every image render has finished;
// sequence is 1-based and contiguous per comic.
type Panel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ComicID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_comic_sequence,priority:1" json:"comic_id"`
	Sequence    int       `gorm:"column:sequence;not null;uniqueIndex:idx_comic_sequence,priority:2" json:"sequence"`
	TextContent string    `gorm:"column:text_content" json:"text_content"`
	Description string    `gorm:"column:description" json:"description"`
	ImageURL    string    `gorm:"column:image_url" json:"image_url"`
}

func (Panel) TableName() string { return "panel" }
