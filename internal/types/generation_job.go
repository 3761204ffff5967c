package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GenerationJob is the durable progress record for one comic-generation run.
// The worker claims pending rows and mutates this row after every stage;
// clients poll it through the status endpoint. Jobs are never retried: a row
// that leaves pending either completes or fails.
type GenerationJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ComicID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"comic_id"`
	UserID      *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Status      ComicStatus    `gorm:"column:status;not null;default:pending;index" json:"status"`
	Stage       string         `gorm:"column:stage;not null" json:"stage"` // story|panels|images|audio|finalize
	CurrentStep int            `gorm:"column:current_step;not null;default:0" json:"current_step"`
	TotalSteps  int            `gorm:"column:total_steps;not null;default:5" json:"total_steps"`
	Message     string         `gorm:"column:message" json:"message"`
	Story       string         `gorm:"column:story;type:text" json:"story,omitempty"`
	Panels      datatypes.JSON `gorm:"column:panels;type:jsonb" json:"panels,omitempty"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	LockedAt    *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (GenerationJob) TableName() string { return "generation_job" }
