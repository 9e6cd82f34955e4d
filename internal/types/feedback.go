package types

import (
	"time"

	"github.com/google/uuid"
)

type Feedback struct {
	ID            uuid.UUID    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID        uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *User        `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	AnswerCacheID *uuid.UUID   `gorm:"type:uuid;column:answer_cache_id" json:"answer_cache_id,omitempty"`
	AnswerCache   *AnswerCache `gorm:"constraint:OnDelete:SET NULL;foreignKey:AnswerCacheID;references:ID" json:"answer_cache,omitempty"`
	Rating        int          `gorm:"not null;column:rating" json:"rating"`
	Comment       *string      `gorm:"column:comment" json:"comment,omitempty"`
	CreatedAt     time.Time    `gorm:"not null;default:now()" json:"created_at"`
}

func (Feedback) TableName() string {
	return "feedback"
}

type FeedbackRequest struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	TenantID uuid.UUID `json:"tenant_id" binding:"required"`
	Rating   int       `json:"rating" binding:"required,min=1,max=5"`
	Comment  *string   `json:"comment"`
}
