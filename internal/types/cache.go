package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AnswerCache is the durable tier behind the redis answer cache. Rows are
// never swept; expiry is checked lazily on read.
type AnswerCache struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CacheKey  string         `gorm:"not null;uniqueIndex;column:cache_key" json:"cache_key"`
	Answer    datatypes.JSON `gorm:"type:jsonb;not null;column:answer" json:"answer"`
	ExpiresAt time.Time      `gorm:"not null;index;column:expires_at" json:"expires_at"`
}

func (AnswerCache) TableName() string {
	return "answer_cache"
}

type ToolCache struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CacheKey  string         `gorm:"not null;uniqueIndex;column:cache_key" json:"cache_key"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null;column:value" json:"value"`
	ExpiresAt time.Time      `gorm:"not null;index;column:expires_at" json:"expires_at"`
}

func (ToolCache) TableName() string {
	return "tool_cache"
}
