package types

import (
	"time"

	"github.com/google/uuid"
)

// Fact is a normalized (key, value, confidence) triple extracted from a chunk.
// Multiple documents may assert the same key; retrieval keeps the
// highest-confidence row per key.
type Fact struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID uuid.UUID  `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Workspace   *Workspace `gorm:"constraint:OnDelete:CASCADE;foreignKey:WorkspaceID;references:ID" json:"workspace,omitempty"`
	DocumentID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"document_id"`
	Document    *Document  `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`
	ChunkID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"chunk_id"`
	Chunk       *Chunk     `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChunkID;references:ID" json:"chunk,omitempty"`
	FactKey     string     `gorm:"not null;index;column:fact_key" json:"fact_key"`
	FactValue   string     `gorm:"not null;column:fact_value" json:"fact_value"`
	Confidence  float64    `gorm:"not null;default:0.8;column:confidence" json:"confidence"`
	CreatedAt   time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (Fact) TableName() string {
	return "fact"
}
