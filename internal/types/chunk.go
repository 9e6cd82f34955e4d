package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

const EmbeddingDim = 256

type Chunk struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID  uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_chunk_doc_position" json:"document_id"`
	Document    *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`
	Position    int       `gorm:"not null;uniqueIndex:uq_chunk_doc_position;column:position" json:"position"`
	HeadingPath *string   `gorm:"column:heading_path" json:"heading_path,omitempty"`
	Text        string    `gorm:"not null;column:text" json:"text"`
	TextHash    string    `gorm:"index;column:text_hash" json:"text_hash"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Chunk) TableName() string {
	return "chunk"
}

// Embedding holds the latest vector for a chunk. The core only reads these;
// re-embedding after a text-hash change happens in the ingestion worker.
type Embedding struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChunkID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"chunk_id"`
	Chunk     *Chunk          `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChunkID;references:ID" json:"chunk,omitempty"`
	Model     string          `gorm:"not null;default:'deterministic-hash-v1';column:model" json:"model"`
	Vector    pgvector.Vector `gorm:"type:vector(256);column:vector" json:"-"`
	CreatedAt time.Time       `gorm:"not null;default:now()" json:"created_at"`
}

func (Embedding) TableName() string {
	return "embedding"
}
