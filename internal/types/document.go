package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Document struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceID     uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:uq_source_external_doc" json:"source_id"`
	Source       *Source        `gorm:"constraint:OnDelete:CASCADE;foreignKey:SourceID;references:ID" json:"source,omitempty"`
	ExternalID   string         `gorm:"not null;uniqueIndex:uq_source_external_doc;column:external_id" json:"external_id"`
	Title        string         `gorm:"not null;column:title" json:"title"`
	CanonicalURL string         `gorm:"not null;column:canonical_url" json:"canonical_url"`
	HeadingPath  *string        `gorm:"column:heading_path" json:"heading_path,omitempty"`
	ContentHash  string         `gorm:"index;column:content_hash" json:"content_hash"`
	Metadata     datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Document) TableName() string {
	return "document"
}

// Principal types understood by the access predicate.
const (
	PrincipalUser   = "user"
	PrincipalEmail  = "email"
	PrincipalGroup  = "group"
	PrincipalPublic = "public"
)

// DocumentACL grants visibility on a document. A document with no grants is
// invisible to everyone, owners included.
type DocumentACL struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID    uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Document      *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`
	PrincipalType string    `gorm:"not null;column:principal_type" json:"principal_type"`
	PrincipalID   string    `gorm:"not null;index;column:principal_id" json:"principal_id"`
}

func (DocumentACL) TableName() string {
	return "document_acl"
}
