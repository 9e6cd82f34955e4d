package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Sources whose name carries the "gkb:" prefix belong to the general-knowledge
// retrieval lane; everything else is tenant-internal.
const GeneralKnowledgePrefix = "gkb:"

type Source struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Workspace     *Workspace     `gorm:"constraint:OnDelete:CASCADE;foreignKey:WorkspaceID;references:ID" json:"workspace,omitempty"`
	ConnectorType string         `gorm:"not null;column:connector_type" json:"connector_type"`
	Name          string         `gorm:"not null;column:name" json:"name"`
	Config        datatypes.JSON `gorm:"type:jsonb;column:config" json:"config"`
	Status        string         `gorm:"not null;default:'active';column:status" json:"status"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (Source) TableName() string {
	return "source"
}
