package types

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Tenant      *Tenant   `gorm:"constraint:OnDelete:CASCADE;foreignKey:TenantID;references:ID" json:"tenant,omitempty"`
	Email       string    `gorm:"not null;index;column:email" json:"email"`
	DisplayName string    `gorm:"column:display_name" json:"display_name"`
	IsActive    bool      `gorm:"not null;default:true;column:is_active" json:"is_active"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (User) TableName() string {
	return "user"
}

type Group struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID        uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ExternalGroupID string    `gorm:"index;column:external_group_id" json:"external_group_id"`
	Name            string    `gorm:"not null;column:name" json:"name"`
}

func (Group) TableName() string {
	return "group"
}

type GroupMembership struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GroupID   uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_group_user" json:"group_id"`
	Group     *Group    `gorm:"constraint:OnDelete:CASCADE;foreignKey:GroupID;references:ID" json:"group,omitempty"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_group_user" json:"user_id"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (GroupMembership) TableName() string {
	return "group_membership"
}
