package model

import (
	"time"

	"gorm.io/gorm"
)

// RoleType enumerates the role kinds a user can hold within a tenant.
type RoleType string

const (
	RoleAdmin   RoleType = "admin"
	RoleManager RoleType = "manager"
	RoleTester  RoleType = "tester"
	RoleViewer  RoleType = "viewer"
)

// Role binds a user to a role type within a tenant. ProjectID nil means the
// role is tenant-wide; set, it authorizes only within that project.
type Role struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	UserID    uint           `json:"user_id" gorm:"index;not null"`
	RoleType  RoleType       `json:"role_type" gorm:"type:varchar(50);not null"`
	ProjectID *uint          `json:"project_id,omitempty" gorm:"index"`
	CreatedBy uint           `json:"created_by" gorm:"index"`
	UpdatedBy uint           `json:"updated_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Permissions []Permission `json:"permissions,omitempty" gorm:"many2many:role_permissions;"`
}

// Permission names a single authorized operation, e.g. "project:create".
type Permission struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description string         `json:"description" gorm:"type:varchar(200)"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// RolePermission is the join row between a role binding and a permission.
type RolePermission struct {
	RoleID       uint `json:"role_id" gorm:"primaryKey;autoIncrement:false"`
	PermissionID uint `json:"permission_id" gorm:"primaryKey;autoIncrement:false"`
}
