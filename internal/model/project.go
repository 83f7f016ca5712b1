package model

import (
	"time"

	"gorm.io/gorm"
)

// Project represents a test-management project. Every suite, folder, case,
// run, requirement and audit entry hangs off exactly one project.
type Project struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	Name        string         `json:"name" gorm:"type:varchar(100);index;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Active      bool           `json:"active" gorm:"default:true"`
	CreatedBy   uint           `json:"created_by" gorm:"index"`
	UpdatedBy   uint           `json:"updated_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// ProjectMember associates a user with a project. Unique per (project, user);
// Preferences carries arbitrary per-member settings as JSON.
type ProjectMember struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	ProjectID   uint           `json:"project_id" gorm:"index;not null;uniqueIndex:idx_project_user,where:deleted_at IS NULL"`
	UserID      uint           `json:"user_id" gorm:"index;not null;uniqueIndex:idx_project_user"`
	Preferences string         `json:"preferences" gorm:"type:jsonb"`
	CreatedBy   uint           `json:"created_by" gorm:"index"`
	UpdatedBy   uint           `json:"updated_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
