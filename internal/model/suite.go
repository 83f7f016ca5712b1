package model

import (
	"time"

	"gorm.io/gorm"
)

// TestSuite groups test cases into a tree within a project via the
// self-referencing ParentSuiteID. The parent chain must stay acyclic and
// inside the same project and tenant; reparent handlers walk the chain
// before any write.
type TestSuite struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	TenantID      string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	ProjectID     uint           `json:"project_id" gorm:"index;not null"`
	ParentSuiteID *uint          `json:"parent_suite_id,omitempty" gorm:"index"`
	Name          string         `json:"name" gorm:"type:varchar(100);not null"`
	Description   string         `json:"description" gorm:"type:text"`
	CreatedBy     uint           `json:"created_by" gorm:"index"`
	UpdatedBy     uint           `json:"updated_by"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// TestFolder is a flat grouping of test cases inside a project, orthogonal
// to the suite tree.
type TestFolder struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	ProjectID   uint           `json:"project_id" gorm:"index;not null"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null"`
	Description string         `json:"description" gorm:"type:text"`
	CreatedBy   uint           `json:"created_by" gorm:"index"`
	UpdatedBy   uint           `json:"updated_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
