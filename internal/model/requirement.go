package model

import (
	"time"

	"gorm.io/gorm"
)

// Requirement represents a requirement in a project's requirements
// hierarchy. ParentID self-links with the same acyclic rule as TestSuite.
type Requirement struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	ProjectID   uint           `json:"project_id" gorm:"index;not null"`
	ParentID    *uint          `json:"parent_id,omitempty" gorm:"index"`
	Title       string         `json:"title" gorm:"type:varchar(200);not null"`
	Description string         `json:"description" gorm:"type:text"`
	CreatedBy   uint           `json:"created_by" gorm:"index"`
	UpdatedBy   uint           `json:"updated_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// RequirementTestCase links a requirement to a test case with a traceability
// weight. Unique per (requirement, case).
type RequirementTestCase struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	TenantID      string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	RequirementID uint           `json:"requirement_id" gorm:"index;not null;uniqueIndex:idx_requirement_case,where:deleted_at IS NULL"`
	CaseID        uint           `json:"case_id" gorm:"index;not null;uniqueIndex:idx_requirement_case"`
	Weight        int            `json:"weight" gorm:"default:1"`
	CreatedBy     uint           `json:"created_by" gorm:"index"`
	UpdatedBy     uint           `json:"updated_by"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// RequirementTestSuite links a requirement to a test suite. Unique per
// (requirement, suite).
type RequirementTestSuite struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	TenantID      string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	RequirementID uint           `json:"requirement_id" gorm:"index;not null;uniqueIndex:idx_requirement_suite,where:deleted_at IS NULL"`
	SuiteID       uint           `json:"suite_id" gorm:"index;not null;uniqueIndex:idx_requirement_suite"`
	CreatedBy     uint           `json:"created_by" gorm:"index"`
	UpdatedBy     uint           `json:"updated_by"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}
