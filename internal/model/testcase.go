package model

import (
	"time"

	"gorm.io/gorm"
)

// Priority enumerates test case priorities.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// MaxTagLength is the per-tag character limit on test case tags.
const MaxTagLength = 50

// TestCase represents a single test case. Steps is a JSON-serialized list of
// step/expected-result pairs. LastStatus, LastActualResult and LastComments
// are denormalized from the most recent run result for quick display.
type TestCase struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	TenantID         string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	SuiteID          uint           `json:"suite_id" gorm:"index;not null"`
	FolderID         *uint          `json:"folder_id,omitempty" gorm:"index"`
	Title            string         `json:"title" gorm:"type:varchar(200);not null"`
	Steps            string         `json:"steps" gorm:"type:jsonb"`
	Priority         Priority       `json:"priority" gorm:"type:varchar(20);default:'medium'"`
	Tags             string         `json:"tags" gorm:"type:jsonb"`
	LastStatus       ResultStatus   `json:"last_status" gorm:"type:varchar(20);default:'not_run'"`
	LastActualResult string         `json:"last_actual_result" gorm:"type:text"`
	LastComments     string         `json:"last_comments" gorm:"type:text"`
	CreatedBy        uint           `json:"created_by" gorm:"index"`
	UpdatedBy        uint           `json:"updated_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`
}

// TestStep is one entry in a test case's Steps payload.
type TestStep struct {
	Order    int    `json:"order"`
	Action   string `json:"action"`
	Expected string `json:"expected"`
}
