package model

import (
	"time"

	"gorm.io/gorm"
)

// TestRun represents one execution cycle of a set of test cases within a
// project. The cases are referenced indirectly through TestRunResult rows.
type TestRun struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	ProjectID   uint           `json:"project_id" gorm:"index;not null"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null"`
	Description string         `json:"description" gorm:"type:text"`
	AssigneeID  *uint          `json:"assignee_id,omitempty" gorm:"index"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedBy   uint           `json:"created_by" gorm:"index"`
	UpdatedBy   uint           `json:"updated_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// ResultStatus enumerates the outcome of executing one test case in a run.
type ResultStatus string

const (
	ResultNotRun  ResultStatus = "not_run"
	ResultPassed  ResultStatus = "passed"
	ResultFailed  ResultStatus = "failed"
	ResultBlocked ResultStatus = "blocked"
	ResultSkipped ResultStatus = "skipped"
)

// TestRunResult is the single execution record per (run, case) pair and the
// anchor for at most one defect. Attachments is JSON attachment metadata.
type TestRunResult struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	TenantID     string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	RunID        uint           `json:"run_id" gorm:"index;not null;uniqueIndex:idx_run_case,where:deleted_at IS NULL"`
	CaseID       uint           `json:"case_id" gorm:"index;not null;uniqueIndex:idx_run_case"`
	Status       ResultStatus   `json:"status" gorm:"type:varchar(20);default:'not_run'"`
	ActualResult string         `json:"actual_result" gorm:"type:text"`
	Comments     string         `json:"comments" gorm:"type:text"`
	Attachments  string         `json:"attachments" gorm:"type:jsonb"`
	ExecutedBy   *uint          `json:"executed_by,omitempty" gorm:"index"`
	ExecutedAt   *time.Time     `json:"executed_at,omitempty"`
	CreatedBy    uint           `json:"created_by" gorm:"index"`
	UpdatedBy    uint           `json:"updated_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}
