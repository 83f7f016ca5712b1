package model

import (
	"time"

	"gorm.io/gorm"
)

// DefectStatus enumerates the defect workflow states.
type DefectStatus string

const (
	DefectOpen       DefectStatus = "open"
	DefectInProgress DefectStatus = "in_progress"
	DefectResolved   DefectStatus = "resolved"
	DefectClosed     DefectStatus = "closed"
)

// Severity enumerates defect severities.
type Severity string

const (
	SeverityTrivial  Severity = "trivial"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Defect is a tracked failure, optionally anchored to the run result that
// produced it and/or the test case it concerns. ExternalRef holds the id of
// a mirrored issue in an external tracker.
type Defect struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	TenantID        string         `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	ResultID        *uint          `json:"result_id,omitempty" gorm:"uniqueIndex:idx_defects_result,where:deleted_at IS NULL"`
	CaseID          *uint          `json:"case_id,omitempty" gorm:"index"`
	Title           string         `json:"title" gorm:"type:varchar(200);not null"`
	Description     string         `json:"description" gorm:"type:text"`
	Severity        Severity       `json:"severity" gorm:"type:varchar(20);default:'minor'"`
	Status          DefectStatus   `json:"status" gorm:"type:varchar(20);default:'open'"`
	ExternalRef     string         `json:"external_ref,omitempty" gorm:"type:varchar(100)"`
	AssigneeID      *uint          `json:"assignee_id,omitempty" gorm:"index"`
	ResolutionNotes string         `json:"resolution_notes" gorm:"type:text"`
	Attachments     string         `json:"attachments" gorm:"type:jsonb"`
	CreatedBy       uint           `json:"created_by" gorm:"index"`
	UpdatedBy       uint           `json:"updated_by"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	History []DefectHistory `json:"history,omitempty" gorm:"foreignKey:DefectID"`
}

// DefectHistory is the append-only record of an action taken against a
// defect. Rows are written once and never updated or deleted, so the model
// carries no UpdatedAt/DeletedAt.
type DefectHistory struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	DefectID  uint      `json:"defect_id" gorm:"index;not null"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	Action    string    `json:"action" gorm:"type:varchar(100);not null"`
	Details   string    `json:"details" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at"`
}
