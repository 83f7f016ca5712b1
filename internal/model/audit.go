package model

import "time"

// AuditLog is the immutable record of a mutating action against any entity.
// Tenant-scoped, optionally project-scoped. Rows are append-only.
type AuditLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TenantID   string    `json:"tenant_id" gorm:"type:varchar(50);index;not null"`
	ProjectID  *uint     `json:"project_id,omitempty" gorm:"index"`
	UserID     uint      `json:"user_id" gorm:"index;not null"`
	EntityType string    `json:"entity_type" gorm:"type:varchar(50);index;not null"`
	EntityID   uint      `json:"entity_id" gorm:"index"`
	Action     string    `json:"action" gorm:"type:varchar(50);not null"`
	Details    string    `json:"details" gorm:"type:jsonb"`
	CreatedAt  time.Time `json:"created_at"`
}
