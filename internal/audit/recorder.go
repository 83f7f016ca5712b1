// Package audit appends tenant-scoped audit records for mutating actions.
// Audit writes run on their own database handle and never fail the business
// transaction: a failed write is logged and counted on the
// audit_write_failures_total metric instead of being propagated.
package audit

import (
	"encoding/json"

	"testmgmt-service/internal/model"
	"testmgmt-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Recorder appends AuditLog rows.
type Recorder struct {
	db  func() *gorm.DB
	log *zap.Logger
}

// NewRecorder returns a recorder writing through the given database handle.
func NewRecorder(db func() *gorm.DB, log *zap.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// Entry describes one mutating action to record.
type Entry struct {
	TenantID   string
	ProjectID  *uint
	UserID     uint
	EntityType string
	EntityID   uint
	Action     string
	Details    interface{}
}

// Record appends one audit row. Failures are reported through the logger and
// the failure counter only.
func (r *Recorder) Record(entry Entry) {
	var details string
	if entry.Details != nil {
		if raw, err := json.Marshal(entry.Details); err == nil {
			details = string(raw)
		} else {
			r.log.Warn("Failed to serialize audit details",
				zap.String("entity_type", entry.EntityType),
				zap.Error(err))
		}
	}

	row := model.AuditLog{
		TenantID:   entry.TenantID,
		ProjectID:  entry.ProjectID,
		UserID:     entry.UserID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Details:    details,
	}

	if err := r.db().Create(&row).Error; err != nil {
		prometheus.AuditWriteFailures.Inc()
		r.log.Error("Failed to write audit log",
			zap.String("tenant_id", entry.TenantID),
			zap.String("entity_type", entry.EntityType),
			zap.Uint("entity_id", entry.EntityID),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}
