package audit

import (
	"os"
	"testing"

	"testmgmt-service/internal/model"
	"testmgmt-service/pkg/config"
	"testmgmt-service/prometheus"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	prometheus.InitMetrics(&config.Config{Metrics: config.MetricsConfig{Prefix: "test_audit"}})
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.AuditLog{}))
	return db
}

func TestRecordWritesRow(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(func() *gorm.DB { return db }, zap.NewNop())

	projectID := uint(3)
	rec.Record(Entry{
		TenantID:   "acme",
		ProjectID:  &projectID,
		UserID:     1,
		EntityType: "defect",
		EntityID:   42,
		Action:     "status_changed",
		Details:    map[string]string{"from": "open", "to": "in_progress"},
	})

	var row model.AuditLog
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "acme", row.TenantID)
	assert.Equal(t, "defect", row.EntityType)
	assert.Equal(t, uint(42), row.EntityID)
	assert.JSONEq(t, `{"from":"open","to":"in_progress"}`, row.Details)
}

func TestRecordSurvivesWriteFailure(t *testing.T) {
	// A database without the audit_logs table makes every write fail. Record
	// must swallow the error; the business transaction never sees it.
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	rec := NewRecorder(func() *gorm.DB { return db }, zap.NewNop())

	assert.NotPanics(t, func() {
		rec.Record(Entry{TenantID: "acme", UserID: 1, EntityType: "project", Action: "create"})
	})
}

func TestRecordSurvivesUnserializableDetails(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(func() *gorm.DB { return db }, zap.NewNop())

	rec.Record(Entry{
		TenantID:   "acme",
		UserID:     1,
		EntityType: "project",
		Action:     "update",
		Details:    make(chan int), // not JSON-serializable
	})

	// The row is still written, with empty details.
	var row model.AuditLog
	require.NoError(t, db.First(&row).Error)
	assert.Empty(t, row.Details)
}
