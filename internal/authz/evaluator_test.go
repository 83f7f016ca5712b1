package authz

import (
	"os"
	"testing"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/model"
	"testmgmt-service/pkg/config"
	"testmgmt-service/prometheus"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	prometheus.InitMetrics(&config.Config{Metrics: config.MetricsConfig{Prefix: "test_authz"}})
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Role{}, &model.Permission{}, &model.RolePermission{}))
	require.NoError(t, SeedPermissions(db))
	return db
}

func grantRole(t *testing.T, db *gorm.DB, tenantID string, userID uint, roleType model.RoleType, projectID *uint) *model.Role {
	t.Helper()
	role := model.Role{TenantID: tenantID, UserID: userID, RoleType: roleType, ProjectID: projectID}
	require.NoError(t, db.Create(&role).Error)
	require.NoError(t, BindDefaultPermissions(db, &role))
	return &role
}

func TestRequireTenantWideRole(t *testing.T) {
	db := openTestDB(t)
	grantRole(t, db, "acme", 1, model.RoleAdmin, nil)

	// A tenant-wide role authorizes tenant-wide checks and any project.
	require.NoError(t, Require(db, "acme", 1, TenantWide(), PermTenantManage))
	require.NoError(t, Require(db, "acme", 1, InProject(7), PermProjectWrite))
	require.NoError(t, Require(db, "acme", 1, InProject(99), PermProjectWrite))
}

func TestRequireProjectScopedRole(t *testing.T) {
	db := openTestDB(t)
	projectID := uint(7)
	grantRole(t, db, "acme", 1, model.RoleManager, &projectID)

	require.NoError(t, Require(db, "acme", 1, InProject(7), PermSuiteWrite))

	// The same permission in another project is denied.
	err := Require(db, "acme", 1, InProject(8), PermSuiteWrite)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeForbidden, appErr.Code)

	// A project-scoped role never satisfies a tenant-wide check.
	require.Error(t, Require(db, "acme", 1, TenantWide(), PermSuiteWrite))
}

func TestRequireRoleTypeBoundaries(t *testing.T) {
	db := openTestDB(t)
	grantRole(t, db, "acme", 1, model.RoleViewer, nil)

	require.NoError(t, Require(db, "acme", 1, InProject(1), PermCaseRead))
	require.Error(t, Require(db, "acme", 1, InProject(1), PermCaseWrite))
	require.Error(t, Require(db, "acme", 1, TenantWide(), PermUserManage))
}

func TestRequireIsTenantIsolated(t *testing.T) {
	db := openTestDB(t)
	grantRole(t, db, "acme", 1, model.RoleAdmin, nil)

	// The same user id in another tenant holds nothing.
	err := Require(db, "other", 1, TenantWide(), PermProjectRead)
	require.Error(t, err)
}

func TestRequireIgnoresRevokedRole(t *testing.T) {
	db := openTestDB(t)
	role := grantRole(t, db, "acme", 1, model.RoleAdmin, nil)
	require.NoError(t, Require(db, "acme", 1, TenantWide(), PermProjectRead))

	require.NoError(t, db.Delete(role).Error)
	require.Error(t, Require(db, "acme", 1, TenantWide(), PermProjectRead))
}

func TestDefaultPermissions(t *testing.T) {
	assert.ElementsMatch(t, allPermissions, DefaultPermissions(model.RoleAdmin))
	assert.NotContains(t, DefaultPermissions(model.RoleTester), PermProjectWrite)
	assert.Contains(t, DefaultPermissions(model.RoleTester), PermDefectWrite)
	assert.Empty(t, DefaultPermissions(model.RoleType("bogus")))
}

func TestSeedPermissionsIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, SeedPermissions(db))

	var count int64
	require.NoError(t, db.Model(&model.Permission{}).Count(&count).Error)
	assert.Equal(t, int64(len(allPermissions)), count)
}
