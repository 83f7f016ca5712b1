package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"

	"testmgmt-service/internal/audit"
	"testmgmt-service/internal/authz"
	"testmgmt-service/internal/model"
	"testmgmt-service/pkg/config"
	"testmgmt-service/pkg/database"
	"testmgmt-service/pkg/jwtutil"
	"testmgmt-service/prometheus"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "test-signing-key", ExpirationHours: 1})
	prometheus.InitMetrics(&config.Config{Metrics: config.MetricsConfig{Prefix: "test_handler"}})
	os.Exit(m.Run())
}

// setupDB opens a fresh in-memory database, migrates every model, seeds the
// permission catalog and installs it as the package-global handle the
// handlers read.
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))
	require.NoError(t, authz.SeedPermissions(db))
	database.SetDB(db)
	Init(audit.NewRecorder(database.GetDB, zap.NewNop()))
	return db
}

// seedTenantUser creates a tenant (if missing), a user inside it and a role
// binding with default permissions. Returns the user id.
func seedTenantUser(t *testing.T, db *gorm.DB, tenantCode, email string, roleType model.RoleType, projectID *uint) uint {
	t.Helper()

	var tenant model.Tenant
	if err := db.Where("code = ?", tenantCode).First(&tenant).Error; err != nil {
		require.ErrorIs(t, err, gorm.ErrRecordNotFound)
		tenant = model.Tenant{Code: tenantCode, Name: tenantCode, Active: true}
		require.NoError(t, db.Create(&tenant).Error)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := model.User{
		TenantID: tenantCode,
		Email:    email,
		Password: string(hashed),
		Active:   true,
	}
	require.NoError(t, db.Create(&user).Error)

	role := model.Role{TenantID: tenantCode, UserID: user.ID, RoleType: roleType, ProjectID: projectID}
	require.NoError(t, db.Create(&role).Error)
	require.NoError(t, authz.BindDefaultPermissions(db, &role))

	return user.ID
}

func seedProject(t *testing.T, db *gorm.DB, tenantCode, name string) *model.Project {
	t.Helper()
	project := model.Project{TenantID: tenantCode, Name: name, Active: true}
	require.NoError(t, db.Create(&project).Error)
	return &project
}

func seedSuite(t *testing.T, db *gorm.DB, tenantCode string, projectID uint, name string, parentID *uint) *model.TestSuite {
	t.Helper()
	suite := model.TestSuite{TenantID: tenantCode, ProjectID: projectID, Name: name, ParentSuiteID: parentID}
	require.NoError(t, db.Create(&suite).Error)
	return &suite
}

func seedCase(t *testing.T, db *gorm.DB, tenantCode string, suiteID uint, title string) *model.TestCase {
	t.Helper()
	tc := model.TestCase{TenantID: tenantCode, SuiteID: suiteID, Title: title, Priority: model.PriorityMedium}
	require.NoError(t, db.Create(&tc).Error)
	return &tc
}

// request builds an echo context carrying a verified tenant and user, the way
// the middleware chain leaves it for handlers.
func request(t *testing.T, method, target string, body interface{}, tenantID string, userID uint) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	e := echo.New()
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if tenantID != "" {
		c.Set("tenant_id", tenantID)
	}
	if userID != 0 {
		c.Set("user_id", userID)
	}
	return c, rec
}

func setParam(c echo.Context, name string, value string) {
	names := append(c.ParamNames(), name)
	values := append(c.ParamValues(), value)
	c.SetParamNames(names...)
	c.SetParamValues(values...)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
