package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/model"
	"testmgmt-service/pkg/config"
	"testmgmt-service/pkg/jwtutil"
	"testmgmt-service/prometheus"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "test-signing-key", ExpirationHours: 1})
	prometheus.InitMetrics(&config.Config{Metrics: config.MetricsConfig{Prefix: "test_middleware"}})
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Tenant{}))
	return db
}

// runChain sends a request through AuthMiddleware and TenantVerification and
// returns the handler error plus whether the inner handler was reached.
func runChain(t *testing.T, db *gorm.DB, path, token, cookieTenant string) (error, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if cookieTenant != "" {
		req.AddCookie(&http.Cookie{Name: TenantCookieName, Value: cookieTenant})
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	handler := AuthMiddleware(TenantVerification(func() *gorm.DB { return db })(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	}))
	return handler(c), reached
}

func assertAppError(t *testing.T, err error, code apperror.Code, status int) {
	t.Helper()
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, status, appErr.Status)
}

func TestTenantVerification(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&model.Tenant{Code: "acme", Name: "Acme", Active: true}).Error)

	token, err := jwtutil.GenerateToken("user@acme.test", 1, "acme")
	require.NoError(t, err)
	otherToken, err := jwtutil.GenerateToken("user@other.test", 2, "other")
	require.NoError(t, err)
	ghostToken, err := jwtutil.GenerateToken("user@ghost.test", 3, "ghost")
	require.NoError(t, err)

	t.Run("all three signals agree", func(t *testing.T) {
		err, reached := runChain(t, db, "/api/projects", token, "acme")
		require.NoError(t, err)
		assert.True(t, reached)
	})

	t.Run("missing cookie", func(t *testing.T) {
		err, reached := runChain(t, db, "/api/projects", token, "")
		assert.False(t, reached)
		assertAppError(t, err, apperror.CodeTenantIDMissing, http.StatusUnauthorized)
	})

	t.Run("cookie and claim disagree", func(t *testing.T) {
		err, reached := runChain(t, db, "/api/projects", otherToken, "acme")
		assert.False(t, reached)
		assertAppError(t, err, apperror.CodeTenantIDMismatch, http.StatusForbidden)
	})

	t.Run("tenant row does not exist", func(t *testing.T) {
		err, reached := runChain(t, db, "/api/projects", ghostToken, "ghost")
		assert.False(t, reached)
		assertAppError(t, err, apperror.CodeInvalidTenant, http.StatusForbidden)
	})

	t.Run("soft-deleted tenant is rejected", func(t *testing.T) {
		require.NoError(t, db.Create(&model.Tenant{Code: "gone", Name: "Gone", Active: true}).Error)
		require.NoError(t, db.Where("code = ?", "gone").Delete(&model.Tenant{}).Error)

		goneToken, err := jwtutil.GenerateToken("user@gone.test", 4, "gone")
		require.NoError(t, err)

		chainErr, reached := runChain(t, db, "/api/projects", goneToken, "gone")
		assert.False(t, reached)
		assertAppError(t, chainErr, apperror.CodeInvalidTenant, http.StatusForbidden)
	})

	t.Run("login path is exempt", func(t *testing.T) {
		err, reached := runChain(t, db, "/api/auth/login", "", "")
		require.NoError(t, err)
		assert.True(t, reached)
	})

	t.Run("login path exemption is case-insensitive", func(t *testing.T) {
		err, reached := runChain(t, db, "/API/Auth/Login", "", "")
		require.NoError(t, err)
		assert.True(t, reached)
	})

	t.Run("missing token is unauthorized before tenant checks", func(t *testing.T) {
		err, reached := runChain(t, db, "/api/projects", "", "acme")
		assert.False(t, reached)
		assertAppError(t, err, apperror.CodeUnauthorized, http.StatusUnauthorized)
	})

	t.Run("token without tenant claim", func(t *testing.T) {
		bareToken, err := jwtutil.GenerateToken("user@nowhere.test", 5, "")
		require.NoError(t, err)

		chainErr, reached := runChain(t, db, "/api/projects", bareToken, "acme")
		assert.False(t, reached)
		assertAppError(t, chainErr, apperror.CodeTenantIDMissing, http.StatusUnauthorized)
	})
}

func TestTenantIDHelper(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, ok := TenantID(c)
	assert.False(t, ok)

	c.Set("tenant_id", "acme")
	id, ok := TenantID(c)
	assert.True(t, ok)
	assert.Equal(t, "acme", id)
}
