package handler

import (
	"net/http"
	"testing"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/authz"
	"testmgmt-service/internal/middleware"
	"testmgmt-service/internal/model"
	"testmgmt-service/pkg/jwtutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerUser(t *testing.T, tenantCode, email string) string {
	t.Helper()
	c, rec := request(t, http.MethodPost, "/api/auth/register", map[string]string{
		"tenant_code": tenantCode,
		"email":       email,
		"password":    "correct-horse",
	}, "", 0)
	require.NoError(t, Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	return body["confirmation_token"].(string)
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	db := setupDB(t)
	registerUser(t, "acme", "founder@acme.test")

	var tenant model.Tenant
	require.NoError(t, db.Where("code = ?", "acme").First(&tenant).Error)

	var user model.User
	require.NoError(t, db.Where("email = ?", "founder@acme.test").First(&user).Error)
	assert.Equal(t, "acme", user.TenantID)

	var role model.Role
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&role).Error)
	assert.Equal(t, model.RoleAdmin, role.RoleType)
	assert.Nil(t, role.ProjectID)

	// The admin role actually authorizes tenant administration.
	require.NoError(t, authz.Require(db, "acme", user.ID, authz.TenantWide(), authz.PermTenantManage))
}

func TestRegisterSecondUserJoinsAsViewer(t *testing.T) {
	db := setupDB(t)
	registerUser(t, "acme", "founder@acme.test")
	registerUser(t, "acme", "second@acme.test")

	var user model.User
	require.NoError(t, db.Where("email = ?", "second@acme.test").First(&user).Error)

	var role model.Role
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&role).Error)
	assert.Equal(t, model.RoleViewer, role.RoleType)
}

func TestRegisterValidationCollectsFields(t *testing.T) {
	setupDB(t)

	c, _ := request(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "short",
	}, "", 0)

	err := Register(c)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeValidationError, appErr.Code)
	assert.Contains(t, appErr.Fields, "tenant_code")
	assert.Contains(t, appErr.Fields, "email")
	assert.Contains(t, appErr.Fields, "password")
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	setupDB(t)
	registerUser(t, "acme", "dup@acme.test")

	c, _ := request(t, http.MethodPost, "/api/auth/register", map[string]string{
		"tenant_code": "other",
		"email":       "dup@acme.test",
		"password":    "correct-horse",
	}, "", 0)

	err := Register(c)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeConflict, appErr.Code)
}

func TestLoginIssuesTokenAndTenantCookie(t *testing.T) {
	setupDB(t)
	registerUser(t, "acme", "user@acme.test")

	c, rec := request(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "user@acme.test",
		"password": "correct-horse",
	}, "", 0)
	require.NoError(t, Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "acme", body["tenant_id"])

	// The token carries the matching tenant claim.
	claims, err := jwtutil.ValidateToken(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)

	// And the cookie agrees with it.
	var cookieTenant string
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == middleware.TenantCookieName {
			cookieTenant = cookie.Value
		}
	}
	assert.Equal(t, "acme", cookieTenant)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	setupDB(t)
	registerUser(t, "acme", "user@acme.test")

	c, _ := request(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "user@acme.test",
		"password": "wrong",
	}, "", 0)

	err := Login(c)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeUnauthorized, appErr.Code)
}

func TestConfirmEmailIsSingleUse(t *testing.T) {
	db := setupDB(t)
	token := registerUser(t, "acme", "user@acme.test")

	c, rec := request(t, http.MethodPost, "/api/auth/confirm-email", map[string]string{"token": token}, "", 0)
	require.NoError(t, ConfirmEmail(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var user model.User
	require.NoError(t, db.Where("email = ?", "user@acme.test").First(&user).Error)
	assert.True(t, user.EmailConfirmed)

	// A second use is rejected.
	c, _ = request(t, http.MethodPost, "/api/auth/confirm-email", map[string]string{"token": token}, "", 0)
	err := ConfirmEmail(c)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeConflict, appErr.Code)
}

func TestRegisterAcceptsDeactivatedUserEmail(t *testing.T) {
	db := setupDB(t)
	registerUser(t, "acme", "founder@acme.test")
	registerUser(t, "acme", "dev@acme.test")

	var user model.User
	require.NoError(t, db.Where("email = ?", "dev@acme.test").First(&user).Error)
	require.NoError(t, db.Delete(&user).Error)

	// A deactivated account no longer reserves the address.
	registerUser(t, "acme", "dev@acme.test")

	var live int64
	db.Model(&model.User{}).Where("email = ?", "dev@acme.test").Count(&live)
	assert.Equal(t, int64(1), live)
}

func TestRegisterReusesDeletedTenantCode(t *testing.T) {
	db := setupDB(t)
	registerUser(t, "acme", "founder@acme.test")
	require.NoError(t, db.Where("code = ?", "acme").Delete(&model.Tenant{}).Error)

	// A fresh signup may claim the code again; its first user founds the
	// tenant anew and becomes its admin.
	registerUser(t, "acme", "founder2@acme.test")

	var user model.User
	require.NoError(t, db.Where("email = ?", "founder2@acme.test").First(&user).Error)
	var role model.Role
	require.NoError(t, db.Where("user_id = ? AND tenant_id = ?", user.ID, "acme").First(&role).Error)
	assert.Equal(t, model.RoleAdmin, role.RoleType)

	var live, all int64
	db.Model(&model.Tenant{}).Where("code = ?", "acme").Count(&live)
	db.Unscoped().Model(&model.Tenant{}).Where("code = ?", "acme").Count(&all)
	assert.Equal(t, int64(1), live)
	assert.Equal(t, int64(2), all)
}
