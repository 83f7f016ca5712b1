package apperror

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func render(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/projects/1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	HTTPErrorHandler(zap.NewNop())(err, c)
	return rec
}

func TestHandlerRendersEnvelope(t *testing.T) {
	rec := render(t, TenantIDMismatch())

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t,
		`{"error":{"code":"TenantIdMismatch","message":"tenant id in cookie does not match token claim"}}`,
		rec.Body.String())
}

func TestHandlerRendersValidationFields(t *testing.T) {
	rec := render(t, Validation(map[string]string{
		"title":    "is required",
		"priority": "must be one of low, medium, high, critical",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"code":"ValidationError"`)
	assert.Contains(t, body, `"title":"is required"`)
	assert.Contains(t, body, `"priority"`)
}

func TestHandlerHidesInternalCause(t *testing.T) {
	rec := render(t, Internal(errors.New("pq: connection refused to db-prod-3")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "an internal error occurred")
	assert.NotContains(t, rec.Body.String(), "db-prod-3")
}

func TestHandlerWrapsUnknownErrors(t *testing.T) {
	rec := render(t, errors.New("something unexpected"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"InternalServerError"`)
	assert.NotContains(t, rec.Body.String(), "something unexpected")
}

func TestHandlerMapsEchoErrors(t *testing.T) {
	rec := render(t, echo.NewHTTPError(http.StatusNotFound))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"NotFound"`)

	rec = render(t, echo.NewHTTPError(http.StatusUnauthorized))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"Unauthorized"`)
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal(cause)
	require.ErrorIs(t, err, cause)
}
