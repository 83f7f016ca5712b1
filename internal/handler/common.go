package handler

import (
	"strconv"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/audit"
	"testmgmt-service/internal/middleware"
	"testmgmt-service/internal/model"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// auditor records mutating actions. Set from main via Init; handlers tolerate
// it being nil so unit tests can run without one.
var auditor *audit.Recorder

// Init wires the package-level collaborators used by all handlers.
func Init(recorder *audit.Recorder) {
	auditor = recorder
}

func recordAudit(entry audit.Entry) {
	if auditor != nil {
		auditor.Record(entry)
	}
}

// identity returns the verified tenant code and authenticated user id from
// the request context. Both are set by the middleware chain before any
// handler runs.
func identity(c echo.Context) (string, uint, error) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return "", 0, apperror.TenantIDMissing()
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		return "", 0, apperror.Unauthorized("")
	}
	return tenantID, userID, nil
}

// paramID parses a numeric path parameter.
func paramID(c echo.Context, name string) (uint, error) {
	raw, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, apperror.Validation(map[string]string{name: "must be a positive integer"})
	}
	return uint(raw), nil
}

// pagination parses the page/limit query parameters shared by list endpoints.
func pagination(c echo.Context) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page <= 0 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return page, limit, (page - 1) * limit
}

func pageMap(page, limit int, total int64) echo.Map {
	return echo.Map{
		"current_page": page,
		"limit":        limit,
		"total":        total,
		"total_pages":  (int(total) + limit - 1) / limit,
	}
}

// findProject loads a live project within the tenant. A project belonging to
// another tenant is indistinguishable from a missing one.
func findProject(db *gorm.DB, tenantID string, projectID uint) (*model.Project, error) {
	var project model.Project
	result := db.Where("id = ? AND tenant_id = ?", projectID, tenantID).First(&project)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, apperror.NotFound("project")
		}
		return nil, apperror.Internal(result.Error)
	}
	return &project, nil
}

// notFoundOr maps a GORM error to NotFound for missing rows and Internal for
// everything else.
func notFoundOr(err error, entity string) error {
	if err == gorm.ErrRecordNotFound {
		return apperror.NotFound(entity)
	}
	return apperror.Internal(err)
}
