package handler

import (
	"net/http"
	"strconv"
	"time"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/authz"
	"testmgmt-service/internal/model"
	"testmgmt-service/pkg/database"
	"testmgmt-service/prometheus"

	"github.com/labstack/echo/v4"
)

// ListAuditLogs returns the tenant's audit trail, newest first. Supports
// optional project_id, entity_type and user_id filters.
func ListAuditLogs(c echo.Context) error {
	prometheus.RecordEntityOperation("audit", "list")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermAuditRead); err != nil {
		return err
	}

	page, limit, offset := pagination(c)

	query := database.GetDB().Model(&model.AuditLog{}).Where("tenant_id = ?", tenantID)
	if raw := c.QueryParam("project_id"); raw != "" {
		projectID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return apperror.Validation(map[string]string{"project_id": "must be a positive integer"})
		}
		query = query.Where("project_id = ?", uint(projectID))
	}
	if entityType := c.QueryParam("entity_type"); entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if raw := c.QueryParam("user_id"); raw != "" {
		filterUser, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return apperror.Validation(map[string]string{"user_id": "must be a positive integer"})
		}
		query = query.Where("user_id = ?", uint(filterUser))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return apperror.Internal(err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var logs []model.AuditLog
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"audit_logs": logs,
		"pagination": pageMap(page, limit, total),
	})
}
