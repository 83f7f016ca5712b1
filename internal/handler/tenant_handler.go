package handler

import (
	"net/http"
	"time"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/audit"
	"testmgmt-service/internal/authz"
	"testmgmt-service/internal/model"
	"testmgmt-service/pkg/database"
	"testmgmt-service/pkg/logger"
	"testmgmt-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GetTenant returns the caller's own tenant.
func GetTenant(c echo.Context) error {
	prometheus.RecordEntityOperation("tenant", "get")

	tenantID, _, err := identity(c)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	result := database.GetDB().Where("code = ?", tenantID).First(&tenant)
	if result.Error != nil {
		return notFoundOr(result.Error, "tenant")
	}

	return c.JSON(http.StatusOK, tenant)
}

// UpdateTenant updates the caller's own tenant record.
func UpdateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("tenant", "update")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermTenantManage); err != nil {
		return err
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Settings    string `json:"settings"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if req.Name == "" {
		return apperror.Validation(map[string]string{"name": "is required"})
	}

	var tenant model.Tenant
	result := database.GetDB().Where("code = ?", tenantID).First(&tenant)
	if result.Error != nil {
		return notFoundOr(result.Error, "tenant")
	}

	tenant.Name = req.Name
	tenant.Description = req.Description
	if req.Settings != "" {
		tenant.Settings = req.Settings
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(&tenant).Error; err != nil {
		log.Error("Failed to update tenant", zap.String("tenant_id", tenantID), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		UserID:     userID,
		EntityType: "tenant",
		Action:     "update",
		Details:    echo.Map{"name": tenant.Name},
	})

	log.Info("Tenant updated", zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusOK, tenant)
}

// GetTenantAddress returns the tenant's address, if one is set.
func GetTenantAddress(c echo.Context) error {
	prometheus.RecordEntityOperation("tenant_address", "get")

	tenantID, _, err := identity(c)
	if err != nil {
		return err
	}

	var address model.TenantAddress
	result := database.GetDB().Where("tenant_id = ?", tenantID).First(&address)
	if result.Error != nil {
		return notFoundOr(result.Error, "tenant address")
	}

	return c.JSON(http.StatusOK, address)
}

// UpsertTenantAddress creates or replaces the tenant's single address. The
// unique index on tenant_id keeps it at most one per tenant.
func UpsertTenantAddress(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("tenant_address", "upsert")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermTenantManage); err != nil {
		return err
	}

	var req struct {
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		City       string `json:"city"`
		State      string `json:"state"`
		Country    string `json:"country"`
		PostalCode string `json:"postal_code"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if req.Line1 == "" {
		return apperror.Validation(map[string]string{"line1": "is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	var address model.TenantAddress
	result := database.GetDB().Where("tenant_id = ?", tenantID).First(&address)
	created := result.Error == gorm.ErrRecordNotFound
	if result.Error != nil && !created {
		return apperror.Internal(result.Error)
	}

	address.TenantID = tenantID
	address.Line1 = req.Line1
	address.Line2 = req.Line2
	address.City = req.City
	address.State = req.State
	address.Country = req.Country
	address.PostalCode = req.PostalCode
	address.UpdatedBy = userID
	if created {
		address.CreatedBy = userID
	}

	if err := database.GetDB().Save(&address).Error; err != nil {
		log.Error("Failed to save tenant address", zap.String("tenant_id", tenantID), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		UserID:     userID,
		EntityType: "tenant_address",
		EntityID:   address.ID,
		Action:     "upsert",
	})

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, address)
}
