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

// ListUsers returns the tenant's users.
func ListUsers(c echo.Context) error {
	prometheus.RecordEntityOperation("user", "list")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermUserManage); err != nil {
		return err
	}

	page, limit, offset := pagination(c)

	query := database.GetDB().Where("tenant_id = ?", tenantID)
	var total int64
	if err := query.Model(&model.User{}).Count(&total).Error; err != nil {
		return apperror.Internal(err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var users []model.User
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"users":      users,
		"pagination": pageMap(page, limit, total),
	})
}

// GetUser returns one user of the tenant, with role bindings preloaded.
func GetUser(c echo.Context) error {
	prometheus.RecordEntityOperation("user", "get")

	tenantID, _, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var user model.User
	result := database.GetDB().Preload("Roles").
		Where("id = ? AND tenant_id = ?", id, tenantID).First(&user)
	if result.Error != nil {
		return notFoundOr(result.Error, "user")
	}

	return c.JSON(http.StatusOK, user)
}

// DeactivateUser soft-deletes a user. Role bindings are soft-deleted in the
// same transaction so the evaluator stops matching them immediately.
func DeactivateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("user", "delete")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermUserManage); err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var user model.User
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&user)
	if result.Error != nil {
		return notFoundOr(result.Error, "user")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND tenant_id = ?", id, tenantID).
			Delete(&model.Role{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		log.Error("Failed to deactivate user", zap.Uint("user_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		UserID:     userID,
		EntityType: "user",
		EntityID:   id,
		Action:     "delete",
	})

	log.Info("User deactivated", zap.Uint("user_id", id), zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusOK, echo.Map{"message": "user deactivated"})
}

// AssignRole binds a role type to a user, tenant-wide or scoped to one
// project, and attaches the role type's default permissions.
func AssignRole(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("role", "assign")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermUserManage); err != nil {
		return err
	}

	var req struct {
		UserID    uint           `json:"user_id"`
		RoleType  model.RoleType `json:"role_type"`
		ProjectID *uint          `json:"project_id,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}

	fields := map[string]string{}
	if req.UserID == 0 {
		fields["user_id"] = "is required"
	}
	if len(authz.DefaultPermissions(req.RoleType)) == 0 {
		fields["role_type"] = "must be one of admin, manager, tester, viewer"
	}
	if len(fields) > 0 {
		return apperror.Validation(fields)
	}

	// The target user must live in the same tenant.
	var target model.User
	result := database.GetDB().Where("id = ? AND tenant_id = ?", req.UserID, tenantID).First(&target)
	if result.Error != nil {
		return notFoundOr(result.Error, "user")
	}

	// A project-scoped role must point at a live project of this tenant.
	if req.ProjectID != nil {
		if _, err := findProject(database.GetDB(), tenantID, *req.ProjectID); err != nil {
			return err
		}
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	role := model.Role{
		TenantID:  tenantID,
		UserID:    req.UserID,
		RoleType:  req.RoleType,
		ProjectID: req.ProjectID,
		CreatedBy: userID,
		UpdatedBy: userID,
	}
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&role).Error; err != nil {
			return err
		}
		return authz.BindDefaultPermissions(tx, &role)
	})
	if err != nil {
		log.Error("Failed to assign role", zap.Uint("target_user", req.UserID), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  req.ProjectID,
		UserID:     userID,
		EntityType: "role",
		EntityID:   role.ID,
		Action:     "assign",
		Details:    echo.Map{"user_id": req.UserID, "role_type": req.RoleType},
	})

	log.Info("Role assigned",
		zap.Uint("role_id", role.ID),
		zap.Uint("target_user", req.UserID),
		zap.String("role_type", string(req.RoleType)))
	return c.JSON(http.StatusCreated, role)
}

// RevokeRole soft-deletes a role binding.
func RevokeRole(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("role", "revoke")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermUserManage); err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var role model.Role
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&role)
	if result.Error != nil {
		return notFoundOr(result.Error, "role")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := database.GetDB().Delete(&role).Error; err != nil {
		log.Error("Failed to revoke role", zap.Uint("role_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  role.ProjectID,
		UserID:     userID,
		EntityType: "role",
		EntityID:   id,
		Action:     "revoke",
	})

	log.Info("Role revoked", zap.Uint("role_id", id), zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusOK, echo.Map{"message": "role revoked"})
}
