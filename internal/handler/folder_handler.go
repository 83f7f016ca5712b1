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
)

// FolderRequest defines the structure for test folder creation/update requests
type FolderRequest struct {
	ProjectID   uint   `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateFolder creates a test folder in a project.
func CreateFolder(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("folder", "create")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}

	var req FolderRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	fields := map[string]string{}
	if req.Name == "" {
		fields["name"] = "is required"
	}
	if req.ProjectID == 0 {
		fields["project_id"] = "is required"
	}
	if len(fields) > 0 {
		return apperror.Validation(fields)
	}

	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(req.ProjectID), authz.PermSuiteWrite); err != nil {
		return err
	}
	if _, err := findProject(database.GetDB(), tenantID, req.ProjectID); err != nil {
		return err
	}

	folder := model.TestFolder{
		TenantID:    tenantID,
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   userID,
		UpdatedBy:   userID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&folder).Error; err != nil {
		log.Error("Failed to create folder", zap.String("name", req.Name), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &folder.ProjectID,
		UserID:     userID,
		EntityType: "folder",
		EntityID:   folder.ID,
		Action:     "create",
	})

	return c.JSON(http.StatusCreated, folder)
}

// ListFolders retrieves the folders of a project.
func ListFolders(c echo.Context) error {
	prometheus.RecordEntityOperation("folder", "list")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	projectID, err := paramID(c, "project_id")
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(projectID), authz.PermSuiteRead); err != nil {
		return err
	}

	var folders []model.TestFolder
	if err := database.GetDB().
		Where("project_id = ? AND tenant_id = ?", projectID, tenantID).
		Order("id").Find(&folders).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"folders": folders})
}

// UpdateFolder updates a folder's name and description.
func UpdateFolder(c echo.Context) error {
	prometheus.RecordEntityOperation("folder", "update")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var folder model.TestFolder
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&folder)
	if result.Error != nil {
		return notFoundOr(result.Error, "folder")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(folder.ProjectID), authz.PermSuiteWrite); err != nil {
		return err
	}

	var req FolderRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if req.Name == "" {
		return apperror.Validation(map[string]string{"name": "is required"})
	}

	folder.Name = req.Name
	folder.Description = req.Description
	folder.UpdatedBy = userID

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(&folder).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, folder)
}

// DeleteFolder soft-deletes a folder. Cases keep their folder reference but
// it resolves to nothing; they remain reachable through their suite.
func DeleteFolder(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("folder", "delete")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var folder model.TestFolder
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&folder)
	if result.Error != nil {
		return notFoundOr(result.Error, "folder")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(folder.ProjectID), authz.PermSuiteWrite); err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := database.GetDB().Delete(&folder).Error; err != nil {
		log.Error("Failed to delete folder", zap.Uint("folder_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &folder.ProjectID,
		UserID:     userID,
		EntityType: "folder",
		EntityID:   id,
		Action:     "delete",
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "folder deleted"})
}
