package handler

import (
	"net/http"
	"time"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/audit"
	"testmgmt-service/internal/authz"
	"testmgmt-service/internal/model"
	"testmgmt-service/internal/tree"
	"testmgmt-service/pkg/database"
	"testmgmt-service/pkg/logger"
	"testmgmt-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SuiteRequest defines the structure for test suite creation/update requests
type SuiteRequest struct {
	ProjectID     uint   `json:"project_id"`
	ParentSuiteID *uint  `json:"parent_suite_id,omitempty"`
	Name          string `json:"name"`
	Description   string `json:"description"`
}

// suiteParentOf returns a tree.ParentFunc walking suite parents inside one
// tenant.
func suiteParentOf(db *gorm.DB, tenantID string) tree.ParentFunc {
	return func(id uint) (*uint, error) {
		var suite model.TestSuite
		if err := db.Select("parent_suite_id").
			Where("id = ? AND tenant_id = ?", id, tenantID).
			First(&suite).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, nil
			}
			return nil, err
		}
		return suite.ParentSuiteID, nil
	}
}

// validateSuiteParent checks that the parent suite exists, lives in the same
// tenant and project, and that linking would not create a cycle.
func validateSuiteParent(db *gorm.DB, tenantID string, projectID, suiteID uint, parentID uint) error {
	var parent model.TestSuite
	result := db.Where("id = ? AND tenant_id = ?", parentID, tenantID).First(&parent)
	if result.Error != nil {
		return notFoundOr(result.Error, "parent suite")
	}
	if parent.ProjectID != projectID {
		return apperror.Validation(map[string]string{
			"parent_suite_id": "must belong to the same project",
		})
	}
	if suiteID != 0 {
		if err := tree.EnsureAcyclic(suiteID, parentID, suiteParentOf(db, tenantID)); err != nil {
			if err == tree.ErrCycle {
				return apperror.Validation(map[string]string{
					"parent_suite_id": "would make the suite its own ancestor",
				})
			}
			return apperror.Internal(err)
		}
	}
	return nil
}

// CreateSuite creates a test suite, optionally under a parent suite of the
// same project.
func CreateSuite(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("suite", "create")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}

	var req SuiteRequest
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
	if req.ParentSuiteID != nil {
		if err := validateSuiteParent(database.GetDB(), tenantID, req.ProjectID, 0, *req.ParentSuiteID); err != nil {
			return err
		}
	}

	suite := model.TestSuite{
		TenantID:      tenantID,
		ProjectID:     req.ProjectID,
		ParentSuiteID: req.ParentSuiteID,
		Name:          req.Name,
		Description:   req.Description,
		CreatedBy:     userID,
		UpdatedBy:     userID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&suite).Error; err != nil {
		log.Error("Failed to create suite", zap.String("name", req.Name), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &suite.ProjectID,
		UserID:     userID,
		EntityType: "suite",
		EntityID:   suite.ID,
		Action:     "create",
		Details:    echo.Map{"name": suite.Name},
	})

	log.Info("Suite created", zap.Uint("suite_id", suite.ID), zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusCreated, suite)
}

// GetSuite retrieves a test suite by ID for the current tenant
func GetSuite(c echo.Context) error {
	prometheus.RecordEntityOperation("suite", "get")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var suite model.TestSuite
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&suite)
	if result.Error != nil {
		return notFoundOr(result.Error, "suite")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(suite.ProjectID), authz.PermSuiteRead); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, suite)
}

// ListSuites retrieves the suites of a project.
func ListSuites(c echo.Context) error {
	prometheus.RecordEntityOperation("suite", "list")

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

	defer prometheus.TrackDBOperation("query")(time.Now())
	var suites []model.TestSuite
	if err := database.GetDB().
		Where("project_id = ? AND tenant_id = ?", projectID, tenantID).
		Order("id").Find(&suites).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"suites": suites})
}

// UpdateSuite updates name/description and, when the parent changes, runs
// the full ancestry walk before accepting the new parent.
func UpdateSuite(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("suite", "update")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var suite model.TestSuite
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&suite)
	if result.Error != nil {
		return notFoundOr(result.Error, "suite")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(suite.ProjectID), authz.PermSuiteWrite); err != nil {
		return err
	}

	var req SuiteRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if req.Name == "" {
		return apperror.Validation(map[string]string{"name": "is required"})
	}

	if req.ParentSuiteID != nil {
		if err := validateSuiteParent(database.GetDB(), tenantID, suite.ProjectID, suite.ID, *req.ParentSuiteID); err != nil {
			return err
		}
	}

	suite.Name = req.Name
	suite.Description = req.Description
	suite.ParentSuiteID = req.ParentSuiteID
	suite.UpdatedBy = userID

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(&suite).Error; err != nil {
		log.Error("Failed to update suite", zap.Uint("suite_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &suite.ProjectID,
		UserID:     userID,
		EntityType: "suite",
		EntityID:   suite.ID,
		Action:     "update",
	})

	log.Info("Suite updated", zap.Uint("suite_id", id), zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusOK, suite)
}

// DeleteSuite soft-deletes a suite, its descendant suites and all their test
// cases in one transaction, so no live case is left pointing at a deleted
// suite.
func DeleteSuite(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("suite", "delete")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var suite model.TestSuite
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&suite)
	if result.Error != nil {
		return notFoundOr(result.Error, "suite")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(suite.ProjectID), authz.PermSuiteWrite); err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		// Collect the whole subtree breadth-first.
		subtree := []uint{id}
		frontier := []uint{id}
		for len(frontier) > 0 {
			var children []uint
			if err := tx.Model(&model.TestSuite{}).
				Where("parent_suite_id IN ? AND tenant_id = ?", frontier, tenantID).
				Pluck("id", &children).Error; err != nil {
				return err
			}
			subtree = append(subtree, children...)
			frontier = children
		}

		if err := tx.Where("suite_id IN ? AND tenant_id = ?", subtree, tenantID).
			Delete(&model.TestCase{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ? AND tenant_id = ?", subtree, tenantID).
			Delete(&model.TestSuite{}).Error
	})
	if err != nil {
		log.Error("Failed to delete suite", zap.Uint("suite_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &suite.ProjectID,
		UserID:     userID,
		EntityType: "suite",
		EntityID:   id,
		Action:     "delete",
	})

	log.Info("Suite deleted", zap.Uint("suite_id", id), zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusOK, echo.Map{"message": "suite deleted"})
}
