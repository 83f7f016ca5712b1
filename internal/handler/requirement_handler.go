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

// RequirementRequest defines the structure for requirement creation/update requests
type RequirementRequest struct {
	ProjectID   uint   `json:"project_id"`
	ParentID    *uint  `json:"parent_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// requirementParentOf returns a tree.ParentFunc walking requirement parents
// inside one tenant.
func requirementParentOf(db *gorm.DB, tenantID string) tree.ParentFunc {
	return func(id uint) (*uint, error) {
		var req model.Requirement
		if err := db.Select("parent_id").
			Where("id = ? AND tenant_id = ?", id, tenantID).
			First(&req).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, nil
			}
			return nil, err
		}
		return req.ParentID, nil
	}
}

// validateRequirementParent mirrors validateSuiteParent for requirements.
func validateRequirementParent(db *gorm.DB, tenantID string, projectID, reqID uint, parentID uint) error {
	var parent model.Requirement
	result := db.Where("id = ? AND tenant_id = ?", parentID, tenantID).First(&parent)
	if result.Error != nil {
		return notFoundOr(result.Error, "parent requirement")
	}
	if parent.ProjectID != projectID {
		return apperror.Validation(map[string]string{
			"parent_id": "must belong to the same project",
		})
	}
	if reqID != 0 {
		if err := tree.EnsureAcyclic(reqID, parentID, requirementParentOf(db, tenantID)); err != nil {
			if err == tree.ErrCycle {
				return apperror.Validation(map[string]string{
					"parent_id": "would make the requirement its own ancestor",
				})
			}
			return apperror.Internal(err)
		}
	}
	return nil
}

// CreateRequirement creates a requirement, optionally under a parent of the
// same project.
func CreateRequirement(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("requirement", "create")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}

	var req RequirementRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	fields := map[string]string{}
	if req.Title == "" {
		fields["title"] = "is required"
	}
	if req.ProjectID == 0 {
		fields["project_id"] = "is required"
	}
	if len(fields) > 0 {
		return apperror.Validation(fields)
	}

	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(req.ProjectID), authz.PermRequirementWrite); err != nil {
		return err
	}
	if _, err := findProject(database.GetDB(), tenantID, req.ProjectID); err != nil {
		return err
	}
	if req.ParentID != nil {
		if err := validateRequirementParent(database.GetDB(), tenantID, req.ProjectID, 0, *req.ParentID); err != nil {
			return err
		}
	}

	requirement := model.Requirement{
		TenantID:    tenantID,
		ProjectID:   req.ProjectID,
		ParentID:    req.ParentID,
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   userID,
		UpdatedBy:   userID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&requirement).Error; err != nil {
		log.Error("Failed to create requirement", zap.String("title", req.Title), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &requirement.ProjectID,
		UserID:     userID,
		EntityType: "requirement",
		EntityID:   requirement.ID,
		Action:     "create",
	})

	return c.JSON(http.StatusCreated, requirement)
}

// GetRequirement retrieves a requirement by ID for the current tenant
func GetRequirement(c echo.Context) error {
	prometheus.RecordEntityOperation("requirement", "get")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var requirement model.Requirement
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&requirement)
	if result.Error != nil {
		return notFoundOr(result.Error, "requirement")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(requirement.ProjectID), authz.PermRequirementRead); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, requirement)
}

// ListRequirements retrieves the requirements of a project.
func ListRequirements(c echo.Context) error {
	prometheus.RecordEntityOperation("requirement", "list")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	projectID, err := paramID(c, "project_id")
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(projectID), authz.PermRequirementRead); err != nil {
		return err
	}

	var requirements []model.Requirement
	if err := database.GetDB().
		Where("project_id = ? AND tenant_id = ?", projectID, tenantID).
		Order("id").Find(&requirements).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"requirements": requirements})
}

// UpdateRequirement updates title/description and reparents with the full
// ancestry walk.
func UpdateRequirement(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("requirement", "update")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var requirement model.Requirement
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&requirement)
	if result.Error != nil {
		return notFoundOr(result.Error, "requirement")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(requirement.ProjectID), authz.PermRequirementWrite); err != nil {
		return err
	}

	var req RequirementRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if req.Title == "" {
		return apperror.Validation(map[string]string{"title": "is required"})
	}
	if req.ParentID != nil {
		if err := validateRequirementParent(database.GetDB(), tenantID, requirement.ProjectID, requirement.ID, *req.ParentID); err != nil {
			return err
		}
	}

	requirement.Title = req.Title
	requirement.Description = req.Description
	requirement.ParentID = req.ParentID
	requirement.UpdatedBy = userID

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(&requirement).Error; err != nil {
		log.Error("Failed to update requirement", zap.Uint("requirement_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &requirement.ProjectID,
		UserID:     userID,
		EntityType: "requirement",
		EntityID:   requirement.ID,
		Action:     "update",
	})

	return c.JSON(http.StatusOK, requirement)
}

// DeleteRequirement soft-deletes a requirement, its descendants and its
// traceability links in one transaction.
func DeleteRequirement(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("requirement", "delete")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var requirement model.Requirement
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&requirement)
	if result.Error != nil {
		return notFoundOr(result.Error, "requirement")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(requirement.ProjectID), authz.PermRequirementWrite); err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		subtree := []uint{id}
		frontier := []uint{id}
		for len(frontier) > 0 {
			var children []uint
			if err := tx.Model(&model.Requirement{}).
				Where("parent_id IN ? AND tenant_id = ?", frontier, tenantID).
				Pluck("id", &children).Error; err != nil {
				return err
			}
			subtree = append(subtree, children...)
			frontier = children
		}

		if err := tx.Where("requirement_id IN ? AND tenant_id = ?", subtree, tenantID).
			Delete(&model.RequirementTestCase{}).Error; err != nil {
			return err
		}
		if err := tx.Where("requirement_id IN ? AND tenant_id = ?", subtree, tenantID).
			Delete(&model.RequirementTestSuite{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ? AND tenant_id = ?", subtree, tenantID).
			Delete(&model.Requirement{}).Error
	})
	if err != nil {
		log.Error("Failed to delete requirement", zap.Uint("requirement_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &requirement.ProjectID,
		UserID:     userID,
		EntityType: "requirement",
		EntityID:   id,
		Action:     "delete",
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "requirement deleted"})
}

// LinkRequirementCase links a requirement to a test case with a traceability
// weight, or updates the weight of an existing link.
func LinkRequirementCase(c echo.Context) error {
	prometheus.RecordEntityOperation("requirement", "link_case")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		CaseID uint `json:"case_id"`
		Weight int  `json:"weight"`
	}
	if err := c.Bind(&req); err != nil || req.CaseID == 0 {
		return apperror.Validation(map[string]string{"case_id": "is required"})
	}
	if req.Weight <= 0 {
		req.Weight = 1
	}

	var requirement model.Requirement
	if r := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&requirement); r.Error != nil {
		return notFoundOr(r.Error, "requirement")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(requirement.ProjectID), authz.PermRequirementWrite); err != nil {
		return err
	}
	var testCase model.TestCase
	if r := database.GetDB().Where("id = ? AND tenant_id = ?", req.CaseID, tenantID).
		First(&testCase); r.Error != nil {
		return notFoundOr(r.Error, "test case")
	}

	var link model.RequirementTestCase
	result := database.GetDB().
		Where("requirement_id = ? AND case_id = ? AND tenant_id = ?", id, req.CaseID, tenantID).
		First(&link)
	created := result.Error == gorm.ErrRecordNotFound
	if result.Error != nil && !created {
		return apperror.Internal(result.Error)
	}

	link.TenantID = tenantID
	link.RequirementID = id
	link.CaseID = req.CaseID
	link.Weight = req.Weight
	link.UpdatedBy = userID
	if created {
		link.CreatedBy = userID
	}

	if err := database.GetDB().Save(&link).Error; err != nil {
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &requirement.ProjectID,
		UserID:     userID,
		EntityType: "requirement_case",
		EntityID:   link.ID,
		Action:     "link",
		Details:    echo.Map{"case_id": req.CaseID, "weight": req.Weight},
	})

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, link)
}

// UnlinkRequirementCase removes a requirement-to-case link.
func UnlinkRequirementCase(c echo.Context) error {
	prometheus.RecordEntityOperation("requirement", "unlink_case")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	caseID, err := paramID(c, "case_id")
	if err != nil {
		return err
	}

	var requirement model.Requirement
	if r := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&requirement); r.Error != nil {
		return notFoundOr(r.Error, "requirement")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(requirement.ProjectID), authz.PermRequirementWrite); err != nil {
		return err
	}

	var link model.RequirementTestCase
	result := database.GetDB().
		Where("requirement_id = ? AND case_id = ? AND tenant_id = ?", id, caseID, tenantID).
		First(&link)
	if result.Error != nil {
		return notFoundOr(result.Error, "requirement link")
	}

	if err := database.GetDB().Delete(&link).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "link removed"})
}

// LinkRequirementSuite links a requirement to a test suite.
func LinkRequirementSuite(c echo.Context) error {
	prometheus.RecordEntityOperation("requirement", "link_suite")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		SuiteID uint `json:"suite_id"`
	}
	if err := c.Bind(&req); err != nil || req.SuiteID == 0 {
		return apperror.Validation(map[string]string{"suite_id": "is required"})
	}

	var requirement model.Requirement
	if r := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&requirement); r.Error != nil {
		return notFoundOr(r.Error, "requirement")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(requirement.ProjectID), authz.PermRequirementWrite); err != nil {
		return err
	}
	var suite model.TestSuite
	if r := database.GetDB().Where("id = ? AND tenant_id = ?", req.SuiteID, tenantID).
		First(&suite); r.Error != nil {
		return notFoundOr(r.Error, "suite")
	}

	var count int64
	database.GetDB().Model(&model.RequirementTestSuite{}).
		Where("requirement_id = ? AND suite_id = ? AND tenant_id = ?", id, req.SuiteID, tenantID).
		Count(&count)
	if count > 0 {
		return apperror.Conflict("requirement is already linked to this suite")
	}

	link := model.RequirementTestSuite{
		TenantID:      tenantID,
		RequirementID: id,
		SuiteID:       req.SuiteID,
		CreatedBy:     userID,
		UpdatedBy:     userID,
	}
	if err := database.GetDB().Create(&link).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusCreated, link)
}

// UnlinkRequirementSuite removes a requirement-to-suite link.
func UnlinkRequirementSuite(c echo.Context) error {
	prometheus.RecordEntityOperation("requirement", "unlink_suite")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	suiteID, err := paramID(c, "suite_id")
	if err != nil {
		return err
	}

	var requirement model.Requirement
	if r := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&requirement); r.Error != nil {
		return notFoundOr(r.Error, "requirement")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(requirement.ProjectID), authz.PermRequirementWrite); err != nil {
		return err
	}

	var link model.RequirementTestSuite
	result := database.GetDB().
		Where("requirement_id = ? AND suite_id = ? AND tenant_id = ?", id, suiteID, tenantID).
		First(&link)
	if result.Error != nil {
		return notFoundOr(result.Error, "requirement link")
	}

	if err := database.GetDB().Delete(&link).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "link removed"})
}

// ListRequirementLinks returns a requirement's case and suite links.
func ListRequirementLinks(c echo.Context) error {
	prometheus.RecordEntityOperation("requirement", "links")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var requirement model.Requirement
	if r := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&requirement); r.Error != nil {
		return notFoundOr(r.Error, "requirement")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(requirement.ProjectID), authz.PermRequirementRead); err != nil {
		return err
	}

	var caseLinks []model.RequirementTestCase
	if err := database.GetDB().
		Where("requirement_id = ? AND tenant_id = ?", id, tenantID).
		Find(&caseLinks).Error; err != nil {
		return apperror.Internal(err)
	}
	var suiteLinks []model.RequirementTestSuite
	if err := database.GetDB().
		Where("requirement_id = ? AND tenant_id = ?", id, tenantID).
		Find(&suiteLinks).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"cases":  caseLinks,
		"suites": suiteLinks,
	})
}
