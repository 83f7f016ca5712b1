package handler

import (
	"encoding/json"
	"fmt"
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

// CaseRequest defines the structure for test case creation/update requests
type CaseRequest struct {
	SuiteID  uint             `json:"suite_id"`
	FolderID *uint            `json:"folder_id,omitempty"`
	Title    string           `json:"title"`
	Steps    []model.TestStep `json:"steps"`
	Priority model.Priority   `json:"priority"`
	Tags     []string         `json:"tags"`
}

func (r *CaseRequest) validate() map[string]string {
	fields := map[string]string{}
	if r.Title == "" {
		fields["title"] = "is required"
	}
	if r.SuiteID == 0 {
		fields["suite_id"] = "is required"
	}
	switch r.Priority {
	case "", model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityCritical:
	default:
		fields["priority"] = "must be one of low, medium, high, critical"
	}
	for i, tag := range r.Tags {
		if len(tag) > model.MaxTagLength {
			fields[fmt.Sprintf("tags[%d]", i)] = fmt.Sprintf("must be at most %d characters", model.MaxTagLength)
		}
	}
	return fields
}

// caseScope resolves the suite (and optional folder) of a case request,
// enforcing that both live in the same tenant and project.
func caseScope(db *gorm.DB, tenantID string, req *CaseRequest) (*model.TestSuite, error) {
	var suite model.TestSuite
	result := db.Where("id = ? AND tenant_id = ?", req.SuiteID, tenantID).First(&suite)
	if result.Error != nil {
		return nil, notFoundOr(result.Error, "suite")
	}

	if req.FolderID != nil {
		var folder model.TestFolder
		result := db.Where("id = ? AND tenant_id = ?", *req.FolderID, tenantID).First(&folder)
		if result.Error != nil {
			return nil, notFoundOr(result.Error, "folder")
		}
		if folder.ProjectID != suite.ProjectID {
			return nil, apperror.Validation(map[string]string{
				"folder_id": "must belong to the same project as the suite",
			})
		}
	}
	return &suite, nil
}

func marshalField(v interface{}) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

// CreateCase creates a test case under a suite.
func CreateCase(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("case", "create")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}

	var req CaseRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if fields := req.validate(); len(fields) > 0 {
		return apperror.Validation(fields)
	}

	suite, err := caseScope(database.GetDB(), tenantID, &req)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(suite.ProjectID), authz.PermCaseWrite); err != nil {
		return err
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}

	testCase := model.TestCase{
		TenantID:   tenantID,
		SuiteID:    req.SuiteID,
		FolderID:   req.FolderID,
		Title:      req.Title,
		Steps:      marshalField(req.Steps),
		Priority:   priority,
		Tags:       marshalField(req.Tags),
		LastStatus: model.ResultNotRun,
		CreatedBy:  userID,
		UpdatedBy:  userID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&testCase).Error; err != nil {
		log.Error("Failed to create test case", zap.String("title", req.Title), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &suite.ProjectID,
		UserID:     userID,
		EntityType: "case",
		EntityID:   testCase.ID,
		Action:     "create",
		Details:    echo.Map{"title": testCase.Title},
	})

	log.Info("Test case created", zap.Uint("case_id", testCase.ID), zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusCreated, testCase)
}

// GetCase retrieves a test case by ID for the current tenant
func GetCase(c echo.Context) error {
	prometheus.RecordEntityOperation("case", "get")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var testCase model.TestCase
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&testCase)
	if result.Error != nil {
		return notFoundOr(result.Error, "test case")
	}

	var suite model.TestSuite
	if err := database.GetDB().Where("id = ? AND tenant_id = ?", testCase.SuiteID, tenantID).
		First(&suite).Error; err != nil {
		return notFoundOr(err, "suite")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(suite.ProjectID), authz.PermCaseRead); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, testCase)
}

// ListCases retrieves the cases of a suite.
func ListCases(c echo.Context) error {
	prometheus.RecordEntityOperation("case", "list")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	suiteID, err := paramID(c, "suite_id")
	if err != nil {
		return err
	}

	var suite model.TestSuite
	if err := database.GetDB().Where("id = ? AND tenant_id = ?", suiteID, tenantID).
		First(&suite).Error; err != nil {
		return notFoundOr(err, "suite")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(suite.ProjectID), authz.PermCaseRead); err != nil {
		return err
	}

	page, limit, offset := pagination(c)

	query := database.GetDB().Where("suite_id = ? AND tenant_id = ?", suiteID, tenantID)
	var total int64
	if err := query.Model(&model.TestCase{}).Count(&total).Error; err != nil {
		return apperror.Internal(err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var cases []model.TestCase
	if err := query.Order("id").Limit(limit).Offset(offset).Find(&cases).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"cases":      cases,
		"pagination": pageMap(page, limit, total),
	})
}

// UpdateCase updates an existing test case for the current tenant
func UpdateCase(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("case", "update")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var testCase model.TestCase
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&testCase)
	if result.Error != nil {
		return notFoundOr(result.Error, "test case")
	}

	var req CaseRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if req.SuiteID == 0 {
		req.SuiteID = testCase.SuiteID
	}
	if fields := req.validate(); len(fields) > 0 {
		return apperror.Validation(fields)
	}

	suite, err := caseScope(database.GetDB(), tenantID, &req)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(suite.ProjectID), authz.PermCaseWrite); err != nil {
		return err
	}

	testCase.SuiteID = req.SuiteID
	testCase.FolderID = req.FolderID
	testCase.Title = req.Title
	testCase.Steps = marshalField(req.Steps)
	if req.Priority != "" {
		testCase.Priority = req.Priority
	}
	testCase.Tags = marshalField(req.Tags)
	testCase.UpdatedBy = userID

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(&testCase).Error; err != nil {
		log.Error("Failed to update test case", zap.Uint("case_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &suite.ProjectID,
		UserID:     userID,
		EntityType: "case",
		EntityID:   testCase.ID,
		Action:     "update",
	})

	return c.JSON(http.StatusOK, testCase)
}

// DeleteCase soft-deletes a test case.
func DeleteCase(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("case", "delete")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var testCase model.TestCase
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&testCase)
	if result.Error != nil {
		return notFoundOr(result.Error, "test case")
	}

	var suite model.TestSuite
	if err := database.GetDB().Where("id = ? AND tenant_id = ?", testCase.SuiteID, tenantID).
		First(&suite).Error; err != nil {
		return notFoundOr(err, "suite")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(suite.ProjectID), authz.PermCaseWrite); err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := database.GetDB().Delete(&testCase).Error; err != nil {
		log.Error("Failed to delete test case", zap.Uint("case_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &suite.ProjectID,
		UserID:     userID,
		EntityType: "case",
		EntityID:   id,
		Action:     "delete",
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "test case deleted"})
}
