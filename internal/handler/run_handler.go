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

// RunRequest defines the structure for test run creation/update requests
type RunRequest struct {
	ProjectID   uint   `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AssigneeID  *uint  `json:"assignee_id,omitempty"`
	CaseIDs     []uint `json:"case_ids,omitempty"`
}

// CreateRun creates a test run and one not_run result row per referenced
// case, all in one transaction. Cases must live in the same tenant and
// project as the run.
func CreateRun(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("run", "create")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}

	var req RunRequest
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

	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(req.ProjectID), authz.PermRunWrite); err != nil {
		return err
	}
	if _, err := findProject(database.GetDB(), tenantID, req.ProjectID); err != nil {
		return err
	}

	// An assignee must be a user of the same tenant.
	if req.AssigneeID != nil {
		var assignee model.User
		if result := database.GetDB().Where("id = ? AND tenant_id = ?", *req.AssigneeID, tenantID).
			First(&assignee); result.Error != nil {
			return notFoundOr(result.Error, "assignee")
		}
	}

	run := model.TestRun{
		TenantID:    tenantID,
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		CreatedBy:   userID,
		UpdatedBy:   userID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		return addCasesToRun(tx, &run, req.CaseIDs, userID)
	})
	if err != nil {
		log.Error("Failed to create run", zap.String("name", req.Name), zap.Error(err))
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr
		}
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &run.ProjectID,
		UserID:     userID,
		EntityType: "run",
		EntityID:   run.ID,
		Action:     "create",
		Details:    echo.Map{"name": run.Name, "cases": len(req.CaseIDs)},
	})

	log.Info("Run created", zap.Uint("run_id", run.ID), zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusCreated, run)
}

// addCasesToRun creates the not_run result rows anchoring cases to a run.
// Every case must belong to a suite of the run's project and tenant.
func addCasesToRun(tx *gorm.DB, run *model.TestRun, caseIDs []uint, userID uint) error {
	for _, caseID := range caseIDs {
		var testCase model.TestCase
		if err := tx.Where("id = ? AND tenant_id = ?", caseID, run.TenantID).
			First(&testCase).Error; err != nil {
			return notFoundOr(err, "test case")
		}
		var suite model.TestSuite
		if err := tx.Where("id = ? AND tenant_id = ?", testCase.SuiteID, run.TenantID).
			First(&suite).Error; err != nil {
			return notFoundOr(err, "suite")
		}
		if suite.ProjectID != run.ProjectID {
			return apperror.Validation(map[string]string{
				"case_ids": "all cases must belong to the run's project",
			})
		}

		result := model.TestRunResult{
			TenantID:  run.TenantID,
			RunID:     run.ID,
			CaseID:    caseID,
			Status:    model.ResultNotRun,
			CreatedBy: userID,
			UpdatedBy: userID,
		}
		if err := tx.Create(&result).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetRun retrieves a test run by ID for the current tenant
func GetRun(c echo.Context) error {
	prometheus.RecordEntityOperation("run", "get")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var run model.TestRun
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&run)
	if result.Error != nil {
		return notFoundOr(result.Error, "run")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(run.ProjectID), authz.PermRunRead); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// ListRuns retrieves the runs of a project.
func ListRuns(c echo.Context) error {
	prometheus.RecordEntityOperation("run", "list")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	projectID, err := paramID(c, "project_id")
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(projectID), authz.PermRunRead); err != nil {
		return err
	}

	page, limit, offset := pagination(c)

	query := database.GetDB().Where("project_id = ? AND tenant_id = ?", projectID, tenantID)
	var total int64
	if err := query.Model(&model.TestRun{}).Count(&total).Error; err != nil {
		return apperror.Internal(err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var runs []model.TestRun
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&runs).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"runs":       runs,
		"pagination": pageMap(page, limit, total),
	})
}

// UpdateRun updates run metadata and assignment.
func UpdateRun(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("run", "update")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var run model.TestRun
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&run)
	if result.Error != nil {
		return notFoundOr(result.Error, "run")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(run.ProjectID), authz.PermRunWrite); err != nil {
		return err
	}

	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if req.Name == "" {
		return apperror.Validation(map[string]string{"name": "is required"})
	}
	if req.AssigneeID != nil {
		var assignee model.User
		if result := database.GetDB().Where("id = ? AND tenant_id = ?", *req.AssigneeID, tenantID).
			First(&assignee); result.Error != nil {
			return notFoundOr(result.Error, "assignee")
		}
	}

	run.Name = req.Name
	run.Description = req.Description
	run.AssigneeID = req.AssigneeID
	run.UpdatedBy = userID

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(&run).Error; err != nil {
		log.Error("Failed to update run", zap.Uint("run_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &run.ProjectID,
		UserID:     userID,
		EntityType: "run",
		EntityID:   run.ID,
		Action:     "update",
	})

	return c.JSON(http.StatusOK, run)
}

// StartRun stamps the run as started.
func StartRun(c echo.Context) error {
	return stampRun(c, "start")
}

// CompleteRun stamps the run as completed.
func CompleteRun(c echo.Context) error {
	return stampRun(c, "complete")
}

func stampRun(c echo.Context, action string) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("run", action)

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var run model.TestRun
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&run)
	if result.Error != nil {
		return notFoundOr(result.Error, "run")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(run.ProjectID), authz.PermRunExecute); err != nil {
		return err
	}

	now := time.Now()
	switch action {
	case "start":
		if run.StartedAt != nil {
			return apperror.Conflict("run has already been started")
		}
		run.StartedAt = &now
	case "complete":
		if run.StartedAt == nil {
			return apperror.Conflict("run has not been started")
		}
		if run.CompletedAt != nil {
			return apperror.Conflict("run has already been completed")
		}
		run.CompletedAt = &now
	}
	run.UpdatedBy = userID

	if err := database.GetDB().Save(&run).Error; err != nil {
		log.Error("Failed to stamp run", zap.Uint("run_id", id), zap.String("action", action), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &run.ProjectID,
		UserID:     userID,
		EntityType: "run",
		EntityID:   run.ID,
		Action:     action,
	})

	return c.JSON(http.StatusOK, run)
}

// DeleteRun soft-deletes a run and its result rows in one transaction.
// Defects raised from those results survive.
func DeleteRun(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("run", "delete")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var run model.TestRun
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&run)
	if result.Error != nil {
		return notFoundOr(result.Error, "run")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(run.ProjectID), authz.PermRunWrite); err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ? AND tenant_id = ?", id, tenantID).
			Delete(&model.TestRunResult{}).Error; err != nil {
			return err
		}
		return tx.Delete(&run).Error
	})
	if err != nil {
		log.Error("Failed to delete run", zap.Uint("run_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &run.ProjectID,
		UserID:     userID,
		EntityType: "run",
		EntityID:   id,
		Action:     "delete",
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "run deleted"})
}
