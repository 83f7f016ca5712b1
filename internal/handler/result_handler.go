package handler

import (
	"net/http"
	"time"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/audit"
	"testmgmt-service/internal/authz"
	"testmgmt-service/internal/model"
	"testmgmt-service/internal/workflow"
	"testmgmt-service/pkg/database"
	"testmgmt-service/pkg/logger"
	"testmgmt-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListRunResults lists the result rows of a run.
func ListRunResults(c echo.Context) error {
	prometheus.RecordEntityOperation("result", "list")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	runID, err := paramID(c, "run_id")
	if err != nil {
		return err
	}

	var run model.TestRun
	if result := database.GetDB().Where("id = ? AND tenant_id = ?", runID, tenantID).
		First(&run); result.Error != nil {
		return notFoundOr(result.Error, "run")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(run.ProjectID), authz.PermRunRead); err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var results []model.TestRunResult
	if err := database.GetDB().
		Where("run_id = ? AND tenant_id = ?", runID, tenantID).
		Order("id").Find(&results).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"results": results})
}

// RecordResult records an execution outcome on one result row. The status
// change is validated by the result state machine, and the owning test
// case's denormalized last-known fields are refreshed in the same
// transaction. Concurrent recorders race under last-write-wins.
func RecordResult(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("result", "record")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Status       model.ResultStatus `json:"status"`
		ActualResult string             `json:"actual_result"`
		Comments     string             `json:"comments"`
		Attachments  string             `json:"attachments"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	switch req.Status {
	case model.ResultNotRun, model.ResultPassed, model.ResultFailed, model.ResultBlocked, model.ResultSkipped:
	default:
		return apperror.Validation(map[string]string{
			"status": "must be one of not_run, passed, failed, blocked, skipped",
		})
	}

	var result model.TestRunResult
	if r := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&result); r.Error != nil {
		return notFoundOr(r.Error, "run result")
	}

	var run model.TestRun
	if r := database.GetDB().Where("id = ? AND tenant_id = ?", result.RunID, tenantID).
		First(&run); r.Error != nil {
		return notFoundOr(r.Error, "run")
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(run.ProjectID), authz.PermRunExecute); err != nil {
		return err
	}

	if err := workflow.ValidateResultTransition(result.Status, req.Status); err != nil {
		return err
	}

	now := time.Now()
	result.Status = req.Status
	result.ActualResult = req.ActualResult
	result.Comments = req.Comments
	if req.Attachments != "" {
		result.Attachments = req.Attachments
	}
	result.ExecutedBy = &userID
	result.ExecutedAt = &now
	result.UpdatedBy = userID

	defer prometheus.TrackDBOperation("update")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&result).Error; err != nil {
			return err
		}
		// Refresh the case's quick-display fields.
		return tx.Model(&model.TestCase{}).
			Where("id = ? AND tenant_id = ?", result.CaseID, tenantID).
			Updates(map[string]interface{}{
				"last_status":        result.Status,
				"last_actual_result": result.ActualResult,
				"last_comments":      result.Comments,
				"updated_by":         userID,
			}).Error
	})
	if err != nil {
		log.Error("Failed to record result", zap.Uint("result_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &run.ProjectID,
		UserID:     userID,
		EntityType: "result",
		EntityID:   result.ID,
		Action:     "record",
		Details:    echo.Map{"status": result.Status, "case_id": result.CaseID},
	})

	log.Info("Result recorded",
		zap.Uint("result_id", result.ID),
		zap.String("status", string(result.Status)),
		zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusOK, result)
}
