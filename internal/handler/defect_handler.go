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

// DefectRequest defines the structure for defect creation/update requests
type DefectRequest struct {
	ResultID    *uint          `json:"result_id,omitempty"`
	CaseID      *uint          `json:"case_id,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    model.Severity `json:"severity"`
	ExternalRef string         `json:"external_ref"`
	AssigneeID  *uint          `json:"assignee_id,omitempty"`
	Attachments string         `json:"attachments"`
}

func (r *DefectRequest) validate() map[string]string {
	fields := map[string]string{}
	if r.Title == "" {
		fields["title"] = "is required"
	}
	switch r.Severity {
	case "", model.SeverityTrivial, model.SeverityMinor, model.SeverityMajor, model.SeverityCritical:
	default:
		fields["severity"] = "must be one of trivial, minor, major, critical"
	}
	return fields
}

// appendHistory writes one immutable history row inside the transaction
// mutating the defect.
func appendHistory(tx *gorm.DB, defect *model.Defect, userID uint, action string, details interface{}) error {
	row := model.DefectHistory{
		TenantID: defect.TenantID,
		DefectID: defect.ID,
		UserID:   userID,
		Action:   action,
		Details:  marshalField(details),
	}
	return tx.Create(&row).Error
}

// CreateDefect creates a defect, optionally anchored to a run result and/or
// a test case of the same tenant, and writes the first history row.
func CreateDefect(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("defect", "create")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermDefectWrite); err != nil {
		return err
	}

	var req DefectRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if fields := req.validate(); len(fields) > 0 {
		return apperror.Validation(fields)
	}

	// Anchors must belong to this tenant, and a result anchors at most one
	// defect.
	if req.ResultID != nil {
		var result model.TestRunResult
		if r := database.GetDB().Where("id = ? AND tenant_id = ?", *req.ResultID, tenantID).
			First(&result); r.Error != nil {
			return notFoundOr(r.Error, "run result")
		}
		var count int64
		database.GetDB().Model(&model.Defect{}).
			Where("result_id = ?", *req.ResultID).Count(&count)
		if count > 0 {
			return apperror.Conflict("a defect already exists for this result")
		}
	}
	if req.CaseID != nil {
		var testCase model.TestCase
		if r := database.GetDB().Where("id = ? AND tenant_id = ?", *req.CaseID, tenantID).
			First(&testCase); r.Error != nil {
			return notFoundOr(r.Error, "test case")
		}
	}
	if req.AssigneeID != nil {
		var assignee model.User
		if r := database.GetDB().Where("id = ? AND tenant_id = ?", *req.AssigneeID, tenantID).
			First(&assignee); r.Error != nil {
			return notFoundOr(r.Error, "assignee")
		}
	}

	severity := req.Severity
	if severity == "" {
		severity = model.SeverityMinor
	}

	defect := model.Defect{
		TenantID:    tenantID,
		ResultID:    req.ResultID,
		CaseID:      req.CaseID,
		Title:       req.Title,
		Description: req.Description,
		Severity:    severity,
		Status:      model.DefectOpen,
		ExternalRef: req.ExternalRef,
		AssigneeID:  req.AssigneeID,
		Attachments: req.Attachments,
		CreatedBy:   userID,
		UpdatedBy:   userID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&defect).Error; err != nil {
			return err
		}
		return appendHistory(tx, &defect, userID, workflow.ActionCreated, echo.Map{
			"title":    defect.Title,
			"severity": defect.Severity,
		})
	})
	if err != nil {
		log.Error("Failed to create defect", zap.String("title", req.Title), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		UserID:     userID,
		EntityType: "defect",
		EntityID:   defect.ID,
		Action:     "create",
		Details:    echo.Map{"title": defect.Title},
	})

	log.Info("Defect created", zap.Uint("defect_id", defect.ID), zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusCreated, defect)
}

// GetDefect retrieves a defect by ID for the current tenant
func GetDefect(c echo.Context) error {
	prometheus.RecordEntityOperation("defect", "get")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermDefectRead); err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var defect model.Defect
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&defect)
	if result.Error != nil {
		return notFoundOr(result.Error, "defect")
	}

	return c.JSON(http.StatusOK, defect)
}

// ListDefects lists the tenant's defects, filterable by status and severity.
func ListDefects(c echo.Context) error {
	prometheus.RecordEntityOperation("defect", "list")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermDefectRead); err != nil {
		return err
	}

	page, limit, offset := pagination(c)

	query := database.GetDB().Where("tenant_id = ?", tenantID)
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if severity := c.QueryParam("severity"); severity != "" {
		query = query.Where("severity = ?", severity)
	}

	var total int64
	if err := query.Model(&model.Defect{}).Count(&total).Error; err != nil {
		return apperror.Internal(err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var defects []model.Defect
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&defects).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"defects":    defects,
		"pagination": pageMap(page, limit, total),
	})
}

// UpdateDefect updates defect fields without touching its status; every
// change appends one history row in the same transaction.
func UpdateDefect(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("defect", "update")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermDefectWrite); err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var defect model.Defect
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&defect)
	if result.Error != nil {
		return notFoundOr(result.Error, "defect")
	}

	var req DefectRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if fields := req.validate(); len(fields) > 0 {
		return apperror.Validation(fields)
	}
	if req.AssigneeID != nil {
		var assignee model.User
		if r := database.GetDB().Where("id = ? AND tenant_id = ?", *req.AssigneeID, tenantID).
			First(&assignee); r.Error != nil {
			return notFoundOr(r.Error, "assignee")
		}
	}

	assigneeChanged := (req.AssigneeID == nil) != (defect.AssigneeID == nil) ||
		(req.AssigneeID != nil && defect.AssigneeID != nil && *req.AssigneeID != *defect.AssigneeID)

	defect.Title = req.Title
	defect.Description = req.Description
	if req.Severity != "" {
		defect.Severity = req.Severity
	}
	defect.ExternalRef = req.ExternalRef
	defect.AssigneeID = req.AssigneeID
	if req.Attachments != "" {
		defect.Attachments = req.Attachments
	}
	defect.UpdatedBy = userID

	defer prometheus.TrackDBOperation("update")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&defect).Error; err != nil {
			return err
		}
		action := workflow.ActionUpdated
		if assigneeChanged {
			action = workflow.ActionAssigned
		}
		return appendHistory(tx, &defect, userID, action, echo.Map{
			"title":    defect.Title,
			"severity": defect.Severity,
		})
	})
	if err != nil {
		log.Error("Failed to update defect", zap.Uint("defect_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		UserID:     userID,
		EntityType: "defect",
		EntityID:   defect.ID,
		Action:     "update",
	})

	return c.JSON(http.StatusOK, defect)
}

// TransitionDefect moves a defect through its workflow. The transition is
// validated against the state machine and appends exactly one history row.
func TransitionDefect(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("defect", "transition")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermDefectWrite); err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Status          model.DefectStatus `json:"status"`
		ResolutionNotes string             `json:"resolution_notes"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	switch req.Status {
	case model.DefectOpen, model.DefectInProgress, model.DefectResolved, model.DefectClosed:
	default:
		return apperror.Validation(map[string]string{
			"status": "must be one of open, in_progress, resolved, closed",
		})
	}

	var defect model.Defect
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&defect)
	if result.Error != nil {
		return notFoundOr(result.Error, "defect")
	}

	from := defect.Status
	if err := workflow.ValidateDefectTransition(from, req.Status); err != nil {
		log.Warn("Invalid defect transition",
			zap.Uint("defect_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(req.Status)))
		return err
	}

	defect.Status = req.Status
	if req.ResolutionNotes != "" {
		defect.ResolutionNotes = req.ResolutionNotes
	}
	defect.UpdatedBy = userID

	action := workflow.ActionTransitioned
	if workflow.IsReopen(from, req.Status) {
		action = workflow.ActionReopened
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&defect).Error; err != nil {
			return err
		}
		return appendHistory(tx, &defect, userID, action, echo.Map{
			"from": from,
			"to":   req.Status,
		})
	})
	if err != nil {
		log.Error("Failed to transition defect", zap.Uint("defect_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	prometheus.RecordDefectTransition(string(from), string(req.Status))
	recordAudit(audit.Entry{
		TenantID:   tenantID,
		UserID:     userID,
		EntityType: "defect",
		EntityID:   defect.ID,
		Action:     "transition",
		Details:    echo.Map{"from": from, "to": req.Status},
	})

	log.Info("Defect transitioned",
		zap.Uint("defect_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(req.Status)))
	return c.JSON(http.StatusOK, defect)
}

// ListDefectHistory returns the append-only history of a defect, oldest
// first.
func ListDefectHistory(c echo.Context) error {
	prometheus.RecordEntityOperation("defect", "history")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermDefectRead); err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var defect model.Defect
	result := database.GetDB().Where("id = ? AND tenant_id = ?", id, tenantID).First(&defect)
	if result.Error != nil {
		return notFoundOr(result.Error, "defect")
	}

	var history []model.DefectHistory
	if err := database.GetDB().
		Where("defect_id = ? AND tenant_id = ?", id, tenantID).
		Order("id").Find(&history).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"history": history})
}
