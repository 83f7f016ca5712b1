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

// ProjectRequest defines the structure for project creation/update requests
type ProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      *bool  `json:"active,omitempty"`
}

func (r *ProjectRequest) validate() error {
	fields := map[string]string{}
	if r.Name == "" {
		fields["name"] = "is required"
	}
	if len(r.Name) > 100 {
		fields["name"] = "must be at most 100 characters"
	}
	if len(fields) > 0 {
		return apperror.Validation(fields)
	}
	return nil
}

// CreateProject creates a new project for the current tenant
func CreateProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("project", "create")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermProjectWrite); err != nil {
		return err
	}

	var req ProjectRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if err := req.validate(); err != nil {
		return err
	}

	var count int64
	database.GetDB().Model(&model.Project{}).
		Where("name = ? AND tenant_id = ?", req.Name, tenantID).
		Count(&count)
	if count > 0 {
		return apperror.Conflict("a project with this name already exists")
	}

	project := model.Project{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Active:      true,
		CreatedBy:   userID,
		UpdatedBy:   userID,
	}
	if req.Active != nil {
		project.Active = *req.Active
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&project).Error; err != nil {
		log.Error("Failed to create project", zap.String("name", req.Name), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &project.ID,
		UserID:     userID,
		EntityType: "project",
		EntityID:   project.ID,
		Action:     "create",
		Details:    echo.Map{"name": project.Name},
	})

	log.Info("Project created",
		zap.Uint("project_id", project.ID),
		zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusCreated, project)
}

// GetProject retrieves a project by ID for the current tenant
func GetProject(c echo.Context) error {
	prometheus.RecordEntityOperation("project", "get")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(id), authz.PermProjectRead); err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	project, err := findProject(database.GetDB(), tenantID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, project)
}

// ListProjects retrieves all projects for the current tenant
func ListProjects(c echo.Context) error {
	prometheus.RecordEntityOperation("project", "list")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.TenantWide(), authz.PermProjectRead); err != nil {
		return err
	}

	page, limit, offset := pagination(c)

	query := database.GetDB().Where("tenant_id = ?", tenantID)
	var total int64
	if err := query.Model(&model.Project{}).Count(&total).Error; err != nil {
		return apperror.Internal(err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var projects []model.Project
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&projects).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"projects":   projects,
		"pagination": pageMap(page, limit, total),
	})
}

// UpdateProject updates an existing project for the current tenant
func UpdateProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("project", "update")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(id), authz.PermProjectWrite); err != nil {
		return err
	}

	var req ProjectRequest
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}
	if err := req.validate(); err != nil {
		return err
	}

	project, err := findProject(database.GetDB(), tenantID, id)
	if err != nil {
		return err
	}

	if req.Name != project.Name {
		var count int64
		database.GetDB().Model(&model.Project{}).
			Where("name = ? AND tenant_id = ? AND id != ?", req.Name, tenantID, id).
			Count(&count)
		if count > 0 {
			return apperror.Conflict("a project with this name already exists")
		}
	}

	project.Name = req.Name
	project.Description = req.Description
	if req.Active != nil {
		project.Active = *req.Active
	}
	project.UpdatedBy = userID

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(project).Error; err != nil {
		log.Error("Failed to update project", zap.Uint("project_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &project.ID,
		UserID:     userID,
		EntityType: "project",
		EntityID:   project.ID,
		Action:     "update",
		Details:    echo.Map{"name": project.Name},
	})

	log.Info("Project updated", zap.Uint("project_id", id), zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusOK, project)
}

// DeleteProject soft-deletes a project and, in the same transaction, every
// suite, folder, case, run and run result under it. Defects survive for
// tracking. Memberships and project-scoped roles are removed so they stop
// authorizing.
func DeleteProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("project", "delete")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(id), authz.PermProjectDelete); err != nil {
		return err
	}

	project, err := findProject(database.GetDB(), tenantID, id)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		scoped := func() *gorm.DB {
			return tx.Where("project_id = ? AND tenant_id = ?", id, tenantID)
		}

		// Results hang off runs, so collect the run ids first.
		var runIDs []uint
		if err := tx.Model(&model.TestRun{}).
			Where("project_id = ? AND tenant_id = ?", id, tenantID).
			Pluck("id", &runIDs).Error; err != nil {
			return err
		}
		if len(runIDs) > 0 {
			if err := tx.Where("run_id IN ? AND tenant_id = ?", runIDs, tenantID).
				Delete(&model.TestRunResult{}).Error; err != nil {
				return err
			}
		}

		// Cases hang off suites.
		var suiteIDs []uint
		if err := tx.Model(&model.TestSuite{}).
			Where("project_id = ? AND tenant_id = ?", id, tenantID).
			Pluck("id", &suiteIDs).Error; err != nil {
			return err
		}
		if len(suiteIDs) > 0 {
			if err := tx.Where("suite_id IN ? AND tenant_id = ?", suiteIDs, tenantID).
				Delete(&model.TestCase{}).Error; err != nil {
				return err
			}
		}

		for _, m := range []interface{}{
			&model.TestRun{}, &model.TestSuite{}, &model.TestFolder{},
			&model.Requirement{}, &model.ProjectMember{}, &model.Role{},
		} {
			if err := scoped().Delete(m).Error; err != nil {
				return err
			}
		}

		return tx.Delete(project).Error
	})
	if err != nil {
		log.Error("Failed to delete project", zap.Uint("project_id", id), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &id,
		UserID:     userID,
		EntityType: "project",
		EntityID:   id,
		Action:     "delete",
	})

	log.Info("Project deleted", zap.Uint("project_id", id), zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusOK, echo.Map{"message": "project deleted"})
}

// AddProjectMember adds a user to a project. Unique per (project, user).
func AddProjectMember(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("project_member", "create")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(projectID), authz.PermProjectWrite); err != nil {
		return err
	}

	var req struct {
		UserID      uint   `json:"user_id"`
		Preferences string `json:"preferences"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == 0 {
		return apperror.Validation(map[string]string{"user_id": "is required"})
	}

	if _, err := findProject(database.GetDB(), tenantID, projectID); err != nil {
		return err
	}

	// Member must belong to the same tenant.
	var target model.User
	if result := database.GetDB().Where("id = ? AND tenant_id = ?", req.UserID, tenantID).First(&target); result.Error != nil {
		return notFoundOr(result.Error, "user")
	}

	var count int64
	database.GetDB().Model(&model.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, req.UserID).
		Count(&count)
	if count > 0 {
		return apperror.Conflict("user is already a member of this project")
	}

	member := model.ProjectMember{
		TenantID:    tenantID,
		ProjectID:   projectID,
		UserID:      req.UserID,
		Preferences: req.Preferences,
		CreatedBy:   userID,
		UpdatedBy:   userID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&member).Error; err != nil {
		log.Error("Failed to add project member", zap.Uint("project_id", projectID), zap.Error(err))
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &projectID,
		UserID:     userID,
		EntityType: "project_member",
		EntityID:   member.ID,
		Action:     "create",
		Details:    echo.Map{"user_id": req.UserID},
	})

	return c.JSON(http.StatusCreated, member)
}

// ListProjectMembers lists the members of a project.
func ListProjectMembers(c echo.Context) error {
	prometheus.RecordEntityOperation("project_member", "list")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(projectID), authz.PermProjectRead); err != nil {
		return err
	}

	var members []model.ProjectMember
	if err := database.GetDB().
		Where("project_id = ? AND tenant_id = ?", projectID, tenantID).
		Find(&members).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"members": members})
}

// UpdateProjectMember replaces a member's preference payload.
func UpdateProjectMember(c echo.Context) error {
	prometheus.RecordEntityOperation("project_member", "update")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	memberID, err := paramID(c, "member_id")
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(projectID), authz.PermProjectWrite); err != nil {
		return err
	}

	var req struct {
		Preferences string `json:"preferences"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}

	var member model.ProjectMember
	result := database.GetDB().
		Where("id = ? AND project_id = ? AND tenant_id = ?", memberID, projectID, tenantID).
		First(&member)
	if result.Error != nil {
		return notFoundOr(result.Error, "project member")
	}

	member.Preferences = req.Preferences
	member.UpdatedBy = userID
	if err := database.GetDB().Save(&member).Error; err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, member)
}

// RemoveProjectMember soft-deletes a project membership.
func RemoveProjectMember(c echo.Context) error {
	prometheus.RecordEntityOperation("project_member", "delete")

	tenantID, userID, err := identity(c)
	if err != nil {
		return err
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	memberID, err := paramID(c, "member_id")
	if err != nil {
		return err
	}
	if err := authz.Require(database.GetDB(), tenantID, userID, authz.InProject(projectID), authz.PermProjectWrite); err != nil {
		return err
	}

	var member model.ProjectMember
	result := database.GetDB().
		Where("id = ? AND project_id = ? AND tenant_id = ?", memberID, projectID, tenantID).
		First(&member)
	if result.Error != nil {
		return notFoundOr(result.Error, "project member")
	}

	if err := database.GetDB().Delete(&member).Error; err != nil {
		return apperror.Internal(err)
	}

	recordAudit(audit.Entry{
		TenantID:   tenantID,
		ProjectID:  &projectID,
		UserID:     userID,
		EntityType: "project_member",
		EntityID:   memberID,
		Action:     "delete",
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "member removed"})
}
