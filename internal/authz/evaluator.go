package authz

import (
	"fmt"
	"time"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/model"
	"testmgmt-service/prometheus"

	"gorm.io/gorm"
)

// Permission names for the operations the evaluator guards. Handlers pass
// these to Require; the seeded role_permissions rows bind them to role types.
const (
	PermProjectRead       = "project:read"
	PermProjectWrite      = "project:write"
	PermProjectDelete     = "project:delete"
	PermSuiteRead         = "suite:read"
	PermSuiteWrite        = "suite:write"
	PermCaseRead          = "case:read"
	PermCaseWrite         = "case:write"
	PermRunRead           = "run:read"
	PermRunWrite          = "run:write"
	PermRunExecute        = "run:execute"
	PermDefectRead        = "defect:read"
	PermDefectWrite       = "defect:write"
	PermRequirementRead   = "requirement:read"
	PermRequirementWrite  = "requirement:write"
	PermTenantManage      = "tenant:manage"
	PermUserManage        = "user:manage"
	PermAuditRead         = "audit:read"
)

// Require determines whether the user holds a role within the tenant that is
// bound, through the role-permission join, to the named permission. A
// tenant-wide role (null project scope) authorizes across all projects; a
// project-scoped role only within its project. The query selects at most one
// matching row, so evaluation short-circuits on the first role/permission
// pair. Denial is always an explicit Forbidden error.
func Require(db *gorm.DB, tenantID string, userID uint, scope Scope, permission string) error {
	defer prometheus.TrackDBOperation("query")(time.Now())

	q := db.Model(&model.Role{}).
		Joins("JOIN role_permissions ON role_permissions.role_id = roles.id").
		Joins("JOIN permissions ON permissions.id = role_permissions.permission_id").
		Where("roles.tenant_id = ? AND roles.user_id = ?", tenantID, userID).
		Where("permissions.name = ? AND permissions.deleted_at IS NULL", permission)

	if projectID, bound := scope.ProjectID(); bound {
		q = q.Where("roles.project_id IS NULL OR roles.project_id = ?", projectID)
	} else {
		q = q.Where("roles.project_id IS NULL")
	}

	var matched []uint
	if err := q.Limit(1).Pluck("roles.id", &matched).Error; err != nil {
		return apperror.Internal(err)
	}

	if len(matched) == 0 {
		prometheus.AuthzDenialsCounter.Inc()
		return apperror.Forbidden(fmt.Sprintf("operation %q is not permitted in scope %s", permission, scope))
	}

	return nil
}
