package authz

import "fmt"

type scopeKind int

const (
	scopeTenantWide scopeKind = iota
	scopeProject
)

// Scope is the target scope of an authorization check: either the whole
// tenant or one project. A tenant-wide role satisfies either; a
// project-scoped role satisfies only checks against its project.
type Scope struct {
	kind      scopeKind
	projectID uint
}

// TenantWide returns a scope covering the whole tenant.
func TenantWide() Scope {
	return Scope{kind: scopeTenantWide}
}

// InProject returns a scope covering a single project.
func InProject(projectID uint) Scope {
	return Scope{kind: scopeProject, projectID: projectID}
}

// ProjectID returns the project id and whether the scope is project-bound.
func (s Scope) ProjectID() (uint, bool) {
	if s.kind == scopeProject {
		return s.projectID, true
	}
	return 0, false
}

func (s Scope) String() string {
	if s.kind == scopeProject {
		return fmt.Sprintf("project(%d)", s.projectID)
	}
	return "tenant-wide"
}
