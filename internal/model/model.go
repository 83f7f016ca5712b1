package model

// All returns every model in migration order: referenced tables first.
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&TenantAddress{},
		&EmailConfirmationToken{},
		&User{},
		&Permission{},
		&Role{},
		&RolePermission{},
		&Project{},
		&ProjectMember{},
		&TestSuite{},
		&TestFolder{},
		&TestCase{},
		&TestRun{},
		&TestRunResult{},
		&Defect{},
		&DefectHistory{},
		&Requirement{},
		&RequirementTestCase{},
		&RequirementTestSuite{},
		&AuditLog{},
	}
}
