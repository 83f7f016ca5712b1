package authz

import (
	"testmgmt-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// allPermissions is every permission the evaluator knows about.
var allPermissions = []string{
	PermProjectRead, PermProjectWrite, PermProjectDelete,
	PermSuiteRead, PermSuiteWrite,
	PermCaseRead, PermCaseWrite,
	PermRunRead, PermRunWrite, PermRunExecute,
	PermDefectRead, PermDefectWrite,
	PermRequirementRead, PermRequirementWrite,
	PermTenantManage, PermUserManage,
	PermAuditRead,
}

// defaultsByRole maps each role type to the permissions a new role binding
// of that type receives.
var defaultsByRole = map[model.RoleType][]string{
	model.RoleAdmin: allPermissions,
	model.RoleManager: {
		PermProjectRead, PermProjectWrite,
		PermSuiteRead, PermSuiteWrite,
		PermCaseRead, PermCaseWrite,
		PermRunRead, PermRunWrite, PermRunExecute,
		PermDefectRead, PermDefectWrite,
		PermRequirementRead, PermRequirementWrite,
		PermAuditRead,
	},
	model.RoleTester: {
		PermProjectRead,
		PermSuiteRead,
		PermCaseRead, PermCaseWrite,
		PermRunRead, PermRunExecute,
		PermDefectRead, PermDefectWrite,
		PermRequirementRead,
	},
	model.RoleViewer: {
		PermProjectRead,
		PermSuiteRead,
		PermCaseRead,
		PermRunRead,
		PermDefectRead,
		PermRequirementRead,
	},
}

// DefaultPermissions returns the permission names granted to a role type by
// default.
func DefaultPermissions(roleType model.RoleType) []string {
	return defaultsByRole[roleType]
}

// SeedPermissions inserts the permission catalog, skipping names that
// already exist.
func SeedPermissions(db *gorm.DB) error {
	for _, name := range allPermissions {
		perm := model.Permission{Name: name}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&perm).Error; err != nil {
			return err
		}
	}
	return nil
}

// BindDefaultPermissions creates the role-permission join rows for a newly
// created role binding, according to its role type.
func BindDefaultPermissions(db *gorm.DB, role *model.Role) error {
	names := DefaultPermissions(role.RoleType)
	if len(names) == 0 {
		return nil
	}

	var perms []model.Permission
	if err := db.Where("name IN ?", names).Find(&perms).Error; err != nil {
		return err
	}

	for _, perm := range perms {
		join := model.RolePermission{RoleID: role.ID, PermissionID: perm.ID}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&join).Error; err != nil {
			return err
		}
	}
	return nil
}
