package handler

import (
	"net/http"
	"strconv"
	"testing"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedRequirement(t *testing.T, db *gorm.DB, tenantCode string, projectID uint, title string, parentID *uint) *model.Requirement {
	t.Helper()
	req := model.Requirement{TenantID: tenantCode, ProjectID: projectID, Title: title, ParentID: parentID}
	require.NoError(t, db.Create(&req).Error)
	return &req
}

func TestUpdateRequirementRejectsCycle(t *testing.T) {
	db := setupDB(t)
	userID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	project := seedProject(t, db, "acme", "web")

	root := seedRequirement(t, db, "acme", project.ID, "auth", nil)
	child := seedRequirement(t, db, "acme", project.ID, "login", &root.ID)
	grandchild := seedRequirement(t, db, "acme", project.ID, "sso login", &child.ID)

	id := strconv.Itoa(int(root.ID))
	c, _ := request(t, http.MethodPut, "/api/requirements/"+id, RequirementRequest{
		ProjectID: project.ID,
		ParentID:  &grandchild.ID,
		Title:     "auth",
	}, "acme", userID)
	setParam(c, "id", id)

	err := UpdateRequirement(c)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeValidationError, appErr.Code)
	assert.Contains(t, appErr.Fields, "parent_id")
}

func TestDeleteRequirementCascadesSubtreeAndLinks(t *testing.T) {
	db := setupDB(t)
	userID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	project := seedProject(t, db, "acme", "web")
	suite := seedSuite(t, db, "acme", project.ID, "root", nil)
	tc := seedCase(t, db, "acme", suite.ID, "login")

	root := seedRequirement(t, db, "acme", project.ID, "auth", nil)
	child := seedRequirement(t, db, "acme", project.ID, "login", &root.ID)
	other := seedRequirement(t, db, "acme", project.ID, "reporting", nil)

	require.NoError(t, db.Create(&model.RequirementTestCase{
		TenantID: "acme", RequirementID: child.ID, CaseID: tc.ID, Weight: 2,
	}).Error)
	require.NoError(t, db.Create(&model.RequirementTestSuite{
		TenantID: "acme", RequirementID: root.ID, SuiteID: suite.ID,
	}).Error)

	id := strconv.Itoa(int(root.ID))
	c, rec := request(t, http.MethodDelete, "/api/requirements/"+id, nil, "acme", userID)
	setParam(c, "id", id)
	require.NoError(t, DeleteRequirement(c))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int64(1), countLive(t, db, &model.Requirement{}))
	assert.Zero(t, countLive(t, db, &model.RequirementTestCase{}))
	assert.Zero(t, countLive(t, db, &model.RequirementTestSuite{}))

	var survivor model.Requirement
	require.NoError(t, db.First(&survivor, other.ID).Error)

	// Soft delete only.
	var all int64
	db.Unscoped().Model(&model.Requirement{}).Count(&all)
	assert.Equal(t, int64(3), all)
}

func TestLinkRequirementCaseUpsertsWeight(t *testing.T) {
	db := setupDB(t)
	userID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	project := seedProject(t, db, "acme", "web")
	suite := seedSuite(t, db, "acme", project.ID, "root", nil)
	tc := seedCase(t, db, "acme", suite.ID, "login")
	req := seedRequirement(t, db, "acme", project.ID, "auth", nil)

	id := strconv.Itoa(int(req.ID))

	// First link defaults the weight.
	c, rec := request(t, http.MethodPost, "/api/requirements/"+id+"/cases", map[string]uint{"case_id": tc.ID}, "acme", userID)
	setParam(c, "id", id)
	require.NoError(t, LinkRequirementCase(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var link model.RequirementTestCase
	require.NoError(t, db.Where("requirement_id = ?", req.ID).First(&link).Error)
	assert.Equal(t, 1, link.Weight)

	// Linking again updates the weight instead of duplicating the row.
	c, rec = request(t, http.MethodPost, "/api/requirements/"+id+"/cases", map[string]uint{"case_id": tc.ID, "weight": 5}, "acme", userID)
	setParam(c, "id", id)
	require.NoError(t, LinkRequirementCase(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var count int64
	db.Model(&model.RequirementTestCase{}).Where("requirement_id = ?", req.ID).Count(&count)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.Where("requirement_id = ?", req.ID).First(&link).Error)
	assert.Equal(t, 5, link.Weight)
}
