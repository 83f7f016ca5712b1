package handler

import (
	"net/http"
	"strconv"
	"testing"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/model"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateProjectRejectsDuplicateNamePerTenant(t *testing.T) {
	db := setupDB(t)
	userID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	seedProject(t, db, "acme", "web")

	c, _ := request(t, http.MethodPost, "/api/projects", ProjectRequest{Name: "web"}, "acme", userID)
	err := CreateProject(c)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeConflict, appErr.Code)

	// The same name in another tenant is fine.
	otherAdmin := seedTenantUser(t, db, "other", "admin@other.test", model.RoleAdmin, nil)
	c, rec := request(t, http.MethodPost, "/api/projects", ProjectRequest{Name: "web"}, "other", otherAdmin)
	require.NoError(t, CreateProject(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDeleteProjectCascadesSoftDelete(t *testing.T) {
	db := setupDB(t)
	userID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	project := seedProject(t, db, "acme", "web")
	suite := seedSuite(t, db, "acme", project.ID, "root", nil)
	tc := seedCase(t, db, "acme", suite.ID, "login")

	run := model.TestRun{TenantID: "acme", ProjectID: project.ID, Name: "nightly"}
	require.NoError(t, db.Create(&run).Error)
	result := model.TestRunResult{TenantID: "acme", RunID: run.ID, CaseID: tc.ID}
	require.NoError(t, db.Create(&result).Error)
	requirement := model.Requirement{TenantID: "acme", ProjectID: project.ID, Title: "must log in"}
	require.NoError(t, db.Create(&requirement).Error)

	id := strconv.Itoa(int(project.ID))
	c, rec := request(t, http.MethodDelete, "/api/projects/"+id, nil, "acme", userID)
	setParam(c, "id", id)
	require.NoError(t, DeleteProject(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// Everything under the project is gone from live queries.
	for name, count := range map[string]int64{
		"projects":     countLive(t, db, &model.Project{}),
		"suites":       countLive(t, db, &model.TestSuite{}),
		"cases":        countLive(t, db, &model.TestCase{}),
		"runs":         countLive(t, db, &model.TestRun{}),
		"results":      countLive(t, db, &model.TestRunResult{}),
		"requirements": countLive(t, db, &model.Requirement{}),
	} {
		assert.Zerof(t, count, "live %s remain after project delete", name)
	}

	// But nothing was physically removed.
	var all int64
	db.Unscoped().Model(&model.Project{}).Count(&all)
	assert.Equal(t, int64(1), all)
	db.Unscoped().Model(&model.TestCase{}).Count(&all)
	assert.Equal(t, int64(1), all)

	// Deleting again reports not found: soft-deleted rows behave like
	// missing ones.
	c, _ = request(t, http.MethodDelete, "/api/projects/"+id, nil, "acme", userID)
	setParam(c, "id", id)
	err := DeleteProject(c)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeNotFound, appErr.Code)
}

func countLive(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}

func TestReAddRemovedProjectMember(t *testing.T) {
	db := setupDB(t)
	adminID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	devID := seedTenantUser(t, db, "acme", "dev@acme.test", model.RoleTester, nil)
	project := seedProject(t, db, "acme", "web")
	id := strconv.Itoa(int(project.ID))

	c, rec := request(t, http.MethodPost, "/api/projects/"+id+"/members",
		echo.Map{"user_id": devID}, "acme", adminID)
	setParam(c, "id", id)
	require.NoError(t, AddProjectMember(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	memberID := strconv.Itoa(int(decodeBody(t, rec)["id"].(float64)))

	c, rec = request(t, http.MethodDelete, "/api/projects/"+id+"/members/"+memberID, nil, "acme", adminID)
	setParam(c, "id", id)
	setParam(c, "member_id", memberID)
	require.NoError(t, RemoveProjectMember(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// The soft-deleted membership must not block re-adding the same user.
	c, rec = request(t, http.MethodPost, "/api/projects/"+id+"/members",
		echo.Map{"user_id": devID}, "acme", adminID)
	setParam(c, "id", id)
	require.NoError(t, AddProjectMember(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var live, all int64
	db.Model(&model.ProjectMember{}).Count(&live)
	db.Unscoped().Model(&model.ProjectMember{}).Count(&all)
	assert.Equal(t, int64(1), live)
	assert.Equal(t, int64(2), all)
}

func TestListProjectsTotalOnSecondPage(t *testing.T) {
	db := setupDB(t)
	userID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	for _, name := range []string{"web", "mobile", "api"} {
		seedProject(t, db, "acme", name)
	}

	c, rec := request(t, http.MethodGet, "/api/projects?page=2&limit=1", nil, "acme", userID)
	require.NoError(t, ListProjects(c))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Len(t, body["projects"], 1)
	pagination := body["pagination"].(map[string]interface{})
	// The total counts every project in the tenant, not just this page.
	assert.Equal(t, float64(3), pagination["total"])
	assert.Equal(t, float64(2), pagination["current_page"])
}
