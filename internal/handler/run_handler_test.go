package handler

import (
	"net/http"
	"strconv"
	"testing"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRunSeedsNotRunResults(t *testing.T) {
	db := setupDB(t)
	userID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	project := seedProject(t, db, "acme", "web")
	suite := seedSuite(t, db, "acme", project.ID, "root", nil)
	caseA := seedCase(t, db, "acme", suite.ID, "login")
	caseB := seedCase(t, db, "acme", suite.ID, "logout")

	c, rec := request(t, http.MethodPost, "/api/runs", RunRequest{
		ProjectID: project.ID,
		Name:      "sprint 12 regression",
		CaseIDs:   []uint{caseA.ID, caseB.ID},
	}, "acme", userID)
	require.NoError(t, CreateRun(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	runID := uint(body["id"].(float64))

	var results []model.TestRunResult
	require.NoError(t, db.Where("run_id = ?", runID).Find(&results).Error)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, model.ResultNotRun, r.Status)
		assert.Nil(t, r.ExecutedBy)
	}
}

func TestCreateRunRejectsCaseFromOtherProject(t *testing.T) {
	db := setupDB(t)
	userID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	projectA := seedProject(t, db, "acme", "web")
	projectB := seedProject(t, db, "acme", "mobile")
	suiteB := seedSuite(t, db, "acme", projectB.ID, "mobile root", nil)
	foreignCase := seedCase(t, db, "acme", suiteB.ID, "mobile only")

	c, _ := request(t, http.MethodPost, "/api/runs", RunRequest{
		ProjectID: projectA.ID,
		Name:      "cross-project",
		CaseIDs:   []uint{foreignCase.ID},
	}, "acme", userID)

	err := CreateRun(c)
	require.Error(t, err)

	// The whole transaction rolled back.
	var runs int64
	db.Model(&model.TestRun{}).Where("tenant_id = ?", "acme").Count(&runs)
	assert.Zero(t, runs)
}

func TestRecordResultUpdatesCaseSnapshot(t *testing.T) {
	db := setupDB(t)
	userID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	project := seedProject(t, db, "acme", "web")
	suite := seedSuite(t, db, "acme", project.ID, "root", nil)
	tc := seedCase(t, db, "acme", suite.ID, "login")

	run := model.TestRun{TenantID: "acme", ProjectID: project.ID, Name: "nightly"}
	require.NoError(t, db.Create(&run).Error)
	result := model.TestRunResult{TenantID: "acme", RunID: run.ID, CaseID: tc.ID, Status: model.ResultNotRun}
	require.NoError(t, db.Create(&result).Error)

	c, rec := request(t, http.MethodPut, "/api/results/"+strconv.Itoa(int(result.ID)), map[string]string{
		"status":        "failed",
		"actual_result": "timeout on submit",
		"comments":      "reproduced twice",
	}, "acme", userID)
	setParam(c, "id", strconv.Itoa(int(result.ID)))
	require.NoError(t, RecordResult(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var updated model.TestRunResult
	require.NoError(t, db.First(&updated, result.ID).Error)
	assert.Equal(t, model.ResultFailed, updated.Status)
	require.NotNil(t, updated.ExecutedBy)
	assert.Equal(t, userID, *updated.ExecutedBy)
	assert.NotNil(t, updated.ExecutedAt)

	// The case snapshot follows the result.
	var snapshot model.TestCase
	require.NoError(t, db.First(&snapshot, tc.ID).Error)
	assert.Equal(t, model.ResultFailed, snapshot.LastStatus)
	assert.Equal(t, "timeout on submit", snapshot.LastActualResult)
	assert.Equal(t, "reproduced twice", snapshot.LastComments)
}

func TestRecordResultRejectsReturnToNotRun(t *testing.T) {
	db := setupDB(t)
	userID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	project := seedProject(t, db, "acme", "web")
	suite := seedSuite(t, db, "acme", project.ID, "root", nil)
	tc := seedCase(t, db, "acme", suite.ID, "login")

	run := model.TestRun{TenantID: "acme", ProjectID: project.ID, Name: "nightly"}
	require.NoError(t, db.Create(&run).Error)
	result := model.TestRunResult{TenantID: "acme", RunID: run.ID, CaseID: tc.ID, Status: model.ResultPassed}
	require.NoError(t, db.Create(&result).Error)

	c, _ := request(t, http.MethodPut, "/api/results/"+strconv.Itoa(int(result.ID)), map[string]string{
		"status": "not_run",
	}, "acme", userID)
	setParam(c, "id", strconv.Itoa(int(result.ID)))

	err := RecordResult(c)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeInvalidStateTransition, appErr.Code)
}

func TestStartAndCompleteRunAreOneShot(t *testing.T) {
	db := setupDB(t)
	userID := seedTenantUser(t, db, "acme", "admin@acme.test", model.RoleAdmin, nil)
	project := seedProject(t, db, "acme", "web")

	run := model.TestRun{TenantID: "acme", ProjectID: project.ID, Name: "nightly"}
	require.NoError(t, db.Create(&run).Error)
	id := strconv.Itoa(int(run.ID))

	c, _ := request(t, http.MethodPost, "/api/runs/"+id+"/start", nil, "acme", userID)
	setParam(c, "id", id)
	require.NoError(t, StartRun(c))

	var started model.TestRun
	require.NoError(t, db.First(&started, run.ID).Error)
	require.NotNil(t, started.StartedAt)

	// Starting twice conflicts.
	c, _ = request(t, http.MethodPost, "/api/runs/"+id+"/start", nil, "acme", userID)
	setParam(c, "id", id)
	err := StartRun(c)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeConflict, appErr.Code)

	c, _ = request(t, http.MethodPost, "/api/runs/"+id+"/complete", nil, "acme", userID)
	setParam(c, "id", id)
	require.NoError(t, CompleteRun(c))

	var completed model.TestRun
	require.NoError(t, db.First(&completed, run.ID).Error)
	assert.NotNil(t, completed.CompletedAt)
}
