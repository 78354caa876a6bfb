package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"therapist-effects/app"
	"therapist-effects/domain/core"
	"therapist-effects/domain/overlap"
	"therapist-effects/internal/config"
	"therapist-effects/internal/errors"
	"therapist-effects/internal/testkit"
)

func testServer(t *testing.T) (*gin.Engine, *app.Catalog, *app.ReplicationDriver) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	studies := config.DefaultStudies()
	studies.Main = testkit.SmallKnobs()
	studies.CI = testkit.SmallKnobs()
	catalog := app.NewCatalog(config.SimulationConfig{
		MaxWorkers:     2,
		Replications:   20,
		CIReplications: 20,
		BootstrapDraws: 10,
		Seed:           3,
		Profile:        config.ProfileFull,
	}, studies, testkit.NewScriptedFitter())

	kit := testkit.NewTestKit()
	driver := app.NewReplicationDriver(kit.Cache(), kit.RNGAdapter(), kit.Generator(), 2)
	return NewRouter(catalog, driver), catalog, driver
}

func get(t *testing.T, router *gin.Engine, url string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealth(t *testing.T) {
	router, _, _ := testServer(t)
	rec, body := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestGetStudy(t *testing.T) {
	router, catalog, driver := testServer(t)

	rec, body := get(t, router, "/studies/main")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.CodeNotFound, body["code"])

	rec, body = get(t, router, "/studies/unknown")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeInvalidInput, body["code"])

	study, err := catalog.Study(core.StudyConfounding)
	require.NoError(t, err)
	artifact, err := driver.Run(context.Background(), study)
	require.NoError(t, err)

	rec, body = get(t, router, "/studies/bias")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(artifact.Hash), body["hash"])
	assert.Equal(t, string(artifact.RunID), body["run_id"])

	rec, body = get(t, router, "/studies/main/shape")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["shapes"])

	rec, body = get(t, router, "/studies")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := body["studies"].([]interface{})
	require.Len(t, listed, 2)
	assert.Equal(t, true, listed[0].(map[string]interface{})["cached"])
	assert.Equal(t, false, listed[1].(map[string]interface{})["cached"])
}

func TestGetOverlap(t *testing.T) {
	router, _, _ := testServer(t)

	rec, body := get(t, router, "/overlap?d=0.5&icc=0.1")
	require.Equal(t, http.StatusOK, rec.Code)
	measures := body["measures"].(map[string]interface{})
	assert.InDelta(t, overlap.Overlap(0.5, 0.1), measures["overlap"], 1e-12)
	assert.InDelta(t, overlap.U3(0.5, 0.1), measures["u3"], 1e-12)
	assert.InDelta(t, overlap.ProbabilityOfSuperiority(0.5, 0.1), measures["probability_of_superiority"], 1e-12)

	tests := []struct {
		name string
		url  string
		code string
	}{
		{"missing d", "/overlap?icc=0.1", errors.CodeInvalidInput},
		{"not a number", "/overlap?d=x&icc=0.1", errors.CodeInvalidInput},
		{"icc out of range", "/overlap?d=0.5&icc=1.5", errors.CodeConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := get(t, router, tt.url)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestGetOverlapCurve(t *testing.T) {
	router, _, _ := testServer(t)

	rec, body := get(t, router, "/overlap/curve?d=0.5&from=0.05&to=0.2&step=0.05")
	require.Equal(t, http.StatusOK, rec.Code)
	points := body["points"].([]interface{})
	require.Len(t, points, 4)
	first := points[0].(map[string]interface{})
	assert.InDelta(t, 0.05, first["icc"], 1e-12)

	rec, _ = get(t, router, "/overlap/curve?d=0.5&step=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
