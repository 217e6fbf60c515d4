package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drguilhermecapel/medai/internal/analysis"
	"github.com/drguilhermecapel/medai/internal/classifier"
	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/ecg"
)

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Ingestion = conf.IngestionSettings{CanonicalRate: 500, MinSampleRate: 100, MaxSampleRate: 2000}
	s.Quality = conf.QualitySettings{
		SaturationWeight: 0.25, BaselineWeight: 0.20, NoiseWeight: 0.25, FlatlineWeight: 0.30,
		WindowSeconds: 1.0, WindowThreshold: 0.5, Floor: 0.3,
	}
	s.Features = conf.FeatureSettings{
		BandLowHz: 5, BandHighHz: 15, RefractoryMs: 200, SearchWindowMs: 100,
		MedianBeats: 8, PrimaryLead: "II", IntegrationMs: 120, ThresholdFactor: 0.25,
	}
	s.Classifier = conf.ClassifierSettings{Timeout: 2 * time.Second, TopN: 10, MinConfidence: 0.05}
	s.Validation = conf.ValidationSettings{ClaimSLA: 24 * time.Hour, MaxReoffers: 3, SweepInterval: time.Hour}
	s.Pipeline = conf.PipelineSettings{Workers: 2, QueueSize: 8}
	s.WebServer = conf.WebServerSettings{Enabled: true, Port: "0", CacheTTL: time.Minute}
	return s
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	pipeline := analysis.NewPipeline(testSettings(), classifier.NewRuleBased(), nil, nil, nil)
	pipeline.Start()
	t.Cleanup(pipeline.Stop)
	return New(testSettings(), pipeline, nil, nil, nil)
}

func doJSON(c *Controller, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func sinusBody(leadCount int) map[string]any {
	labels := ecg.StandardLeadLabels(leadCount)
	leads := make([]map[string]any, 0, leadCount)
	for i, name := range labels {
		leads = append(leads, map[string]any{
			"name":    name,
			"samples": ecg.SynthesizeSinus(ecg.SynthOptions{Seconds: 4, BPM: 72, Seed: uint64(i)}),
		})
	}
	return map[string]any{"sample_rate": 500, "patient_ref": "patient-1", "leads": leads}
}

// submitAndWait submits a waveform and polls until the analysis is
// terminal, returning the analysis ID.
func submitAndWait(t *testing.T, c *Controller) string {
	t.Helper()
	rec := doJSON(c, http.MethodPost, "/api/v2/analyses", sinusBody(1))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted map[string]string
	decode(t, rec, &accepted)
	id := accepted["id"]
	require.NotEmpty(t, id)
	require.Equal(t, "pending", accepted["status"])

	require.Eventually(t, func() bool {
		get := doJSON(c, http.MethodGet, "/api/v2/analyses/"+id, nil)
		if get.Code != http.StatusOK {
			return false
		}
		var snap analysis.Snapshot
		if err := json.Unmarshal(get.Body.Bytes(), &snap); err != nil {
			return false
		}
		return snap.Status == analysis.StatusCompleted || snap.Status == analysis.StatusFailed
	}, 10*time.Second, 10*time.Millisecond)
	return id
}

func TestHealth(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(c, http.MethodGet, "/api/v2/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestSubmitAnalysisLifecycle(t *testing.T) {
	c := newTestController(t)
	id := submitAndWait(t, c)

	rec := doJSON(c, http.MethodGet, "/api/v2/analyses/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap analysis.Snapshot
	decode(t, rec, &snap)
	assert.Equal(t, analysis.StatusCompleted, snap.Status)
	assert.Equal(t, "patient-1", snap.PatientRef)
	require.NotEmpty(t, snap.Diagnoses)
	assert.Equal(t, classifier.LabelNormalSinus, snap.Diagnoses[0].Label)
}

func TestSubmitAnalysisRejectsMalformedBody(t *testing.T) {
	c := newTestController(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/analyses", bytes.NewBufferString("{not json"))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAnalysisRejectsInvalidWaveform(t *testing.T) {
	c := newTestController(t)

	rec := doJSON(c, http.MethodPost, "/api/v2/analyses", map[string]any{"sample_rate": 500})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.NotEmpty(t, body["error"])
}

func TestGetAnalysisNotFound(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(c, http.MethodGet, "/api/v2/analyses/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelUnknownAnalysis(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(c, http.MethodPost, "/api/v2/analyses/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAnalysesWithoutStore(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(c, http.MethodGet, "/api/v2/analyses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rec.Body.Bytes())))
}

func TestListNotificationsWithoutService(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(c, http.MethodGet, "/api/v2/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rec.Body.Bytes())))
}

func TestValidationWorkflow(t *testing.T) {
	c := newTestController(t)
	analysisID := submitAndWait(t, c)

	// Task lookup by analysis ID.
	rec := doJSON(c, http.MethodGet, "/api/v2/validation/"+analysisID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, rec, &view)
	require.NotEmpty(t, view.ID)
	assert.Equal(t, "unassigned", view.Status)

	taskPath := "/api/v2/validation/" + view.ID

	// Claim requires a reviewer.
	rec = doJSON(c, http.MethodPost, taskPath+"/claim", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// First claim wins.
	rec = doJSON(c, http.MethodPost, taskPath+"/claim", map[string]string{"reviewer": "dr-a"})
	require.Equal(t, http.StatusOK, rec.Code)
	var claim map[string]string
	decode(t, rec, &claim)
	token := claim["token"]
	require.NotEmpty(t, token)

	// Second claim conflicts.
	rec = doJSON(c, http.MethodPost, taskPath+"/claim", map[string]string{"reviewer": "dr-b"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Decision with a bogus token is forbidden.
	rec = doJSON(c, http.MethodPost, taskPath+"/decision", map[string]string{
		"reviewer": "dr-a", "token": "stale", "outcome": "approved",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Invalid outcome is a bad request.
	rec = doJSON(c, http.MethodPost, taskPath+"/decision", map[string]string{
		"reviewer": "dr-a", "token": token, "outcome": "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The real decision goes through once.
	rec = doJSON(c, http.MethodPost, taskPath+"/decision", map[string]string{
		"reviewer": "dr-a", "token": token, "outcome": "approved", "notes": "concur",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Terminal task rejects further decisions.
	rec = doJSON(c, http.MethodPost, taskPath+"/decision", map[string]string{
		"reviewer": "dr-a", "token": token, "outcome": "rejected",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The reviewed flag shows up on the analysis snapshot. The cached
	// pre-review snapshot is evicted here; in production it simply ages
	// out within the query cache TTL.
	c.queryCache.Delete(analysisID)
	rec = doJSON(c, http.MethodGet, "/api/v2/analyses/"+analysisID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap analysis.Snapshot
	decode(t, rec, &snap)
	assert.True(t, snap.Reviewed)
	assert.Equal(t, "approved", snap.ReviewOutcome)
}

func TestGetValidationTaskNotFound(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(c, http.MethodGet, "/api/v2/validation/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpointRegisteredWithRegistry(t *testing.T) {
	pipeline := analysis.NewPipeline(testSettings(), classifier.NewRuleBased(), nil, nil, nil)
	pipeline.Start()
	t.Cleanup(pipeline.Stop)

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "medai_test_counter", Help: "test counter",
	}))
	c := New(testSettings(), pipeline, nil, nil, registry)

	rec := doJSON(c, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "medai_test_counter")
}

func TestTerminalSnapshotIsCached(t *testing.T) {
	c := newTestController(t)
	id := submitAndWait(t, c)

	// Prime the cache.
	rec := doJSON(c, http.MethodGet, "/api/v2/analyses/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, found := c.queryCache.Get(id)
	assert.True(t, found, "terminal snapshots should be cached")
}
