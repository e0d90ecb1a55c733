package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_Recording(t *testing.T) {
	m := NewMetrics()

	m.RecordRun("passed")
	m.RecordJob("failed")
	m.RecordStep("run", "passed", 2*time.Second)
	m.RecordReadinessWait(750 * time.Millisecond)
	m.RecordArtifactFetch("hit")
	m.JobStarted()
	m.JobFinished()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`ci_harness_runs_total{status="passed"} 1`,
		`ci_harness_jobs_total{status="failed"} 1`,
		`ci_harness_steps_total{status="passed",uses="run"} 1`,
		`ci_harness_artifact_fetches_total{outcome="hit"} 1`,
		"ci_harness_server_readiness_seconds",
		"ci_harness_active_jobs 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Each Metrics owns its registry, so two instances must not collide.
	a := NewMetrics()
	b := NewMetrics()
	a.RecordRun("passed")
	b.RecordRun("failed")

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), `status="failed"`) {
		t.Error("registry A observed registry B's samples")
	}
}
