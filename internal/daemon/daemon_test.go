package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/config"
	"reelsmith/internal/daemon"
	"reelsmith/internal/logging"
	"reelsmith/internal/metrics"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/workflow"
)

type nopHandler struct {
	name state.StageType
}

func (h *nopHandler) Name() state.StageType                          { return h.name }
func (h *nopHandler) Description() string                            { return "noop" }
func (h *nopHandler) ValidateInput(context.Context, *state.Record) error { return nil }
func (h *nopHandler) Execute(context.Context, *state.Record) error   { return nil }
func (h *nopHandler) HealthCheck(context.Context) stage.Health       { return stage.Healthy(string(h.name)) }

func newTestDaemon(t *testing.T, cfg *config.Config, registry *prometheus.Registry) *daemon.Daemon {
	t.Helper()
	cfg.Workflow.QueuePollInterval = 1
	stageRegistry := stage.NewRegistry()
	graph := workflow.NewGraph(state.StageIngest)
	for _, stageType := range []state.StageType{state.StageIngest, state.StagePublish} {
		handler := &nopHandler{name: stageType}
		stageRegistry.MustRegister(stageType, func() (stage.Handler, error) {
			return handler, nil
		})
	}
	if err := graph.AddNode(state.StageIngest, state.StagePublish); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := graph.AddNode(state.StagePublish, state.StageNone); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	var collector *metrics.Collector
	if registry != nil {
		collector = metrics.New(registry)
	}
	store := checkpoint.NewMemory()
	manager := workflow.NewManager(cfg, store, stageRegistry, graph, logging.NewNop(), collector)
	d, err := daemon.New(cfg, store, manager, logging.NewNop(), registry)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func startDaemon(t *testing.T, d *daemon.Daemon) {
	t.Helper()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
}

func apiURL(d *daemon.Daemon, path string) string {
	return fmt.Sprintf("http://%s%s", d.APIAddr(), path)
}

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newTestDaemon(t, cfg, nil)
	startDaemon(t, first)

	second := newTestDaemon(t, cfg, nil)
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second daemon instance acquired the lock")
	}
}

func TestStartCreatesLockDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := os.Stat(cfg.Paths.LogDir); !os.IsNotExist(err) {
		t.Fatalf("log dir should not exist before start, stat err = %v", err)
	}

	d := newTestDaemon(t, cfg, nil)
	startDaemon(t, d)

	lockPath := filepath.Join(cfg.Paths.LogDir, "reelsmithd.lock")
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("lock file missing after start: %v", err)
	}
}

func TestAPIJobLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg, nil)
	startDaemon(t, d)

	body, _ := json.Marshal(daemon.SubmitRequest{Type: "text", Content: "hello pipeline"})
	resp, err := http.Post(apiURL(d, "/api/jobs"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/jobs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d, want 201", resp.StatusCode)
	}
	var created daemon.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	jobID := created.Job.JobID
	if jobID == "" {
		t.Fatal("submit response missing job id")
	}

	// The nop stages finish quickly; wait for the terminal record.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(apiURL(d, "/api/jobs/"+jobID))
		if err != nil {
			t.Fatalf("GET job: %v", err)
		}
		var got daemon.JobResponse
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		resp.Body.Close()
		if got.Job.Status.IsTerminal() {
			if got.Job.Status != state.StatusCompleted {
				t.Fatalf("job status = %s, want completed", got.Job.Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, status %s", got.Job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err = http.Get(apiURL(d, "/api/jobs"))
	if err != nil {
		t.Fatalf("GET /api/jobs: %v", err)
	}
	defer resp.Body.Close()
	var list daemon.JobListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].JobID != jobID {
		t.Fatalf("list = %+v", list.Jobs)
	}

	resp, err = http.Get(apiURL(d, "/api/status"))
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	var status daemon.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("status should report running")
	}
	if status.QueueStats[state.StatusCompleted] != 1 {
		t.Fatalf("queue stats = %+v", status.QueueStats)
	}
}

func TestAPICancelAndRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg, nil)
	startDaemon(t, d)

	rec, err := d.Submit(context.Background(), state.Input{Type: "text", Content: "hi"}, state.Options{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	resp, err := http.Post(apiURL(d, "/api/jobs/"+rec.JobID+"/cancel"), "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("cancel status = %d, want 202", resp.StatusCode)
	}

	resp, err = http.Post(apiURL(d, "/api/jobs/missing/cancel"), "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cancel missing status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "sesame"
	d := newTestDaemon(t, cfg, nil)
	startDaemon(t, d)

	resp, err := http.Get(apiURL(d, "/api/status"))
	if err != nil {
		t.Fatalf("GET without token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, apiURL(d, "/api/status"), nil)
	req.Header.Set("Authorization", "Bearer sesame")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	registry := prometheus.NewRegistry()
	d := newTestDaemon(t, cfg, registry)
	startDaemon(t, d)

	resp, err := http.Get(apiURL(d, "/metrics"))
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", resp.StatusCode)
	}
}
