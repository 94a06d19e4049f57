package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/backup"
	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/scheduler"
	"github.com/evorbrain/evorbrain/pkg/service"
	"github.com/evorbrain/evorbrain/pkg/stores"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

type testServer struct {
	*Server
	svc   *service.Service
	sched *scheduler.Scheduler
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tel := telemetry.NewNop()
	svc, err := service.New(service.Options{Store: store, Telemetry: tel})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	backups, err := backup.NewManager(backup.Options{
		Dir:     t.TempDir(),
		Keep:    3,
		Logger:  zerolog.Nop(),
		Metrics: tel.Metrics,
		Events:  tel.Events,
	})
	if err != nil {
		t.Fatalf("failed to create backup manager: %v", err)
	}

	sched := scheduler.New(zerolog.Nop(), scheduler.WithMetrics(tel.Metrics))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})

	srv, err := NewServer(Options{
		Service:        svc,
		Backups:        backups,
		Scheduler:      sched,
		Logger:         zerolog.Nop(),
		Version:        "test",
		RequestTimeout: 5 * time.Second,
		Heartbeat:      50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return &testServer{Server: srv, svc: svc, sched: sched}
}

// do sends a request through the router and returns the recorder.
func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	decode(t, rec, &body)
	return body.Error
}

func (ts *testServer) createArea(t *testing.T, name string) domain.LifeArea {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/life-areas", domain.CreateLifeAreaRequest{Name: name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var area domain.LifeArea
	decode(t, rec, &area)
	return area
}

func TestNewServerRequiresService(t *testing.T) {
	if _, err := NewServer(Options{}); err == nil {
		t.Fatal("expected error without a service")
	}
}

func TestLifeAreaLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	area := ts.createArea(t, "Health")

	rec := ts.do(t, http.MethodGet, "/api/v1/life-areas/"+area.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got domain.LifeArea
	decode(t, rec, &got)
	if got.Name != "Health" {
		t.Errorf("expected name Health, got %s", got.Name)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected Cache-Control no-store, got %q", cc)
	}

	rec = ts.do(t, http.MethodPatch, "/api/v1/life-areas/"+area.ID, `{"name":"Fitness"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &got)
	if got.Name != "Fitness" {
		t.Errorf("expected name Fitness, got %s", got.Name)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/life-areas", nil)
	var list []domain.LifeArea
	decode(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 life area, got %d", len(list))
	}

	rec = ts.do(t, http.MethodDelete, "/api/v1/life-areas/"+area.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var del deleted
	decode(t, rec, &del)
	if !del.Deleted || del.ID != area.ID {
		t.Errorf("unexpected delete response: %+v", del)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/life-areas/"+area.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestErrorResponses(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   domain.ErrorKind
	}{
		{
			name:   "unknown life area",
			method: http.MethodGet,
			path:   "/api/v1/life-areas/" + uuid.NewString(),
			status: http.StatusNotFound,
			kind:   domain.KindNotFound,
		},
		{
			name:   "malformed id",
			method: http.MethodGet,
			path:   "/api/v1/goals/not-a-uuid",
			status: http.StatusBadRequest,
			kind:   domain.KindBadRequest,
		},
		{
			name:   "empty name",
			method: http.MethodPost,
			path:   "/api/v1/life-areas",
			body:   `{"name":""}`,
			status: http.StatusBadRequest,
			kind:   domain.KindValidation,
		},
		{
			name:   "unknown field",
			method: http.MethodPost,
			path:   "/api/v1/life-areas",
			body:   `{"name":"Health","colour":"#fff"}`,
			status: http.StatusBadRequest,
			kind:   domain.KindBadRequest,
		},
		{
			name:   "empty body",
			method: http.MethodPost,
			path:   "/api/v1/tags",
			body:   "",
			status: http.StatusBadRequest,
			kind:   domain.KindBadRequest,
		},
		{
			name:   "unknown route",
			method: http.MethodGet,
			path:   "/api/v1/habits",
			status: http.StatusNotFound,
			kind:   domain.KindNotFound,
		},
		{
			name:   "method not allowed",
			method: http.MethodPut,
			path:   "/api/v1/tags",
			body:   `{}`,
			status: http.StatusMethodNotAllowed,
			kind:   domain.KindBadRequest,
		},
		{
			name:   "half a parent filter",
			method: http.MethodGet,
			path:   "/api/v1/notes?parent_type=goal",
			status: http.StatusBadRequest,
			kind:   domain.KindBadRequest,
		},
		{
			name:   "bad boolean",
			method: http.MethodGet,
			path:   "/api/v1/repository/export?include_archived=maybe",
			status: http.StatusBadRequest,
			kind:   domain.KindBadRequest,
		},
		{
			name:   "unknown log level",
			method: http.MethodPut,
			path:   "/api/v1/logs/level",
			body:   `{"level":"loud"}`,
			status: http.StatusBadRequest,
			kind:   domain.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON content type, got %q", ct)
			}
			if detail := decodeError(t, rec); detail.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s (%s)", tt.kind, detail.Kind, detail.Message)
			}
		})
	}
}

func TestDeleteRefusedWithChildren(t *testing.T) {
	ts := setupTestServer(t)
	area := ts.createArea(t, "Career")

	rec := ts.do(t, http.MethodPost, "/api/v1/goals", domain.CreateGoalRequest{LifeAreaID: area.ID, Name: "Promotion"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodDelete, "/api/v1/life-areas/"+area.ID, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	detail := decodeError(t, rec)
	if !strings.Contains(detail.Message, "1 goals are still associated") {
		t.Errorf("unexpected message: %s", detail.Message)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/life-areas/"+area.ID+"/goals", nil)
	var goals []domain.Goal
	decode(t, rec, &goals)
	if len(goals) != 1 {
		t.Errorf("expected 1 goal, got %d", len(goals))
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("unexpected health body: %v", body)
	}

	ts.createArea(t, "Health")
	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "evorbrain_") {
		t.Error("expected evorbrain metrics in scrape output")
	}
}

func TestLogLevel(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/v1/logs/level", `{"level":"WARN"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var level logLevel
	decode(t, rec, &level)
	if level.Level != "warn" {
		t.Errorf("expected warn, got %s", level.Level)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/logs/level", nil)
	decode(t, rec, &level)
	if level.Level != "warn" {
		t.Errorf("expected warn on read back, got %s", level.Level)
	}
}

func TestBackups(t *testing.T) {
	ts := setupTestServer(t)
	ts.createArea(t, "Health")

	rec := ts.do(t, http.MethodPost, "/api/v1/backups", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result backup.Result
	decode(t, rec, &result)
	if !strings.HasPrefix(result.Backup.Name, "evorbrain-") || result.Backup.Size == 0 {
		t.Errorf("unexpected backup: %+v", result.Backup)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/backups", nil)
	var list []backup.Backup
	decode(t, rec, &list)
	if len(list) != 1 || list[0].Name != result.Backup.Name {
		t.Errorf("expected the new snapshot to be listed, got %+v", list)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/backups?remote=true", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a remote, got %d", rec.Code)
	}
}

func TestJobs(t *testing.T) {
	ts := setupTestServer(t)

	runs := 0
	err := ts.sched.Add(scheduler.Job{
		Name: "count",
		Spec: "@daily",
		Run: func(ctx context.Context) error {
			runs++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("failed to add job: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/jobs", nil)
	var jobs []scheduler.JobStatus
	decode(t, rec, &jobs)
	if len(jobs) != 1 || jobs[0].Name != "count" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/jobs/count/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var status scheduler.JobStatus
	decode(t, rec, &status)
	if runs != 1 || status.Runs != 1 {
		t.Errorf("expected one run, got runs=%d status=%+v", runs, status)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/jobs/missing/run", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?entity=life_area", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(prefix string) string {
		t.Helper()
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		t.Fatalf("stream ended before %q: %v", prefix, lines.Err())
		return ""
	}

	waitFor("event: ready")

	// Tags are filtered out; only the life area reaches the stream.
	ts.do(t, http.MethodPost, "/api/v1/tags", `{"name":"focus"}`)
	area := ts.createArea(t, "Health")

	want := "event: " + telemetry.EventType(string(domain.EntityLifeArea), telemetry.ActionCreated)
	if got := waitFor("event: com.evorbrain."); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	data := strings.TrimPrefix(waitFor("data: "), "data: ")
	var event struct {
		Type    string `json:"type"`
		Subject string `json:"subject"`
	}
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.Subject != area.ID {
		t.Errorf("expected subject %s, got %s", area.ID, event.Subject)
	}
}

func TestEventStreamAcceptsDatabase(t *testing.T) {
	ts := setupTestServer(t)
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?entity=database", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	lines := bufio.NewScanner(resp.Body)
	for lines.Scan() {
		if lines.Text() == "event: ready" {
			return
		}
	}
	t.Fatalf("stream ended before ready: %v", lines.Err())
}

func TestEventStreamRejectsUnknownEntity(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/events?entity=habit", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
