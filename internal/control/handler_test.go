package control

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/memlab/memwatch/internal/control/responses"
	"github.com/memlab/memwatch/internal/detection"
	"github.com/memlab/memwatch/internal/logging"
	"github.com/memlab/memwatch/internal/metrics"
	"github.com/memlab/memwatch/internal/reports/postdetection"
	"github.com/memlab/memwatch/internal/state"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

func newTestRouter(t *testing.T) (http.Handler, *Plane) {
	t.Helper()
	plane, _, _ := newTestPlane(t, "")

	registry := prometheus.NewRegistry()
	metrics.NewMetrics(registry).SetRunning(true)

	return NewHandler(zaptest.NewLogger(t), plane, registry, "1.0").Router(), plane
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestHandlerStartStop(t *testing.T) {
	router, _ := newTestRouter(t)

	if rec := serve(router, http.MethodPost, "/monitor/stop", ""); rec.Code != http.StatusConflict {
		t.Fatalf("stop before start: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec := serve(router, http.MethodPost, "/monitor/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status = %d, want %d", rec.Code, http.StatusOK)
	}
	session := &responses.Session{}
	if err := json.Unmarshal(rec.Body.Bytes(), session); err != nil || session.SessionId != "session-1" {
		t.Fatalf("unexpected start body %s", rec.Body.String())
	}

	rec = serve(router, http.MethodGet, "/status", "")
	snapshot := &state.Snapshot{}
	if err := json.Unmarshal(rec.Body.Bytes(), snapshot); err != nil || !snapshot.Running {
		t.Fatalf("unexpected status body %s", rec.Body.String())
	}

	if rec := serve(router, http.MethodPost, "/monitor/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("stop: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandlerSettings(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, http.MethodPut, "/settings", `{"recipients": "a@x.com, b@y.com", "threshold_percent": "bad"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put settings: status = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := &responses.Settings{}
	if err := json.Unmarshal(rec.Body.Bytes(), updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(updated.Recipients) != 2 || updated.ThresholdPercent != 70 || len(updated.Warnings) != 1 {
		t.Fatalf("unexpected settings %+v", updated)
	}

	rec = serve(router, http.MethodGet, "/settings", "")
	current := &responses.Settings{}
	if err := json.Unmarshal(rec.Body.Bytes(), current); err != nil || len(current.Recipients) != 2 ||
		current.PollInterval != "5s" {
		t.Fatalf("unexpected settings body %s", rec.Body.String())
	}

	if rec := serve(router, http.MethodPut, "/settings", "{"); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandlerLogVersionMetrics(t *testing.T) {
	router, plane := newTestRouter(t)
	if _, err := plane.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	plane.feed.Record("Started Monitoring AutomationDesk.exe...")

	rec := serve(router, http.MethodGet, "/log", "")
	log := &responses.Log{}
	if err := json.Unmarshal(rec.Body.Bytes(), log); err != nil || len(log.Lines) != 1 ||
		!strings.HasSuffix(log.Lines[0], "Started Monitoring AutomationDesk.exe...") {
		t.Fatalf("unexpected log body %s", rec.Body.String())
	}

	rec = serve(router, http.MethodGet, "/version", "")
	if !strings.Contains(rec.Body.String(), `"version":"1.0"`) {
		t.Fatalf("unexpected version body %s", rec.Body.String())
	}

	rec = serve(router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "memwatch_monitor_running 1") {
		t.Fatalf("unexpected metrics body %s", rec.Body.String())
	}
}

func TestHandlerLogStream(t *testing.T) {
	router, plane := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/log/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer response.Body.Close()

	if response.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type %q", response.Header.Get("Content-Type"))
	}

	// Headers arrive only after the handler subscribed.
	plane.feed.Record("Stopped Monitoring AutomationDesk.exe.")

	reader := bufio.NewReader(response.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(line, "data: [") || !strings.HasSuffix(strings.TrimSpace(line),
		"Stopped Monitoring AutomationDesk.exe.") {
		t.Fatalf("unexpected event %q", line)
	}
}

type fakeInspector struct {
	report *postdetection.MetadataReport
	err    error
}

func (f *fakeInspector) Inspect(ctx context.Context, processName string) (*postdetection.MetadataReport, error) {
	if f.report != nil {
		f.report.Name = processName
	}
	return f.report, f.err
}

func TestHandlerProcess(t *testing.T) {
	router, _ := newTestRouter(t)
	if rec := serve(router, http.MethodGet, "/process", ""); rec.Code != http.StatusNotImplemented {
		t.Fatalf("without inspector: status = %d, want %d", rec.Code, http.StatusNotImplemented)
	}

	for _, test := range []struct {
		inspector *fakeInspector
		status    int
	}{
		{&fakeInspector{report: &postdetection.MetadataReport{Pid: 42}}, http.StatusOK},
		{&fakeInspector{err: postdetection.ErrProcessNotFound}, http.StatusNotFound},
		{&fakeInspector{err: errors.New("denied")}, http.StatusInternalServerError},
	} {
		logger := zaptest.NewLogger(t)
		plane, err := NewPlane(logger, logging.NewFeed(logger, nil, 0), &fakeController{}, &PlaneConfig{
			MonitorConfig: detection.DefaultMonitorConfig(),
			Inspector:     test.inspector,
		})
		if err != nil {
			t.Fatalf("new plane: %v", err)
		}

		rec := serve(NewHandler(logger, plane, nil, "1.0").Router(), http.MethodGet, "/process", "")
		if rec.Code != test.status {
			t.Fatalf("status = %d, want %d", rec.Code, test.status)
		}
		if test.status == http.StatusOK && !strings.Contains(rec.Body.String(), `"name":"AutomationDesk.exe"`) {
			t.Fatalf("unexpected body %s", rec.Body.String())
		}
	}
}
