package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"factod/internal/compile"
	"factod/internal/stats"
	"factod/pkg/types"
)

type mockService struct {
	busy       bool
	snap       stats.Snapshot
	compileErr error
	events     []compile.Event
	gotSource  string
	gotOpts    compile.Options
}

func (m *mockService) Compile(ctx context.Context, source string, opts compile.Options, emit compile.EmitFunc) error {
	m.gotSource = source
	m.gotOpts = opts
	if m.compileErr != nil {
		return m.compileErr
	}
	for _, ev := range m.events {
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}
func (m *mockService) Connect() stats.Snapshot { m.snap.UniqueSessions++; return m.snap }
func (m *mockService) Stats() stats.Snapshot   { return m.snap }
func (m *mockService) QueueBusy() bool         { return m.busy }

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	svc := &mockService{busy: true}
	r := NewMux(svc, Options{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK { t.Fatalf("status=%d", w.Code) }
	var body types.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil { t.Fatalf("json: %v", err) }
	if body.Status != "ok" || !body.Busy { t.Fatalf("unexpected body: %+v", body) }
}

func TestConnectHandler(t *testing.T) {
	svc := &mockService{}
	r := NewMux(svc, Options{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/connect", nil))
	if w.Code != http.StatusOK { t.Fatalf("status=%d", w.Code) }
	var body struct {
		Connected bool           `json:"connected"`
		Stats     stats.Snapshot `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil { t.Fatalf("json: %v", err) }
	if !body.Connected { t.Fatalf("connected=false") }
	if body.Stats.UniqueSessions != 1 { t.Fatalf("sessions=%d", body.Stats.UniqueSessions) }
}

func TestStatsHandler(t *testing.T) {
	svc := &mockService{snap: stats.Snapshot{TotalCompilations: 7}}
	r := NewMux(svc, Options{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if w.Code != http.StatusOK { t.Fatalf("status=%d", w.Code) }
	var body stats.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil { t.Fatalf("json: %v", err) }
	if body.TotalCompilations != 7 { t.Fatalf("unexpected body: %+v", body) }
}

func TestCompileStream(t *testing.T) {
	svc := &mockService{events: []compile.Event{
		{Type: compile.EventStatus, Content: "Compiling..."},
		{Type: compile.EventLog, Content: "pass 1"},
		{Type: compile.EventBlueprint, Content: "0eJy"},
	}}
	r := NewMux(svc, Options{})
	w := postJSON(t, r, "/compile", `{"source":"signal x = input(\"iron-plate\")","power_poles":"medium"}`)
	if w.Code != http.StatusOK { t.Fatalf("status=%d", w.Code) }
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" { t.Fatalf("content-type=%s", ct) }
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" { t.Fatalf("cache-control=%s", cc) }
	if svc.gotOpts.PowerPoles != "medium" { t.Fatalf("opts=%+v", svc.gotOpts) }

	// Body must be a sequence of data: frames, ending with the end marker.
	frames := parseSSE(t, w.Body.String())
	if len(frames) != 4 { t.Fatalf("frames=%d body=%q", len(frames), w.Body.String()) }
	if frames[0].Type != compile.EventStatus || frames[1].Type != compile.EventLog {
		t.Fatalf("unexpected frames: %+v", frames)
	}
	if frames[2].Type != compile.EventBlueprint || frames[2].Content != "0eJy" {
		t.Fatalf("blueprint frame: %+v", frames[2])
	}
	if frames[3].Type != compile.EventEnd { t.Fatalf("last frame: %+v", frames[3]) }
}

func parseSSE(t *testing.T, body string) []compile.Event {
	t.Helper()
	var out []compile.Event
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if !strings.HasPrefix(chunk, "data: ") {
			t.Fatalf("bad frame: %q", chunk)
		}
		var ev compile.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(chunk, "data: ")), &ev); err != nil {
			t.Fatalf("frame json: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

func TestCompileSync(t *testing.T) {
	svc := &mockService{events: []compile.Event{
		{Type: compile.EventStatus, Content: "Compiling..."},
		{Type: compile.EventLog, Content: "pass 1"},
		{Type: compile.EventLog, Content: "pass 2"},
		{Type: compile.EventStatus, Content: "Compilation successful!"},
		{Type: compile.EventJSON, Content: `{"entities":[]}`},
		{Type: compile.EventBlueprint, Content: "0eJy"},
	}}
	r := NewMux(svc, Options{})
	w := postJSON(t, r, "/compile/sync", `{"source":"signal x = 1","json_output":true}`)
	if w.Code != http.StatusOK { t.Fatalf("status=%d body=%s", w.Code, w.Body.String()) }
	var resp types.SyncCompileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil { t.Fatalf("json: %v", err) }
	if !resp.Success { t.Fatalf("success=false: %+v", resp) }
	if resp.Blueprint != "0eJy" || resp.JSON == "" { t.Fatalf("unexpected: %+v", resp) }
	if len(resp.Logs) != 2 || resp.Logs[1] != "pass 2" { t.Fatalf("logs: %v", resp.Logs) }
	if resp.Status != "Compilation successful!" { t.Fatalf("status: %q", resp.Status) }
}

func TestCompileSyncOmitsJSONUnlessRequested(t *testing.T) {
	svc := &mockService{events: []compile.Event{
		{Type: compile.EventJSON, Content: `{"entities":[]}`},
		{Type: compile.EventBlueprint, Content: "0eJy"},
	}}
	r := NewMux(svc, Options{})
	w := postJSON(t, r, "/compile/sync", `{"source":"signal x = 1"}`)
	var resp types.SyncCompileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil { t.Fatalf("json: %v", err) }
	if resp.JSON != "" { t.Fatalf("json should be omitted: %+v", resp) }
}

func TestCompileSyncFailure(t *testing.T) {
	svc := &mockService{events: []compile.Event{
		{Type: compile.EventStatus, Content: "Compilation failed: parse error"},
		{Type: compile.EventError, Content: "parse error"},
	}}
	r := NewMux(svc, Options{})
	w := postJSON(t, r, "/compile/sync", `{"source":"nope"}`)
	if w.Code != http.StatusOK { t.Fatalf("status=%d", w.Code) }
	var resp types.SyncCompileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil { t.Fatalf("json: %v", err) }
	if resp.Success { t.Fatalf("success should be false") }
	if len(resp.Errors) != 1 || resp.Errors[0] != "parse error" { t.Fatalf("errors: %v", resp.Errors) }
}

func TestCompileRejectsWrongContentType(t *testing.T) {
	r := NewMux(&mockService{}, Options{})
	req := httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader(`{"source":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType { t.Fatalf("status=%d", w.Code) }
	var e types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil { t.Fatalf("json: %v", err) }
	if e.Code != http.StatusUnsupportedMediaType { t.Fatalf("body: %+v", e) }
}

func TestCompileRejectsInvalidJSON(t *testing.T) {
	r := NewMux(&mockService{}, Options{})
	w := postJSON(t, r, "/compile", `{not json`)
	if w.Code != http.StatusBadRequest { t.Fatalf("status=%d", w.Code) }
}

func TestHealthz(t *testing.T) {
	r := NewMux(&mockService{}, Options{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK { t.Fatalf("status=%d", w.Code) }
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewMux(&mockService{}, Options{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK { t.Fatalf("status=%d", w.Code) }
	if !strings.Contains(w.Body.String(), "factod_http_requests_total") {
		t.Fatalf("metrics body missing request counter")
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := NewMux(&mockService{}, Options{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options=%q", got)
	}
}
