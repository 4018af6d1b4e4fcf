package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livecanvas/internal/config"
	"github.com/conneroisu/livecanvas/internal/registry"
	"github.com/conneroisu/livecanvas/internal/session"
	lcws "github.com/conneroisu/livecanvas/internal/websocket"
)

const sample = `<div className="p-4"><button className="p-2">Click</button></div>`

type testServer struct {
	*Server
	manager *session.Manager
	hub     *lcws.Hub
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Server.RateLimit = 0
	if mutate != nil {
		mutate(cfg)
	}

	manager := session.NewManager(nil, registry.NewDefaultRegistry(), nil, cfg.SessionOptions())
	hub := lcws.NewHub(nil, cfg.HubOptions())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, hub.Shutdown(ctx))
	})

	return &testServer{
		Server:  New(cfg, manager, registry.NewDefaultRegistry(), hub, nil),
		manager: manager,
		hub:     hub,
	}
}

func (ts *testServer) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error.Code
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/sessions", `{"session_id":"demo","code":`+quote(sample)+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decode(t, rec)
	assert.Equal(t, "demo", started["session_id"])
	assert.Len(t, started["elements"], 2)

	rec = ts.do(t, http.MethodPost, "/api/sessions/demo/changes",
		`{"type":"update_style","component_id":"comp_1","style_property":"background-color","new_value":"#3b82f6"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	changed := decode(t, rec)
	assert.Contains(t, changed["updated_code"], `className="p-2 bg-blue-500"`)
	patch := changed["patch"].(map[string]interface{})
	assert.Equal(t, "style_update", patch["type"])
	assert.Equal(t, "comp_1", patch["component_id"])
	change := changed["change"].(map[string]interface{})
	assert.Equal(t, float64(1), change["sequence"])
	assert.Equal(t, "update_style", change["change_type"])

	rec = ts.do(t, http.MethodGet, "/api/sessions/demo/code", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, changed["updated_code"], decode(t, rec)["code"])

	rec = ts.do(t, http.MethodGet, "/api/sessions/demo/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["changes"], 1)

	rec = ts.do(t, http.MethodGet, "/api/sessions/demo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode(t, rec)
	assert.Equal(t, float64(1), info["change_count"])
	assert.Equal(t, float64(2), info["element_count"])
	assert.Equal(t, "jsx", info["dialect"])

	rec = ts.do(t, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["sessions"], 1)

	rec = ts.do(t, http.MethodGet, "/api/sessions/demo/preview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<!DOCTYPE html>")
	assert.Contains(t, rec.Body.String(), `<button data-component-id="comp_1" class="p-2 bg-blue-500">Click</button>`)

	rec = ts.do(t, http.MethodGet, "/api/sessions/demo/preview?fragment=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<!DOCTYPE html>")
	assert.True(t, strings.HasPrefix(rec.Body.String(), `<div data-component-id="comp_0"`), rec.Body.String())

	rec = ts.do(t, http.MethodDelete, "/api/sessions/demo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["closed"])

	rec = ts.do(t, http.MethodGet, "/api/sessions/demo", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ERR_SESSION_NOT_FOUND", errorCode(t, rec))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestStartSession(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		before   []string
		body     string
		status   int
		wantCode string
	}{
		{
			name:   "generated id",
			body:   `{"code":"<p>hi</p>"}`,
			status: http.StatusCreated,
		},
		{
			name:   "html dialect",
			body:   `{"session_id":"h","code":"<p class=\"x\">hi</p>","dialect":"html"}`,
			status: http.StatusCreated,
		},
		{
			name:     "unknown dialect",
			body:     `{"code":"<p>hi</p>","dialect":"vue"}`,
			status:   http.StatusBadRequest,
			wantCode: "ERR_VALIDATION_FAILED",
		},
		{
			name:     "unknown field",
			body:     `{"code":"<p>hi</p>","text":"oops"}`,
			status:   http.StatusBadRequest,
			wantCode: "ERR_VALIDATION_FAILED",
		},
		{
			name:     "malformed body",
			body:     `{"code":`,
			status:   http.StatusBadRequest,
			wantCode: "ERR_VALIDATION_FAILED",
		},
		{
			name:     "duplicate rejected",
			mutate:   func(c *config.Config) { c.Sessions.RejectDuplicates = true },
			before:   []string{"dup"},
			body:     `{"session_id":"dup","code":""}`,
			status:   http.StatusConflict,
			wantCode: "ERR_SESSION_ACTIVE",
		},
		{
			name:   "duplicate restarts by default",
			before: []string{"dup"},
			body:   `{"session_id":"dup","code":"<h1>again</h1>"}`,
			status: http.StatusCreated,
		},
		{
			name:     "session limit",
			mutate:   func(c *config.Config) { c.Sessions.MaxSessions = 1 },
			before:   []string{"first"},
			body:     `{"session_id":"second","code":""}`,
			status:   http.StatusServiceUnavailable,
			wantCode: "ERR_SESSION_LIMIT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.mutate)
			for _, id := range tt.before {
				_, err := ts.manager.StartSession(context.Background(), id, "<p>a</p>", "")
				require.NoError(t, err)
			}

			rec := ts.do(t, http.MethodPost, "/api/sessions", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
			}
			if tt.name == "generated id" {
				assert.Len(t, decode(t, rec)["session_id"], 36)
			}
		})
	}
}

func TestApplyChangeErrors(t *testing.T) {
	tests := []struct {
		name       string
		session    string
		body       string
		status     int
		wantCode   string
		wantFields []string
	}{
		{
			name:     "unknown session",
			session:  "nope",
			body:     `{"type":"delete_component","component_id":"comp_0"}`,
			status:   http.StatusNotFound,
			wantCode: "ERR_SESSION_NOT_FOUND",
		},
		{
			name:     "malformed json",
			body:     `{"type":`,
			status:   http.StatusBadRequest,
			wantCode: "ERR_INVALID_OPERATION",
		},
		{
			name:     "unknown operation",
			body:     `{"type":"paint_everything"}`,
			status:   http.StatusBadRequest,
			wantCode: "ERR_INVALID_OPERATION",
		},
		{
			name:       "missing fields",
			body:       `{"type":"update_style","component_id":"comp_0"}`,
			status:     http.StatusBadRequest,
			wantCode:   "ERR_VALIDATION_FAILED",
			wantFields: []string{"new_value", "style_property"},
		},
		{
			name:     "unknown target",
			body:     `{"type":"update_content","component_id":"comp_99","new_content":"x"}`,
			status:   http.StatusNotFound,
			wantCode: "ERR_TARGET_NOT_FOUND",
		},
		{
			name:     "unknown component kind",
			body:     `{"type":"add_component","component_type":"Carousel"}`,
			status:   http.StatusNotFound,
			wantCode: "ERR_COMPONENT_KIND_NOT_FOUND",
		},
		{
			name:     "move into own subtree",
			body:     `{"type":"move_component","component_id":"comp_0","new_parent_id":"comp_1"}`,
			status:   http.StatusBadRequest,
			wantCode: "ERR_INVALID_MOVE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			_, err := ts.manager.StartSession(context.Background(), "demo", sample, "")
			require.NoError(t, err)

			id := tt.session
			if id == "" {
				id = "demo"
			}
			rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/changes", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			if tt.wantFields != nil {
				assert.Equal(t, tt.wantFields, resp.Error.Fields)
			}

			if id == "demo" {
				history, err := ts.manager.History("demo")
				require.NoError(t, err)
				assert.Empty(t, history)
			}
		})
	}
}

func TestSessionIDWithSlash(t *testing.T) {
	ts := newTestServer(t, nil)
	_, err := ts.manager.StartSession(context.Background(), "pages/home.jsx", "<main>Home</main>", "")
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/sessions/pages%2Fhome.jsx", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "pages/home.jsx", decode(t, rec)["session_id"])

	rec = ts.do(t, http.MethodGet, "/api/sessions/pages%2Fhome.jsx/code", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<main>Home</main>", decode(t, rec)["code"])
}

func TestComponentsAndHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/components", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var catalog ComponentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	var names []string
	for _, entry := range catalog.Components {
		names = append(names, entry.Name)
	}
	assert.Subset(t, names, []string{"Button", "Card", "Container", "Flex", "Grid", "Input"})
	assert.NotEmpty(t, catalog.Categories)

	_, err := ts.manager.StartSession(context.Background(), "s", "", "")
	require.NoError(t, err)

	rec = ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode(t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(1), health["sessions"])
	assert.Equal(t, float64(0), health["clients"])
	assert.NotEmpty(t, health["version"])
}

func TestSecurityMiddleware(t *testing.T) {
	ts := newTestServer(t, nil)
	start := `{"code":"<p>x</p>"}`

	tests := []struct {
		name       string
		method     string
		origin     string
		body       string
		status     int
		allowOrgin string
	}{
		{"no origin", http.MethodPost, "", start, http.StatusCreated, ""},
		{"same origin", http.MethodPost, "http://example.com", start, http.StatusCreated, ""},
		{"allowed cross origin", http.MethodPost, "http://localhost:5173", start, http.StatusCreated, "http://localhost:5173"},
		{"foreign origin post", http.MethodPost, "https://evil.example", start, http.StatusForbidden, ""},
		{"foreign origin read", http.MethodGet, "https://evil.example", "", http.StatusOK, ""},
		{"preflight allowed", http.MethodOptions, "http://127.0.0.1:3000", "", http.StatusNoContent, "http://127.0.0.1:3000"},
		{"preflight foreign", http.MethodOptions, "https://evil.example", "", http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/sessions"
			var rec *httptest.ResponseRecorder
			if tt.origin == "" {
				rec = ts.do(t, tt.method, target, tt.body)
			} else {
				rec = ts.do(t, tt.method, target, tt.body, "Origin", tt.origin)
			}

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.allowOrgin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "connect-src 'self' ws: wss:")
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestStylesheetOriginInCSP(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.Preview.StylesheetURL = "https://cdn.example.com/tw/app.css"
	})

	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"),
		"style-src 'self' 'unsafe-inline' https://cdn.example.com")
}

func TestRateLimitedMutations(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Server.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/sessions", `{"code":""}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := ts.do(t, http.MethodPost, "/api/sessions", `{"code":""}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = ts.do(t, http.MethodGet, "/api/sessions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(60, nil)
	rl.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		require.True(t, rl.Check("a").Allowed, "request %d", i)
	}
	denied := rl.Check("a")
	assert.False(t, denied.Allowed)
	assert.Equal(t, time.Second, denied.RetryAfter)

	assert.True(t, rl.Check("b").Allowed)

	now = now.Add(time.Second)
	assert.True(t, rl.Check("a").Allowed)
	assert.False(t, rl.Check("a").Allowed)

	now = now.Add(time.Hour)
	rl.Check("b")
	rl.mutex.Lock()
	assert.Len(t, rl.buckets, 1)
	rl.mutex.Unlock()
}

func TestServeStopsOnCancel(t *testing.T) {
	ts := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestPatchStreamThroughServer(t *testing.T) {
	ts := newTestServer(t, nil)
	httpServer := httptest.NewServer(ts.Handler())
	defer httpServer.Close()

	events := ts.manager.Watch()
	defer ts.manager.UnWatch(events)
	ctx, cancel := context.WithCancel(context.Background())
	forwarded := make(chan error, 1)
	go func() { forwarded <- ts.hub.Forward(ctx, events) }()
	defer func() {
		cancel()
		<-forwarded
	}()

	_, err := ts.manager.StartSession(ctx, "live", `<h1>Old</h1>`, "")
	require.NoError(t, err)

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, "ws"+strings.TrimPrefix(httpServer.URL, "http")+"/ws?session=live", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() lcws.Message {
		rctx, rcancel := context.WithTimeout(ctx, 5*time.Second)
		defer rcancel()
		_, data, err := conn.Read(rctx)
		require.NoError(t, err)
		var msg lcws.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	assert.Equal(t, lcws.MessageConnected, read().Type)
	require.Eventually(t, func() bool { return ts.hub.ConnectedClients("live") == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Post(httpServer.URL+"/api/sessions/live/changes", "application/json",
		strings.NewReader(`{"type":"update_content","component_id":"comp_0","new_content":"New"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msg := read()
	assert.Equal(t, lcws.MessagePatch, msg.Type)
	assert.Equal(t, "content_update", msg.Patch["type"])
	assert.Equal(t, "New", msg.Patch["new_content"])
}
