package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/goleak"

	"github.com/conneroisu/livecanvas/internal/registry"
	"github.com/conneroisu/livecanvas/internal/session"
	"github.com/conneroisu/livecanvas/internal/types"
)

type fixture struct {
	hub     *Hub
	manager *session.Manager
	server  *httptest.Server
	cancel  context.CancelFunc
	done    chan error
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	f := &fixture{
		hub:     NewHub(nil, opts),
		manager: session.NewManager(nil, registry.NewDefaultRegistry(), nil, session.DefaultOptions()),
		done:    make(chan error, 1),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.hub.HandleWebSocket))

	events := f.manager.Watch()
	var ctx context.Context
	ctx, f.cancel = context.WithCancel(context.Background())
	go func() { f.done <- f.hub.Forward(ctx, events) }()

	t.Cleanup(func() {
		f.cancel()
		<-f.done
		f.manager.UnWatch(events)
		f.server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, f.hub.Shutdown(ctx))
	})

	return f
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubDeliversPatchesPerSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	t.Run("json", func(t *testing.T) {
		f := newFixture(t, Options{})
		ctx := context.Background()

		_, err := f.manager.StartSession(ctx, "s1", `<button className="p-2">Click</button>`, "")
		require.NoError(t, err)
		_, err = f.manager.StartSession(ctx, "s2", `<p>other</p>`, "")
		require.NoError(t, err)

		conn := f.dial(t, "session=s1")
		hello := readJSON(t, conn)
		assert.Equal(t, MessageConnected, hello.Type)
		assert.Equal(t, "s1", hello.SessionID)
		require.Eventually(t, func() bool { return f.hub.ConnectedClients("s1") == 1 }, time.Second, 5*time.Millisecond)

		_, err = f.manager.ApplyChange(ctx, "s2", types.UpdateContent{ComponentID: "comp_0", NewContent: "x"})
		require.NoError(t, err)
		_, err = f.manager.ApplyChange(ctx, "s1", types.UpdateStyle{
			ComponentID:   "comp_0",
			StyleProperty: "background-color",
			NewValue:      "#3b82f6",
		})
		require.NoError(t, err)

		msg := readJSON(t, conn)
		assert.Equal(t, MessagePatch, msg.Type)
		assert.Equal(t, "s1", msg.SessionID)
		assert.Equal(t, 1, msg.Sequence)
		assert.Equal(t, "style_update", msg.Patch["type"])
		assert.Equal(t, "bg-blue-500", msg.Patch["token"])
		assert.Equal(t, "p-2 bg-blue-500", msg.Patch["class_name"])

		_, err = f.manager.CloseSession(ctx, "s1")
		require.NoError(t, err)
		closed := readJSON(t, conn)
		assert.Equal(t, MessageSessionClosed, closed.Type)
	})
}

func TestHubMsgpackEncoding(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.manager.StartSession(ctx, "s", `<h1>Old</h1>`, "")
	require.NoError(t, err)

	conn := f.dial(t, "session=s&encoding=msgpack")

	readMsgpack := func() Message {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		typ, data, err := conn.Read(rctx)
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageBinary, typ)
		var msg Message
		require.NoError(t, msgpack.Unmarshal(data, &msg))
		return msg
	}

	assert.Equal(t, MessageConnected, readMsgpack().Type)
	require.Eventually(t, func() bool { return f.hub.ConnectedClients("s") == 1 }, time.Second, 5*time.Millisecond)

	_, err = f.manager.ApplyChange(ctx, "s", types.UpdateContent{ComponentID: "comp_0", NewContent: "New"})
	require.NoError(t, err)

	msg := readMsgpack()
	assert.Equal(t, MessagePatch, msg.Type)
	assert.Equal(t, "content_update", msg.Patch["type"])
	assert.Equal(t, "New", msg.Patch["new_content"])
}

func TestHubRejectsBadRequests(t *testing.T) {
	f := newFixture(t, Options{})

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing session", "", http.StatusBadRequest},
		{"bad encoding", "session=s&encoding=xml", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(f.server.URL + "/ws?" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestHubConnectionLimitPerIP(t *testing.T) {
	f := newFixture(t, Options{MaxConnectionsPerIP: 1})
	f.dial(t, "session=s")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?session=s"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHubShutdownRejectsNewWork(t *testing.T) {
	hub := NewHub(nil, Options{})
	require.NoError(t, hub.Shutdown(context.Background()))
	assert.True(t, hub.IsShutdown())
	assert.False(t, hub.Publish(Message{Type: MessagePatch, SessionID: "s"}))

	rec := httptest.NewRecorder()
	hub.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws?session=s", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMessageFromEvent(t *testing.T) {
	now := time.Now()
	record := &types.ChangeRecord{Sequence: 4}

	tests := []struct {
		name     string
		event    session.Event
		wantType string
		relevant bool
	}{
		{"started", session.Event{Type: session.EventStarted, SessionID: "s"}, "", false},
		{"restarted", session.Event{Type: session.EventRestarted, SessionID: "s"}, MessageSessionRestarted, true},
		{"closed", session.Event{Type: session.EventClosed, SessionID: "s"}, MessageSessionClosed, true},
		{"evicted", session.Event{Type: session.EventEvicted, SessionID: "s"}, MessageSessionClosed, true},
		{"changed", session.Event{
			Type:      session.EventChanged,
			SessionID: "s",
			Change:    record,
			Patch:     types.FullReload{UpdatedCode: "<p/>\n", Reason: "component added"},
			Timestamp: now,
		}, MessagePatch, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, relevant, err := MessageFromEvent(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.relevant, relevant)
			assert.Equal(t, tt.wantType, msg.Type)
			if tt.wantType == MessagePatch {
				assert.Equal(t, 4, msg.Sequence)
				assert.Equal(t, "full_reload", msg.Patch["type"])
				assert.Equal(t, "<p/>\n", msg.Patch["updated_code"])
			}
		})
	}
}

func TestParseEncoding(t *testing.T) {
	enc, err := ParseEncoding("")
	require.NoError(t, err)
	assert.Equal(t, EncodingJSON, enc)

	enc, err = ParseEncoding("msgpack")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", enc.String())

	_, err = ParseEncoding("cbor")
	assert.Error(t, err)
}
