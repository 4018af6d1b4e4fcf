package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livecanvas/internal/errors"
	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/registry"
	"github.com/conneroisu/livecanvas/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, mutate func(*Options)) *Manager {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	return NewManager(NewMemoryStore(), registry.NewDefaultRegistry(), nil, opts)
}

func TestStartAndStyleChange(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	started, err := m.StartSession(ctx, "s1", `<button className="p-2">Click</button>`, "")
	require.NoError(t, err)
	assert.Equal(t, "s1", started.SessionID)
	require.Len(t, started.Elements, 1)
	assert.Equal(t, "comp_0", started.Elements[0].ID)
	assert.Equal(t, "button", started.Elements[0].Kind)

	res, err := m.ApplyChange(ctx, "s1", types.UpdateStyle{
		ComponentID:   "comp_0",
		StyleProperty: "background-color",
		NewValue:      "#3b82f6",
	})
	require.NoError(t, err)
	assert.Contains(t, res.UpdatedCode, `className="p-2 bg-blue-500"`)
	require.IsType(t, types.StyleUpdate{}, res.Patch)
	assert.Equal(t, "bg-blue-500", res.Patch.(types.StyleUpdate).Token)
	assert.Equal(t, 1, res.Change.Sequence)
	assert.True(t, res.Change.Result.Applied)
	assert.NotEmpty(t, res.Change.ID)

	code, err := m.Code("s1")
	require.NoError(t, err)
	assert.Equal(t, res.UpdatedCode, code)
}

func TestEditsKeepMarkupMeaning(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.StartSession(ctx, "mixed", `<p>Click <a href="/x">here</a> to continue, {name}!</p>`, "")
	require.NoError(t, err)
	res, err := m.ApplyChange(ctx, "mixed", types.UpdateStyle{
		ComponentID:   "comp_0",
		StyleProperty: "color",
		NewValue:      "#000000",
	})
	require.NoError(t, err)
	assert.Equal(t, `<p className="text-black">Click <a href="/x">here</a> to continue, {name}!</p>`+"\n", res.UpdatedCode)

	_, err = m.StartSession(ctx, "brace", `<div><p>Price</p><button>Buy</button><span>Footer</span></div>`, "")
	require.NoError(t, err)
	res, err = m.ApplyChange(ctx, "brace", types.UpdateContent{ComponentID: "comp_1", NewContent: "Price {"})
	require.NoError(t, err)
	require.Len(t, res.Elements, 4)

	restarted, err := m.StartSession(ctx, "brace", res.UpdatedCode, "")
	require.NoError(t, err)
	require.Len(t, restarted.Elements, 4)
	for i, e := range restarted.Elements {
		assert.Equal(t, res.Elements[i].Kind, e.Kind)
		assert.Equal(t, res.Elements[i].Content, e.Content)
	}
	assert.Equal(t, "Price {", restarted.Elements[1].Content)
}

func TestStartEmptyText(t *testing.T) {
	m := newTestManager(t, nil)

	started, err := m.StartSession(context.Background(), "empty", "", "")
	require.NoError(t, err)
	assert.NotNil(t, started.Elements)
	assert.Empty(t, started.Elements)

	info, err := m.GetSessionInfo("empty")
	require.NoError(t, err)
	assert.Equal(t, 0, info.ElementCount)
	assert.Equal(t, 0, info.ChangeCount)
}

func TestStartGeneratesID(t *testing.T) {
	m := newTestManager(t, nil)

	started, err := m.StartSession(context.Background(), "", "<div/>", "")
	require.NoError(t, err)
	assert.Len(t, started.SessionID, 36)
	assert.Equal(t, 1, m.Count())
}

func TestStartDialects(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.StartSession(ctx, "h", `<ul><li>a</li></ul>`, model.DialectHTML)
	require.NoError(t, err)
	info, err := m.GetSessionInfo("h")
	require.NoError(t, err)
	assert.Equal(t, model.DialectHTML, info.Dialect)
	assert.Equal(t, 2, info.ElementCount)

	_, err = m.StartSession(ctx, "bad", "<div/>", model.Dialect("svelte"))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 1, m.Count())
}

func TestUnknownSessionLeavesTableUnchanged(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	_, err := m.StartSession(ctx, "known", "<div/>", "")
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
	}{
		{"apply", func() error {
			_, err := m.ApplyChange(ctx, "missing", types.DeleteComponent{ComponentID: "comp_0"})
			return err
		}},
		{"info", func() error { _, err := m.GetSessionInfo("missing"); return err }},
		{"close", func() error { _, err := m.CloseSession(ctx, "missing"); return err }},
		{"code", func() error { _, err := m.Code("missing"); return err }},
		{"history", func() error { _, err := m.History("missing"); return err }},
		{"snapshot", func() error { _, err := m.Snapshot("missing"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeSessionNotFound))
			assert.Equal(t, 1, m.Count())
		})
	}
}

func TestHistoryOrder(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	_, err := m.StartSession(ctx, "s", "<div><p>a</p></div>", "")
	require.NoError(t, err)

	ops := []types.Operation{
		types.UpdateContent{ComponentID: "comp_1", NewContent: "b"},
		types.AddComponent{ComponentType: "Button", ParentID: "comp_0"},
		types.UpdateStyle{ComponentID: "comp_0", StyleProperty: "padding", NewValue: "16px"},
	}
	for _, op := range ops {
		_, err := m.ApplyChange(ctx, "s", op)
		require.NoError(t, err)
	}

	history, err := m.History("s")
	require.NoError(t, err)
	require.Len(t, history, len(ops))
	for i, record := range history {
		assert.Equal(t, i+1, record.Sequence)
		assert.Equal(t, ops[i].Type(), record.Operation.Type())
	}

	info, err := m.GetSessionInfo("s")
	require.NoError(t, err)
	assert.Equal(t, 3, info.ChangeCount)
	assert.Equal(t, 3, info.ElementCount)
}

func TestFailedChangeLeavesSessionUnchanged(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	_, err := m.StartSession(ctx, "s", `<div className="a">x</div>`, "")
	require.NoError(t, err)
	before, err := m.Snapshot("s")
	require.NoError(t, err)

	_, err = m.ApplyChange(ctx, "s", types.UpdateContent{ComponentID: "comp_7", NewContent: "y"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTargetNotFound))

	_, err = m.ApplyChange(ctx, "s", types.AddComponent{ComponentType: "Carousel"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeComponentKindNotFound))

	after, err := m.Snapshot("s")
	require.NoError(t, err)
	assert.Equal(t, before.Code, after.Code)
	assert.Empty(t, after.History)
	assert.Equal(t, before.Model.Shapes(), after.Model.Shapes())
}

func TestLenientTargetsRecordNoOp(t *testing.T) {
	m := newTestManager(t, func(o *Options) { o.StrictTargets = false })
	ctx := context.Background()
	_, err := m.StartSession(ctx, "s", "<p>a</p>", "")
	require.NoError(t, err)

	res, err := m.ApplyChange(ctx, "s", types.DeleteComponent{ComponentID: "comp_9"})
	require.NoError(t, err)
	assert.False(t, res.Change.Result.Applied)
	assert.Equal(t, types.PatchFullReload, res.Patch.Type())
	assert.Len(t, res.Elements, 1)
}

func TestDuplicateStartPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("restart", func(t *testing.T) {
		m := newTestManager(t, nil)
		_, err := m.StartSession(ctx, "s", "<p>a</p>", "")
		require.NoError(t, err)
		_, err = m.ApplyChange(ctx, "s", types.UpdateContent{ComponentID: "comp_0", NewContent: "b"})
		require.NoError(t, err)

		started, err := m.StartSession(ctx, "s", "<div/><span/>", "")
		require.NoError(t, err)
		assert.Len(t, started.Elements, 2)

		info, err := m.GetSessionInfo("s")
		require.NoError(t, err)
		assert.Equal(t, 0, info.ChangeCount)
		assert.Equal(t, 1, m.Count())
	})

	t.Run("reject", func(t *testing.T) {
		m := newTestManager(t, func(o *Options) { o.RejectDuplicates = true })
		_, err := m.StartSession(ctx, "s", "<p>a</p>", "")
		require.NoError(t, err)

		_, err = m.StartSession(ctx, "s", "<div/>", "")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeSessionActive))

		code, err := m.Code("s")
		require.NoError(t, err)
		assert.Equal(t, "<p>a</p>", code)
	})
}

func TestMaxSessions(t *testing.T) {
	m := newTestManager(t, func(o *Options) { o.MaxSessions = 1 })
	ctx := context.Background()

	_, err := m.StartSession(ctx, "a", "", "")
	require.NoError(t, err)

	_, err = m.StartSession(ctx, "b", "", "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSessionLimit))

	_, err = m.StartSession(ctx, "a", "<p/>", "")
	require.NoError(t, err, "restarting an active id does not count against the cap")

	closed, err := m.CloseSession(ctx, "a")
	require.NoError(t, err)
	assert.True(t, closed)

	_, err = m.StartSession(ctx, "b", "", "")
	require.NoError(t, err)
}

func TestCloseSession(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	_, err := m.StartSession(ctx, "s", "<p>a</p>", "")
	require.NoError(t, err)

	closed, err := m.CloseSession(ctx, "s")
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, 0, m.Count())

	closed, err = m.CloseSession(ctx, "s")
	assert.False(t, closed)
	assert.True(t, errors.IsNotFound(err))

	_, err = m.ApplyChange(ctx, "s", types.UpdateContent{ComponentID: "comp_0", NewContent: "b"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeSessionNotFound))
}

func TestConcurrentChangesSameSession(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	_, err := m.StartSession(ctx, "s", "<p>a</p>", "")
	require.NoError(t, err)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.ApplyChange(ctx, "s", types.UpdateContent{
				ComponentID: "comp_0",
				NewContent:  fmt.Sprintf("v%d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := m.History("s")
	require.NoError(t, err)
	require.Len(t, history, writers)

	seen := make(map[string]bool, writers)
	for i, record := range history {
		assert.Equal(t, i+1, record.Sequence)
		assert.False(t, seen[record.ID])
		seen[record.ID] = true
	}

	last := history[writers-1].Operation.(types.UpdateContent).NewContent
	code, err := m.Code("s")
	require.NoError(t, err)
	assert.Equal(t, "<p>"+last+"</p>\n", code)
}

func TestConcurrentSessions(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%02d", i)
			_, err := m.StartSession(ctx, id, "<div/>", "")
			if !assert.NoError(t, err) {
				return
			}
			_, err = m.ApplyChange(ctx, id, types.AddComponent{ComponentType: "Card", ParentID: "comp_0"})
			assert.NoError(t, err)
			_, err = m.GetSessionInfo(id)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list := m.List()
	require.Len(t, list, 20)
	assert.Equal(t, "s00", list[0].SessionID)
	for _, info := range list {
		assert.Equal(t, 1, info.ChangeCount)
		assert.Equal(t, 2, info.ElementCount)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.StartSession(context.Background(), "s", "<p>a</p>", "")
	require.NoError(t, err)

	snap, err := m.Snapshot("s")
	require.NoError(t, err)
	el, ok := snap.Model.Find("comp_0")
	require.True(t, ok)
	el.Content = "changed"

	again, err := m.Snapshot("s")
	require.NoError(t, err)
	el, ok = again.Model.Find("comp_0")
	require.True(t, ok)
	assert.Equal(t, "a", el.Content)
}

func TestWatchEvents(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	events := m.Watch()
	defer m.UnWatch(events)

	_, err := m.StartSession(ctx, "s", "<p>a</p>", "")
	require.NoError(t, err)
	_, err = m.ApplyChange(ctx, "s", types.UpdateContent{ComponentID: "comp_0", NewContent: "b"})
	require.NoError(t, err)
	_, err = m.CloseSession(ctx, "s")
	require.NoError(t, err)

	started := <-events
	assert.Equal(t, EventStarted, started.Type)

	changed := <-events
	assert.Equal(t, EventChanged, changed.Type)
	require.NotNil(t, changed.Change)
	assert.Equal(t, 1, changed.Change.Sequence)
	assert.Equal(t, types.PatchContentUpdate, changed.Patch.Type())

	closed := <-events
	assert.Equal(t, EventClosed, closed.Type)
	assert.Equal(t, "closed", closed.Type.String())
}

func TestChangeResultJSON(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	_, err := m.StartSession(ctx, "s", "<h1>Old</h1>", "")
	require.NoError(t, err)

	res, err := m.ApplyChange(ctx, "s", types.UpdateContent{ComponentID: "comp_0", NewContent: "New"})
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded struct {
		UpdatedCode string `json:"updated_code"`
		Patch       struct {
			Type        string `json:"type"`
			DOMSelector string `json:"dom_selector"`
		} `json:"patch"`
		Change struct {
			ChangeType string `json:"change_type"`
			Sequence   int    `json:"sequence"`
		} `json:"change"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "<h1>New</h1>\n", decoded.UpdatedCode)
	assert.Equal(t, "content_update", decoded.Patch.Type)
	assert.Equal(t, "[data-component-id='comp_0']", decoded.Patch.DOMSelector)
	assert.Equal(t, "update_content", decoded.Change.ChangeType)
	assert.Equal(t, 1, decoded.Change.Sequence)
}
