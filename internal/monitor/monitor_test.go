package monitor

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/builtin"
	"github.com/zjrosen/algomgr/internal/catalog"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/manager"
	"github.com/zjrosen/algomgr/internal/notify"
	"github.com/zjrosen/algomgr/internal/pubsub"
)

func newManager(t *testing.T) *manager.Manager {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, builtin.Register(cat))
	m, err := manager.New(cat, notify.NewHub(), manager.WithCapacity(10))
	require.NoError(t, err)
	return m
}

func quickBatch() []DemoRun {
	return []DemoRun{
		{Name: "Echo", Properties: map[string]string{"message": "hi"}},
		{Name: "Sum", Properties: map[string]string{"values": "1,2"}},
	}
}

func TestModel_RowsFollowPool(t *testing.T) {
	mgr := newManager(t)
	_, err := mgr.Create("Echo", 1)
	require.NoError(t, err)

	m := New(context.Background(), mgr, nil, nil)
	rows := m.Rows()
	require.Len(t, rows, 1)
	require.Equal(t, "Echo", rows[0][1])
	require.Equal(t, "1", rows[0][2])
	require.Equal(t, "proxy", rows[0][3])
	require.Equal(t, "configured", rows[0][4])

	_, err = mgr.Create("Sum", catalog.LatestVersion)
	require.NoError(t, err)
	next, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd, "tick re-arms itself")
	require.Len(t, next.(Model).Rows(), 2)
}

func TestModel_ClearKey(t *testing.T) {
	mgr := newManager(t)
	_, err := mgr.Create("Echo", 1)
	require.NoError(t, err)

	m := New(context.Background(), mgr, nil, nil)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	require.Equal(t, 0, mgr.Size())
	require.Empty(t, next.(Model).Rows())
}

func TestModel_StartingEventCounted(t *testing.T) {
	mgr := newManager(t)
	m := New(context.Background(), mgr, nil, nil)

	ev := notify.Event{
		Type:    notify.StartingEvent,
		Payload: notify.Starting{HandleID: algorithm.HandleID(4), Name: "Sum", Version: 1, RunID: "abc"},
	}
	next, cmd := m.Update(ev)
	require.NotNil(t, cmd)
	got := next.(Model)
	require.Equal(t, 1, got.Starts())
	require.Contains(t, got.View(), "Sum v1 started (handle 4)")
}

func TestModel_TailsLog(t *testing.T) {
	defer log.InitWriter(io.Discard, log.LevelDebug)()

	mgr := newManager(t)
	m := New(context.Background(), mgr, nil, nil)
	require.NotNil(t, m.logs)

	next, cmd := m.Update(pubsub.Event[log.Entry]{
		Type:    log.EntryEvent,
		Payload: log.Entry{Level: log.LevelInfo, Category: log.CatWatcher, Message: "Applied capacity"},
	})
	require.NotNil(t, cmd)
	require.Contains(t, next.(Model).View(), "[watcher] Applied capacity")
}

func TestModel_BatchError(t *testing.T) {
	mgr := newManager(t)
	m := New(context.Background(), mgr, nil, []DemoRun{{Name: "Missing"}})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)
	msg := cmd()
	next, _ := m.Update(msg)
	require.Contains(t, next.(Model).View(), "Missing")
}

func TestMonitor_RunBatchAndQuit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := newManager(t)
	events, unsubscribe := mgr.Hub().Subscribe(ctx)
	defer unsubscribe()

	tm := teatest.NewTestModel(t, New(ctx, mgr, events, quickBatch()), teatest.WithInitialTermSize(100, 30))

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("0/10 retained"))
	}, teatest.WithDuration(3*time.Second))

	tm.Type("r")
	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("2/10 retained")) && bytes.Contains(b, []byte("completed"))
	}, teatest.WithDuration(5*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	final := tm.FinalModel(t, teatest.WithFinalTimeout(3*time.Second)).(Model)

	require.Equal(t, 2, mgr.Size())
	require.GreaterOrEqual(t, final.Starts(), 2)
}
