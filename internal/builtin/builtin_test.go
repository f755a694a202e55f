package builtin

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/catalog"
)

func newWorker(t *testing.T, name string, version int, props map[string]string) algorithm.Worker {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, Register(cat))
	w, err := cat.Create(name, version)
	require.NoError(t, err)
	require.NoError(t, w.Initialize())
	require.NoError(t, w.Properties().SetAll(props))
	return w
}

func progressMessages(w algorithm.Worker) func() []string {
	var (
		mu   sync.Mutex
		msgs []string
	)
	w.AddObserver(algorithm.NewObserver(func(n algorithm.Notification) {
		if n.Kind == algorithm.NotifyProgress && n.Message != "" {
			mu.Lock()
			msgs = append(msgs, n.Message)
			mu.Unlock()
		}
	}))
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), msgs...)
	}
}

func TestRegister_IsIdempotent(t *testing.T) {
	cat := catalog.New()
	require.NoError(t, Register(cat))
	require.NoError(t, Register(cat))

	require.Len(t, cat.Keys(), 5)
	require.Equal(t, []int{1, 2}, cat.Versions("Echo"))
	require.Equal(t, []catalog.NameCategory{
		{Name: "Sleep", Category: "Utility"},
		{Name: "Sum", Category: "Arithmetic"},
		{Name: "Echo", Category: "Utility\\Text"},
		{Name: "Fail", Category: "Diagnostics"},
	}, cat.NamesAndCategories())
}

func TestSum(t *testing.T) {
	w := newWorker(t, "Sum", 1, map[string]string{"values": "1, 2.5,,3"})
	msgs := progressMessages(w)

	ok, err := w.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "6.5", w.Properties().String("result"))
	require.Equal(t, []string{"result=6.5"}, msgs())
}

func TestSum_RequiresValues(t *testing.T) {
	w := newWorker(t, "Sum", 1, nil)
	_, err := w.Execute(context.Background())
	require.ErrorIs(t, err, algorithm.ErrMissingProperty)
}

func TestSum_RejectsNonNumbers(t *testing.T) {
	w := newWorker(t, "Sum", 1, map[string]string{"values": "1,x"})
	ok, err := w.Execute(context.Background())
	require.False(t, ok)
	require.ErrorContains(t, err, `"x" is not a number`)
}

func TestEcho_Versions(t *testing.T) {
	v1 := newWorker(t, "Echo", 1, map[string]string{"message": "hi"})
	_, err := v1.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hi", v1.Properties().String("output"))
	require.False(t, v1.Properties().Has("repeat"))

	v2 := newWorker(t, "Echo", catalog.LatestVersion, map[string]string{"message": "hi", "repeat": "3", "separator": "-"})
	require.Equal(t, 2, v2.Version())
	_, err = v2.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hi-hi-hi", v2.Properties().String("output"))
}

func TestEchoV2_NegativeRepeat(t *testing.T) {
	w := newWorker(t, "Echo", 2, map[string]string{"repeat": "-1"})
	_, err := w.Execute(context.Background())
	require.ErrorContains(t, err, "must not be negative")
}

func TestFail(t *testing.T) {
	w := newWorker(t, "Fail", 1, map[string]string{"reason": "nope"})
	ok, err := w.Execute(context.Background())
	require.False(t, ok)
	require.ErrorIs(t, err, ErrRequestedFailure)
	require.ErrorContains(t, err, "nope")
}

func TestSleep_ReportsProgress(t *testing.T) {
	w := newWorker(t, "Sleep", 1, map[string]string{"duration": "30ms", "step": "10ms"})
	msgs := progressMessages(w)

	ok, err := w.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, msgs(), 3)
}

func TestSleep_Cancel(t *testing.T) {
	w := newWorker(t, "Sleep", 1, map[string]string{"duration": "1h", "step": "10ms"})

	res := w.ExecuteAsync(context.Background())
	require.True(t, w.IsRunningAsync())
	w.Cancel()

	require.False(t, res.Wait())
	require.ErrorIs(t, res.Err(), algorithm.ErrCancelled)
	require.False(t, w.IsRunning())
}

func TestSummaries(t *testing.T) {
	cat := catalog.New()
	require.NoError(t, Register(cat))
	for _, key := range cat.Keys() {
		w, err := cat.Create(key.Name, key.Version)
		require.NoError(t, err)
		require.NotEmpty(t, w.Summary(), key.String())
	}
}
