package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type loader struct {
	calls int
	err   error
}

func (l *loader) load(_ context.Context, n int) (entry, error) {
	l.calls++
	if l.err != nil {
		return entry{}, l.err
	}
	return entry{N: n * 10}, nil
}

func TestReadThroughCache_LoadsOnceThenHits(t *testing.T) {
	ctx := context.Background()
	l := &loader{}
	rt := NewReadThroughCache[key, entry, int](newCache(), l.load, false)

	v, err := rt.Get(ctx, "k", 4, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 40, v.N)

	v, err = rt.Get(ctx, "k", 999, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 40, v.N, "served from cache")
	require.Equal(t, 1, l.calls)
}

func TestReadThroughCache_SkipAlwaysLoads(t *testing.T) {
	ctx := context.Background()
	l := &loader{}
	rt := NewReadThroughCache[key, entry, int](newCache(), l.load, true)

	for i := 0; i < 3; i++ {
		_, err := rt.GetWithRefresh(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
	}
	require.Equal(t, 3, l.calls)
}

func TestReadThroughCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	l := &loader{err: errors.New("db down")}
	rt := NewReadThroughCache[key, entry, int](newCache(), l.load, false)

	_, err := rt.Get(ctx, "k", 1, time.Minute)
	require.EqualError(t, err, "db down")

	l.err = nil
	v, err := rt.GetWithRefresh(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 20, v.N)
	require.Equal(t, 2, l.calls)
}

func TestReadThroughCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	l := &loader{}
	rt := NewReadThroughCache[key, entry, int](newCache(), l.load, false)

	_, _ = rt.Get(ctx, "k", 1, time.Minute)
	require.NoError(t, rt.Invalidate(ctx))
	v, err := rt.Get(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 20, v.N)
	require.Equal(t, 2, l.calls)
}

func TestReadThroughCache_InvalidateDuringLoadIsNotCached(t *testing.T) {
	ctx := context.Background()
	var rt *ReadThroughCache[key, entry, int]
	calls := 0
	rt = NewReadThroughCache[key, entry, int](newCache(), func(ctx context.Context, n int) (entry, error) {
		calls++
		if calls == 1 {
			// A write lands after this read but before the result is stored.
			require.NoError(t, rt.Invalidate(ctx))
			return entry{N: -1}, nil
		}
		return entry{N: n}, nil
	}, false)

	v, err := rt.Get(ctx, "k", 7, time.Minute)
	require.NoError(t, err)
	require.Equal(t, -1, v.N, "the caller still gets what was read")

	v, err = rt.Get(ctx, "k", 7, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 7, v.N, "stale load was not stored")
	require.Equal(t, 2, calls)
}
