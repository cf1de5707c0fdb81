package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMonitorFiresTriggersOnReconnect(t *testing.T) {
	var up atomic.Bool
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			// Simulate being unreachable with a hijacked drop.
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer probe.Close()

	m := NewMonitor(probe.URL, 0, nil, zerolog.Nop())

	var fired atomic.Int32
	m.Register("sync-submissions", func(context.Context) error {
		fired.Add(1)
		return nil
	})

	ctx := context.Background()

	// Offline tick: nothing fires.
	m.tick(ctx)
	require.False(t, m.Online())
	require.Zero(t, fired.Load())

	// Back online: the registered trigger fires once.
	up.Store(true)
	m.tick(ctx)
	require.True(t, m.Online())
	require.Equal(t, int32(1), fired.Load())

	// Still online: no re-fire without a failure to retry.
	m.tick(ctx)
	require.Equal(t, int32(1), fired.Load())
}

func TestMonitorRetriesFailedTrigger(t *testing.T) {
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer probe.Close()

	m := NewMonitor(probe.URL, 0, nil, zerolog.Nop())

	var calls atomic.Int32
	m.Register("sync-submissions", func(context.Context) error {
		if calls.Add(1) == 1 {
			return context.DeadlineExceeded
		}
		return nil
	})

	ctx := context.Background()
	m.tick(ctx) // transition to online; trigger fails
	require.Equal(t, int32(1), calls.Load())

	m.tick(ctx) // retried next tick
	require.Equal(t, int32(2), calls.Load())

	m.tick(ctx) // succeeded; no further retry
	require.Equal(t, int32(2), calls.Load())
}

func TestMonitorFireByTag(t *testing.T) {
	m := NewMonitor("http://127.0.0.1:0/healthz", 0, nil, zerolog.Nop())

	var fired atomic.Int32
	m.Register("sync-submissions", func(context.Context) error {
		fired.Add(1)
		return nil
	})

	ok, err := m.Fire(context.Background(), "sync-submissions")
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, int32(1), fired.Load())

	ok, err = m.Fire(context.Background(), "unknown")
	require.False(t, ok)
	require.NoError(t, err)
}
