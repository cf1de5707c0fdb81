package syncer

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TriggerFunc runs when a registered reconnect trigger fires.
type TriggerFunc func(ctx context.Context) error

// Monitor probes connectivity and fires registered triggers on the
// offline-to-online transition. A trigger that fails is retried on the
// next probe tick while the connection holds, which stands in for the
// platform's background-retry scheduling.
type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client
	log      zerolog.Logger

	mu       sync.Mutex
	triggers map[string]TriggerFunc
	retry    map[string]struct{}
	online   bool
}

func NewMonitor(probeURL string, interval time.Duration, client *http.Client, log zerolog.Logger) *Monitor {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		probeURL: probeURL,
		interval: interval,
		client:   client,
		log:      log.With().Str("component", "monitor").Logger(),
		triggers: map[string]TriggerFunc{},
		retry:    map[string]struct{}{},
	}
}

// Register names a trigger fired on reconnect, e.g. "sync-submissions".
func (m *Monitor) Register(tag string, fn TriggerFunc) {
	m.mu.Lock()
	m.triggers[tag] = fn
	m.mu.Unlock()
}

// Fire invokes one trigger by tag, regardless of connectivity state.
func (m *Monitor) Fire(ctx context.Context, tag string) (bool, error) {
	m.mu.Lock()
	fn, ok := m.triggers[tag]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, fn(ctx)
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Run probes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	online := m.probe(ctx)

	m.mu.Lock()
	was := m.online
	m.online = online
	var due []string
	if online {
		if !was {
			// Reconnect: every trigger fires.
			for tag := range m.triggers {
				due = append(due, tag)
			}
		} else {
			for tag := range m.retry {
				due = append(due, tag)
			}
		}
		m.retry = map[string]struct{}{}
	}
	m.mu.Unlock()

	if online && !was {
		m.log.Info().Msg("connectivity restored")
	}
	if !online && was {
		m.log.Info().Msg("connectivity lost")
	}

	for _, tag := range due {
		m.mu.Lock()
		fn := m.triggers[tag]
		m.mu.Unlock()
		if fn == nil {
			continue
		}
		if err := fn(ctx); err != nil {
			m.log.Warn().Str("trigger", tag).Err(err).Msg("trigger failed, will retry next tick")
			m.mu.Lock()
			m.retry[tag] = struct{}{}
			m.mu.Unlock()
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
