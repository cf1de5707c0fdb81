// Package draft is the generic autosave mechanism every data-entry form
// uses: a timer-driven snapshot of in-progress, unsubmitted work, restored
// on the next visit and deleted on successful submission.
//
// Each form supplies its own dirtiness predicate and serializer pair; the
// timer, key derivation, conflict policy and exit flow live here once.
package draft

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is the autosave tick.
const DefaultInterval = 30 * time.Second

// Notice kinds surfaced to the form's transient banner.
type NoticeKind int

const (
	NoticeDraftLoaded NoticeKind = iota
	NoticeAutoSaved
)

// Notice is a positive, self-clearing message ("draft loaded", "auto-saved");
// offline states are never surfaced as alarming errors.
type Notice struct {
	Kind    NoticeKind
	Text    string
	SavedAt time.Time
}

// LeaveDecision is the user's choice when navigating away dirty.
type LeaveDecision int

const (
	LeaveCancel LeaveDecision = iota
	LeaveDiscard
	LeaveSave
)

// envelope is the persisted JSON blob: form-specific fields plus timestamp.
type envelope struct {
	Timestamp time.Time       `json:"timestamp"`
	State     json.RawMessage `json:"state"`
}

// Config binds one form instance to the autosave machinery.
type Config struct {
	TemplateID string
	Date       time.Time

	// Dirty reports whether any field holds a non-empty value.
	Dirty func() bool
	// Snapshot serializes the full form state.
	Snapshot func() (json.RawMessage, error)
	// Restore populates form state from a snapshot.
	Restore func(json.RawMessage) error
	// Reset returns the form to its initial shape.
	Reset func()
	// Notify surfaces a transient banner. Optional.
	Notify func(Notice)
	// Confirm asks the user before destructive actions. Defaults to
	// always-yes when nil.
	Confirm func(prompt string) bool

	// Interval overrides the autosave tick, mainly for tests.
	Interval time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Session drives autosave for one mounted form instance. Sessions sharing a
// (template, date) key race on load and overwrite with no conflict
// detection; last local write wins.
type Session struct {
	store *Store
	cfg   Config
	key   string
	log   zerolog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	stopped sync.Once
}

// NewSession binds a form to its draft key.
func NewSession(store *Store, cfg Config, log zerolog.Logger) *Session {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Confirm == nil {
		cfg.Confirm = func(string) bool { return true }
	}
	key := Key(cfg.TemplateID, cfg.Date)
	return &Session{
		store: store,
		cfg:   cfg,
		key:   key,
		log:   log.With().Str("component", "draft").Str("key", key).Logger(),
		stop:  make(chan struct{}),
	}
}

// Key returns the session's draft key.
func (s *Session) Key() string { return s.key }

// Start loads any existing snapshot into the form and begins the autosave
// timer. A corrupt snapshot is logged and ignored; the form mounts empty.
func (s *Session) Start() {
	blob, ok, err := s.store.Get(s.key)
	if err != nil {
		s.log.Warn().Err(err).Msg("draft load failed")
	}
	if ok && err == nil {
		var env envelope
		if err := json.Unmarshal(blob, &env); err != nil {
			s.log.Warn().Err(err).Msg("corrupt draft snapshot ignored")
		} else if err := s.cfg.Restore(env.State); err != nil {
			s.log.Warn().Err(err).Msg("draft restore failed, starting empty")
		} else {
			s.notify(Notice{
				Kind:    NoticeDraftLoaded,
				Text:    fmt.Sprintf("Loaded draft from %s", env.Timestamp.Local().Format("Jan 2 15:04")),
				SavedAt: env.Timestamp,
			})
		}
	}

	go s.loop()
}

func (s *Session) loop() {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if s.cfg.Dirty() {
				if err := s.SaveNow(); err != nil {
					s.log.Warn().Err(err).Msg("autosave failed")
				}
			}
		}
	}
}

// SaveNow serializes the form and overwrites the snapshot immediately.
func (s *Session) SaveNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.cfg.Snapshot()
	if err != nil {
		return fmt.Errorf("serialize form state: %w", err)
	}
	now := s.cfg.Now().UTC()
	blob, err := json.Marshal(envelope{Timestamp: now, State: state})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.store.Put(s.key, blob); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	s.notify(Notice{Kind: NoticeAutoSaved, Text: "Auto-saved", SavedAt: now})
	return nil
}

// Submit deletes the snapshot after a successful submission and resets the
// form so a new entry can begin without navigating away.
func (s *Session) Submit() error {
	if err := s.store.Delete(s.key); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	s.cfg.Reset()
	return nil
}

// Discard asks for confirmation, then deletes the snapshot and resets the
// form. Returns false when the user declines.
func (s *Session) Discard() (bool, error) {
	if !s.cfg.Confirm("Discard this draft and start over?") {
		return false, nil
	}
	if err := s.store.Delete(s.key); err != nil {
		return false, fmt.Errorf("delete snapshot: %w", err)
	}
	s.cfg.Reset()
	return true, nil
}

// Leave handles navigating away. With unsaved dirty state the caller's
// decide func chooses: discard, save-and-exit (forces an immediate
// autosave), or cancel. Returns whether the navigation proceeds.
func (s *Session) Leave(decide func() LeaveDecision) (bool, error) {
	if !s.cfg.Dirty() {
		s.Stop()
		return true, nil
	}
	switch decide() {
	case LeaveDiscard:
		if err := s.store.Delete(s.key); err != nil {
			return false, fmt.Errorf("delete snapshot: %w", err)
		}
		s.Stop()
		return true, nil
	case LeaveSave:
		if err := s.SaveNow(); err != nil {
			return false, err
		}
		s.Stop()
		return true, nil
	default:
		return false, nil
	}
}

// Stop clears the autosave timer. Safe to call more than once; the
// snapshot is not deleted on navigation away.
func (s *Session) Stop() {
	s.stopped.Do(func() { close(s.stop) })
}

func (s *Session) notify(n Notice) {
	if s.cfg.Notify != nil {
		s.cfg.Notify(n)
	}
}
