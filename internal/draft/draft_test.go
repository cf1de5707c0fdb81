package draft

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// checklistForm is a minimal data-entry surface for tests.
type checklistForm struct {
	Manager string            `json:"manager"`
	Checks  map[string]string `json:"checks"`
}

func (f *checklistForm) dirty() bool {
	return f.Manager != "" || len(f.Checks) > 0
}

func (f *checklistForm) reset() {
	f.Manager = ""
	f.Checks = nil
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newFormSession binds a test form. Tests that never want a timer tick
// pass a long interval so assertions cannot race the autosave goroutine.
func newFormSession(t *testing.T, s *Store, form *checklistForm, notices *[]Notice, interval time.Duration) *Session {
	t.Helper()
	cfg := Config{
		TemplateID: "opening-checklist",
		Date:       time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		Interval:   interval,
		Dirty:      form.dirty,
		Snapshot: func() (json.RawMessage, error) {
			return json.Marshal(form)
		},
		Restore: func(raw json.RawMessage) error {
			return json.Unmarshal(raw, form)
		},
		Reset: form.reset,
	}
	if notices != nil {
		cfg.Notify = func(n Notice) { *notices = append(*notices, n) }
	}
	return NewSession(s, cfg, zerolog.Nop())
}

func TestKeyFormat(t *testing.T) {
	d := time.Date(2026, 8, 28, 15, 4, 5, 0, time.UTC)
	require.Equal(t, "draft_opening-checklist_2026-08-28", Key("opening-checklist", d))
}

func TestDraftRoundTrip(t *testing.T) {
	s := openTestStore(t)

	form := &checklistForm{Manager: "Dana", Checks: map[string]string{"walk-in temp": "38F"}}
	sess := newFormSession(t, s, form, nil, time.Hour)
	require.NoError(t, sess.SaveNow())
	sess.Stop()

	// A fresh instance on the same (template, date) reproduces the state.
	var notices []Notice
	restored := &checklistForm{}
	sess2 := newFormSession(t, s, restored, &notices, time.Hour)
	sess2.Start()
	defer sess2.Stop()

	require.Equal(t, form, restored)
	require.Len(t, notices, 1)
	require.Equal(t, NoticeDraftLoaded, notices[0].Kind)
	require.False(t, notices[0].SavedAt.IsZero())
}

func TestAutosaveTickPersistsDirtyForm(t *testing.T) {
	s := openTestStore(t)

	var notices []Notice
	// One non-empty field, then left untouched past the tick interval.
	form := &checklistForm{Manager: "Dana"}
	sess := newFormSession(t, s, form, &notices, 10*time.Millisecond)
	sess.Start()
	defer sess.Stop()

	require.Eventually(t, func() bool {
		_, ok, err := s.Get(sess.Key())
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)

	blob, ok, err := s.Get(sess.Key())
	require.NoError(t, err)
	require.True(t, ok)
	var env struct {
		Timestamp time.Time       `json:"timestamp"`
		State     json.RawMessage `json:"state"`
	}
	require.NoError(t, json.Unmarshal(blob, &env))
	require.False(t, env.Timestamp.IsZero())
}

func TestAutosaveSkipsCleanForm(t *testing.T) {
	s := openTestStore(t)

	form := &checklistForm{}
	sess := newFormSession(t, s, form, nil, time.Hour)
	sess.Start()
	time.Sleep(50 * time.Millisecond)
	sess.Stop()

	_, ok, err := s.Get(sess.Key())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSubmitDeletesSnapshotAndResets(t *testing.T) {
	s := openTestStore(t)

	form := &checklistForm{Manager: "Dana"}
	sess := newFormSession(t, s, form, nil, time.Hour)
	require.NoError(t, sess.SaveNow())

	require.NoError(t, sess.Submit())
	sess.Stop()

	require.Empty(t, form.Manager)
	_, ok, err := s.Get(sess.Key())
	require.NoError(t, err)
	require.False(t, ok)

	// A subsequent mount starts from empty state.
	fresh := &checklistForm{}
	sess2 := newFormSession(t, s, fresh, nil, time.Hour)
	sess2.Start()
	sess2.Stop()
	require.Empty(t, fresh.Manager)
}

func TestDiscardRequiresConfirmation(t *testing.T) {
	s := openTestStore(t)

	form := &checklistForm{Manager: "Dana"}
	sess := newFormSession(t, s, form, nil, time.Hour)
	sess.cfg.Confirm = func(string) bool { return false }
	require.NoError(t, sess.SaveNow())

	ok, err := sess.Discard()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "Dana", form.Manager)

	sess.cfg.Confirm = func(string) bool { return true }
	ok, err = sess.Discard()
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, form.Manager)

	_, found, err := s.Get(sess.Key())
	require.NoError(t, err)
	require.False(t, found)
}

func TestLeaveFlows(t *testing.T) {
	s := openTestStore(t)

	// Clean form leaves without prompting.
	clean := &checklistForm{}
	sess := newFormSession(t, s, clean, nil, time.Hour)
	left, err := sess.Leave(func() LeaveDecision {
		t.Fatal("clean form must not prompt")
		return LeaveCancel
	})
	require.NoError(t, err)
	require.True(t, left)

	// Dirty + cancel stays.
	dirty := &checklistForm{Manager: "Dana"}
	sess = newFormSession(t, s, dirty, nil, time.Hour)
	left, err = sess.Leave(func() LeaveDecision { return LeaveCancel })
	require.NoError(t, err)
	require.False(t, left)

	// Dirty + save-and-exit forces an immediate autosave.
	left, err = sess.Leave(func() LeaveDecision { return LeaveSave })
	require.NoError(t, err)
	require.True(t, left)
	_, ok, err := s.Get(sess.Key())
	require.NoError(t, err)
	require.True(t, ok)

	// Dirty + discard removes the snapshot.
	sess2 := newFormSession(t, s, &checklistForm{Manager: "Lee"}, nil, time.Hour)
	left, err = sess2.Leave(func() LeaveDecision { return LeaveDiscard })
	require.NoError(t, err)
	require.True(t, left)
	_, ok, err = s.Get(sess2.Key())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCorruptSnapshotIgnored(t *testing.T) {
	s := openTestStore(t)

	form := &checklistForm{}
	sess := newFormSession(t, s, form, nil, time.Hour)
	require.NoError(t, s.Put(sess.Key(), []byte("{not json")))

	var notices []Notice
	sess.cfg.Notify = func(n Notice) { notices = append(notices, n) }
	sess.Start()
	sess.Stop()

	// The form mounts empty rather than failing.
	require.Empty(t, form.Manager)
	require.Empty(t, notices)
}
