package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEnqueueAssignsIdentity(t *testing.T) {
	q := openTest(t)

	a, err := q.Enqueue(Action{Entity: "submissions", Op: OpCreate})
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	require.False(t, a.EnqueuedAt.IsZero())
}

func TestFIFOOrder(t *testing.T) {
	q := openTest(t)

	first, err := q.Enqueue(Action{Entity: "submissions", Op: OpCreate})
	require.NoError(t, err)
	_, err = q.Enqueue(Action{Entity: "templates", Op: OpUpdate})
	require.NoError(t, err)

	got, receipt, err := q.Oldest()
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)

	require.NoError(t, q.Ack(receipt))

	next, _, err := q.Oldest()
	require.NoError(t, err)
	require.Equal(t, "templates", next.Entity)
}

func TestNackKeepsActionPendingWithAttempts(t *testing.T) {
	q := openTest(t)

	a, err := q.Enqueue(Action{Entity: "submissions", Op: OpCreate})
	require.NoError(t, err)

	got, receipt, err := q.Oldest()
	require.NoError(t, err)
	require.NoError(t, q.Nack(receipt, got))

	again, _, err := q.Oldest()
	require.NoError(t, err)
	require.Equal(t, a.ID, again.ID)
	require.Equal(t, 1, again.Attempts)

	n, err := q.Len()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestOldestEmpty(t *testing.T) {
	q := openTest(t)

	_, _, err := q.Oldest()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir)
	require.NoError(t, err)

	_, err = q.Enqueue(Action{Entity: "submissions", Op: OpCreate})
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q2, err := Open(dir)
	require.NoError(t, err)
	defer q2.Close()

	// Sequence continues past the recovered tail, preserving order.
	_, err = q2.Enqueue(Action{Entity: "templates", Op: OpDelete})
	require.NoError(t, err)

	acts, err := q2.Snapshot()
	require.NoError(t, err)
	require.Len(t, acts, 2)
	require.Equal(t, "submissions", acts[0].Entity)
	require.Equal(t, "templates", acts[1].Entity)
}

func TestFromRequest(t *testing.T) {
	a := FromRequest("POST", "/api/submissions/42", "/api/", []byte(`{"field":"x"}`))
	require.Equal(t, "submissions", a.Entity)
	require.Equal(t, OpCreate, a.Op)
	require.Equal(t, json.RawMessage(`{"field":"x"}`), a.Payload)

	a = FromRequest("DELETE", "/api/templates/7", "/api/", nil)
	require.Equal(t, "templates", a.Entity)
	require.Equal(t, OpDelete, a.Op)
	require.Nil(t, a.Payload)

	a = FromRequest("PUT", "/api/templates/7", "/api/", []byte("plain text"))
	require.Equal(t, OpUpdate, a.Op)
	require.Equal(t, json.RawMessage(`"plain text"`), a.Payload)
}
