// Package queue is the durable log of mutations that could not reach the
// network. Actions are replayed strictly in enqueue order and removed only
// after a successful replay, giving at-least-once delivery.
package queue

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrEmpty is returned by Oldest when no action is pending.
var ErrEmpty = errors.New("queue: empty")

// Op is the kind of mutation an action carries.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Action is one queued mutation.
type Action struct {
	ID         string          `json:"id"`
	Entity     string          `json:"entity"`
	Op         Op              `json:"op"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
}

// Queue is a LevelDB-backed FIFO. Sequence numbers are big-endian key
// suffixes so LevelDB's key order is enqueue order.
type Queue struct {
	db *leveldb.DB

	mu   sync.Mutex
	next uint64
}

// Open opens (or creates) the queue database at dir and recovers the
// sequence counter from the last stored key.
func Open(dir string) (*Queue, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	q := &Queue{db: db}

	it := db.NewIterator(util.BytesPrefix([]byte("a:")), nil)
	for it.Next() {
		q.next = seqFromKey(it.Key()) + 1
	}
	it.Release()
	if err := it.Error(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recover queue sequence: %w", err)
	}
	return q, nil
}

func (q *Queue) Close() error { return q.db.Close() }

// Enqueue appends an action. A missing ID is filled in; EnqueuedAt is set
// to now if zero.
func (q *Queue) Enqueue(a Action) (Action, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.EnqueuedAt.IsZero() {
		a.EnqueuedAt = time.Now().UTC()
	}
	b, err := json.Marshal(a)
	if err != nil {
		return Action{}, fmt.Errorf("marshal action: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.db.Put(seqKey(q.next), b, nil); err != nil {
		return Action{}, fmt.Errorf("enqueue: %w", err)
	}
	q.next++
	return a, nil
}

// Oldest returns the front of the queue and an opaque receipt used to Ack
// or Nack it.
func (q *Queue) Oldest() (Action, Receipt, error) {
	it := q.db.NewIterator(util.BytesPrefix([]byte("a:")), nil)
	defer it.Release()

	if !it.Next() {
		if err := it.Error(); err != nil {
			return Action{}, Receipt{}, err
		}
		return Action{}, Receipt{}, ErrEmpty
	}
	var a Action
	if err := json.Unmarshal(it.Value(), &a); err != nil {
		return Action{}, Receipt{}, fmt.Errorf("decode action: %w", err)
	}
	return a, Receipt{key: append([]byte(nil), it.Key()...)}, nil
}

// Ack removes a committed action.
func (q *Queue) Ack(r Receipt) error {
	return q.db.Delete(r.key, nil)
}

// Nack keeps the action pending and increments its attempt count.
func (q *Queue) Nack(r Receipt, a Action) error {
	a.Attempts++
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	return q.db.Put(r.key, b, nil)
}

// Len counts pending actions.
func (q *Queue) Len() (int, error) {
	it := q.db.NewIterator(util.BytesPrefix([]byte("a:")), nil)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n, it.Error()
}

// Snapshot returns all pending actions in enqueue order.
func (q *Queue) Snapshot() ([]Action, error) {
	it := q.db.NewIterator(util.BytesPrefix([]byte("a:")), nil)
	defer it.Release()

	var out []Action
	for it.Next() {
		var a Action
		if err := json.Unmarshal(it.Value(), &a); err != nil {
			return nil, fmt.Errorf("decode action: %w", err)
		}
		out = append(out, a)
	}
	return out, it.Error()
}

// Receipt identifies a dequeued action's position.
type Receipt struct {
	key []byte
}

func seqKey(n uint64) []byte {
	key := make([]byte, 2+8)
	copy(key, "a:")
	binary.BigEndian.PutUint64(key[2:], n)
	return key
}

func seqFromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[2:])
}

// FromRequest derives an action from a failed data-API mutation. The entity
// kind is the first path segment after the API prefix; the operation follows
// the HTTP method.
func FromRequest(method, path, apiPrefix string, payload []byte) Action {
	entity := strings.TrimPrefix(path, apiPrefix)
	entity = strings.Trim(entity, "/")
	if i := strings.IndexByte(entity, '/'); i >= 0 {
		entity = entity[:i]
	}

	op := OpUpdate
	switch method {
	case "POST":
		op = OpCreate
	case "DELETE":
		op = OpDelete
	}

	var raw json.RawMessage
	switch {
	case len(payload) == 0:
	case json.Valid(payload):
		raw = json.RawMessage(payload)
	default:
		// Non-JSON bodies are carried as a quoted string.
		raw, _ = json.Marshal(string(payload))
	}

	return Action{
		Entity:  entity,
		Op:      op,
		Payload: raw,
	}
}
