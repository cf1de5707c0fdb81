// Package store is the durable, namespaced cache for intercepted responses.
//
// Entries live in LevelDB under per-namespace key prefixes, so whole
// namespaces ("generations") can be dropped in one pass. A small LRU hot
// tier sits in front of each namespace; LevelDB stays the source of truth.
package store

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotCacheable is returned when a caller tries to persist a non-2xx
// response.
var ErrNotCacheable = errors.New("store: response not cacheable")

const hotTierSize = 512

// Store owns the LevelDB handle shared by all namespaces.
type Store struct {
	db  *leveldb.DB
	log zerolog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64

	mu     sync.Mutex
	opened map[string]*Namespace
}

// Stats reports cumulative lookup hits and misses since open.
func (s *Store) Stats() (hits, misses uint64) {
	return s.hits.Load(), s.misses.Load()
}

// Open opens (or creates) the cache database at dir.
func Open(dir string, log zerolog.Logger) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	return &Store{
		db:     db,
		log:    log.With().Str("component", "store").Logger(),
		opened: map[string]*Namespace{},
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Namespace returns a scoped handle, registering the namespace name so it
// shows up in Names. Handles are shared per name.
func (s *Store) Namespace(name string) (*Namespace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ns, ok := s.opened[name]; ok {
		return ns, nil
	}
	if err := s.db.Put(nsKey(name), nil, nil); err != nil {
		return nil, fmt.Errorf("register namespace %q: %w", name, err)
	}
	hot, err := lru.New[string, Entry](hotTierSize)
	if err != nil {
		return nil, err
	}
	ns := &Namespace{store: s, name: name, hot: hot}
	s.opened[name] = ns
	return ns, nil
}

// Names lists every namespace known to the database, including ones left
// behind by previous generations.
func (s *Store) Names() ([]string, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte("n:")), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, string(it.Key()[2:]))
	}
	return names, it.Error()
}

// Drop deletes a namespace and every entry in it.
func (s *Store) Drop(name string) error {
	s.mu.Lock()
	if ns, ok := s.opened[name]; ok {
		ns.hot.Purge()
		delete(s.opened, name)
	}
	s.mu.Unlock()

	batch := new(leveldb.Batch)
	it := s.db.NewIterator(util.BytesPrefix(entryPrefix(name)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return fmt.Errorf("scan namespace %q: %w", name, err)
	}
	batch.Delete(nsKey(name))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("drop namespace %q: %w", name, err)
	}
	s.log.Info().Str("namespace", name).Msg("namespace dropped")
	return nil
}

// Collect drops every namespace not in keep. Run at worker activation;
// whole-generation removal is the only eviction policy.
func (s *Store) Collect(keep ...string) error {
	current := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		current[k] = struct{}{}
	}
	names, err := s.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, ok := current[name]; ok {
			continue
		}
		if err := s.Drop(name); err != nil {
			return err
		}
	}
	return nil
}

// Namespace is a scoped view over one generation of cached entries.
type Namespace struct {
	store *Store
	name  string
	hot   *lru.Cache[string, Entry]
}

func (n *Namespace) Name() string { return n.name }

// Put persists an entry under its fingerprint, overwriting any previous
// entry. Non-2xx responses are rejected.
func (n *Namespace) Put(e Entry) error {
	if !e.Success() {
		return ErrNotCacheable
	}
	e.Namespace = n.name
	b, err := encodeEntry(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := n.store.db.Put(n.key(e.Fingerprint), b, nil); err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	n.hot.Add(e.Fingerprint, e)
	return nil
}

// Match returns the stored entry for a fingerprint, if any.
func (n *Namespace) Match(fp string) (Entry, bool) {
	if e, ok := n.hot.Get(fp); ok {
		n.store.hits.Add(1)
		return e, true
	}
	b, err := n.store.db.Get(n.key(fp), nil)
	if err != nil {
		n.store.misses.Add(1)
		return Entry{}, false
	}
	e, err := decodeEntry(b)
	if err != nil {
		n.store.log.Warn().Str("fingerprint", fp).Err(err).Msg("corrupt cache entry")
		n.store.misses.Add(1)
		return Entry{}, false
	}
	n.hot.Add(fp, e)
	n.store.hits.Add(1)
	return e, true
}

// Delete evicts a single fingerprint.
func (n *Namespace) Delete(fp string) error {
	n.hot.Remove(fp)
	return n.store.db.Delete(n.key(fp), nil)
}

// Len counts the entries in the namespace.
func (n *Namespace) Len() (int, error) {
	it := n.store.db.NewIterator(util.BytesPrefix(entryPrefix(n.name)), nil)
	defer it.Release()
	count := 0
	for it.Next() {
		count++
	}
	return count, it.Error()
}

func (n *Namespace) key(fp string) []byte {
	return append(entryPrefix(n.name), fp...)
}

func nsKey(name string) []byte {
	return []byte("n:" + name)
}

func entryPrefix(name string) []byte {
	return []byte("e:" + name + ":")
}
