// Package names keeps the employee/manager name suggestion lists as small
// append-only sets scoped by restaurant and template, deduplicated on
// insert. These live apart from draft snapshots on purpose.
package names

import (
	"fmt"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Scope identifies one suggestion set.
type Scope struct {
	Restaurant string
	Template   string
}

func (sc Scope) prefix() []byte {
	return []byte(fmt.Sprintf("s:%s:%s:", sc.Restaurant, sc.Template))
}

// Store persists name sets in LevelDB; set membership is key existence.
type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) the name database at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open names db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Add inserts a name into the scope's set. Whitespace is trimmed; empty
// names are ignored. Reports whether the name was newly added.
func (s *Store) Add(sc Scope, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}
	key := append(sc.prefix(), name...)

	if ok, err := s.db.Has(key, nil); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if err := s.db.Put(key, nil, nil); err != nil {
		return false, fmt.Errorf("add name: %w", err)
	}
	return true, nil
}

// List returns the scope's names in LevelDB key order (lexicographic).
func (s *Store) List(sc Scope) ([]string, error) {
	prefix := sc.prefix()
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var out []string
	for it.Next() {
		out = append(out, string(it.Key()[len(prefix):]))
	}
	return out, it.Error()
}
