package draft

import (
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
)

// Key derives the persisted draft key: draft_<templateId>_<isoDate>.
// There is deliberately no session or tab discriminator; a template/date
// pair holds a single draft.
func Key(templateID string, date time.Time) string {
	return fmt.Sprintf("draft_%s_%s", templateID, date.Format("2006-01-02"))
}

// Store persists draft snapshots across sessions.
type Store struct {
	db *leveldb.DB
}

// OpenStore opens (or creates) the draft database at dir.
func OpenStore(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open draft db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Put overwrites the snapshot under key.
func (s *Store) Put(key string, blob []byte) error {
	return s.db.Put([]byte(key), blob, nil)
}

// Get returns the snapshot under key, if any.
func (s *Store) Get(key string) ([]byte, bool, error) {
	b, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Delete removes the snapshot under key.
func (s *Store) Delete(key string) error {
	return s.db.Delete([]byte(key), nil)
}
