package store

import (
	"bytes"
	"encoding/gob"
	"net/http"
	"time"
)

// Entry is one cached response.
type Entry struct {
	Fingerprint string
	Status      int
	Header      http.Header
	Body        []byte
	StoredAt    time.Time
	Namespace   string
	Strategy    string
}

// Success reports whether the entry holds a storable response. Only
// 2xx responses are ever persisted.
func (e Entry) Success() bool {
	return e.Status >= 200 && e.Status < 300
}

func encodeEntry(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(b []byte) (Entry, error) {
	var e Entry
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&e)
	return e, err
}

func init() {
	// Ensure http.Header is registered for gob.
	gob.Register(http.Header{})
}
