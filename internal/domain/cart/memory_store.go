package cart

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps the serialized cart in memory. It round-trips through
// the same JSON encoding as the Redis store, so tests exercise the real
// persistence format including the invalid-entry filtering on load.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Seed replaces the raw stored payload. Tests use it to simulate corrupt
// or partially invalid data written by an earlier version.
func (s *MemoryStore) Seed(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

func (s *MemoryStore) Load(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	data := s.data
	s.mu.Unlock()

	if data == nil {
		return nil, nil
	}
	entries, err := decodeEntries(data)
	if err != nil {
		// Same fail-safe as the durable store: corrupt payloads reset
		// to an empty cart.
		s.Seed(nil)
		return nil, nil
	}
	return entries, nil
}

func (s *MemoryStore) Save(ctx context.Context, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	s.Seed(data)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.Seed(nil)
	return nil
}
