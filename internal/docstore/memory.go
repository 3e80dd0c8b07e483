package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-memory document store with native watch support. It is
// the default backend for local runs and the backend every test uses.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]map[string]json.RawMessage // collection -> id -> doc
	watchers map[string]map[int]func(json.RawMessage)
	nextTok  int
}

func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string]map[string]json.RawMessage),
		watchers: make(map[string]map[int]func(json.RawMessage)),
	}
}

func watchKey(collection, id string) string {
	return collection + "/" + id
}

func (m *Memory) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return doc, nil
}

func (m *Memory) GetAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]json.RawMessage, 0, len(m.data[collection]))
	for _, doc := range m.data[collection] {
		docs = append(docs, doc)
	}
	return docs, nil
}

func (m *Memory) Add(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	m.mu.Lock()
	if _, ok := m.data[collection][id]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, id, ErrExists)
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]json.RawMessage)
	}
	m.data[collection][id] = raw
	m.mu.Unlock()

	m.notify(collection, id, raw)
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	merged, err := m.mergeLocked(collection, id, fields)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.data[collection][id] = merged
	m.mu.Unlock()

	m.notify(collection, id, merged)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data[collection] != nil {
		delete(m.data[collection], id)
	}
	return nil
}

// ApplyBatch merges every write under one lock. All targets are validated
// before anything is touched, so a missing document leaves the store
// unchanged.
func (m *Memory) ApplyBatch(ctx context.Context, writes []Write) error {
	m.mu.Lock()

	merged := make([]json.RawMessage, len(writes))
	for i, w := range writes {
		doc, err := m.mergeLocked(w.Collection, w.ID, w.Fields)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("batch write %d: %w", i, err)
		}
		merged[i] = doc
	}
	for i, w := range writes {
		m.data[w.Collection][w.ID] = merged[i]
	}
	m.mu.Unlock()

	for i, w := range writes {
		m.notify(w.Collection, w.ID, merged[i])
	}
	return nil
}

func (m *Memory) mergeLocked(collection, id string, fields map[string]any) (json.RawMessage, error) {
	raw, ok := m.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal %s/%s: %w", collection, id, err)
	}
	for k, v := range fields {
		doc[k] = v
	}
	return json.Marshal(doc)
}

func (m *Memory) Watch(ctx context.Context, collection, id string, fn func(doc json.RawMessage)) (func(), error) {
	key := watchKey(collection, id)

	m.mu.Lock()
	if m.watchers[key] == nil {
		m.watchers[key] = make(map[int]func(json.RawMessage))
	}
	tok := m.nextTok
	m.nextTok++
	m.watchers[key][tok] = fn

	// Deliver the current value immediately so cold subscribers converge.
	current, ok := m.data[collection][id]
	m.mu.Unlock()

	if ok {
		fn(current)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers[key], tok)
			m.mu.Unlock()
		})
	}
	return cancel, nil
}

func (m *Memory) notify(collection, id string, doc json.RawMessage) {
	key := watchKey(collection, id)

	m.mu.RLock()
	fns := make([]func(json.RawMessage), 0, len(m.watchers[key]))
	for _, fn := range m.watchers[key] {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(doc)
	}
}
