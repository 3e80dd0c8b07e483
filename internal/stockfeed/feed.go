package stockfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Feed is the consuming side of the stock feed: one long-lived Kafka
// reader fanning out per-product updates to registered watchers. It
// implements stock.Source, so a Cache can subscribe through it.
type Feed struct {
	reader *kafka.Reader
	log    *slog.Logger

	mu       sync.RWMutex
	watchers map[string]map[int]func(int)
	nextTok  int
}

func NewFeed(brokers []string, topic, groupID string, log *slog.Logger) *Feed {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Feed{
		reader:   reader,
		log:      log,
		watchers: make(map[string]map[int]func(int)),
	}
}

// Run consumes the feed until ctx is cancelled. Undecodable messages are
// logged and skipped.
func (f *Feed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := f.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f.log.Error("error reading stock feed", slog.Any("error", err))
				continue
			}

			var event StockChanged
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				f.log.Warn("skipping undecodable stock feed message", slog.Any("error", err))
				continue
			}
			f.dispatch(event)
		}
	}
}

func (f *Feed) dispatch(event StockChanged) {
	f.mu.RLock()
	fns := make([]func(int), 0, len(f.watchers[event.ProductID]))
	for _, fn := range f.watchers[event.ProductID] {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(event.Stock)
	}
}

// Watch implements stock.Source.
func (f *Feed) Watch(ctx context.Context, productID string, fn func(stock int)) (func(), error) {
	f.mu.Lock()
	if f.watchers[productID] == nil {
		f.watchers[productID] = make(map[int]func(int))
	}
	tok := f.nextTok
	f.nextTok++
	f.watchers[productID][tok] = fn
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.watchers[productID], tok)
			f.mu.Unlock()
		})
	}
	return cancel, nil
}

func (f *Feed) Close() error {
	return f.reader.Close()
}
