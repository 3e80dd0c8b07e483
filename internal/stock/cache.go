package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Source delivers live stock updates for single products. Implemented by
// the Kafka stock feed and by docstore-native watches.
type Source interface {
	// Watch registers fn for every stock change of the product. The
	// returned cancel func is idempotent.
	Watch(ctx context.Context, productID string, fn func(stock int)) (cancel func(), err error)
}

// Cache is a best-effort local mirror of authoritative per-product stock.
// Underlying source watches are shared between subscribers and reference
// counted, so overlapping subscriptions from independent callers neither
// duplicate watches nor tear one down while another caller still needs it.
//
// A product with no delivered data yet is "unknown", which is distinct
// from zero stock. Whether unknown counts as available is an explicit
// configuration decision, not an accident; see IsInStock.
type Cache struct {
	source            Source
	log               *slog.Logger
	assumeWhenUnknown bool

	mu          sync.RWMutex
	stocks      map[string]int
	watches     map[string]*watchRef
	subscribers map[int]*subscriber
	nextSubID   int
}

type watchRef struct {
	count  int
	cancel func()
}

type subscriber struct {
	productIDs []string
	onUpdate   func(map[string]int)
}

// NewCache builds a cache over source. assumeInStockWhenUnknown controls
// the fail-open behavior for cache-cold products.
func NewCache(source Source, log *slog.Logger, assumeInStockWhenUnknown bool) *Cache {
	return &Cache{
		source:            source,
		log:               log,
		assumeWhenUnknown: assumeInStockWhenUnknown,
		stocks:            make(map[string]int),
		watches:           make(map[string]*watchRef),
		subscribers:       make(map[int]*subscriber),
	}
}

// Subscribe registers onUpdate for every product in productIDs. Each
// inbound change invokes onUpdate with a copy of the entire accumulated
// stock mapping, never a delta, so renderers always see a consistent
// snapshot. The returned unsubscribe func tears down this caller's
// registrations; calling it twice is a no-op.
func (c *Cache) Subscribe(ctx context.Context, productIDs []string, onUpdate func(stocks map[string]int)) (func(), error) {
	c.mu.Lock()
	subID := c.nextSubID
	c.nextSubID++
	c.subscribers[subID] = &subscriber{productIDs: productIDs, onUpdate: onUpdate}

	var acquired []string
	for _, id := range productIDs {
		if ref, ok := c.watches[id]; ok {
			ref.count++
			continue
		}
		acquired = append(acquired, id)
		c.watches[id] = &watchRef{count: 1}
	}
	c.mu.Unlock()

	for _, id := range acquired {
		id := id
		cancel, err := c.source.Watch(ctx, id, func(stock int) {
			c.set(id, stock)
		})
		if err != nil {
			// Subscription errors are logged and otherwise invisible;
			// the product simply stays unknown (fail-open).
			c.log.Error("stock watch failed",
				slog.String("product_id", id), slog.Any("error", err))
			c.mu.Lock()
			delete(c.watches, id)
			c.mu.Unlock()
			continue
		}
		c.mu.Lock()
		if ref, ok := c.watches[id]; ok {
			ref.cancel = cancel
		} else {
			// Everybody unsubscribed while the watch was being set up.
			cancel()
		}
		c.mu.Unlock()
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { c.unsubscribe(subID) })
	}
	return unsubscribe, nil
}

func (c *Cache) unsubscribe(subID int) {
	c.mu.Lock()
	sub, ok := c.subscribers[subID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subscribers, subID)

	var cancels []func()
	for _, id := range sub.productIDs {
		ref, ok := c.watches[id]
		if !ok {
			continue
		}
		ref.count--
		if ref.count <= 0 {
			if ref.cancel != nil {
				cancels = append(cancels, ref.cancel)
			}
			delete(c.watches, id)
		}
	}
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// set records a delivered stock value and fans the full snapshot out to
// every subscriber watching the product.
func (c *Cache) set(productID string, stock int) {
	c.mu.Lock()
	c.stocks[productID] = stock

	snapshot := make(map[string]int, len(c.stocks))
	for id, s := range c.stocks {
		snapshot[id] = s
	}

	var notify []func(map[string]int)
	for _, sub := range c.subscribers {
		for _, id := range sub.productIDs {
			if id == productID {
				notify = append(notify, sub.onUpdate)
				break
			}
		}
	}
	c.mu.Unlock()

	for _, fn := range notify {
		fn(snapshot)
	}
}

// GetStock returns the last known stock for the product. ok is false when
// no subscription has delivered data for it yet.
func (c *Cache) GetStock(productID string) (stock int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stock, ok = c.stocks[productID]
	return stock, ok
}

// IsInStock reports whether requestedQty of the product can be satisfied
// per the last known stock. Unknown products are treated as available when
// the cache was configured with assumeInStockWhenUnknown, so cache-cold
// products do not block purchases.
func (c *Cache) IsInStock(productID string, requestedQty int) bool {
	stock, ok := c.GetStock(productID)
	if !ok {
		return c.assumeWhenUnknown
	}
	return stock >= requestedQty
}

// Snapshot returns a copy of every known stock value.
func (c *Cache) Snapshot() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int, len(c.stocks))
	for id, s := range c.stocks {
		out[id] = s
	}
	return out
}

// StoreSource adapts a docstore watcher into a stock Source by extracting
// the stock field from product documents.
type StoreSource struct {
	watcher    DocWatcher
	collection string
}

// DocWatcher is the subset of the docstore needed by StoreSource.
type DocWatcher interface {
	Watch(ctx context.Context, collection, id string, fn func(doc json.RawMessage)) (func(), error)
}

func NewStoreSource(watcher DocWatcher, collection string) *StoreSource {
	return &StoreSource{watcher: watcher, collection: collection}
}

func (s *StoreSource) Watch(ctx context.Context, productID string, fn func(stock int)) (func(), error) {
	cancel, err := s.watcher.Watch(ctx, s.collection, productID, func(doc json.RawMessage) {
		var d struct {
			Stock int `json:"stock"`
		}
		if err := json.Unmarshal(doc, &d); err != nil {
			return
		}
		fn(d.Stock)
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s/%s: %w", s.collection, productID, err)
	}
	return cancel, nil
}
