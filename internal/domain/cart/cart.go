// Package cart owns the authoritative in-memory cart for one buyer,
// gated by the live stock cache and persisted through a Store on every
// mutation.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aaravsagar/agriatoo-core/internal/domain/product"
)

var (
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrInsufficientStock = errors.New("not enough stock for requested quantity")
	ErrNotLoaded         = errors.New("cart has not been loaded yet")
)

// StockChecker is the read surface the cart needs from the stock cache.
type StockChecker interface {
	// IsInStock is fail-open for products the cache knows nothing about.
	IsInStock(productID string, requestedQty int) bool
	// GetStock returns the live stock value; ok is false when unknown.
	GetStock(productID string) (stock int, ok bool)
}

// StockWatcher starts live stock watches for a set of products. The
// cache implements it; the manager uses it to keep the cache warm for
// exactly the products sitting in this cart.
type StockWatcher interface {
	Subscribe(ctx context.Context, productIDs []string, onUpdate func(stocks map[string]int)) (func(), error)
}

// Manager holds one buyer's cart. All mutations persist through the
// store, and all mutations are rejected until Load has completed so a
// fresh process cannot overwrite a stored cart with an empty one.
// While the cart holds entries their products are kept watched, so the
// stock checks read live values instead of permanently falling open.
type Manager struct {
	store   Store
	stock   StockChecker
	watcher StockWatcher
	log     *slog.Logger

	mu         sync.Mutex
	loaded     bool
	entries    []Entry
	watchedIDs []string
	unwatch    func()
}

// NewManager builds a manager. watcher may be nil when no live stock
// source is wired; stock checks then see only what the checker already
// knows.
func NewManager(store Store, stock StockChecker, watcher StockWatcher, log *slog.Logger) *Manager {
	return &Manager{store: store, stock: stock, watcher: watcher, log: log}
}

// Load restores the persisted cart. It must be called exactly once before
// any mutation; loading again is a no-op.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return nil
	}
	entries, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	m.entries = entries
	m.loaded = true
	m.syncWatchLocked(ctx)
	return nil
}

// AddToCart inserts the product or merges into the existing entry.
//
// The availability check runs against the live stock cache; the quantity
// ceiling uses the caller's product snapshot. When the live check passes
// but the snapshot's stock is lower, the quantity silently clamps to the
// snapshot rather than failing. The check and the clamp deliberately read
// different sources.
func (m *Manager) AddToCart(ctx context.Context, p product.Snapshot, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity %d: %w", quantity, ErrInsufficientStock)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return ErrNotLoaded
	}

	if !m.stock.IsInStock(p.ID, quantity) {
		return fmt.Errorf("product %s: %w", p.ID, ErrOutOfStock)
	}

	if i := m.indexOf(p.ID); i >= 0 {
		total := m.entries[i].Quantity + quantity
		if !m.stock.IsInStock(p.ID, total) {
			return fmt.Errorf("product %s: requested %d: %w", p.ID, total, ErrInsufficientStock)
		}
		if q := clamp(total, p.Stock); q > 0 {
			m.entries[i].Quantity = q
		} else {
			// Driven to zero by a zero-stock snapshot: remove, never
			// retain at zero.
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
		}
	} else {
		q := clamp(quantity, p.Stock)
		if q <= 0 {
			// A snapshot with zero stock can pass the fail-open live
			// check; a zero-quantity entry must never exist.
			return fmt.Errorf("product %s: %w", p.ID, ErrOutOfStock)
		}
		m.entries = append(m.entries, Entry{
			ProductID: p.ID,
			Product:   p,
			Quantity:  q,
		})
	}

	return m.persistLocked(ctx)
}

// UpdateQuantity sets the entry's quantity. A non-positive quantity
// removes the entry. A failing stock check is a silent no-op: callers
// are expected to gate the action with IsInStock first.
func (m *Manager) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return ErrNotLoaded
	}

	if quantity <= 0 {
		return m.removeLocked(ctx, productID)
	}

	i := m.indexOf(productID)
	if i < 0 {
		return nil
	}
	if !m.stock.IsInStock(productID, quantity) {
		return nil
	}
	q := clamp(quantity, m.entries[i].Product.Stock)
	if q <= 0 {
		return m.removeLocked(ctx, productID)
	}
	m.entries[i].Quantity = q
	return m.persistLocked(ctx)
}

// RemoveFromCart deletes the entry if present.
func (m *Manager) RemoveFromCart(ctx context.Context, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return ErrNotLoaded
	}
	return m.removeLocked(ctx, productID)
}

func (m *Manager) removeLocked(ctx context.Context, productID string) error {
	i := m.indexOf(productID)
	if i < 0 {
		return nil
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	return m.persistLocked(ctx)
}

// Clear empties the cart and removes the persisted copy.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return ErrNotLoaded
	}

	m.entries = nil
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	m.syncWatchLocked(ctx)
	return nil
}

// Entries returns a copy of the cart with live stock overlaid onto each
// product snapshot where the cache knows a value.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	for i := range out {
		if live, ok := m.stock.GetStock(out[i].ProductID); ok {
			out[i].Product.Stock = live
		}
	}
	return out
}

// TotalAmount is recomputed on every read, never cached.
func (m *Manager) TotalAmount() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for _, e := range m.entries {
		total += e.Product.Price * float64(e.Quantity)
	}
	return total
}

// TotalItems is the sum of all entry quantities.
func (m *Manager) TotalItems() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int
	for _, e := range m.entries {
		total += e.Quantity
	}
	return total
}

func (m *Manager) indexOf(productID string) int {
	for i, e := range m.entries {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}

func (m *Manager) persistLocked(ctx context.Context) error {
	if err := m.store.Save(ctx, m.entries); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	m.syncWatchLocked(ctx)
	return nil
}

// syncWatchLocked re-subscribes the watcher to the ids currently in the
// cart. The new subscription is taken before the old one is released so
// products present in both keep their underlying watch alive instead of
// being torn down and re-acquired.
func (m *Manager) syncWatchLocked(ctx context.Context) {
	if m.watcher == nil {
		return
	}

	ids := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		ids = append(ids, e.ProductID)
	}
	if slices.Equal(ids, m.watchedIDs) {
		return
	}

	prev := m.unwatch
	m.unwatch = nil
	m.watchedIDs = nil
	if len(ids) > 0 {
		cancel, err := m.watcher.Subscribe(ctx, ids, func(map[string]int) {})
		if err != nil {
			m.log.Error("subscribe cart stock", "error", err)
		} else {
			m.unwatch = cancel
			m.watchedIDs = ids
		}
	}
	if prev != nil {
		prev()
	}
}

func clamp(quantity, ceiling int) int {
	if quantity > ceiling {
		return ceiling
	}
	return quantity
}
