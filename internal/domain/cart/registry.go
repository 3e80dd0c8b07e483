package cart

import (
	"context"
	"log/slog"
	"sync"
)

// StoreFactory builds the persistent store for one cart owner.
type StoreFactory func(ownerID string) Store

// Registry hands out one loaded Manager per owner. The first request for
// an owner loads their persisted cart; subsequent requests return the
// same manager.
type Registry struct {
	factory StoreFactory
	stock   StockChecker
	watcher StockWatcher
	log     *slog.Logger

	mu    sync.Mutex
	carts map[string]*Manager
}

func NewRegistry(factory StoreFactory, stock StockChecker, watcher StockWatcher, log *slog.Logger) *Registry {
	return &Registry{
		factory: factory,
		stock:   stock,
		watcher: watcher,
		log:     log,
		carts:   make(map[string]*Manager),
	}
}

func (r *Registry) Cart(ctx context.Context, ownerID string) (*Manager, error) {
	r.mu.Lock()
	mgr, ok := r.carts[ownerID]
	if !ok {
		mgr = NewManager(r.factory(ownerID), r.stock, r.watcher, r.log)
		r.carts[ownerID] = mgr
	}
	r.mu.Unlock()

	if err := mgr.Load(ctx); err != nil {
		return nil, err
	}
	return mgr, nil
}
