// Package pincode checks destination postal codes against the canonical
// reference of serviceable areas. This is a separate, external check from
// any seller's own coverage list.
package pincode

import (
	"context"
	"errors"
	"fmt"

	"github.com/aaravsagar/agriatoo-core/internal/docstore"
)

var ErrNotServiceable = errors.New("pincode is not serviceable")

// Validator answers whether the platform delivers to a pincode at all.
type Validator interface {
	Validate(ctx context.Context, pin string) error
}

// StoreValidator reads the reference list from a docstore collection
// keyed by pincode.
type StoreValidator struct {
	store      docstore.Store
	collection string
}

func NewStoreValidator(store docstore.Store, collection string) *StoreValidator {
	if collection == "" {
		collection = "serviceablePincodes"
	}
	return &StoreValidator{store: store, collection: collection}
}

func (v *StoreValidator) Validate(ctx context.Context, pin string) error {
	_, err := v.store.Get(ctx, v.collection, pin)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("pincode %s: %w", pin, ErrNotServiceable)
	}
	if err != nil {
		return fmt.Errorf("validate pincode %s: %w", pin, err)
	}
	return nil
}

// Static is a fixed in-memory reference list, used in tests and for
// config-driven deployments without a reference collection.
type Static struct {
	set map[string]struct{}
}

func NewStatic(pins []string) *Static {
	set := make(map[string]struct{}, len(pins))
	for _, p := range pins {
		set[p] = struct{}{}
	}
	return &Static{set: set}
}

func (s *Static) Validate(ctx context.Context, pin string) error {
	if _, ok := s.set[pin]; !ok {
		return fmt.Errorf("pincode %s: %w", pin, ErrNotServiceable)
	}
	return nil
}
