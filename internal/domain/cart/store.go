package cart

import (
	"context"
	"encoding/json"

	"github.com/aaravsagar/agriatoo-core/internal/domain/product"
)

// Entry is one product line in a buyer's in-progress order. The product
// snapshot is frozen at add time; quantity is always at least 1 (an entry
// driven to zero is removed, never kept).
type Entry struct {
	ProductID string           `json:"product_id"`
	Product   product.Snapshot `json:"product"`
	Quantity  int              `json:"quantity"`
}

// Store durably holds the serialized cart for one owner. Save must be
// called on every mutation; callers must not Save before Load has
// completed, or a not-yet-loaded snapshot would be overwritten.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
	Clear(ctx context.Context) error
}

// decodeEntries deserializes a persisted cart, silently dropping entries
// that are missing a product id, missing a product snapshot, or carry a
// non-positive quantity. A payload that does not decode at all is an
// error; callers discard the store and fail safe to an empty cart.
func decodeEntries(data []byte) ([]Entry, error) {
	var raw []Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		if e.ProductID == "" || e.Product.ID == "" || e.Quantity <= 0 {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
