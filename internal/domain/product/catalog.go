package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aaravsagar/agriatoo-core/internal/docstore"
)

var ErrNotFound = errors.New("product not found")

const Collection = "products"

// Catalog reads and writes the product listing collection. The snapshots
// it returns are what buyers capture onto cart entries.
type Catalog struct {
	store docstore.Store
}

func NewCatalog(store docstore.Store) *Catalog {
	return &Catalog{store: store}
}

// Get returns one product, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, productID string) (*Snapshot, error) {
	doc, err := c.store.Get(ctx, Collection, productID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	var s Snapshot
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", productID, err)
	}
	return &s, nil
}

// List returns every listed product.
func (c *Catalog) List(ctx context.Context) ([]Snapshot, error) {
	docs, err := c.store.GetAll(ctx, Collection)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]Snapshot, 0, len(docs))
	for _, doc := range docs {
		var s Snapshot
		if err := json.Unmarshal(doc, &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// ListForSeller returns the seller's own listings.
func (c *Catalog) ListForSeller(ctx context.Context, sellerID string) ([]Snapshot, error) {
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Snapshot
	for _, s := range all {
		if s.SellerID == sellerID {
			out = append(out, s)
		}
	}
	return out, nil
}

// Create lists a new product. The id is assigned here.
func (c *Catalog) Create(ctx context.Context, s Snapshot) (*Snapshot, error) {
	if s.Name == "" || s.SellerID == "" {
		return nil, errors.New("product needs a name and a seller")
	}
	if s.Price < 0 || s.Stock < 0 {
		return nil, errors.New("price and stock must not be negative")
	}
	s.ID = uuid.NewString()
	if err := c.store.Add(ctx, Collection, s.ID, s); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &s, nil
}
