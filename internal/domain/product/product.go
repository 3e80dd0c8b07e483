package product

// Snapshot is the product state captured onto a cart entry when the buyer
// adds it. The snapshot is deliberately not re-synced afterwards; only the
// stock figure is overlaid with live cache data at display and validation
// time.
type Snapshot struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Price            float64  `json:"price"`
	Unit             string   `json:"unit"`
	Stock            int      `json:"stock"`
	SellerID         string   `json:"seller_id"`
	SellerName       string   `json:"seller_name"`
	DeliveryPincodes []string `json:"delivery_pincodes,omitempty"`
	Images           []string `json:"images,omitempty"`
}

// DeliversTo reports whether the seller's coverage list, as captured on
// this snapshot, contains the destination pincode. An empty list never
// matches.
func (s Snapshot) DeliversTo(pincode string) bool {
	for _, p := range s.DeliveryPincodes {
		if p == pincode {
			return true
		}
	}
	return false
}
