package cart

// Product is the catalog snapshot carried alongside a cart line.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"` // markdown
}

// LineItem is one product's entry in the in-memory cart.
// Quantity is always >= 1; a line that would reach 0 is removed instead.
type LineItem struct {
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity"`
	UnitPrice float64  `json:"unit_price"`
	Product   *Product `json:"product,omitempty"`
}

// GuestItem is one element of the guest cart record persisted on the device.
// Field names match the record format shared with the remote API.
type GuestItem struct {
	ProductID string   `json:"productId"`
	Amount    int      `json:"amount"`
	Price     float64  `json:"price"`
	Product   *Product `json:"product,omitempty"`
}

// State is the ordered set of cart lines, in first-add order.
// The zero value is an empty cart.
type State struct {
	items []LineItem
}

// NewState builds a State from lines, dropping non-positive quantities and
// keeping only the first line for each product.
func NewState(lines ...LineItem) State {
	s := State{}
	for _, l := range lines {
		if l.Quantity < 1 || s.index(l.ProductID) >= 0 {
			continue
		}
		s.items = append(s.items, l)
	}
	return s
}

// Items returns a copy of the cart lines.
func (s State) Items() []LineItem {
	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of distinct lines.
func (s State) Len() int {
	return len(s.items)
}

// Find returns the line for productID, if present.
func (s State) Find(productID string) (LineItem, bool) {
	if i := s.index(productID); i >= 0 {
		return s.items[i], true
	}
	return LineItem{}, false
}

// TotalQuantity sums the quantity of every line.
func (s State) TotalQuantity() int {
	total := 0
	for _, l := range s.items {
		total += l.Quantity
	}
	return total
}

// Subtotal sums quantity * unit price over every line.
func (s State) Subtotal() float64 {
	var total float64
	for _, l := range s.items {
		total += float64(l.Quantity) * l.UnitPrice
	}
	return total
}

func (s State) index(productID string) int {
	for i, l := range s.items {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}
