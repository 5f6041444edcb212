package guest

import "github.com/hpungsan/tote/internal/cart"

// Merge adds amount units of p to items, appending a new entry on first add.
// The input slice is not modified.
func Merge(items []cart.GuestItem, p cart.Product, amount int) []cart.GuestItem {
	out := clone(items)
	for i := range out {
		if out[i].ProductID == p.ID {
			out[i].Amount += amount
			return out
		}
	}
	snapshot := p
	return append(out, cart.GuestItem{
		ProductID: p.ID,
		Amount:    amount,
		Price:     p.Price,
		Product:   &snapshot,
	})
}

// Adjust changes the amount of productID by delta, dropping the entry when it
// reaches zero. found reports whether the product was in items.
func Adjust(items []cart.GuestItem, productID string, delta int) (out []cart.GuestItem, found bool) {
	out = clone(items)
	for i := range out {
		if out[i].ProductID != productID {
			continue
		}
		out[i].Amount += delta
		if out[i].Amount < 1 {
			out = append(out[:i], out[i+1:]...)
		}
		return out, true
	}
	return out, false
}

// Without drops productID from items.
func Without(items []cart.GuestItem, productID string) (out []cart.GuestItem, found bool) {
	out = clone(items)
	for i := range out {
		if out[i].ProductID == productID {
			return append(out[:i], out[i+1:]...), true
		}
	}
	return out, false
}

func clone(items []cart.GuestItem) []cart.GuestItem {
	out := make([]cart.GuestItem, len(items))
	copy(out, items)
	return out
}
