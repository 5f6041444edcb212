package session

import (
	"context"
	"sync"

	"github.com/hpungsan/tote/internal/cart"
	"github.com/hpungsan/tote/internal/remote"
)

type call struct {
	Op        string
	UserID    string
	ProductID string
	Amount    int
}

// fakeRemote records calls and returns scripted errors per operation.
// addErrs is consumed one per AddToCart call; once empty, adds succeed.
// Successful writes are applied to cart, which GetCart returns.
type fakeRemote struct {
	mu        sync.Mutex
	calls     []call
	addErrs   []error
	createErr error
	getErr    error
	opErr     error
	cart      *remote.Cart
}

func (f *fakeRemote) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeRemote) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Op)
	}
	return out
}

func (f *fakeRemote) AddToCart(_ context.Context, userID string, req remote.AddItemRequest) error {
	f.record(call{Op: "add", UserID: userID, ProductID: req.ProductID, Amount: req.Amount})
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.addErrs) > 0 {
		err := f.addErrs[0]
		f.addErrs = f.addErrs[1:]
		if err != nil {
			return err
		}
	}
	f.apply(userID, func(items []cart.GuestItem) []cart.GuestItem {
		for i := range items {
			if items[i].ProductID == req.ProductID {
				items[i].Amount += req.Amount
				return items
			}
		}
		return append(items, cart.GuestItem{ProductID: req.ProductID, Amount: req.Amount, Price: req.Price})
	})
	return nil
}

// apply edits the stored cart; callers hold f.mu.
func (f *fakeRemote) apply(userID string, fn func([]cart.GuestItem) []cart.GuestItem) {
	if f.cart == nil {
		f.cart = &remote.Cart{UserID: userID}
	}
	f.cart.Items = fn(f.cart.Items)
}

func (f *fakeRemote) CreateCart(_ context.Context, userID string) error {
	f.record(call{Op: "create", UserID: userID})
	return f.createErr
}

func (f *fakeRemote) GetCart(_ context.Context, userID string) (*remote.Cart, error) {
	f.record(call{Op: "get", UserID: userID})
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &remote.Cart{UserID: userID}
	if f.cart != nil {
		out.Items = append([]cart.GuestItem(nil), f.cart.Items...)
	}
	return out, nil
}

func (f *fakeRemote) RemoveItem(_ context.Context, userID, productID string) error {
	f.record(call{Op: "remove", UserID: userID, ProductID: productID})
	if f.opErr != nil {
		return f.opErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apply(userID, func(items []cart.GuestItem) []cart.GuestItem {
		out := items[:0]
		for _, it := range items {
			if it.ProductID != productID {
				out = append(out, it)
			}
		}
		return out
	})
	return nil
}

func (f *fakeRemote) SetQuantity(_ context.Context, userID, productID string, amount int) error {
	f.record(call{Op: "set", UserID: userID, ProductID: productID, Amount: amount})
	if f.opErr != nil {
		return f.opErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apply(userID, func(items []cart.GuestItem) []cart.GuestItem {
		for i := range items {
			if items[i].ProductID == productID {
				items[i].Amount = amount
			}
		}
		return items
	})
	return nil
}

func (f *fakeRemote) ClearCart(_ context.Context, userID string) error {
	f.record(call{Op: "clear", UserID: userID})
	if f.opErr != nil {
		return f.opErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apply(userID, func([]cart.GuestItem) []cart.GuestItem { return nil })
	return nil
}
