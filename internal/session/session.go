// Package session reconciles the in-memory cart with the guest store and the
// remote cart API.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/tote/internal/cart"
	"github.com/hpungsan/tote/internal/errors"
	"github.com/hpungsan/tote/internal/guest"
	"github.com/hpungsan/tote/internal/remote"
)

// Phase is the lifecycle stage of a ShoppingCart.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseRehydrating   Phase = "rehydrating"
	PhaseReady         Phase = "ready"
)

// RemoteCart is the subset of the cart API the session needs.
type RemoteCart interface {
	AddToCart(ctx context.Context, userID string, req remote.AddItemRequest) error
	CreateCart(ctx context.Context, userID string) error
	GetCart(ctx context.Context, userID string) (*remote.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) error
	SetQuantity(ctx context.Context, userID, productID string, amount int) error
	ClearCart(ctx context.Context, userID string) error
}

// AddResult reports which path an add took.
type AddResult struct {
	Guest   bool              `json:"guest"`
	Created bool              `json:"created,omitempty"` // remote cart was created on the way
	Items   []cart.GuestItem `json:"items,omitempty"`   // guest record after the add
}

// ShoppingCart owns the cart state for one session.
type ShoppingCart struct {
	guest  guest.Store
	remote RemoteCart
	log    *zap.Logger

	mu    sync.RWMutex
	state cart.State
	phase Phase
	user  string // owner, fixed by the first Rehydrate
	bound bool

	// guestMu serializes read-modify-write cycles on the guest record.
	guestMu sync.Mutex
}

// New returns an empty, uninitialized cart. remote may be nil when only the
// guest path is used.
func New(store guest.Store, rc RemoteCart, log *zap.Logger) *ShoppingCart {
	if log == nil {
		log = zap.NewNop()
	}
	return &ShoppingCart{
		guest:  store,
		remote: rc,
		log:    log.Named("session"),
		phase:  PhaseUninitialized,
	}
}

// State returns a snapshot of the current cart.
func (s *ShoppingCart) State() cart.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Phase returns the current lifecycle phase.
func (s *ShoppingCart) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Dispatch applies action to the in-memory state only.
func (s *ShoppingCart) Dispatch(action cart.Action) cart.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = cart.Reduce(s.state, action)
	return s.state
}

// User returns the user the cart was rehydrated for ("" for the guest cart)
// and whether it has been bound yet.
func (s *ShoppingCart) User() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.bound
}

// checkUser rejects operations for a user other than the one the cart was
// rehydrated for, so guest and per-user lines never share one state.
func (s *ShoppingCart) checkUser(userID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.bound || userID == s.user {
		return nil
	}
	owner := s.user
	if owner == "" {
		owner = "guest"
	}
	return errors.NewInvalidRequest(fmt.Sprintf("cart belongs to %s, not %q", owner, userID))
}

func (s *ShoppingCart) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Rehydrate rebuilds the state from the guest store (userID == "") or from the
// remote cart, dispatching one AddItem per stored line. Only line presence is
// restored: each line comes back with quantity 1.
//
// It always ends Ready. Remote failures are logged, not returned. Lines are not
// deduplicated against the current state, so calling it twice double-counts.
//
// The first call binds the cart to userID. Later calls and operations for a
// different user are refused.
func (s *ShoppingCart) Rehydrate(ctx context.Context, userID string) {
	s.mu.Lock()
	if s.bound && s.user != userID {
		s.mu.Unlock()
		s.log.Warn("rehydrate: cart belongs to another user", zap.String("user_id", userID))
		return
	}
	s.user, s.bound = userID, true
	s.mu.Unlock()
	s.setPhase(PhaseRehydrating)
	defer s.setPhase(PhaseReady)

	var items []cart.GuestItem
	if userID == "" {
		items = s.guest.Load(ctx)
	} else {
		if s.remote == nil {
			s.log.Warn("rehydrate: no remote cart configured", zap.String("user_id", userID))
			return
		}
		rc, err := s.remote.GetCart(ctx, userID)
		if err != nil {
			s.log.Warn("rehydrate: remote cart unavailable", zap.String("user_id", userID), zap.Error(err))
			return
		}
		items = rc.Items
	}

	for _, it := range items {
		s.Dispatch(cart.AddItem{Product: productOf(it)})
	}
	s.log.Debug("rehydrated", zap.Int("lines", len(items)), zap.Bool("guest", userID == ""))
}

// AddToCart adds amount units of p. Without a userID the guest record is
// updated; otherwise the remote cart is, creating it once if it is missing.
// The in-memory state gains exactly one unit per call regardless of amount.
func (s *ShoppingCart) AddToCart(ctx context.Context, p cart.Product, amount int, userID string) (*AddResult, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, errors.NewInvalidRequest("product id is required")
	}
	if amount < 1 {
		return nil, errors.NewInvalidRequest("amount must be at least 1")
	}
	if err := s.checkUser(userID); err != nil {
		return nil, err
	}

	if userID == "" {
		items, err := s.updateGuest(ctx, func(items []cart.GuestItem) ([]cart.GuestItem, error) {
			return guest.Merge(items, p, amount), nil
		})
		if err != nil {
			return nil, err
		}
		s.Dispatch(cart.AddItem{Product: p})
		return &AddResult{Guest: true, Items: items}, nil
	}

	rc, err := s.remoteCart()
	if err != nil {
		return nil, err
	}
	req := remote.AddItemRequest{ProductID: p.ID, Amount: amount, Price: p.Price}

	created := false
	err = rc.AddToCart(ctx, userID, req)
	if errors.Is(err, errors.ErrCartMissing) {
		s.log.Info("remote cart missing, creating", zap.String("user_id", userID))
		if err := rc.CreateCart(ctx, userID); err != nil {
			return nil, err
		}
		created = true
		err = rc.AddToCart(ctx, userID, req)
	}
	if err != nil {
		return nil, err
	}

	s.Dispatch(cart.AddItem{Product: p})
	return &AddResult{Guest: false, Created: created}, nil
}

// Remove drops productID from the cart.
func (s *ShoppingCart) Remove(ctx context.Context, productID, userID string) (cart.State, error) {
	if err := s.checkUser(userID); err != nil {
		return cart.State{}, err
	}
	if userID == "" {
		_, err := s.updateGuest(ctx, func(items []cart.GuestItem) ([]cart.GuestItem, error) {
			out, found := guest.Without(items, productID)
			if !found {
				return nil, errors.NewNotFound(productID)
			}
			return out, nil
		})
		if err != nil {
			return cart.State{}, err
		}
		return s.Dispatch(cart.RemoveItem{ProductID: productID}), nil
	}

	rc, err := s.remoteCart()
	if err != nil {
		return cart.State{}, err
	}
	if err := rc.RemoveItem(ctx, userID, productID); err != nil {
		return cart.State{}, err
	}
	return s.Dispatch(cart.RemoveItem{ProductID: productID}), nil
}

// Increment adds one unit to a product already in the cart.
func (s *ShoppingCart) Increment(ctx context.Context, productID, userID string) (cart.State, error) {
	return s.step(ctx, productID, userID, 1)
}

// Decrement removes one unit, dropping the line when it reaches zero.
func (s *ShoppingCart) Decrement(ctx context.Context, productID, userID string) (cart.State, error) {
	return s.step(ctx, productID, userID, -1)
}

func (s *ShoppingCart) step(ctx context.Context, productID, userID string, delta int) (cart.State, error) {
	if err := s.checkUser(userID); err != nil {
		return cart.State{}, err
	}
	var action cart.Action = cart.Increment{ProductID: productID}
	if delta < 0 {
		action = cart.Decrement{ProductID: productID}
	}

	if userID == "" {
		_, err := s.updateGuest(ctx, func(items []cart.GuestItem) ([]cart.GuestItem, error) {
			out, found := guest.Adjust(items, productID, delta)
			if !found {
				return nil, errors.NewNotFound(productID)
			}
			return out, nil
		})
		if err != nil {
			return cart.State{}, err
		}
		return s.Dispatch(action), nil
	}

	rc, err := s.remoteCart()
	if err != nil {
		return cart.State{}, err
	}
	// The in-memory quantity counts adds, not units, so the new amount is
	// based on what the server holds.
	amount, err := remoteAmount(ctx, rc, userID, productID)
	if err != nil {
		return cart.State{}, err
	}
	if next := amount + delta; next < 1 {
		err = rc.RemoveItem(ctx, userID, productID)
	} else {
		err = rc.SetQuantity(ctx, userID, productID, next)
	}
	if err != nil {
		return cart.State{}, err
	}
	return s.Dispatch(action), nil
}

// remoteAmount returns the amount of productID in the user's remote cart.
func remoteAmount(ctx context.Context, rc RemoteCart, userID, productID string) (int, error) {
	current, err := rc.GetCart(ctx, userID)
	if errors.Is(err, errors.ErrCartMissing) {
		return 0, errors.NewNotFound(productID)
	}
	if err != nil {
		return 0, err
	}
	for _, it := range current.Items {
		if it.ProductID == productID {
			return it.Amount, nil
		}
	}
	return 0, errors.NewNotFound(productID)
}

// Clear empties the cart.
func (s *ShoppingCart) Clear(ctx context.Context, userID string) (cart.State, error) {
	if err := s.checkUser(userID); err != nil {
		return cart.State{}, err
	}
	if userID == "" {
		if err := s.clearGuest(ctx); err != nil {
			return cart.State{}, err
		}
		return s.Dispatch(cart.Clear{}), nil
	}

	rc, err := s.remoteCart()
	if err != nil {
		return cart.State{}, err
	}
	if err := rc.ClearCart(ctx, userID); err != nil {
		return cart.State{}, err
	}
	return s.Dispatch(cart.Clear{}), nil
}

// GuestItems returns the persisted guest record.
func (s *ShoppingCart) GuestItems(ctx context.Context) []cart.GuestItem {
	return s.guest.Load(ctx)
}

// updateGuest runs one load-modify-save cycle on the guest record.
func (s *ShoppingCart) updateGuest(ctx context.Context, fn func([]cart.GuestItem) ([]cart.GuestItem, error)) ([]cart.GuestItem, error) {
	s.guestMu.Lock()
	defer s.guestMu.Unlock()

	items, err := fn(s.guest.Load(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.guest.Save(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// clearGuest drops the guest record, deleting it outright when the store
// supports that.
func (s *ShoppingCart) clearGuest(ctx context.Context) error {
	s.guestMu.Lock()
	defer s.guestMu.Unlock()

	if c, ok := s.guest.(guest.Clearer); ok {
		return c.Clear(ctx)
	}
	return s.guest.Save(ctx, []cart.GuestItem{})
}

func (s *ShoppingCart) remoteCart() (RemoteCart, error) {
	if s.remote == nil {
		return nil, errors.NewInvalidRequest("remote cart API is not configured")
	}
	return s.remote, nil
}

func productOf(it cart.GuestItem) cart.Product {
	if it.Product != nil {
		p := *it.Product
		if p.ID == "" {
			p.ID = it.ProductID
		}
		return p
	}
	return cart.Product{ID: it.ProductID, Price: it.Price}
}
