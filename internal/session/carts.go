package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/tote/internal/guest"
)

// Carts hands out one ShoppingCart per user ID ("" is the guest cart),
// rehydrating each on first use. Surfaces that serve several users from one
// process, such as the MCP server, go through it.
type Carts struct {
	guest  guest.Store
	remote RemoteCart
	log    *zap.Logger

	mu    sync.Mutex
	carts map[string]*cartEntry
}

type cartEntry struct {
	once sync.Once
	cart *ShoppingCart
}

// NewCarts returns an empty registry sharing store and rc across carts.
func NewCarts(store guest.Store, rc RemoteCart, log *zap.Logger) *Carts {
	if log == nil {
		log = zap.NewNop()
	}
	return &Carts{
		guest:  store,
		remote: rc,
		log:    log,
		carts:  make(map[string]*cartEntry),
	}
}

// For returns the cart of userID. The registry lock is not held while the
// cart rehydrates; concurrent first callers wait for the same rehydration.
func (c *Carts) For(ctx context.Context, userID string) *ShoppingCart {
	c.mu.Lock()
	e, ok := c.carts[userID]
	if !ok {
		e = &cartEntry{cart: New(c.guest, c.remote, c.log)}
		c.carts[userID] = e
	}
	c.mu.Unlock()

	e.once.Do(func() { e.cart.Rehydrate(ctx, userID) })
	return e.cart
}
