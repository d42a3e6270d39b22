package memstore

import (
	"context"
	"sync"

	"outbreak/internal/doc"
	"outbreak/internal/store"
)

// Conn is one client's connection to a Store. It implements store.Store.
type Conn struct {
	store  *Store
	id     string
	mu     sync.Mutex
	closed bool
	subs   []*store.Subscription
	hooks  []doc.Patch
}

var _ store.Store = (*Conn)(nil)

// ID returns the connection's client ID.
func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return store.ErrClosed
	}
	return nil
}

// Update implements store.Store.
func (c *Conn) Update(ctx context.Context, patch doc.Patch) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.store.update(ctx, patch)
}

// Get implements store.Store.
func (c *Conn) Get(ctx context.Context, path string) (any, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	return c.store.get(path), nil
}

// Observe implements store.Store.
func (c *Conn) Observe(ctx context.Context, path string) (*store.Subscription, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	sub := c.store.observe(ctx, path)

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

// OnDisconnect implements store.Store.
func (c *Conn) OnDisconnect(ctx context.Context, patch doc.Patch) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.hooks = append(c.hooks, patch)
	c.mu.Unlock()
	return nil
}

// CancelDisconnect implements store.Store.
func (c *Conn) CancelDisconnect(ctx context.Context) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.hooks = nil
	c.mu.Unlock()
	return nil
}

// Close drops the connection: subscriptions end and the disconnect hooks
// registered by this client are committed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs, hooks := c.subs, c.hooks
	c.subs, c.hooks = nil, nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	for _, patch := range hooks {
		if err := c.store.update(context.Background(), patch); err != nil {
			c.store.logger.Warn("disconnect hook failed", "clientID", c.id, "error", err)
		}
	}
	return nil
}
