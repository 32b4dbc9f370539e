package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
)

// OpenFunc opens a new store handle
type OpenFunc func(ctx context.Context) (interfaces.KVStore, error)

// Connector owns the process-wide store handle. The handle is opened on first
// use and a failed open is never cached.
type Connector struct {
	open OpenFunc

	mu    sync.Mutex
	store interfaces.KVStore
}

var _ interfaces.StoreProvider = &Connector{}

func NewConnector(open OpenFunc) *Connector {
	return &Connector{open: open}
}

// Store returns the current handle, opening one if none is held
func (c *Connector) Store(ctx context.Context) (interfaces.KVStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		return c.store, nil
	}

	store, err := c.open(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open store")
	}
	c.store = store
	logging.From(ctx).Debug("store connected")
	return store, nil
}

// Reset drops the handle without closing it so the next use reconnects.
// It is called after a failed sync, when the handle may be broken.
func (c *Connector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = nil
}

// Disconnect closes and drops the handle
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	store := c.store
	c.store = nil
	c.mu.Unlock()

	if store == nil {
		return nil
	}
	if err := store.Close(); err != nil {
		return goerr.Wrap(err, "failed to close store")
	}
	logging.From(ctx).Debug("store disconnected")
	return nil
}

// Static wraps an already opened store as a provider
type Static struct {
	interfaces.KVStore
}

func (s Static) Store(ctx context.Context) (interfaces.KVStore, error) {
	return s.KVStore, nil
}
