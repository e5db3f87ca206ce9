package cache

import (
	"context"
	"errors"

	"github.com/jesserobertson/cogj"
)

// Chain tries header stores in order, typically memory before Redis. A hit
// in a later store is copied into the earlier ones. Nil stores are skipped.
type Chain struct {
	stores []cogj.HeaderStore
}

// NewChain returns a chain over the non-nil stores.
func NewChain(stores ...cogj.HeaderStore) *Chain {
	c := &Chain{}
	for _, s := range stores {
		if s != nil {
			c.stores = append(c.stores, s)
		}
	}
	return c
}

// LoadHeader returns the first hit. Store failures are skipped over and
// reported only when no store has the header.
func (c *Chain) LoadHeader(ctx context.Context, locator string) ([]byte, bool, error) {
	var errs []error
	for i, s := range c.stores {
		raw, ok, err := s.LoadHeader(ctx, locator)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		for _, earlier := range c.stores[:i] {
			_ = earlier.StoreHeader(ctx, locator, raw)
		}
		return raw, true, nil
	}
	return nil, false, errors.Join(errs...)
}

// StoreHeader writes to every store and joins their errors.
func (c *Chain) StoreHeader(ctx context.Context, locator string, raw []byte) error {
	var errs []error
	for _, s := range c.stores {
		if err := s.StoreHeader(ctx, locator, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
