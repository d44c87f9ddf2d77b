package terminology

import (
	"context"

	"github.com/gofhir/fhirschema/cache"
)

// Cached wraps a Provider with LRU caches for validations and expansions.
// Errors are not cached.
type Cached struct {
	inner       Provider
	validations *cache.LRU[string, *Result]
	expansions  *cache.LRU[string, *Expansion]
}

// NewCached creates a caching provider holding up to size entries per cache.
func NewCached(inner Provider, size int) *Cached {
	return &Cached{
		inner:       inner,
		validations: cache.New[string, *Result](size),
		expansions:  cache.New[string, *Expansion](size),
	}
}

// ValidateCode returns a cached result or asks the wrapped provider.
func (c *Cached) ValidateCode(ctx context.Context, system, code, valueSet string) (*Result, error) {
	key := validationKey(system, code, valueSet)
	if res, ok := c.validations.Get(key); ok {
		return res, nil
	}
	res, err := c.inner.ValidateCode(ctx, system, code, valueSet)
	if err != nil {
		return nil, err
	}
	c.validations.Set(key, res)
	return res, nil
}

// Expand returns a cached expansion or asks the wrapped provider.
func (c *Cached) Expand(ctx context.Context, valueSet string) (*Expansion, error) {
	url := Canonical(valueSet)
	if exp, ok := c.expansions.Get(url); ok {
		return exp, nil
	}
	exp, err := c.inner.Expand(ctx, url)
	if err != nil {
		return nil, err
	}
	c.expansions.Set(url, exp)
	return exp, nil
}

// Purge drops every cached entry.
func (c *Cached) Purge() {
	c.validations.Purge()
	c.expansions.Purge()
}

// Stats returns the validation cache counters.
func (c *Cached) Stats() cache.Stats {
	return c.validations.Stats()
}

func validationKey(system, code, valueSet string) string {
	return system + "|" + code + "|" + Canonical(valueSet)
}
