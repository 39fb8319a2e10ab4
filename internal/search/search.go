package search

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Provider is a web-search capability. Implementations return real errors;
// deciding how a failure degrades the conversation is the caller's job.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) (string, error)
}

// Chain tries providers in order and returns the first successful result.
// Selection lives here, at the composition boundary, not in the orchestrator.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, logger: logger}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Search(ctx context.Context, query string) (string, error) {
	var lastErr error
	for _, p := range c.providers {
		result, err := p.Search(ctx, query)
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.logger.Warn("search provider failed",
			zap.String("provider", p.Name()),
			zap.Error(err))
	}
	if lastErr == nil {
		return "", fmt.Errorf("no search providers configured")
	}
	return "", fmt.Errorf("all search providers failed: %w", lastErr)
}

// Cached wraps a provider with a TTL cache keyed by query, so repeated
// lookups within the window do not hit the network.
type Cached struct {
	inner Provider
	cache *gocache.Cache
}

func NewCached(inner Provider, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Search(ctx context.Context, query string) (string, error) {
	if cached, ok := c.cache.Get(query); ok {
		return cached.(string), nil
	}
	result, err := c.inner.Search(ctx, query)
	if err != nil {
		return "", err
	}
	c.cache.Set(query, result, gocache.DefaultExpiration)
	return result, nil
}
