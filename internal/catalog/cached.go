package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

// ErrCacheMiss is wrapped by cache implementations when a key is absent
// or expired.
var ErrCacheMiss = errors.New("cache miss")

// GraphKey identifies a cached lineage response.
type GraphKey struct {
	Type            lineage.EntityType
	FQN             string
	UpstreamDepth   int
	DownstreamDepth int
}

func (k GraphKey) String() string {
	return fmt.Sprintf("%s:%s:%d:%d", k.Type, k.FQN, k.UpstreamDepth, k.DownstreamDepth)
}

// Cache stores catalog responses.
type Cache interface {
	GetGraph(ctx context.Context, key GraphKey) (lineage.Graph, error)
	SaveGraph(ctx context.Context, key GraphKey, g lineage.Graph) error
	GetColumns(ctx context.Context, entityID string) ([]lineage.Column, error)
	SaveColumns(ctx context.Context, entityID string, cols []lineage.Column) error
	ClearGraphs(ctx context.Context) error
}

// CachedClient serves reads from a Cache before falling back to the
// catalog. Writes go straight to the catalog and clear cached graphs.
type CachedClient struct {
	client *Client
	cache  Cache
	logger *slog.Logger
}

// NewCached wraps client with cache. A nil cache disables caching.
func NewCached(client *Client, cache Cache, logger *slog.Logger) *CachedClient {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachedClient{client: client, cache: cache, logger: logger}
}

// GetLineage returns the cached graph for the request or fetches it.
func (c *CachedClient) GetLineage(ctx context.Context, entityType lineage.EntityType, fqn string, upstreamDepth, downstreamDepth int) (lineage.Graph, error) {
	key := GraphKey{Type: entityType, FQN: fqn, UpstreamDepth: upstreamDepth, DownstreamDepth: downstreamDepth}
	if c.cache != nil {
		g, err := c.cache.GetGraph(ctx, key)
		if err == nil {
			c.logger.Debug("lineage cache hit", "key", key.String())
			return g, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("lineage cache read failed", "key", key.String(), "error", err)
		}
	}

	g, err := c.client.GetLineage(ctx, entityType, fqn, upstreamDepth, downstreamDepth)
	if err != nil {
		return lineage.Graph{}, err
	}
	if c.cache != nil {
		if err := c.cache.SaveGraph(ctx, key, g); err != nil {
			c.logger.Warn("lineage cache write failed", "key", key.String(), "error", err)
		}
	}
	return g, nil
}

// GetColumns returns the cached columns of an entity or fetches them.
func (c *CachedClient) GetColumns(ctx context.Context, entityType lineage.EntityType, id string) ([]lineage.Column, error) {
	if entityType != lineage.EntityTable {
		return nil, nil
	}
	if c.cache != nil {
		cols, err := c.cache.GetColumns(ctx, id)
		if err == nil {
			return cols, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("column cache read failed", "entity", id, "error", err)
		}
	}

	cols, err := c.client.GetColumns(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.SaveColumns(ctx, id, cols); err != nil {
			c.logger.Warn("column cache write failed", "entity", id, "error", err)
		}
	}
	return cols, nil
}

// AddLineage forwards to the catalog.
func (c *CachedClient) AddLineage(ctx context.Context, from, to lineage.EntityRef, detail *lineage.LineageDetail) error {
	if err := c.client.AddLineage(ctx, from, to, detail); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// DeleteLineage forwards to the catalog.
func (c *CachedClient) DeleteLineage(ctx context.Context, fromType lineage.EntityType, fromID string, toType lineage.EntityType, toID string) error {
	if err := c.client.DeleteLineage(ctx, fromType, fromID, toType, toID); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *CachedClient) invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.ClearGraphs(ctx); err != nil {
		c.logger.Warn("lineage cache clear failed", "error", err)
	}
}
