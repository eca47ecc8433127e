package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/backend-pricing/internal/obs"
	"github.com/noah-isme/backend-pricing/internal/pricing"
)

// Lookup resolves item snapshots, cache first, fetching misses concurrently. Concurrent
// requests for the same item share one upstream call.
type Lookup struct {
	flight    singleflight.Group
	fetcher   Fetcher
	cache     *Cache
	warehouse string
	limit     int
	timeout   time.Duration
	logger    zerolog.Logger
}

// LookupConfig groups Lookup dependencies.
type LookupConfig struct {
	Fetcher     Fetcher
	Cache       *Cache
	Warehouse   string
	Concurrency int
	// FetchTimeout bounds one shared upstream fetch. Defaults to 10s.
	FetchTimeout time.Duration
	Logger       zerolog.Logger
}

// NewLookup constructs a Lookup.
func NewLookup(cfg LookupConfig) *Lookup {
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = 4
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Lookup{
		fetcher:   cfg.Fetcher,
		cache:     cfg.Cache,
		warehouse: cfg.Warehouse,
		limit:     limit,
		timeout:   timeout,
		logger:    cfg.Logger,
	}
}

// Items returns one snapshot per distinct id. The first failure cancels the remaining fetches.
func (l *Lookup) Items(ctx context.Context, ids []string) (map[string]*pricing.CatalogItem, error) {
	distinct := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}

	results := make([]*pricing.CatalogItem, len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.limit)
	for i, id := range distinct {
		g.Go(func() error {
			item, err := l.item(gctx, id)
			if err != nil {
				return err
			}
			results[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*pricing.CatalogItem, len(distinct))
	for i, id := range distinct {
		out[id] = results[i]
	}
	return out, nil
}

func (l *Lookup) item(ctx context.Context, id string) (*pricing.CatalogItem, error) {
	if cached := l.cached(ctx, id); cached != nil {
		obs.CountCatalogLookup("cache")
		return cached, nil
	}

	// The shared fetch outlives any single caller: each caller waits on its own context.
	ch := l.flight.DoChan(id, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		item, err := l.fetcher.Item(fetchCtx, id)
		if err != nil {
			return nil, err
		}
		if err := l.cache.Set(fetchCtx, l.warehouse, id, item); err != nil {
			l.logger.Warn().Err(err).Str("item_id", id).Msg("catalog_cache_write_failed")
		}
		return item, nil
	})

	select {
	case <-ctx.Done():
		obs.CountCatalogLookup("error")
		return nil, ctx.Err()
	case res := <-ch:
		switch {
		case res.Err != nil:
			obs.CountCatalogLookup("error")
			return nil, res.Err
		case res.Shared:
			obs.CountCatalogLookup("shared")
		default:
			obs.CountCatalogLookup("upstream")
		}
		return res.Val.(*pricing.CatalogItem), nil
	}
}

// cached returns a usable cached snapshot. Entries that no longer decode or validate are
// invalidated so the next read refetches them.
func (l *Lookup) cached(ctx context.Context, id string) *pricing.CatalogItem {
	item, err := l.cache.Get(ctx, l.warehouse, id)
	if err == nil && item != nil {
		if verr := validate(item); verr != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidSnapshot, verr)
		}
	}
	switch {
	case err == nil:
		return item
	case errors.Is(err, errCorruptEntry), errors.Is(err, ErrInvalidSnapshot):
		l.logger.Warn().Err(err).Str("item_id", id).Msg("catalog_cache_entry_dropped")
		if derr := l.cache.Invalidate(ctx, l.warehouse, id); derr != nil {
			l.logger.Warn().Err(derr).Str("item_id", id).Msg("catalog_cache_invalidate_failed")
		}
	default:
		l.logger.Warn().Err(err).Str("item_id", id).Msg("catalog_cache_read_failed")
	}
	return nil
}
