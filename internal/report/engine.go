package report

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"tiendapos/backend/internal/cache"
)

// Engine memoises report computations in a short-lived cache and collapses
// identical concurrent computations into one.
type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
	group    singleflight.Group
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Load returns the cached report for key or computes and caches it. The
// current report generation is part of the stored key, so Invalidate hides
// every earlier entry. Cache failures are logged and never fail the report.
func Load[T any](ctx context.Context, e *Engine, key string, compute func(context.Context) (T, error)) (T, error) {
	cacheable := true
	if gen, err := e.cache.Generation(ctx); err != nil {
		log.Warn().Str("component", "report").Err(err).Msg("cache generation read failed")
		cacheable = false
	} else {
		key = key + ":g" + strconv.FormatInt(gen, 10)
	}

	var cached T
	if cacheable {
		if hit, err := e.cache.Get(ctx, key, &cached); err != nil {
			log.Warn().Str("component", "report").Err(err).Str("key", key).Msg("cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	resultCh := e.group.DoChan(key, func() (any, error) {
		value, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if !cacheable {
			return value, nil
		}
		if err := e.cache.Set(context.WithoutCancel(ctx), key, value, e.cacheTTL); err != nil {
			log.Warn().Str("component", "report").Err(err).Str("key", key).Msg("cache write failed")
		}
		return value, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Invalidate advances the report generation. Call it after a committed write
// that changes what any report would return.
func (e *Engine) Invalidate(ctx context.Context) {
	if err := e.cache.Bump(context.WithoutCancel(ctx)); err != nil {
		log.Error().Str("component", "report").Err(err).Msg("report cache invalidation failed")
	}
}

// CacheKey builds a stable key from a report name and its parameters.
func CacheKey(name string, parts ...string) string {
	h := sha1.New()
	h.Write([]byte(strings.Join(parts, "|")))
	return "report:" + name + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

func (w Window) keyParts() []string {
	return []string{w.From.UTC().Format(time.RFC3339), w.To.UTC().Format(time.RFC3339)}
}

// Key is the cache key of a windowed report.
func (w Window) Key(name string, extra ...string) string {
	return CacheKey(name, append(w.keyParts(), extra...)...)
}
