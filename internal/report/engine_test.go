package report

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/domain"
)

func newRedisEngine(t *testing.T) *Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache := cache.NewRedisReportCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = redisCache.Close() })
	return NewEngine(redisCache, time.Minute)
}

func TestLoadCachesComputedReport(t *testing.T) {
	engine := newRedisEngine(t)
	ctx := context.Background()
	var calls int32

	compute := func(context.Context) (domain.ChartReport, error) {
		atomic.AddInt32(&calls, 1)
		return WeekdayRevenue([]domain.Sale{{DateSale: weekStart, PriceSale: decimal.NewFromInt(42)}}), nil
	}

	key := LastCompletedWeek(weekStart.AddDate(0, 0, 8)).Key("weekly")
	first, err := Load(ctx, engine, key, compute)
	require.NoError(t, err)
	second, err := Load(ctx, engine, key, compute)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, first.Total.Equal(second.Total))
	assert.Equal(t, "42", second.ChartData[0].Value.String())
}

func TestInvalidateHidesCachedReports(t *testing.T) {
	engine := newRedisEngine(t)
	ctx := context.Background()
	var calls int32

	compute := func(context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	first, err := Load(ctx, engine, "totals", compute)
	require.NoError(t, err)
	cached, err := Load(ctx, engine, "totals", compute)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	engine.Invalidate(ctx)

	fresh, err := Load(ctx, engine, "totals", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLoadDoesNotCacheErrors(t *testing.T) {
	engine := NewEngine(nil, 0)
	boom := errors.New("db down")
	var calls int

	_, err := Load(context.Background(), engine, "k", func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	v, err := Load(context.Background(), engine, "k", func(context.Context) (int, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)
}

func TestLoadCollapsesConcurrentComputations(t *testing.T) {
	engine := NewEngine(nil, 0)
	release := make(chan struct{})
	var calls int32

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Load(context.Background(), engine, "same", func(context.Context) (int, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return 99, nil
			})
			if err == nil {
				results[i] = v
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(5))
	for _, v := range results {
		assert.Equal(t, 99, v)
	}
}

func TestLoadHonoursCallerCancellation(t *testing.T) {
	engine := NewEngine(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, engine, "slow", func(context.Context) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheKeyIsStable(t *testing.T) {
	w := Window{From: weekStart, To: weekStart.AddDate(0, 0, 7)}
	assert.Equal(t, w.Key("weekly"), w.Key("weekly"))
	assert.NotEqual(t, w.Key("weekly"), w.Key("weekly", "5"))
	assert.NotEqual(t, w.Key("weekly"), w.Key("categories"))
}
