package cache

import (
	"context"
	"time"
)

// ReportCache stores computed reports as JSON. Get decodes a hit into dest.
//
// Generation and Bump version the cached reports: callers fold the current
// generation into their keys and Bump after every write that changes report
// inputs, so entries from older generations are never read again.
type ReportCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Generation(ctx context.Context) (int64, error)
	Bump(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopReportCache) Bump(_ context.Context) error {
	return nil
}
