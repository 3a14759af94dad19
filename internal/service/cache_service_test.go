package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type brokenCache struct{ err error }

func (b brokenCache) Get(context.Context, string, interface{}) error { return b.err }
func (b brokenCache) Set(context.Context, string, interface{}, time.Duration) error {
	return b.err
}
func (b brokenCache) DeleteByPattern(context.Context, string) error { return b.err }

func TestCacheServiceDisabled(t *testing.T) {
	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	assert.False(t, nilSvc.Get(context.Background(), "k", &struct{}{}))
	nilSvc.Set(context.Background(), "k", 1)
	nilSvc.InvalidateProposals(context.Background())

	off := NewCacheService(newMemoryCache(), nil, 0, nil, false)
	assert.False(t, off.Enabled())
	off.Set(context.Background(), "k", 1)
	var v int
	assert.False(t, off.Get(context.Background(), "k", &v))
}

func TestCacheServiceRoundTripAndMetrics(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(newMemoryCache(), metrics, time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	var got []string
	assert.False(t, svc.Get(ctx, "k", &got))
	svc.Set(ctx, "k", []string{"a", "b"})
	assert.True(t, svc.Get(ctx, "k", &got))
	assert.Equal(t, []string{"a", "b"}, got)
	assert.InDelta(t, 0.5, metrics.Snapshot().CacheHitRatio, 0.0001)
}

func TestCacheServiceTreatsBackendErrorsAsMiss(t *testing.T) {
	svc := NewCacheService(brokenCache{err: errors.New("connection refused")}, nil, time.Minute, zap.NewNop(), true)
	var got int
	assert.False(t, svc.Get(context.Background(), "k", &got))
	assert.NotPanics(t, func() {
		svc.Set(context.Background(), "k", 1)
		svc.InvalidateProposals(context.Background())
	})
}

func TestProposalListKey(t *testing.T) {
	a := ProposalListKey([]string{"approved"}, 50, 0)
	b := ProposalListKey([]string{"approved"}, 50, 50)
	assert.True(t, strings.HasPrefix(a, proposalCachePrefix))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ProposalListKey([]string{"approved"}, 50, 0))
}
