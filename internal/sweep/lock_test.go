package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLockRejectsNonPositiveTTL(t *testing.T) {
	lock := newRedisLock(unreachableRedis(t))

	release, ok, err := lock.Acquire(context.Background(), scheduledLockKey, 0)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, release)
}

func TestRedisLockReportsUnreachableServer(t *testing.T) {
	lock := newRedisLock(unreachableRedis(t))

	release, ok, err := lock.Acquire(context.Background(), scheduledLockKey, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), scheduledLockKey)
	assert.False(t, ok)
	assert.Nil(t, release)
}

func TestRedisLockHolderNamesHost(t *testing.T) {
	lock := newRedisLock(unreachableRedis(t))
	assert.NotEmpty(t, lock.holder)
}

func TestScheduledSweepRunsWhenRedisIsDown(t *testing.T) {
	registry := prometheus.NewRegistry()
	defer swapPrometheusRegistry(registry)()

	source := &mockSource{}
	source.On("LowStockItems", mock.Anything).Return([]inventorydomain.Item{}, nil).Once()

	res := newTestSweeper(source, &mockNotifier{}, newRedisLock(unreachableRedis(t))).Run(context.Background(), TriggerScheduled)
	assert.False(t, res.Skipped)
	source.AssertNumberOfCalls(t, "LowStockItems", 1)
}
