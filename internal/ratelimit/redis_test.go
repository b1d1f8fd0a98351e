package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRedis *redis.Client

func TestMain(m *testing.M) {
	code := runWithRedis(m)
	os.Exit(code)
}

// runWithRedis starts a redis container when a docker daemon is reachable.
// Without one, the redis tests skip and everything else still runs.
func runWithRedis(m *testing.M) int {
	log := logrus.StandardLogger()

	pool, err := dockertest.NewPool("")
	if err == nil {
		err = pool.Client.Ping()
	}
	if err != nil {
		log.WithError(err).Info("docker unavailable, skipping redis limiter tests")
		return m.Run()
	}

	resource, err := pool.Run("redis", "7-alpine", nil)
	if err != nil {
		log.WithError(err).Warn("cannot start redis container, skipping redis limiter tests")
		return m.Run()
	}
	defer func() {
		_ = pool.Purge(resource)
	}()
	_ = resource.Expire(120)

	addr := fmt.Sprintf("localhost:%s", resource.GetPort("6379/tcp"))
	if err := pool.Retry(func() error {
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return err
		}
		testRedis = client
		return nil
	}); err != nil {
		log.WithError(err).Warn("redis container never became ready")
		testRedis = nil
	}

	return m.Run()
}

func TestRedis_WindowReset(t *testing.T) {
	if testRedis == nil {
		t.Skip("redis unavailable")
	}

	ctx := context.Background()
	l := NewRedis(testRedis)
	require.NoError(t, l.Ping(ctx))

	rule := Rule{Name: "redis-test", Window: 300 * time.Millisecond, Max: 5}
	id := fmt.Sprintf("10.0.0.1:%d", time.Now().UnixNano())

	for i := 0; i < 5; i++ {
		d, err := l.Check(ctx, id, rule)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.Check(ctx, id, rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.RetryAfter > 0)
	assert.Equal(t, 1, d.RetryAfterSeconds())

	time.Sleep(400 * time.Millisecond)

	d, err = l.Check(ctx, id, rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
