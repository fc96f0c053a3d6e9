//go:build integration

package bucket_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycvault/internal/ratelimit/store/bucket"
	"kycvault/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = bucket.NewRedis(s.redis.Client, "")
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestAllowUntilLimit() {
	ctx := context.Background()
	for i := range 3 {
		res, err := s.store.Allow(ctx, "upload:owner", 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(2-i, res.Remaining)
	}
	res, err := s.store.Allow(ctx, "upload:owner", 3, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Positive(res.RetryAfter)

	count, err := s.store.GetCurrentCount(ctx, "upload:owner")
	s.Require().NoError(err)
	s.Equal(3, count)
}

func (s *RedisStoreSuite) TestWindowExpires() {
	ctx := context.Background()
	res, err := s.store.Allow(ctx, "upload:short", 1, 200*time.Millisecond)
	s.Require().NoError(err)
	s.True(res.Allowed)

	time.Sleep(300 * time.Millisecond)

	res, err = s.store.Allow(ctx, "upload:short", 1, 200*time.Millisecond)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *RedisStoreSuite) TestConcurrentAllowNeverExceedsLimit() {
	ctx := context.Background()
	const limit = 10
	var wg sync.WaitGroup
	var allowed atomic.Int32
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.Allow(ctx, "upload:concurrent", limit, time.Minute)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(limit), allowed.Load())
}

func (s *RedisStoreSuite) TestReset() {
	ctx := context.Background()
	_, err := s.store.Allow(ctx, "upload:reset", 1, time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(ctx, "upload:reset"))

	res, err := s.store.Allow(ctx, "upload:reset", 1, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}
