//go:build integration

package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cdigit/internal/ratelimit"
	"cdigit/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *ratelimit.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = ratelimit.NewRedisStore(s.redis.Client, ratelimit.WithRedisKeyPrefix("test:"))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestSlidingWindow() {
	ctx := context.Background()
	limit := ratelimit.Limit{Requests: 2, Window: time.Minute}

	for i := range 2 {
		res, err := s.store.Allow(ctx, "rl:actor:a:write", limit)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(1-i, res.Remaining)
	}

	res, err := s.store.Allow(ctx, "rl:actor:a:write", limit)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Positive(res.RetryAfter)

	ttl, err := s.redis.Client.PTTL(ctx, "test:rl:actor:a:write").Result()
	s.Require().NoError(err)
	s.Positive(ttl)

	s.Require().NoError(s.store.Reset(ctx, "rl:actor:a:write"))
	res, err = s.store.Allow(ctx, "rl:actor:a:write", limit)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *RedisStoreSuite) TestWindowExpiry() {
	ctx := context.Background()
	now := time.Now()
	store := ratelimit.NewRedisStore(s.redis.Client,
		ratelimit.WithRedisKeyPrefix("test:"),
		ratelimit.WithRedisClock(func() time.Time { return now }))
	limit := ratelimit.Limit{Requests: 1, Window: time.Minute}

	res, err := store.Allow(ctx, "k", limit)
	s.Require().NoError(err)
	s.True(res.Allowed)

	now = now.Add(61 * time.Second)
	res, err = store.Allow(ctx, "k", limit)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *RedisStoreSuite) TestConcurrentCallersNeverOvershoot() {
	ctx := context.Background()
	limit := ratelimit.Limit{Requests: 25, Window: time.Minute}
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.Allow(ctx, "race", limit)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(limit.Requests), allowed.Load())
}
