package bucket

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testLimit  = 10
	testWindow = time.Minute
)

type InMemoryBucketStoreSuite struct {
	suite.Suite
	store *InMemoryBucketStore
	now   time.Time
	ctx   context.Context
}

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBucketStoreSuite))
}

func (s *InMemoryBucketStoreSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewInMemoryBucketStore(WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func (s *InMemoryBucketStoreSuite) TestAllow() {
	s.Run("first request allowed", func() {
		result, err := s.store.Allow(s.ctx, "first", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit, result.Limit)
		s.Equal(testLimit-1, result.Remaining)
		s.Equal(s.now.Add(testWindow), result.ResetAt)
	})

	s.Run("request over limit denied", func() {
		for range testLimit {
			result, err := s.store.Allow(s.ctx, "over", testLimit, testWindow)
			s.Require().NoError(err)
			s.True(result.Allowed)
		}
		result, err := s.store.Allow(s.ctx, "over", testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Equal(60, result.RetryAfter(s.now))
	})

	s.Run("keys are independent", func() {
		for range testLimit {
			_, err := s.store.Allow(s.ctx, "a", testLimit, testWindow)
			s.Require().NoError(err)
		}
		result, err := s.store.Allow(s.ctx, "b", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})
}

func (s *InMemoryBucketStoreSuite) TestWindowSlides() {
	start := s.now
	for i := range 3 {
		s.now = start.Add(time.Duration(i) * 20 * time.Second)
		_, err := s.store.Allow(s.ctx, "slide", 3, testWindow)
		s.Require().NoError(err)
	}

	result, err := s.store.Allow(s.ctx, "slide", 3, testWindow)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(start.Add(testWindow), result.ResetAt)

	// The oldest request leaves the window; only one slot frees up.
	s.now = start.Add(testWindow + time.Second)
	result, err = s.store.Allow(s.ctx, "slide", 3, testWindow)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(0, result.Remaining)

	result, err = s.store.Allow(s.ctx, "slide", 3, testWindow)
	s.Require().NoError(err)
	s.False(result.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestResetAndSweep() {
	for range 2 {
		_, err := s.store.Allow(s.ctx, "reset", 2, testWindow)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.Reset(s.ctx, "reset"))
	result, err := s.store.Allow(s.ctx, "reset", 2, testWindow)
	s.Require().NoError(err)
	s.True(result.Allowed)

	_, err = s.store.Allow(s.ctx, "other", 2, testWindow)
	s.Require().NoError(err)
	s.now = s.now.Add(2 * testWindow)
	s.Equal(2, s.store.Sweep())
	s.Equal(0, s.store.Sweep())
}

func (s *InMemoryBucketStoreSuite) TestConcurrentRequestsNeverExceedLimit() {
	const goroutines = 50
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(s.ctx, "concurrent", testLimit, testWindow)
			if err == nil && result.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(testLimit), allowed.Load())
}
