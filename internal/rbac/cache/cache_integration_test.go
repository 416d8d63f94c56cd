//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/cache"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/store"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/testutil/containers"
)

type countingStore struct {
	*store.InMemoryStore
	reads int
}

func (c *countingStore) GrantsFor(ctx context.Context, principalID string) ([]models.Grant, error) {
	c.reads++
	return c.InMemoryStore.GrantsFor(ctx, principalID)
}

type CacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CacheSuite) SetupTest() {
	s.Require().NoError(s.redis.Client.FlushAll(context.Background()).Err())
}

func (s *CacheSuite) TestReadThroughAndInvalidate() {
	ctx := context.Background()
	backing := &countingStore{InMemoryStore: store.NewInMemory()}
	c := cache.New(backing, s.redis.Client, time.Minute)

	s.Require().NoError(c.AssignRole(ctx, models.Assignment{PrincipalID: "p1", Role: models.RoleOrgAdmin}))

	first, err := c.GrantsFor(ctx, "p1")
	s.Require().NoError(err)
	second, err := c.GrantsFor(ctx, "p1")
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal(1, backing.reads)

	s.Require().NoError(c.AssignRole(ctx, models.Assignment{PrincipalID: "p1", Role: models.RoleVerificationReviewer}))
	third, err := c.GrantsFor(ctx, "p1")
	s.Require().NoError(err)
	s.Equal(2, backing.reads)
	s.Greater(len(third), len(first))
}

func (s *CacheSuite) TestTTLCappedAtEarliestExpiry() {
	ctx := context.Background()
	backing := store.NewInMemory()
	c := cache.New(backing, s.redis.Client, time.Hour)

	exp := time.Now().Add(3 * time.Second)
	s.Require().NoError(backing.AssignRole(ctx, models.Assignment{PrincipalID: "p2", Role: models.RoleOrgAdmin, ExpiresAt: &exp}))

	_, err := c.GrantsFor(ctx, "p2")
	s.Require().NoError(err)

	ttl, err := s.redis.Client.TTL(ctx, cache.Key("p2")).Result()
	s.Require().NoError(err)
	s.LessOrEqual(ttl, 3*time.Second)
	s.Greater(ttl, time.Duration(0))
}
