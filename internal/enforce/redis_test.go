package enforce

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnforcer(t *testing.T) (*RedisEnforcer, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisEnforcerWithClient(client), mr
}

func TestApplyBlock_SetsKeyWithTTL(t *testing.T) {
	enforcer, mr := newTestEnforcer(t)
	ctx := context.Background()

	require.NoError(t, enforcer.ApplyBlock(ctx, "203.0.113.4", time.Hour))

	assert.True(t, mr.Exists("blocked_ip:203.0.113.4"))
	assert.Equal(t, time.Hour, mr.TTL("blocked_ip:203.0.113.4"))

	blocked, err := enforcer.IsBlocked(ctx, "203.0.113.4")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestApplyBlock_ReapplyResetsExpiry(t *testing.T) {
	enforcer, mr := newTestEnforcer(t)
	ctx := context.Background()

	require.NoError(t, enforcer.ApplyBlock(ctx, "203.0.113.4", 30*time.Minute))
	require.NoError(t, enforcer.ApplyBlock(ctx, "203.0.113.4", time.Hour))

	assert.Equal(t, time.Hour, mr.TTL("blocked_ip:203.0.113.4"))
}

func TestBlock_LapsesWithTTL(t *testing.T) {
	enforcer, mr := newTestEnforcer(t)
	ctx := context.Background()

	require.NoError(t, enforcer.ApplyBlock(ctx, "203.0.113.4", time.Minute))
	mr.FastForward(2 * time.Minute)

	blocked, err := enforcer.IsBlocked(ctx, "203.0.113.4")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestRemoveBlock_Idempotent(t *testing.T) {
	enforcer, _ := newTestEnforcer(t)
	ctx := context.Background()

	require.NoError(t, enforcer.ApplyBlock(ctx, "203.0.113.4", time.Hour))
	require.NoError(t, enforcer.RemoveBlock(ctx, "203.0.113.4"))

	blocked, err := enforcer.IsBlocked(ctx, "203.0.113.4")
	require.NoError(t, err)
	assert.False(t, blocked)

	// Removing an absent block is still not an error.
	assert.NoError(t, enforcer.RemoveBlock(ctx, "203.0.113.4"))
}

func TestChallengeAndThrottle_Keys(t *testing.T) {
	enforcer, mr := newTestEnforcer(t)
	ctx := context.Background()

	require.NoError(t, enforcer.ApplyChallenge(ctx, "203.0.113.5", 30*time.Minute))
	require.NoError(t, enforcer.ApplyThrottle(ctx, "203.0.113.6", 15*time.Minute))

	assert.True(t, mr.Exists("require_captcha:203.0.113.5"))
	assert.True(t, mr.Exists("rate_limit_strict:203.0.113.6"))

	require.NoError(t, enforcer.RemoveChallenge(ctx, "203.0.113.5"))
	require.NoError(t, enforcer.RemoveThrottle(ctx, "203.0.113.6"))
	assert.False(t, mr.Exists("require_captcha:203.0.113.5"))
	assert.False(t, mr.Exists("rate_limit_strict:203.0.113.6"))
}

func TestListBlocked(t *testing.T) {
	enforcer, _ := newTestEnforcer(t)
	ctx := context.Background()

	require.NoError(t, enforcer.ApplyBlock(ctx, "203.0.113.4", time.Hour))
	require.NoError(t, enforcer.ApplyBlock(ctx, "203.0.113.5", time.Hour))
	require.NoError(t, enforcer.ApplyChallenge(ctx, "203.0.113.6", time.Hour))

	blocked, err := enforcer.ListBlocked(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"203.0.113.4", "203.0.113.5"}, blocked)
}
