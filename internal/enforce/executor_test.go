package enforce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrygate/sentrygate/common/logging"
	"github.com/sentrygate/sentrygate/internal/models"
)

// flakyEnforcer fails the first n calls, then delegates to the real one.
type flakyEnforcer struct {
	Enforcer
	failures int
	calls    int
}

func (f *flakyEnforcer) ApplyBlock(ctx context.Context, identity string, duration time.Duration) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	return f.Enforcer.ApplyBlock(ctx, identity, duration)
}

func newExecutorFixture(t *testing.T) (*Executor, *RedisEnforcer, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	enforcer := NewRedisEnforcerWithClient(client)
	return NewExecutor(enforcer, logging.Default()), enforcer, mr
}

func TestExecute_BlockIP(t *testing.T) {
	executor, _, mr := newExecutorFixture(t)

	result := executor.Execute(context.Background(), models.ActionBlockIP, "203.0.113.4", time.Hour)
	assert.True(t, result.Executed)
	assert.NotEmpty(t, result.Message)
	assert.True(t, mr.Exists("blocked_ip:203.0.113.4"))
}

func TestExecute_AlertOnlyHasNoSideEffect(t *testing.T) {
	executor, _, mr := newExecutorFixture(t)

	result := executor.Execute(context.Background(), models.ActionAlertOnly, "203.0.113.4", time.Hour)
	assert.True(t, result.Executed)
	assert.Empty(t, mr.Keys())
}

func TestExecute_RetriesOnceOnTransientFailure(t *testing.T) {
	_, enforcer, mr := newExecutorFixture(t)
	flaky := &flakyEnforcer{Enforcer: enforcer, failures: 1}
	executor := NewExecutor(flaky, logging.Default())

	result := executor.Execute(context.Background(), models.ActionBlockIP, "203.0.113.4", time.Hour)
	assert.True(t, result.Executed)
	assert.Equal(t, 2, flaky.calls)
	assert.True(t, mr.Exists("blocked_ip:203.0.113.4"))
}

func TestExecute_UnreachableEnforcementFails(t *testing.T) {
	_, enforcer, _ := newExecutorFixture(t)
	flaky := &flakyEnforcer{Enforcer: enforcer, failures: 10}
	executor := NewExecutor(flaky, logging.Default())

	result := executor.Execute(context.Background(), models.ActionBlockIP, "203.0.113.4", time.Hour)
	assert.False(t, result.Executed)
	assert.NotEmpty(t, result.Message)
	// One retry, not an unbounded loop.
	assert.Equal(t, 2, flaky.calls)
}

func TestExecute_UnknownActionType(t *testing.T) {
	executor, _, _ := newExecutorFixture(t)

	result := executor.Execute(context.Background(), models.ActionType("TARPIT"), "203.0.113.4", time.Hour)
	assert.False(t, result.Executed)
}

func TestRevert_RemovesEnforcementState(t *testing.T) {
	executor, _, mr := newExecutorFixture(t)
	ctx := context.Background()

	for _, tc := range []struct {
		action models.ActionType
		key    string
	}{
		{models.ActionBlockIP, "blocked_ip:203.0.113.4"},
		{models.ActionCaptcha, "require_captcha:203.0.113.4"},
		{models.ActionRateLimit, "rate_limit_strict:203.0.113.4"},
	} {
		result := executor.Execute(ctx, tc.action, "203.0.113.4", time.Hour)
		require.True(t, result.Executed)
		require.True(t, mr.Exists(tc.key))

		require.NoError(t, executor.Revert(ctx, tc.action, "203.0.113.4"))
		assert.False(t, mr.Exists(tc.key))
	}
}

func TestRevert_AlertOnlyIsNoOp(t *testing.T) {
	executor, _, _ := newExecutorFixture(t)
	assert.NoError(t, executor.Revert(context.Background(), models.ActionAlertOnly, "203.0.113.4"))
}
