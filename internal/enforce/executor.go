package enforce

import (
	"context"
	"fmt"
	"time"

	"github.com/sentrygate/sentrygate/common/logging"
	"github.com/sentrygate/sentrygate/internal/metrics"
	"github.com/sentrygate/sentrygate/internal/models"
)

// callTimeout bounds one enforcement call, retry included.
const callTimeout = 5 * time.Second

// ExecutionResult reports the outcome of one enforcement attempt.
// Executed=false with a message means the enforcement point was unreachable;
// the caller records the action as FAILED.
type ExecutionResult struct {
	Executed bool
	Message  string
}

// Executor drives the enforcement point for the supported action types.
type Executor struct {
	enforcer Enforcer
	logger   *logging.Logger
}

// NewExecutor creates an action executor.
func NewExecutor(enforcer Enforcer, logger *logging.Logger) *Executor {
	return &Executor{enforcer: enforcer, logger: logger}
}

// Execute applies one action against the target. ALERT_ONLY is a recorded
// no-op and always succeeds. Transient enforcement failures are retried once.
func (e *Executor) Execute(ctx context.Context, actionType models.ActionType, target string, duration time.Duration) ExecutionResult {
	if actionType == models.ActionAlertOnly {
		return ExecutionResult{Executed: true, Message: "alert recorded, no enforcement"}
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var apply func(context.Context) error
	var message string
	switch actionType {
	case models.ActionBlockIP:
		apply = func(c context.Context) error { return e.enforcer.ApplyBlock(c, target, duration) }
		message = fmt.Sprintf("blocked for %s", duration)
	case models.ActionCaptcha:
		apply = func(c context.Context) error { return e.enforcer.ApplyChallenge(c, target, duration) }
		message = fmt.Sprintf("captcha required for %s", duration)
	case models.ActionRateLimit:
		apply = func(c context.Context) error { return e.enforcer.ApplyThrottle(c, target, duration) }
		message = fmt.Sprintf("strict rate limit for %s", duration)
	default:
		return ExecutionResult{Executed: false, Message: fmt.Sprintf("unsupported action type %s", actionType)}
	}

	if err := e.withRetry(ctx, apply); err != nil {
		e.logger.ErrorContext(ctx, "enforcement failed",
			logging.Action(string(actionType)),
			logging.Identity(target),
			logging.Err(err))
		return ExecutionResult{Executed: false, Message: err.Error()}
	}
	return ExecutionResult{Executed: true, Message: message}
}

// Revert removes the enforcement state an executed action created.
// ALERT_ONLY had no side effect, so there is nothing to remove.
func (e *Executor) Revert(ctx context.Context, actionType models.ActionType, target string) error {
	if actionType == models.ActionAlertOnly {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var remove func(context.Context) error
	switch actionType {
	case models.ActionBlockIP:
		remove = func(c context.Context) error { return e.enforcer.RemoveBlock(c, target) }
	case models.ActionCaptcha:
		remove = func(c context.Context) error { return e.enforcer.RemoveChallenge(c, target) }
	case models.ActionRateLimit:
		remove = func(c context.Context) error { return e.enforcer.RemoveThrottle(c, target) }
	default:
		return fmt.Errorf("unsupported action type %s", actionType)
	}

	return e.withRetry(ctx, remove)
}

// withRetry runs fn, retrying once if the first attempt fails and the
// context still has room.
func (e *Executor) withRetry(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	metrics.ActionRetries.Inc()
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return err
	}
	return fn(ctx)
}
