// Package rollback reverses executed response actions, on operator request
// or when their enforcement duration lapses.
package rollback

import (
	"context"
	"errors"
	"time"

	"github.com/sentrygate/sentrygate/common/database"
	"github.com/sentrygate/sentrygate/common/logging"
	"github.com/sentrygate/sentrygate/internal/enforce"
	"github.com/sentrygate/sentrygate/internal/events"
	"github.com/sentrygate/sentrygate/internal/metrics"
	"github.com/sentrygate/sentrygate/internal/models"
	"github.com/sentrygate/sentrygate/internal/repository"
)

// ErrActionNotFound is returned when the action ID is unknown.
var ErrActionNotFound = repository.ErrActionNotFound

// ExpiredReason is recorded on actions rolled back by the sweeper.
const ExpiredReason = "expired"

// Manager reverses actions and runs the expiry sweep.
type Manager struct {
	repo     repository.ActionRepository
	executor *enforce.Executor
	events   *events.Publisher
	logger   *logging.Logger
}

// NewManager creates a rollback manager.
func NewManager(repo repository.ActionRepository, executor *enforce.Executor, pub *events.Publisher, logger *logging.Logger) *Manager {
	return &Manager{
		repo:     repo,
		executor: executor,
		events:   pub,
		logger:   logger,
	}
}

// Rollback reverses one action. Rolling back an action that is already
// terminal (FAILED or ROLLED_BACK) succeeds without touching enforcement:
// repeated rollbacks of the same action are harmless.
func (m *Manager) Rollback(ctx context.Context, actionID, reason string) error {
	action, err := m.repo.GetAction(ctx, actionID)
	if err != nil {
		return err
	}

	if action.Terminal() {
		return nil
	}

	if action.Status == models.ActionExecuted {
		if err := m.executor.Revert(ctx, action.ActionType, action.TargetIdentity); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if err := m.repo.MarkActionRolledBack(ctx, actionID, now, reason); err != nil {
		return err
	}

	action.Status = models.ActionRolledBack
	action.RolledBackAt = &now
	action.RollbackReason = &reason
	m.events.ActionRolledBack(ctx, action)
	metrics.RollbacksTotal.WithLabelValues(rollbackReasonLabel(reason)).Inc()

	m.logger.InfoContext(ctx, "action rolled back",
		logging.ActionID(actionID),
		logging.Identity(action.TargetIdentity),
		logging.Action(string(action.ActionType)))
	return nil
}

func rollbackReasonLabel(reason string) string {
	if reason == ExpiredReason {
		return ExpiredReason
	}
	return "manual"
}

// RunSweeper periodically rolls back EXECUTED actions whose duration has
// elapsed. The Redis entries have already lapsed via TTL; the sweep brings
// the audit trail in line. Blocks until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.InfoContext(ctx, "rollback sweeper started",
		logging.Duration(interval.Milliseconds()))

	// Run immediately on start
	m.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "rollback sweeper stopped")
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep performs a single expiry pass. The listing query is bounded on its
// own; the sweeper context only ends at shutdown.
func (m *Manager) sweep(ctx context.Context) {
	qctx, cancel := database.QueryContext(ctx)
	defer cancel()
	expired, err := m.repo.ListExpiredActions(qctx, time.Now().UTC())
	if err != nil {
		m.logger.ErrorContext(ctx, "expiry sweep failed", logging.Err(err))
		return
	}

	for _, action := range expired {
		if err := m.Rollback(ctx, action.ID, ExpiredReason); err != nil {
			if errors.Is(err, ErrActionNotFound) {
				continue
			}
			m.logger.ErrorContext(ctx, "failed to expire action",
				logging.ActionID(action.ID), logging.Err(err))
		}
	}
}

// Sweep runs one expiry pass on demand.
func (m *Manager) Sweep(ctx context.Context) {
	m.sweep(ctx)
}
