// Package reputation maintains per-source-identity request history and the
// trust classification derived from it. All counter mutation goes through
// Tracker.Observe; the repository upsert keeps concurrent observers from
// losing increments.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentrygate/sentrygate/common/logging"
	"github.com/sentrygate/sentrygate/internal/models"
	"github.com/sentrygate/sentrygate/internal/repository"
)

// Score breakpoints. An identity with mostly blocked traffic bottoms out at
// 0.1; occasional blocks sit at 0.3; clean history holds 0.7.
const (
	scoreMalicious  = 0.1
	scoreSuspicious = 0.3
	scoreClean      = 0.7
)

// ScoreForRatio maps a blocked-request ratio to a reputation score.
func ScoreForRatio(ratio float64) float64 {
	switch {
	case ratio > 0.5:
		return scoreMalicious
	case ratio > 0.2:
		return scoreSuspicious
	default:
		return scoreClean
	}
}

// TrustLevelFor derives the trust classification for a record. The explicit
// whitelist/blacklist flags take precedence over the computed score.
func TrustLevelFor(score float64, whitelisted, blacklisted bool) models.TrustLevel {
	switch {
	case blacklisted:
		return models.TrustMalicious
	case whitelisted:
		return models.TrustTrusted
	case score < 0.2:
		return models.TrustMalicious
	case score < 0.4:
		return models.TrustSuspicious
	case score > 0.6:
		return models.TrustTrusted
	default:
		return models.TrustNeutral
	}
}

// Tracker is the reputation service.
type Tracker struct {
	repo   repository.ReputationRepository
	logger *logging.Logger
}

// NewTracker creates a reputation tracker.
func NewTracker(repo repository.ReputationRepository, logger *logging.Logger) *Tracker {
	return &Tracker{repo: repo, logger: logger}
}

// Observe records one request outcome for the identity and returns the
// post-update record. blocked marks a request that was denied; suspicious
// marks one that produced detections without being denied.
func (t *Tracker) Observe(ctx context.Context, identity string, blocked, suspicious bool) (*models.ReputationRecord, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	rec, err := t.repo.Observe(ctx, identity, blocked, suspicious)
	if err != nil {
		return nil, fmt.Errorf("failed to observe %s: %w", identity, err)
	}
	return rec, nil
}

// Get returns the reputation record for an identity. An identity that has
// never been observed yields a neutral zero-history record rather than an
// error, so the scorer never needs a special case.
func (t *Tracker) Get(ctx context.Context, identity string) (*models.ReputationRecord, error) {
	rec, err := t.repo.GetReputation(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrReputationNotFound) {
			now := time.Now().UTC()
			return &models.ReputationRecord{
				Identity:        identity,
				FirstSeen:       now,
				LastSeen:        now,
				ReputationScore: scoreClean,
				TrustLevel:      models.TrustNeutral,
			}, nil
		}
		return nil, err
	}

	// A lapsed blacklist entry is reported as cleared even before the
	// cleanup pass rewrites the row.
	if rec.Blacklisted && rec.BlacklistExpiresAt != nil && rec.BlacklistExpiresAt.Before(time.Now()) {
		rec.Blacklisted = false
		rec.BlacklistReason = nil
		rec.BlacklistExpiresAt = nil
		rec.TrustLevel = TrustLevelFor(rec.ReputationScore, rec.Whitelisted, false)
	}
	return rec, nil
}

// Whitelist marks an identity as trusted regardless of history.
func (t *Tracker) Whitelist(ctx context.Context, identity string, whitelisted bool) error {
	if err := t.repo.SetWhitelisted(ctx, identity, whitelisted); err != nil {
		return err
	}
	t.logger.InfoContext(ctx, "whitelist updated",
		logging.Identity(identity),
		slog.Bool("whitelisted", whitelisted))
	return nil
}

// Blacklist places an identity on the blacklist. durationMinutes of 0 means
// the entry never expires.
func (t *Tracker) Blacklist(ctx context.Context, identity, reason string, durationMinutes int) error {
	var expiresAt *time.Time
	if durationMinutes > 0 {
		exp := time.Now().UTC().Add(time.Duration(durationMinutes) * time.Minute)
		expiresAt = &exp
	}
	if err := t.repo.SetBlacklisted(ctx, identity, reason, expiresAt); err != nil {
		return err
	}
	t.logger.InfoContext(ctx, "identity blacklisted",
		logging.Identity(identity),
		slog.String("reason", reason))
	return nil
}

// Unblacklist removes an identity from the blacklist.
func (t *Tracker) Unblacklist(ctx context.Context, identity string) error {
	if err := t.repo.ClearBlacklist(ctx, identity); err != nil {
		return err
	}
	t.logger.InfoContext(ctx, "identity removed from blacklist", logging.Identity(identity))
	return nil
}
