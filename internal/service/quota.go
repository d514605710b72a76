// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the database
//
// Services accept primitives and return domain errors (apperror), never HTTP
// types — the handlers translate. Each service receives its repository
// INTERFACES via the constructor, so tests inject in-memory mocks.
package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jardiel79162-commits/remixhub/internal/apperror"
	"github.com/jardiel79162-commits/remixhub/internal/repository"
)

// Quota limits.
//
// The window is ROLLING: every check counts jobs created within the trailing
// hour relative to "now", not within a fixed clock-hour bucket.
const (
	MaxRemixesPerHour = 3
	QuotaWindow       = time.Hour
)

// QuotaService is the admission control in front of the remix engine.
//
// Both checks run BEFORE a history record is created and before any GitHub
// call, so rejected attempts leave no trace — the quota only ever counts
// jobs that actually started.
type QuotaService struct {
	remixes repository.RemixRepository
	users   repository.UserRepository

	// now is an injectable clock so the window arithmetic is testable.
	now func() time.Time
}

// NewQuotaService creates a QuotaService.
func NewQuotaService(remixes repository.RemixRepository, users repository.UserRepository) *QuotaService {
	return &QuotaService{
		remixes: remixes,
		users:   users,
		now:     time.Now,
	}
}

// CheckQuota rejects the request if the user already started
// MaxRemixesPerHour jobs (status processing or completed — failed jobs don't
// count) within the trailing hour.
//
// The rejection message carries the exact wait: the minutes until the OLDEST
// counted job falls out of the window, rounded up.
func (s *QuotaService) CheckQuota(ctx context.Context, userID string) error {
	now := s.now()

	recent, err := s.remixes.ListStartedSince(ctx, userID, now.Add(-QuotaWindow))
	if err != nil {
		return fmt.Errorf("service/quota: listing recent remixes: %w", err)
	}

	if len(recent) < MaxRemixesPerHour {
		return nil
	}

	// ListStartedSince returns oldest first.
	oldest := recent[0]
	unlockAt := oldest.CreatedAt.Add(QuotaWindow)
	minutesLeft := int(math.Ceil(unlockAt.Sub(now).Minutes()))
	if minutesLeft < 1 {
		minutesLeft = 1
	}

	plural := ""
	if minutesLeft > 1 {
		plural = "s"
	}
	return apperror.RateLimited(fmt.Sprintf(
		"Limite de %d remixes por hora atingido. Tente novamente em %d minuto%s.",
		MaxRemixesPerHour, minutesLeft, plural,
	))
}

// CheckCredits rejects the request if the user has no credits left.
// The balance is re-read at deduction time by the orchestrator; this check
// is only the admission floor (credits >= 1).
func (s *QuotaService) CheckCredits(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/quota: loading user %s: %w", userID, err)
	}

	if user.Credits < 1 {
		return apperror.InsufficientCredits("Créditos insuficientes. Recarregue na loja.")
	}

	return nil
}
