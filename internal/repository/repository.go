// Package repository defines the storage interfaces the service layer
// depends on. Concrete implementations live in subpackages (sqlite).
package repository

import (
	"context"
	"time"

	"github.com/jardiel79162-commits/remixhub/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository persists user accounts and their credit balance.
//
// Note there is no atomic "decrement" — the credit balance is written with
// SetCredits after a read, matching the read-then-write accounting the remix
// engine and payment webhook both use (the floor at 0 is enforced by the
// callers; see service.RemixService and service.PaymentService).
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	SetCredits(ctx context.Context, userID string, credits int) error
	SetCPF(ctx context.Context, userID, cpf string) error
}

// RemixRepository persists remix history records.
//
// A record is inserted with status "processing" the moment a job is admitted,
// and reaches exactly one terminal update (SetCompleted or SetError). Logs
// are saved as a whole transcript — the in-flight buffer is owned by the job
// goroutine, not the store.
type RemixRepository interface {
	Create(ctx context.Context, job *model.RemixJob) error
	GetByID(ctx context.Context, id string) (*model.RemixJob, error)
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]model.RemixJob, error)

	// ListStartedSince returns the user's jobs with status processing or
	// completed created at or after `since`, oldest first. Jobs that failed
	// do not count against the quota window.
	ListStartedSince(ctx context.Context, userID string, since time.Time) ([]model.RemixJob, error)

	SaveLogs(ctx context.Context, id string, logs []string) error
	SetCompleted(ctx context.Context, id string, completedAt time.Time) error
	SetError(ctx context.Context, id, message string) error
	Delete(ctx context.Context, id string) error
}

// PaymentRepository persists PIX credit purchases.
type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByID(ctx context.Context, id string) (*model.Payment, error)
	SetMPPaymentID(ctx context.Context, id, mpPaymentID string) error
	SetStatus(ctx context.Context, id, status string) error

	// FindNewestPending returns the user's most recent pending payment for
	// exactly `credits` credits, or apperror.ErrNotFound. Used by the webhook
	// reconciliation fallback.
	FindNewestPending(ctx context.Context, userID string, credits int) (*model.Payment, error)
}
