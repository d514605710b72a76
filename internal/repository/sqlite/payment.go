package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/jardiel79162-commits/remixhub/internal/apperror"
	"github.com/jardiel79162-commits/remixhub/internal/model"
	"github.com/jardiel79162-commits/remixhub/internal/repository"
)

// compile-time check that *PaymentRepo implements repository.PaymentRepository
var _ repository.PaymentRepository = (*PaymentRepo)(nil)

const paymentColumns = `id, user_id, credits_purchased, amount_cents, status, mp_payment_id, created_at, updated_at`

// PaymentRepo implements repository.PaymentRepository on top of the shared DB.
type PaymentRepo struct {
	db *DB
}

// NewPaymentRepo creates a PaymentRepo backed by db.
func NewPaymentRepo(db *DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

// Create inserts a new pending payment. ID and timestamps generated here.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	p.ID = xid.New().String()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = model.PaymentStatusPending
	}

	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO payments (id, user_id, credits_purchased, amount_cents, status, mp_payment_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.UserID,
		p.CreditsPurchased,
		p.AmountCents,
		p.Status,
		p.MPPaymentID,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by its internal ID.
func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id,
	)

	p, err := scanPayment(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("payment", id)
		}
		return nil, fmt.Errorf("sqlite: getting payment %s: %w", id, err)
	}

	return p, nil
}

// SetMPPaymentID records Mercado Pago's transaction ID after the provider
// accepts the payment request.
func (r *PaymentRepo) SetMPPaymentID(ctx context.Context, id, mpPaymentID string) error {
	result, err := r.db.conn.ExecContext(ctx,
		`UPDATE payments SET mp_payment_id = ?, updated_at = ? WHERE id = ?`,
		mpPaymentID, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting mp payment id for %s: %w", id, err)
	}

	return requireRow(result, "payment", id)
}

// SetStatus updates the payment status (approved / expired).
func (r *PaymentRepo) SetStatus(ctx context.Context, id, status string) error {
	result, err := r.db.conn.ExecContext(ctx,
		`UPDATE payments SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting payment %s status: %w", id, err)
	}

	return requireRow(result, "payment", id)
}

// FindNewestPending returns the user's most recent pending payment for
// exactly `credits` credits.
//
// This backs the webhook reconciliation fallback — matching on
// (user, quantity, pending, newest) rather than a strict external key. Two
// pending payments for the same quantity can be conflated by this lookup.
func (r *PaymentRepo) FindNewestPending(ctx context.Context, userID string, credits int) (*model.Payment, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE user_id = ? AND credits_purchased = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, credits, model.PaymentStatusPending,
	)

	p, err := scanPayment(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("payment", fmt.Sprintf("pending/%s/%d", userID, credits))
		}
		return nil, fmt.Errorf("sqlite: finding pending payment: %w", err)
	}

	return p, nil
}

func scanPayment(scan func(dest ...any) error) (*model.Payment, error) {
	var p model.Payment
	err := scan(
		&p.ID,
		&p.UserID,
		&p.CreditsPurchased,
		&p.AmountCents,
		&p.Status,
		&p.MPPaymentID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
