package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/jardiel79162-commits/remixhub/internal/apperror"
	"github.com/jardiel79162-commits/remixhub/internal/model"
	"github.com/jardiel79162-commits/remixhub/internal/repository"
)

// compile-time check that *UserRepo implements repository.UserRepository
var _ repository.UserRepository = (*UserRepo)(nil)

// UserRepo implements repository.UserRepository on top of the shared DB.
//
// Each entity gets its own repo type over the same connection pool — the
// interfaces share method names (Create, GetByID), so one receiver can't
// satisfy all of them.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a UserRepo backed by db.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts a new user. The caller provides email and password hash;
// ID and timestamps are generated here. A duplicate email surfaces as
// apperror.ErrConflict so the signup handler can return 409.
func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, credits, cpf, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Credits,
		user.CPF,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		// modernc/sqlite reports UNIQUE violations in the error text; there is
		// no exported sentinel to errors.Is against.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, `WHERE id = ?`, id)
}

// GetByEmail retrieves a user by email (used by login).
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, `WHERE email = ?`, email)
}

func (r *UserRepo) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User

	err := r.db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, credits, cpf, created_at, updated_at
		 FROM users `+where,
		arg,
	).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Credits,
		&u.CPF,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user %v: %w", arg, err)
	}

	return &u, nil
}

// SetCredits writes the user's credit balance.
//
// This is a plain write, not an increment — both the remix deduction and the
// payment top-up read the current balance first and compute the new value in
// the service layer. Negative values are rejected as a safety net; the
// services floor at 0 before calling.
func (r *UserRepo) SetCredits(ctx context.Context, userID string, credits int) error {
	if credits < 0 {
		return fmt.Errorf("sqlite: credits must not be negative (got %d)", credits)
	}

	result, err := r.db.conn.ExecContext(ctx,
		`UPDATE users SET credits = ?, updated_at = ? WHERE id = ?`,
		credits, time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting credits for user %s: %w", userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", userID)
	}

	return nil
}

// SetCPF stores the user's payment document (opt-in at checkout).
func (r *UserRepo) SetCPF(ctx context.Context, userID, cpf string) error {
	result, err := r.db.conn.ExecContext(ctx,
		`UPDATE users SET cpf = ?, updated_at = ? WHERE id = ?`,
		cpf, time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting cpf for user %s: %w", userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", userID)
	}

	return nil
}
