package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/jardiel79162-commits/remixhub/internal/apperror"
	"github.com/jardiel79162-commits/remixhub/internal/auth"
)

// newAuthFixture wires an AuthService over the mock user repo. bcrypt runs at
// MinCost so the suite doesn't pay ~250ms per hash.
func newAuthFixture(t *testing.T) (*AuthService, *mockUserRepo) {
	t.Helper()

	tokens, err := auth.NewTokenService("test-secret-0123456789abcdef")
	if err != nil {
		t.Fatalf("creating token service: %v", err)
	}
	users := newMockUserRepo()
	svc := NewAuthService(users, tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), testLogger())
	return svc, users
}

// =========================================================================
// SIGNUP TESTS
// =========================================================================

func TestSignUp(t *testing.T) {
	svc, _ := newAuthFixture(t)

	result, err := svc.SignUp(context.Background(), "Alice@Example.com ", "correct-horse-battery")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	if result.User.Email != "alice@example.com" {
		t.Errorf("email = %q, want lowercased/trimmed", result.User.Email)
	}
	// New accounts start empty — the balance comes from the credit store.
	if result.User.Credits != 0 {
		t.Errorf("starting credits = %d, want 0", result.User.Credits)
	}
	if result.Token == "" {
		t.Error("SignUp() should issue a session token")
	}
	if result.User.PasswordHash == "correct-horse-battery" {
		t.Error("password stored in plain text")
	}
}

func TestSignUp_Validation(t *testing.T) {
	svc, _ := newAuthFixture(t)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"invalid email", "not-an-email", "long-enough-password"},
		{"empty email", "", "long-enough-password"},
		{"short password", "a@example.com", "short"},
		{"over-long password", "a@example.com", strings.Repeat("x", MaxPasswordLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignUp(context.Background(), tt.email, tt.password)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("SignUp() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	svc, _ := newAuthFixture(t)

	if _, err := svc.SignUp(context.Background(), "dup@example.com", "long-enough-password"); err != nil {
		t.Fatalf("first SignUp() error = %v", err)
	}

	_, err := svc.SignUp(context.Background(), "dup@example.com", "another-password-99")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("duplicate SignUp() error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// LOGIN TESTS
// =========================================================================

func TestLogin(t *testing.T) {
	svc, _ := newAuthFixture(t)

	signedUp, err := svc.SignUp(context.Background(), "bob@example.com", "long-enough-password")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	result, err := svc.Login(context.Background(), "BOB@example.com", "long-enough-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.ID != signedUp.User.ID {
		t.Errorf("Login() user ID = %q, want %q", result.User.ID, signedUp.User.ID)
	}
	if result.Token == "" {
		t.Error("Login() should issue a session token")
	}
}

func TestLogin_BadCredentialsAreIndistinguishable(t *testing.T) {
	svc, _ := newAuthFixture(t)

	if _, err := svc.SignUp(context.Background(), "carol@example.com", "long-enough-password"); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	_, wrongPass := svc.Login(context.Background(), "carol@example.com", "wrong-password-123")
	_, unknownEmail := svc.Login(context.Background(), "nobody@example.com", "long-enough-password")

	// Both must be Forbidden with the SAME message — the response must not
	// reveal whether the email exists.
	for name, err := range map[string]error{"wrong password": wrongPass, "unknown email": unknownEmail} {
		if !errors.Is(err, apperror.ErrForbidden) {
			t.Errorf("%s: error = %v, want ErrForbidden", name, err)
		}
	}
	if wrongPass.Error() != unknownEmail.Error() {
		t.Errorf("error messages differ: %q vs %q", wrongPass.Error(), unknownEmail.Error())
	}
}

// =========================================================================
// PROFILE LOOKUP
// =========================================================================

func TestGetUserByID(t *testing.T) {
	svc, users := newAuthFixture(t)
	users.addUser("u1", "dave@example.com", 7)

	user, err := svc.GetUserByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Credits != 7 {
		t.Errorf("credits = %d, want 7", user.Credits)
	}

	if _, err := svc.GetUserByID(context.Background(), "ghost"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID(ghost) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetUserByID(context.Background(), ""); err == nil {
		t.Error("GetUserByID(\"\") should fail")
	}
}
