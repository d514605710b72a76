package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jardiel79162-commits/remixhub/internal/auth"
	"github.com/jardiel79162-commits/remixhub/internal/service"
)

// AuthHandler manages signup, login, and the authenticated profile endpoint.
type AuthHandler struct {
	authSvc *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authSvc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authSvc: authSvc,
		logger:  logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse returns the session token plus the bits of the profile the
// UI renders immediately (credits in the header).
type authResponse struct {
	Token   string `json:"token"`
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Credits int    `json:"credits"`
}

// HandleSignUp registers a new account.
//
// HTTP: POST /api/auth/signup
// BODY: {"email": "...", "password": "..."}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	result, err := h.authSvc.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token:   result.Token,
		UserID:  result.User.ID,
		Email:   result.User.Email,
		Credits: result.User.Credits,
	})
}

// HandleLogin verifies credentials and issues a session token.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	result, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token:   result.Token,
		UserID:  result.User.ID,
		Email:   result.User.Email,
		Credits: result.User.Credits,
	})
}

// HandleProfile returns the authenticated user's profile (id, email,
// credits). The credit balance here is what the store and the low-credit
// banner display.
//
// HTTP: GET /api/profile (requires auth)
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	user, err := h.authSvc.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
