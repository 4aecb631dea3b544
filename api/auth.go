/*
auth.go - Account endpoints: registration, sessions, password reset

PURPOSE:
  Passwords are stored as bcrypt hashes. A login opens a server-side
  session keyed by a random UUID sent back as an HttpOnly cookie; logout
  deletes it.

PASSWORD RESET:
  forgot-password always answers 200 with the same message so it cannot be
  used to probe which emails are registered. For a known email it stores a
  one-hour token and logs the reset link (no mail is sent). reset-password
  checks the token is unused and unexpired, then sets the new hash and
  spends the token in one transaction.

SEE ALSO:
  - middleware.go: Session cookie and requireSession
  - store/sqlite/sqlite.go: users, sessions, password_reset_tokens
*/
package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/alimony-tracker/ledger"
	"github.com/warp/alimony-tracker/logging"
	"github.com/warp/alimony-tracker/store/sqlite"
)

const (
	msgAllFieldsRequired  = "Todos os campos são obrigatórios."
	msgEmailTaken         = "Este e-mail já está registado."
	msgLoginRequired      = "E-mail e palavra-passe são obrigatórios."
	msgBadCredentials     = "E-mail ou palavra-passe inválidos."
	msgForgotEmailMissing = "Por favor, forneça o e-mail para recuperação."
	msgForgotSent         = "Se o e-mail estiver registado, um link para redefinir a sua palavra-passe foi enviado para ele."
	msgResetMissing       = "Token e nova palavra-passe são obrigatórios."
	msgPasswordMismatch   = "As palavras-passe não coincidem."
	msgTokenInvalid       = "Token inválido ou já utilizado."
	msgTokenExpired       = "Token expirado."
	msgTokenUserMissing   = "Utilizador associado ao token não encontrado."
)

// Register handles POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Surname) == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, msgAllFieldsRequired)
		return
	}

	hash, err := h.hashPassword(req.Password)
	if err != nil {
		h.internalError(w, "failed to hash password", err)
		return
	}

	user, err := h.Store.CreateUser(r.Context(), sqlite.User{
		Name:         strings.TrimSpace(req.Name),
		Surname:      strings.TrimSpace(req.Surname),
		Email:        req.Email,
		PasswordHash: hash,
	})
	if errors.Is(err, sqlite.ErrDuplicateEmail) {
		writeError(w, http.StatusConflict, msgEmailTaken)
		return
	}
	if err != nil {
		h.internalError(w, "failed to create user", err)
		return
	}

	h.logger.Info("user registered", logging.FieldUserID, user.ID)
	writeMessage(w, http.StatusCreated, "Utilizador registado com sucesso!")
}

// Login handles POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, msgLoginRequired)
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), email)
	if err != nil {
		h.internalError(w, "failed to load user", err)
		return
	}
	if user == nil || !checkPassword(req.Password, user.PasswordHash) {
		h.logger.Warn("login failed", "email", email)
		writeError(w, http.StatusUnauthorized, msgBadCredentials)
		return
	}

	sess := sqlite.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		ExpiresAt: h.now().Add(h.sessionTTL),
	}
	if err := h.Store.CreateSession(r.Context(), sess); err != nil {
		h.internalError(w, "failed to create session", err)
		return
	}

	http.SetCookie(w, h.sessionCookie(r, sess.ID))
	h.logger.Info("user logged in", logging.FieldUserID, user.ID)
	writeJSON(w, http.StatusOK, LoginResponse{
		Message:   "Login bem-sucedido",
		UserName:  user.Name,
		UserEmail: user.Email,
	})
}

// Logout handles POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if err := h.Store.DeleteSession(r.Context(), cookie.Value); err != nil {
			h.internalError(w, "failed to delete session", err)
			return
		}
	}
	http.SetCookie(w, h.deleteCookie(r))
	writeMessage(w, http.StatusOK, "Logout bem-sucedido")
}

// ForgotPassword handles POST /api/forgot-password
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, msgForgotEmailMissing)
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), email)
	if err != nil {
		h.internalError(w, "failed to load user", err)
		return
	}
	if user == nil {
		h.logger.Info("password reset for unknown email")
		writeMessage(w, http.StatusOK, msgForgotSent)
		return
	}

	token := sqlite.ResetToken{
		Token:     uuid.New().String(),
		UserID:    user.ID,
		ExpiresAt: h.now().Add(h.resetTTL),
	}
	if err := h.Store.CreateResetToken(r.Context(), token); err != nil {
		h.internalError(w, "failed to create reset token", err)
		return
	}

	h.logger.Info("password reset requested",
		logging.FieldUserID, user.ID,
		"reset_link", h.resetLink(token.Token),
		"expires_at", token.ExpiresAt,
	)
	writeMessage(w, http.StatusOK, msgForgotSent)
}

// ResetPassword handles POST /api/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		writeError(w, http.StatusBadRequest, msgResetMissing)
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, msgPasswordMismatch)
		return
	}

	token, err := h.Store.GetResetToken(r.Context(), req.Token)
	if err != nil {
		h.internalError(w, "failed to load reset token", err)
		return
	}
	if token == nil || token.Used {
		writeError(w, http.StatusBadRequest, msgTokenInvalid)
		return
	}
	if token.ExpiresAt.Before(h.now()) {
		writeError(w, http.StatusBadRequest, msgTokenExpired)
		return
	}
	user, err := h.Store.GetUser(r.Context(), token.UserID)
	if err != nil {
		h.internalError(w, "failed to load user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, msgTokenUserMissing)
		return
	}

	hash, err := h.hashPassword(req.NewPassword)
	if err != nil {
		h.internalError(w, "failed to hash password", err)
		return
	}
	if err := h.Store.ConsumeResetToken(r.Context(), req.Token, hash); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusBadRequest, msgTokenInvalid)
			return
		}
		h.internalError(w, "failed to reset password", err)
		return
	}

	h.logger.Info("password reset", logging.FieldUserID, user.ID)
	writeMessage(w, http.StatusOK, "Palavra-passe redefinida com sucesso!")
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.hashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (h *Handler) resetLink(token string) string {
	return h.frontendURL + "/redefinir-senha.html?token=" + url.QueryEscape(token)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
