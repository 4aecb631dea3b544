/*
middleware.go - Request logging and session middleware

PURPOSE:
  requestLogger writes one structured line per request through slog,
  tagged with chi's request id. requireSession resolves the session cookie
  to a user id and rejects the request with 401 otherwise.

SESSION COOKIE:
  Name "session", value a random UUID stored in the sessions table.
  HttpOnly, SameSite=Lax, Secure when configured or when the request
  arrived over TLS.

SEE ALSO:
  - auth.go: Login and logout create and clear the cookie
  - server.go: Middleware order
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/warp/alimony-tracker/logging"
)

// SessionCookie is the name of the login cookie.
const SessionCookie = "session"

type contextKey string

const userContextKey contextKey = "user_id"

// requestLogger logs method, path, status and duration. Server errors are
// logged at error level and client errors at warn.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				logging.FieldRequestID, middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// requireSession loads the session named by the cookie. Missing, unknown
// and expired sessions all answer 401 with a redirect to the login page.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value == "" {
			writeUnauthorized(w)
			return
		}

		sess, err := h.Store.GetSession(r.Context(), cookie.Value)
		if err != nil {
			h.logger.Error("session lookup failed", logging.FieldError, err)
			writeError(w, http.StatusInternalServerError, msgInternal)
			return
		}
		if sess == nil || !sess.ExpiresAt.After(h.now()) {
			http.SetCookie(w, h.deleteCookie(r))
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, sess.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the id placed in the context by requireSession.
func userID(ctx context.Context) int64 {
	id, _ := ctx.Value(userContextKey).(int64)
	return id
}

// sessionCookie lives for the session TTL counted by the browser. The expiry
// stored with the session is still what requireSession checks.
func (h *Handler) sessionCookie(r *http.Request, value string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) deleteCookie(r *http.Request) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure || r.TLS != nil,
	}
}
