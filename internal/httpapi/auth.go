package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"rentdesk/internal/models"
	"rentdesk/internal/store"
)

type authContextKey struct{}

type authInfo struct {
	Session models.Session
}

type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
}

func AuthMiddleware(sessions SessionStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, err := sessions.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		if entry, ok := r.Context().Value(logContextKey{}).(*logEntry); ok {
			entry.agencyID = session.AgencyID
			entry.userID = session.UserID
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Session: session})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (models.Session, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return models.Session{}, false
	}
	info, ok := value.(authInfo)
	if !ok {
		return models.Session{}, false
	}
	return info.Session, true
}

// requireSession writes 401 when the request carries no resolved session.
func requireSession(w http.ResponseWriter, r *http.Request) (models.Session, bool) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return models.Session{}, false
	}
	return session, true
}

// requireAgency allows platform admins into any agency and everyone else
// only into their own.
func requireAgency(w http.ResponseWriter, r *http.Request, agencyID string) bool {
	session, ok := requireSession(w, r)
	if !ok {
		return false
	}
	if agencyID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "agency_id is required")
		return false
	}
	if session.Role != models.RolePlatformAdmin && session.AgencyID != agencyID {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "agency access denied")
		return false
	}
	return true
}

func scopeFor(session models.Session) store.Scope {
	return store.Scope{AgencyID: session.AgencyID, UserID: session.UserID, Role: session.Role}
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/auth/login":
		return r.Method == http.MethodPost
	case "/api/listings/search":
		return r.Method == http.MethodGet
	case "/api/public/leads":
		return r.Method == http.MethodPost
	}
	if strings.HasPrefix(r.URL.Path, "/api/public/quotations/") {
		return true
	}
	// The realtime endpoint checks the session on its own handshake.
	if strings.HasPrefix(r.URL.Path, "/realtime/") {
		return true
	}
	return r.Method == http.MethodOptions
}
