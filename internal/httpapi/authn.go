package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"leadline.io/internal/auth"
	"leadline.io/internal/crm"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/api/v1/auth/register",
	"/api/v1/auth/login",
	"/metrics",
	"/healthz",
	"/readyz",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// withAuth resolves bearer tokens to a live principal. The token alone is not
// enough: the user row is re-read so a deactivated account loses access on
// its next request, not at token expiry.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}

		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, crm.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "unauthenticated", "invalid token")
			default:
				handleDomainError(w, r, err)
			}
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom unwraps the principal stored by withAuth. Handlers behind the
// middleware can rely on it being present.
func actorFrom(r *http.Request) (crm.Actor, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return crm.Actor{}, false
	}
	return crm.Actor{ID: p.ID, Name: p.Name, Role: p.Role}, true
}

func requireActor(w http.ResponseWriter, r *http.Request) (crm.Actor, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
	}
	return actor, ok
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
