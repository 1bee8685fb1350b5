package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// publicPaths are served without authentication.
var publicPaths = []string{
	"/health",
	"/ping",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// RequireToken authenticates requests with a bearer token. Service tokens go
// to services, everything else to users.
func RequireToken(users, services TokenVerifier, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			// Already authenticated by debug impersonation.
			if _, ok := GetUserClaims(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			token, err := ExtractTokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
				return
			}

			verifier := users
			if IsServiceToken(token) {
				verifier = services
			}
			if verifier == nil {
				WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "token type not accepted")
				return
			}
			claims, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				logger.Debug("rejected token", zap.String("path", r.URL.Path), zap.Error(err))
				WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(withUserClaims(r.Context(), claims)))
		})
	}
}

// DebugImpersonation lets a request act as the user named in the
// X-Debug-Impersonate-User header. It does nothing unless enabled, and must
// only be enabled in development.
func DebugImpersonation(enabled bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled {
				if uid := strings.TrimSpace(r.Header.Get("X-Debug-Impersonate-User")); uid != "" {
					claims := &UserClaims{
						UID:   uid,
						Email: uid + "@debug.local",
					}
					r = r.WithContext(withUserClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LocalDev authenticates every request as a fixed local user, unless an
// earlier middleware already set claims.
func LocalDev() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := GetUserClaims(r.Context()); !ok && !isPublicPath(r.URL.Path) {
				r = r.WithContext(withUserClaims(r.Context(), &UserClaims{
					UID:         LocalDevUserID,
					Email:       "dev@localhost",
					DisplayName: "Local Dev User",
					Verified:    true,
				}))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LocalDevUserID is the user LocalDev authenticates as.
const LocalDevUserID = "local-dev-user"

// Chain applies middlewares so that the first one listed runs first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ErrorBody is the JSON error envelope shared by every endpoint.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a JSON error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// Context keys
type contextKey string

const userClaimsKey contextKey = "user_claims"

// withUserClaims adds user claims to the context
func withUserClaims(ctx context.Context, claims *UserClaims) context.Context {
	return context.WithValue(ctx, userClaimsKey, claims)
}

// WithUserClaims is the exported version for testing purposes
func WithUserClaims(ctx context.Context, claims *UserClaims) context.Context {
	return withUserClaims(ctx, claims)
}

// GetUserClaims extracts user claims from context
func GetUserClaims(ctx context.Context) (*UserClaims, bool) {
	claims, ok := ctx.Value(userClaimsKey).(*UserClaims)
	return claims, ok && claims != nil
}

// GetUserID is a convenience function to get the user ID from context
func GetUserID(ctx context.Context) (string, bool) {
	if claims, ok := GetUserClaims(ctx); ok {
		return claims.UID, true
	}
	return "", false
}
