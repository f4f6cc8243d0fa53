package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stagewire/dispatch/pkg/codec"
	"github.com/stagewire/dispatch/pkg/common"
	"go.uber.org/zap"
)

// RequireAuth resolves a subject identifier through the identity
// collaborator and records it on the request context. On failure it
// short-circuits with a 401 envelope and never invokes the rest of the
// chain. Resolution is stateless and idempotent: running the gate twice
// simply re-resolves and overwrites the subject.
func RequireAuth(resolver common.IdentityResolver, logger *zap.Logger) common.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := resolver.Resolve(r)
			if err != nil || subject == "" {
				logger.Warn("Authentication failed",
					zap.String("trace_id", common.TraceID(r)),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				_ = codec.WriteError(w, r, common.Unauthenticated("authentication required"))
				return
			}

			if rc := common.Ctx(r); rc != nil {
				rc.SubjectID = subject
			}
			logger.Debug("Authentication successful",
				zap.String("trace_id", common.TraceID(r)),
				zap.String("subject_id", subject),
			)
			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuth attempts resolution and records the subject when it
// succeeds, but lets the request proceed either way.
func OptionalAuth(resolver common.IdentityResolver, logger *zap.Logger) common.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subject, err := resolver.Resolve(r); err == nil && subject != "" {
				if rc := common.Ctx(r); rc != nil {
					rc.SubjectID = subject
				}
				logger.Debug("Authentication successful",
					zap.String("trace_id", common.TraceID(r)),
					zap.String("subject_id", subject),
				)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BearerTokenResolver resolves subjects from an Authorization bearer
// token. Verify validates the token and returns the subject it belongs
// to.
type BearerTokenResolver struct {
	Verify func(ctx context.Context, token string) (string, error)
}

// Resolve implements common.IdentityResolver.
func (p *BearerTokenResolver) Resolve(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("no authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	return p.Verify(r.Context(), token)
}

// APIKeyResolver resolves subjects from an API key carried in a header or
// a query parameter. Lookup validates the key and returns the subject it
// belongs to.
type APIKeyResolver struct {
	Lookup func(ctx context.Context, key string) (string, error)
	Header string // header name, e.g. "X-API-Key"
	Query  string // query parameter name, e.g. "api_key"
}

// Resolve implements common.IdentityResolver. The header takes precedence
// over the query parameter.
func (p *APIKeyResolver) Resolve(r *http.Request) (string, error) {
	if p.Header != "" {
		if key := r.Header.Get(p.Header); key != "" {
			return p.Lookup(r.Context(), key)
		}
	}
	if p.Query != "" {
		if key := r.URL.Query().Get(p.Query); key != "" {
			return p.Lookup(r.Context(), key)
		}
	}
	return "", errors.New("no API key found")
}
