package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/pkg/logger"
)

// Header names read by ActorAuth.
const (
	HeaderActorID = "X-Actor-ID"
	HeaderAPIKey  = "X-API-Key"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTOR AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// ActorAuth authenticates requests against stored actor key hashes.
type ActorAuth struct {
	actors access.Repository
	logger *logger.Logger
}

// NewActorAuth creates a new actor authenticator.
func NewActorAuth(actors access.Repository, log *logger.Logger) *ActorAuth {
	if log == nil {
		log = logger.Nop()
	}
	return &ActorAuth{actors: actors, logger: log.With(logger.Component("auth"))}
}

// Authenticate returns the actor identified by id when key matches its hash.
// Unknown actors and wrong keys both yield shared.ErrInvalidCredentials.
func (a *ActorAuth) Authenticate(ctx context.Context, id, key string) (access.Actor, error) {
	if id == "" || key == "" {
		return access.Actor{}, shared.ErrInvalidCredentials
	}

	hash, err := a.actors.GetKeyHash(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			return access.Actor{}, shared.ErrInvalidCredentials
		}
		return access.Actor{}, err
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
		return access.Actor{}, shared.ErrInvalidCredentials
	}

	actor, err := a.actors.GetByID(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			return access.Actor{}, shared.ErrInvalidCredentials
		}
		return access.Actor{}, err
	}
	return *actor, nil
}

// Middleware rejects unauthenticated requests and stores the actor in the
// request context.
func (a *ActorAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderActorID))
		key := r.Header.Get(HeaderAPIKey)

		// Also accept the key as a bearer token.
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if id == "" || key == "" {
			WriteError(w, http.StatusUnauthorized, "missing_credentials", "actor id and API key are required")
			return
		}

		actor, err := a.Authenticate(r.Context(), id, key)
		switch {
		case errors.Is(err, shared.ErrInvalidCredentials):
			a.logger.Warn("authentication failed", logger.ActorID(id))
			WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid actor id or API key")
			return
		case err != nil:
			a.logger.Error("actor lookup failed", logger.ActorID(id), logger.Err(err))
			WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "authentication backend unavailable")
			return
		}

		next.ServeHTTP(w, r.WithContext(access.WithActor(r.Context(), actor)))
	})
}

// HashKey returns the bcrypt hash stored for an actor key.
func HashKey(key string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMEOUT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// TimeoutMiddleware bounds request contexts. Handlers observe the deadline
// through ctx; the response is written by them.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY HEADERS MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR BODY
// ══════════════════════════════════════════════════════════════════════════════

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WriteError writes the failure envelope used by the API.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc is a function that wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain chains multiple middleware functions. The first one is outermost.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// ChainHandler chains middleware and wraps a final handler.
func ChainHandler(handler http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	return Chain(middlewares...)(handler)
}
