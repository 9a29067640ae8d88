// Package auth turns bearer tokens into a contracts.Caller.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/contracts"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const callerContextKey contextKey = "caller"

// ErrInvalidToken is returned for any token that fails verification
var ErrInvalidToken = errors.New("invalid token")

// Claims represents the JWT claims. The subject carries the user UUID.
type Claims struct {
	Role      contracts.Role `json:"role"`
	Superuser bool           `json:"superuser,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier for tokens issued by issuer
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// GenerateToken creates a signed token for caller
func (v *Verifier) GenerateToken(caller contracts.Caller, duration time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:      caller.Role,
		Superuser: caller.Superuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// ValidateToken validates a token and returns its caller
func (v *Verifier) ValidateToken(tokenString string) (contracts.Caller, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return contracts.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return contracts.Caller{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return contracts.Caller{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return contracts.Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return contracts.Caller{UserID: userID, Role: claims.Role, Superuser: claims.Superuser}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(w, "invalid authorization header format")
			return
		}

		caller, err := v.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// OptionalMiddleware authenticates when a token is presented through the
// Authorization header or the access_token query parameter, and lets
// anonymous requests through. Websocket clients use the query form.
func (v *Verifier) OptionalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			v.Middleware(next).ServeHTTP(w, r)
			return
		}

		token := r.URL.Query().Get("access_token")
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		caller, err := v.ValidateToken(token)
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// WithCaller returns ctx carrying caller
func WithCaller(ctx context.Context, caller contracts.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext extracts the caller stored by Middleware
func CallerFromContext(ctx context.Context) (contracts.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(contracts.Caller)
	return caller, ok
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   apperr.New(apperr.KindUnauthenticated, apperr.CodeInvalidToken, message),
	})
}
