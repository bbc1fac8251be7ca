// Package auth guards the HTTP API with HS256 bearer tokens. When
// disabled, the middleware lets every request through.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const PrincipalContextKey ContextKey = "principal"

// CookieName is checked when no Authorization header is sent.
const CookieName = "auth_token"

const DefaultTTL = 24 * time.Hour

var (
	ErrMissingSecret = errors.New("auth: jwt secret is required")
	ErrMissingToken  = errors.New("auth: token required")
	ErrInvalidToken  = errors.New("auth: invalid token")
)

// Principal is the caller identified by a validated token.
type Principal struct {
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Claims struct {
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret  []byte
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

// New returns an Authenticator. An enabled Authenticator requires a secret;
// ttl <= 0 falls back to DefaultTTL.
func New(secret string, ttl time.Duration, enabled bool) (*Authenticator, error) {
	if enabled && strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authenticator{
		secret:  []byte(secret),
		ttl:     ttl,
		enabled: enabled,
		now:     time.Now,
	}, nil
}

func (a *Authenticator) Enabled() bool { return a != nil && a.enabled }

// Issue signs a token for subject.
func (a *Authenticator) Issue(subject string) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrMissingSecret
	}
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("auth: subject is required")
	}
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Validate parses tokenString and returns its principal.
func (a *Authenticator) Validate(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	p := &Principal{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Middleware validates the bearer token (or auth cookie) when enabled and
// stores the Principal in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		p, err := a.Validate(tokenFromRequest(r))
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected request")
			w.Header().Set("WWW-Authenticate", `Bearer realm="relatedwork"`)
			if errors.Is(err, ErrMissingToken) {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(PrincipalContextKey).(*Principal); ok {
		return p
	}
	return nil
}
