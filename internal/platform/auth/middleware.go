package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mealbridge/api/internal/domain"
)

const defaultLeeway = 30 * time.Second

var (
	// ErrTokenExpired signals that the bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the bearer token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed bearer tokens and extracts the caller principal.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// Option customises Verifier behaviour.
type Option func(*Verifier)

// WithIssuer requires tokens to carry the given issuer claim.
func WithIssuer(issuer string) Option {
	return func(v *Verifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithLeeway tolerates clock skew when validating time-based claims.
func WithLeeway(leeway time.Duration) Option {
	return func(v *Verifier) {
		if leeway > 0 {
			v.leeway = leeway
		}
	}
}

// NewVerifier constructs a Verifier from the shared signing secret.
func NewVerifier(secret string, opts ...Option) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	v := &Verifier{
		secret: []byte(secret),
		leeway: defaultLeeway,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify parses the token and returns the principal it asserts.
func (v *Verifier) Verify(tokenStr string) (domain.Principal, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	parsed := claims{}
	_, err := jwt.ParseWithClaims(tokenStr, &parsed, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Principal{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	userID := strings.TrimSpace(parsed.Subject)
	if userID == "" {
		return domain.Principal{}, fmt.Errorf("%w: subject claim missing", ErrTokenInvalid)
	}
	role, err := parseRole(parsed.Role)
	if err != nil {
		return domain.Principal{}, err
	}
	return domain.Principal{UserID: userID, Role: role}, nil
}

func parseRole(raw string) (domain.Role, error) {
	switch domain.Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case domain.RoleCustomer:
		return domain.RoleCustomer, nil
	case domain.RoleOwner:
		return domain.RoleOwner, nil
	case domain.RoleAdmin:
		return domain.RoleAdmin, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, raw)
	}
}

// RequireAuth verifies the Authorization bearer token and stores the principal on the request context.
func (v *Verifier) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if v == nil {
				respondAuthError(w, "unauthenticated", "authorization service unavailable")
				return
			}

			principal, err := v.Verify(tokenStr)
			if err != nil {
				switch {
				case errors.Is(err, ErrTokenExpired):
					respondAuthError(w, "token_expired", "bearer token expired")
				default:
					respondAuthError(w, "invalid_token", "bearer token invalid")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  http.StatusUnauthorized,
	})
}
