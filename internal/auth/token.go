package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind tags a token as usable for API access or for refresh only. The
// two share a wire format but are never interchangeable.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	defaultIssuer     = "schoolbridge"
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the signed content of every token.
type Claims struct {
	Role Role `json:"role"`
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HMAC-signed tokens. The secret is fixed at
// construction and shared read-only across concurrent verifications.
type Tokens struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokensOption configures a Tokens instance.
type TokensOption func(*Tokens)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) TokensOption {
	return func(t *Tokens) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			t.issuer = issuer
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokensOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokensOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokensOption {
	return func(t *Tokens) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokens constructs a token codec around a symmetric secret.
func NewTokens(secret []byte, opts ...TokensOption) (*Tokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	t := &Tokens{
		secret:     secret,
		issuer:     defaultIssuer,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// AccessTTL reports the configured access token lifetime.
func (t *Tokens) AccessTTL() time.Duration { return t.accessTTL }

// Issue signs a token of the given kind for subject. The expiry is
// issued-at plus ttl; a non-positive ttl produces an already-expired
// token, which Verify rejects once the clock moves past it.
func (t *Tokens) Issue(subject string, role Role, kind Kind, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", time.Time{}, errors.New("auth: unknown token kind")
	}
	now := t.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Role: role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueAccess signs a short-lived access token.
func (t *Tokens) IssueAccess(subject string, role Role) (string, time.Time, error) {
	return t.Issue(subject, role, KindAccess, t.accessTTL)
}

// IssueRefresh signs a long-lived refresh token.
func (t *Tokens) IssueRefresh(subject string, role Role) (string, time.Time, error) {
	return t.Issue(subject, role, KindRefresh, t.refreshTTL)
}

// Verify checks signature, expiry and kind, in that order. The
// signature is confirmed before any claim is trusted, so a forged token
// can never probe expiry semantics. Failures map to exactly one of
// ErrTokenMalformed, ErrTokenSignature, ErrTokenExpired or
// ErrTokenWrongKind.
func (t *Tokens) Verify(token string, kind Kind) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(tk *jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenMalformed
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if err := t.validateClaims(claims); err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, ErrTokenWrongKind
	}
	return claims, nil
}

func (t *Tokens) validateClaims(claims *Claims) error {
	if claims.Issuer != t.issuer {
		return ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return ErrTokenMalformed
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrTokenMalformed
	}
	if !claims.Role.Valid() {
		return ErrTokenMalformed
	}
	now := t.now().UTC()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return ErrTokenMalformed
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return ErrTokenMalformed
	}
	return nil
}
