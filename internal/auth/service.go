package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Credential is the stored login material for one account, read-only
// from this package's perspective.
type Credential struct {
	Username     string
	PasswordHash string
	Role         Role
	Status       Status
}

// CredentialStore is the narrow persistence contract the auth core
// depends on. Implementations must return ErrNotFound for unknown
// usernames and reserve other errors for infrastructure failures.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (Credential, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	TouchLastLogin(ctx context.Context, username string, at time.Time) error
}

// TokenPair carries a freshly issued access/refresh token pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Service implements login, refresh and password maintenance on top of
// an injected credential store and token codec.
type Service struct {
	store  CredentialStore
	tokens *Tokens
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithNow overrides the service time source (useful for tests).
func WithNow(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store CredentialStore, tokens *Tokens, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: credential store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token codec is required")
	}
	s := &Service{store: store, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tokens exposes the codec for the HTTP gate.
func (s *Service) Tokens() *Tokens { return s.tokens }

// Login authenticates a username/password pair and issues fresh tokens.
// Unknown usernames and wrong passwords are indistinguishable to the
// caller; a non-active account is reported only after the password
// matched.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		burnPasswordCheck(password)
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	cred, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			burnPasswordCheck(password)
			return TokenPair{}, Principal{}, ErrInvalidCredentials
		}
		return TokenPair{}, Principal{}, err
	}
	return s.finishLogin(ctx, cred, password)
}

// ParentLogin is Login restricted to parent accounts, used by the
// family-facing client.
func (s *Service) ParentLogin(ctx context.Context, username, password string) (TokenPair, Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		burnPasswordCheck(password)
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	cred, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			burnPasswordCheck(password)
			return TokenPair{}, Principal{}, ErrInvalidCredentials
		}
		return TokenPair{}, Principal{}, err
	}
	if cred.Role != RoleParent {
		return TokenPair{}, Principal{}, ErrNotParentAccount
	}
	return s.finishLogin(ctx, cred, password)
}

func (s *Service) finishLogin(ctx context.Context, cred Credential, password string) (TokenPair, Principal, error) {
	if err := VerifyPassword(cred.PasswordHash, password); err != nil {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	if cred.Status != StatusActive {
		return TokenPair{}, Principal{}, ErrAccountDisabled
	}
	// Best effort; login must not fail on a bookkeeping write.
	_ = s.store.TouchLastLogin(ctx, cred.Username, s.now().UTC())

	principal := Principal{Username: cred.Username, Role: cred.Role}
	pair, err := s.mintPair(principal)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, principal, nil
}

// Refresh exchanges a valid refresh token for a new access/refresh pair
// bound to the subject's current role and status. The presented refresh
// token is not invalidated: there is no revocation store, so it stays
// usable until its natural expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, Principal, error) {
	claims, err := s.tokens.Verify(refreshToken, KindRefresh)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	cred, err := s.store.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Principal{}, ErrInvalidCredentials
		}
		return TokenPair{}, Principal{}, err
	}
	if cred.Status != StatusActive {
		return TokenPair{}, Principal{}, ErrAccountDisabled
	}
	principal := Principal{Username: cred.Username, Role: cred.Role}
	pair, err := s.mintPair(principal)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, principal, nil
}

// ChangePassword rotates a password after re-proving the old one.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if strings.TrimSpace(newPassword) == "" {
		return ErrPasswordMismatch
	}
	cred, err := s.store.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if err := VerifyPassword(cred.PasswordHash, oldPassword); err != nil {
		return ErrPasswordIncorrect
	}
	if VerifyPassword(cred.PasswordHash, newPassword) == nil {
		return ErrPasswordUnchanged
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, cred.Username, hash)
}

// ResetPassword overwrites an account's password without proving the
// old one. Callers must gate it behind an administrative role.
func (s *Service) ResetPassword(ctx context.Context, username, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if strings.TrimSpace(newPassword) == "" {
		return ErrPasswordMismatch
	}
	cred, err := s.store.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, cred.Username, hash)
}

// Logout resolves the subject of a presented access token for audit
// purposes. Nothing is revoked: the token remains technically valid
// until it expires, which API consumers are told explicitly.
func (s *Service) Logout(_ context.Context, token string) (string, error) {
	claims, err := s.tokens.Verify(token, KindAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Service) mintPair(principal Principal) (TokenPair, error) {
	access, accessExp, err := s.tokens.IssueAccess(principal.Username, principal.Role)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(principal.Username, principal.Role)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}
