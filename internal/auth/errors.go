package auth

import "errors"

// Credential errors. ErrInvalidCredentials deliberately covers both an
// unknown username and a wrong password so callers cannot tell the two
// apart. ErrAccountDisabled is only reachable after the submitted
// password matched.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountDisabled    = errors.New("auth: account disabled")
	ErrNotParentAccount   = errors.New("auth: not a parent account")
)

// Token errors, one per failure mode so the HTTP layer can report and
// meter them separately.
var (
	ErrTokenMalformed = errors.New("auth: malformed token")
	ErrTokenSignature = errors.New("auth: invalid token signature")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenWrongKind = errors.New("auth: wrong token kind")
)

// Password change errors.
var (
	ErrPasswordMismatch  = errors.New("auth: new password and confirmation differ")
	ErrPasswordIncorrect = errors.New("auth: old password is incorrect")
	ErrPasswordUnchanged = errors.New("auth: new password equals the old one")
)

// ErrNotFound is returned by credential stores for unknown usernames.
var ErrNotFound = errors.New("auth: not found")
