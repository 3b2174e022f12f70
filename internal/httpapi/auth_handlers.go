package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"schoolbridge.org/internal/audit"
	"schoolbridge.org/internal/auth"
	"schoolbridge.org/internal/obs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	AccessExpiresAt  string `json:"access_expires_at"`
	RefreshExpiresAt string `json:"refresh_expires_at"`
	Username         string `json:"username"`
	Role             string `json:"role"`
}

func (a *API) handleAuth(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.URL.Path, "/api/v1/auth/")
	switch op {
	case "login":
		a.postOnly(w, r, a.Login)
	case "parent-login":
		a.postOnly(w, r, a.ParentLogin)
	case "refresh":
		a.postOnly(w, r, a.Refresh)
	case "logout":
		a.postOnly(w, r, a.Logout)
	case "change-password":
		a.postOnly(w, r, a.ChangePassword)
	case "profile":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.Profile(w, r)
	case "validate":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.Validate(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (a *API) postOnly(w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	h(w, r)
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, principal, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		obs.ObserveLogin(loginResult(err))
		a.writeAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"username": principal.Username,
		"role":     string(principal.Role),
	})
	writeJSON(w, http.StatusOK, a.tokenResponse(pair, principal))
}

// ParentLogin is the guardian-facing entry point; staff accounts are
// turned away even with a correct password.
func (a *API) ParentLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, principal, err := a.auth.ParentLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		obs.ObserveLogin(loginResult(err))
		a.writeAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.parent_login", map[string]any{
		"username": principal.Username,
	})
	writeJSON(w, http.StatusOK, a.tokenResponse(pair, principal))
}

func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, principal, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"username": principal.Username,
	})
	writeJSON(w, http.StatusOK, a.tokenResponse(pair, principal))
}

// Logout records the event for auditing. Issued tokens stay valid
// until they expire; there is no server-side revocation.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	token, _ := auth.TokenFromContext(r.Context())
	subject, err := a.auth.Logout(r.Context(), token)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"username": subject,
		"role":     string(principal.Role),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := a.auth.ChangePassword(r.Context(), principal.Username, req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.change_password", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func (a *API) Profile(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	user, err := a.school.GetUserByUsername(r.Context(), principal.Username)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Validate reports whether the presented bearer token is a usable
// access token. It always answers 200; validity is in the body.
func (a *API) Validate(w http.ResponseWriter, r *http.Request) {
	token, ok := extractBearerToken(r.Header.Get(authHeader))
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	claims, err := a.auth.Tokens().Verify(token, auth.KindAccess)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"username": claims.Subject,
		"role":     string(claims.Role),
	})
}

func (a *API) tokenResponse(pair auth.TokenPair, principal auth.Principal) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(a.auth.Tokens().AccessTTL().Seconds()),
		AccessExpiresAt:  pair.AccessExpiresAt.UTC().Format(time.RFC3339),
		RefreshExpiresAt: pair.RefreshExpiresAt.UTC().Format(time.RFC3339),
		Username:         principal.Username,
		Role:             string(principal.Role),
	}
}

func (a *API) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
	case errors.Is(err, auth.ErrAccountDisabled):
		writeError(w, r, http.StatusUnauthorized, "account_disabled", "account is disabled")
	case errors.Is(err, auth.ErrNotParentAccount):
		writeError(w, r, http.StatusForbidden, "not_parent_account", "account is not a parent account")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, "token_expired", "token has expired")
	case errors.Is(err, auth.ErrTokenSignature),
		errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrTokenWrongKind):
		writeError(w, r, http.StatusUnauthorized, "invalid_token", "invalid token")
	case errors.Is(err, auth.ErrPasswordMismatch):
		writeError(w, r, http.StatusBadRequest, "password_mismatch", "new password and confirmation do not match")
	case errors.Is(err, auth.ErrPasswordUnchanged):
		writeError(w, r, http.StatusBadRequest, "password_unchanged", "new password must differ from the old one")
	case errors.Is(err, auth.ErrPasswordIncorrect):
		writeError(w, r, http.StatusUnauthorized, "password_incorrect", "old password is incorrect")
	default:
		obs.Log("error", "auth request failed", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func loginResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, auth.ErrNotParentAccount):
		return "not_parent"
	default:
		return "error"
	}
}
