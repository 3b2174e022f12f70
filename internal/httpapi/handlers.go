// Package httpapi is the HTTP layer: routing, authentication gate,
// role checks, and JSON encoding for the service beneath it.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"schoolbridge.org/internal/audit"
	"schoolbridge.org/internal/auth"
	"schoolbridge.org/internal/obs"
	"schoolbridge.org/internal/school"
)

// ReadyProbe reports whether downstream dependencies are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	school     *school.Service
	readyProbe ReadyProbe
	version    string
}

func New(authSvc *auth.Service, schoolSvc *school.Service, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       authSvc,
		school:     schoolSvc,
		readyProbe: rp,
		version:    version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth surface
	a.mux.HandleFunc("/api/v1/auth/", a.handleAuth)

	// role-gated resources
	a.mux.Handle("/api/v1/users", a.requireRoles(http.HandlerFunc(a.handleUsers), auth.AdminRoles...))
	a.mux.Handle("/api/v1/users/", a.requireRoles(http.HandlerFunc(a.handleUserByID), auth.AdminRoles...))
	a.mux.Handle("/api/v1/students", a.requireAnyPrincipal(http.HandlerFunc(a.handleStudents)))
	a.mux.Handle("/api/v1/students/", a.requireAnyPrincipal(http.HandlerFunc(a.handleStudentByID)))
	a.mux.Handle("/api/v1/classes", a.requireAnyPrincipal(http.HandlerFunc(a.handleClasses)))
	a.mux.Handle("/api/v1/classes/", a.requireAnyPrincipal(http.HandlerFunc(a.handleClassByID)))
	a.mux.Handle("/api/v1/records", a.requireAnyPrincipal(http.HandlerFunc(a.handleRecords)))
	a.mux.Handle("/api/v1/records/", a.requireAnyPrincipal(http.HandlerFunc(a.handleRecordByID)))
	a.mux.Handle("/api/v1/notifications", a.requireAnyPrincipal(http.HandlerFunc(a.handleNotifications)))
	a.mux.Handle("/api/v1/notifications/", a.requireAnyPrincipal(http.HandlerFunc(a.handleNotificationByID)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})

	return a
}

// Handler wires the middleware chain around the mux. Metrics wrap
// everything so 401/403 responses are counted too; the request id
// middleware runs first so every later layer can log it.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- service handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "schoolbridge-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "schoolbridge-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

type errorBody struct {
	Code      int    `json:"code"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
}

// Numeric response codes. Generic failures mirror the HTTP status;
// credential, token and password failures get their own ranges so a
// client can tell an expired token from a bad password without string
// matching on the message.
const (
	codeInvalidCredentials = 1001
	codeAccountDisabled    = 1002
	codeNotParentAccount   = 1003
	codeTokenExpired       = 1101
	codeInvalidToken       = 1102
	codePasswordMismatch   = 1201
	codePasswordUnchanged  = 1202
	codePasswordIncorrect  = 1203
)

var errorCodes = map[string]int{
	"invalid_credentials": codeInvalidCredentials,
	"account_disabled":    codeAccountDisabled,
	"not_parent_account":  codeNotParentAccount,
	"token_expired":       codeTokenExpired,
	"invalid_token":       codeInvalidToken,
	"password_mismatch":   codePasswordMismatch,
	"password_unchanged":  codePasswordUnchanged,
	"password_incorrect":  codePasswordIncorrect,
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, reason, message string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="schoolbridge"`)
	}
	code, ok := errorCodes[reason]
	if !ok {
		code = status
	}
	writeJSON(w, status, errorBody{
		Code:      code,
		Reason:    reason,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return false
	}
	// trailing garbage after the JSON document is also a client error
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// writeDomainError maps school/auth sentinel errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, school.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, school.ErrNotFound), errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, school.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", "resource already exists")
	default:
		obs.Log("error", "request failed", map[string]any{"error": err.Error()})
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
