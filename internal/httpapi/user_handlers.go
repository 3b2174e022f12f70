package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"schoolbridge.org/internal/audit"
	"schoolbridge.org/internal/auth"
	"schoolbridge.org/internal/school"
)

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	RealName string `json:"real_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

type updateUserRequest struct {
	RealName *string `json:"real_name"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type resetPasswordRequest struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// handleUsers serves the /api/v1/users collection.
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := a.school.ListUsers(r.Context(), parsePage(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listBody(users))
	case http.MethodPost:
		var req createUserRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		role, ok := auth.ParseRole(req.Role)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "unknown role")
			return
		}
		user := school.User{
			Username: req.Username,
			RealName: req.RealName,
			Phone:    req.Phone,
			Email:    req.Email,
			Role:     role,
			Status:   auth.Status(req.Status),
		}
		if user.Status == "" {
			user.Status = auth.StatusActive
		}
		created, err := a.school.CreateUser(r.Context(), user, req.Password)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.created", map[string]any{
			"user_id":  created.ID,
			"username": created.Username,
			"new_role": string(created.Role),
		})
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

// handleUserByID serves /api/v1/users/{id}, its status and
// reset-password subresources, and the /api/v1/users/search query.
func (a *API) handleUserByID(w http.ResponseWriter, r *http.Request) {
	id, rest := splitResourcePath(r.URL.Path, "/api/v1/users/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}

	if id == "search" && rest == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.searchUsers(w, r)
		return
	}

	if rest == "reset-password" {
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.resetUserPassword(w, r, id)
		return
	}

	if rest == "status" {
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req setStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		user, err := a.school.SetUserStatus(r.Context(), id, auth.Status(req.Status))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.status_changed", map[string]any{
			"user_id":    id,
			"new_status": req.Status,
		})
		writeJSON(w, http.StatusOK, user)
		return
	}
	if rest != "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := a.school.GetUser(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		var req updateUserRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		upd := school.UserUpdate{
			RealName: req.RealName,
			Phone:    req.Phone,
			Email:    req.Email,
		}
		if req.Role != nil {
			role, ok := auth.ParseRole(*req.Role)
			if !ok {
				writeError(w, r, http.StatusBadRequest, "invalid_request", "unknown role")
				return
			}
			upd.Role = &role
		}
		if req.Status != nil {
			status := auth.Status(*req.Status)
			upd.Status = &status
		}
		user, err := a.school.UpdateUser(r.Context(), id, upd)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{"user_id": id})
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if err := a.school.DeleteUser(r.Context(), id); err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{"user_id": id})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, "GET, PUT, DELETE")
	}
}

// searchUsers filters accounts by query parameters; absent parameters
// match everything.
func (a *API) searchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := school.UserFilter{
		Username: q.Get("username"),
		RealName: q.Get("real_name"),
		Phone:    q.Get("phone"),
		Role:     auth.Role(q.Get("role")),
		Status:   auth.Status(q.Get("status")),
	}
	users, err := a.school.SearchUsers(r.Context(), filter, parsePage(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listBody(users))
}

// resetUserPassword overwrites a user's password. The route is admin
// gated; unlike change-password no old password is required.
func (a *API) resetUserPassword(w http.ResponseWriter, r *http.Request, id string) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := a.school.GetUser(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := a.auth.ResetPassword(r.Context(), user.Username, req.NewPassword, req.ConfirmPassword); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeDomainError(w, r, err)
			return
		}
		a.writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.password_reset", map[string]any{
		"user_id":  id,
		"username": user.Username,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

// --- shared routing helpers ---

// splitResourcePath trims the collection prefix and returns the id and
// whatever trails it ("" when the path names the resource itself).
func splitResourcePath(path, prefix string) (id, rest string) {
	trimmed := strings.TrimPrefix(path, prefix)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func parsePage(r *http.Request) school.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return school.Page{Limit: limit, Offset: offset}
}

// listBody keeps list endpoints from returning a bare null when the
// result set is empty.
func listBody[T any](items []T) map[string]any {
	if items == nil {
		items = []T{}
	}
	return map[string]any{"items": items, "count": len(items)}
}
