package httpapi

import (
	"net/http"
	"time"

	"schoolbridge.org/internal/audit"
	"schoolbridge.org/internal/auth"
	"schoolbridge.org/internal/school"
)

// staffOnly rejects principals outside the staff role set. The auth
// gate guarantees a principal is present on these routes.
func (a *API) staffOnly(w http.ResponseWriter, r *http.Request) bool {
	var ref *auth.Principal
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		ref = &principal
	}
	if decision := auth.Authorize(ref, auth.StaffRoles...); !decision.Allowed {
		writeError(w, r, http.StatusForbidden, "forbidden", "insufficient role")
		return false
	}
	return true
}

// currentUser resolves the authenticated principal to its user row.
func (a *API) currentUser(w http.ResponseWriter, r *http.Request) (school.User, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return school.User{}, false
	}
	user, err := a.school.GetUserByUsername(r.Context(), principal.Username)
	if err != nil {
		writeDomainError(w, r, err)
		return school.User{}, false
	}
	return user, true
}

// Students -----------------------------------------------------------

type studentRequest struct {
	Name           string     `json:"name"`
	Gender         string     `json:"gender"`
	BirthDate      *time.Time `json:"birth_date"`
	ClassID        string     `json:"class_id"`
	GuardianUserID string     `json:"guardian_user_id"`
	EnrolledAt     *time.Time `json:"enrolled_at"`
	Status         string     `json:"status"`
}

type updateStudentRequest struct {
	Name           *string `json:"name"`
	Gender         *string `json:"gender"`
	ClassID        *string `json:"class_id"`
	GuardianUserID *string `json:"guardian_user_id"`
	Status         *string `json:"status"`
}

func (a *API) handleStudents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		students, err := a.school.ListStudents(r.Context(), r.URL.Query().Get("class_id"), parsePage(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listBody(students))
	case http.MethodPost:
		if !a.staffOnly(w, r) {
			return
		}
		var req studentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		created, err := a.school.CreateStudent(r.Context(), school.Student{
			Name:           req.Name,
			Gender:         req.Gender,
			BirthDate:      req.BirthDate,
			ClassID:        req.ClassID,
			GuardianUserID: req.GuardianUserID,
			EnrolledAt:     req.EnrolledAt,
			Status:         req.Status,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "student.created", map[string]any{"student_id": created.ID})
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func (a *API) handleStudentByID(w http.ResponseWriter, r *http.Request) {
	id, rest := splitResourcePath(r.URL.Path, "/api/v1/students/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}

	if rest == "records" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		records, err := a.school.ListRecords(r.Context(), id, parsePage(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listBody(records))
		return
	}
	if rest != "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		student, err := a.school.GetStudent(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, student)
	case http.MethodPut:
		if !a.staffOnly(w, r) {
			return
		}
		var req updateStudentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		student, err := a.school.UpdateStudent(r.Context(), id, school.StudentUpdate{
			Name:           req.Name,
			Gender:         req.Gender,
			ClassID:        req.ClassID,
			GuardianUserID: req.GuardianUserID,
			Status:         req.Status,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "student.updated", map[string]any{"student_id": id})
		writeJSON(w, http.StatusOK, student)
	case http.MethodDelete:
		if !a.staffOnly(w, r) {
			return
		}
		if err := a.school.DeleteStudent(r.Context(), id); err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "student.deleted", map[string]any{"student_id": id})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, "GET, PUT, DELETE")
	}
}

// Classes ------------------------------------------------------------

type classRequest struct {
	Name        string `json:"name"`
	Grade       string `json:"grade"`
	TeacherID   string `json:"teacher_id"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type updateClassRequest struct {
	Name        *string `json:"name"`
	Grade       *string `json:"grade"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type assignTeacherRequest struct {
	TeacherID string `json:"teacher_id"`
}

func (a *API) handleClasses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		classes, err := a.school.ListClasses(r.Context(), parsePage(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listBody(classes))
	case http.MethodPost:
		if !a.staffOnly(w, r) {
			return
		}
		var req classRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		created, err := a.school.CreateClass(r.Context(), school.Class{
			Name:        req.Name,
			Grade:       req.Grade,
			TeacherID:   req.TeacherID,
			Description: req.Description,
			Status:      req.Status,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "class.created", map[string]any{"class_id": created.ID})
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func (a *API) handleClassByID(w http.ResponseWriter, r *http.Request) {
	id, rest := splitResourcePath(r.URL.Path, "/api/v1/classes/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}

	switch rest {
	case "students":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		students, err := a.school.ListStudents(r.Context(), id, parsePage(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listBody(students))
		return
	case "teacher":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.staffOnly(w, r) {
			return
		}
		var req assignTeacherRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := a.school.AssignClassTeacher(r.Context(), id, req.TeacherID); err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "class.teacher_assigned", map[string]any{
			"class_id":   id,
			"teacher_id": req.TeacherID,
		})
		writeJSON(w, http.StatusOK, map[string]any{"status": "assigned"})
		return
	case "":
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		class, err := a.school.GetClass(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, class)
	case http.MethodPut:
		if !a.staffOnly(w, r) {
			return
		}
		var req updateClassRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		class, err := a.school.UpdateClass(r.Context(), id, school.ClassUpdate{
			Name:        req.Name,
			Grade:       req.Grade,
			Description: req.Description,
			Status:      req.Status,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "class.updated", map[string]any{"class_id": id})
		writeJSON(w, http.StatusOK, class)
	case http.MethodDelete:
		if !a.staffOnly(w, r) {
			return
		}
		if err := a.school.DeleteClass(r.Context(), id); err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "class.deleted", map[string]any{"class_id": id})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, "GET, PUT, DELETE")
	}
}

// Records ------------------------------------------------------------

type recordRequest struct {
	StudentID  string `json:"student_id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Importance string `json:"importance"`
	Public     bool   `json:"public"`
}

type updateRecordRequest struct {
	Type       *string `json:"type"`
	Title      *string `json:"title"`
	Content    *string `json:"content"`
	Importance *string `json:"importance"`
	Public     *bool   `json:"public"`
}

func (a *API) handleRecords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := a.school.ListRecords(r.Context(), r.URL.Query().Get("student_id"), parsePage(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listBody(records))
	case http.MethodPost:
		if !a.staffOnly(w, r) {
			return
		}
		author, ok := a.currentUser(w, r)
		if !ok {
			return
		}
		var req recordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		created, err := a.school.CreateRecord(r.Context(), school.Record{
			StudentID:  req.StudentID,
			AuthorID:   author.ID,
			Type:       req.Type,
			Title:      req.Title,
			Content:    req.Content,
			Importance: req.Importance,
			Public:     req.Public,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "record.created", map[string]any{
			"record_id":  created.ID,
			"student_id": created.StudentID,
		})
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func (a *API) handleRecordByID(w http.ResponseWriter, r *http.Request) {
	id, rest := splitResourcePath(r.URL.Path, "/api/v1/records/")
	if id == "" || rest != "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := a.school.GetRecord(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	case http.MethodPut:
		if !a.staffOnly(w, r) {
			return
		}
		var req updateRecordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		record, err := a.school.UpdateRecord(r.Context(), id, school.RecordUpdate{
			Type:       req.Type,
			Title:      req.Title,
			Content:    req.Content,
			Importance: req.Importance,
			Public:     req.Public,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "record.updated", map[string]any{"record_id": id})
		writeJSON(w, http.StatusOK, record)
	case http.MethodDelete:
		if !a.staffOnly(w, r) {
			return
		}
		if err := a.school.DeleteRecord(r.Context(), id); err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "record.deleted", map[string]any{"record_id": id})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, "GET, PUT, DELETE")
	}
}

// Notifications ------------------------------------------------------

type notificationRequest struct {
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	RelatedID string `json:"related_id"`
}

func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user, ok := a.currentUser(w, r)
		if !ok {
			return
		}
		items, err := a.school.ListNotifications(r.Context(), user.ID, parsePage(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listBody(items))
	case http.MethodPost:
		if !a.staffOnly(w, r) {
			return
		}
		var req notificationRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		created, err := a.school.CreateNotification(r.Context(), school.Notification{
			UserID:    req.UserID,
			Title:     req.Title,
			Content:   req.Content,
			Type:      req.Type,
			RelatedID: req.RelatedID,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func (a *API) handleNotificationByID(w http.ResponseWriter, r *http.Request) {
	id, rest := splitResourcePath(r.URL.Path, "/api/v1/notifications/")

	// GET /api/v1/notifications/unread-count
	if id == "unread-count" && rest == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		user, ok := a.currentUser(w, r)
		if !ok {
			return
		}
		n, err := a.school.CountUnreadNotifications(r.Context(), user.ID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"unread": n})
		return
	}

	// PUT /api/v1/notifications/{id}/read
	if id != "" && rest == "read" {
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		user, ok := a.currentUser(w, r)
		if !ok {
			return
		}
		if err := a.school.MarkNotificationRead(r.Context(), id, user.ID); err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "read"})
		return
	}

	writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
}
