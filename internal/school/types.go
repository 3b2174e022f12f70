package school

import (
	"errors"
	"time"

	"schoolbridge.org/internal/auth"
)

var (
	ErrNotFound     = errors.New("school: not found")
	ErrInvalidInput = errors.New("school: invalid input")
	ErrConflict     = errors.New("school: resource conflict")
)

// User is a platform account: staff or parent.
type User struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	RealName    string      `json:"real_name,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	Email       string      `json:"email,omitempty"`
	Role        auth.Role   `json:"role"`
	Status      auth.Status `json:"status"`
	LastLoginAt *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Student is a child enrolled in a class. Guardians are parent users.
type Student struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Gender         string     `json:"gender,omitempty"`
	BirthDate      *time.Time `json:"birth_date,omitempty"`
	ClassID        string     `json:"class_id,omitempty"`
	GuardianUserID string     `json:"guardian_user_id,omitempty"`
	EnrolledAt     *time.Time `json:"enrolled_at,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Class groups students under a homeroom teacher.
type Class struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Grade        string    `json:"grade,omitempty"`
	TeacherID    string    `json:"teacher_id,omitempty"`
	Description  string    `json:"description,omitempty"`
	StudentCount int       `json:"student_count"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Record is a dated note a teacher files about a student.
type Record struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	AuthorID   string    `json:"author_id"`
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	Content    string    `json:"content,omitempty"`
	Importance string    `json:"importance"`
	Public     bool      `json:"public"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Notification is a per-user inbox item.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content,omitempty"`
	Type      string     `json:"type"`
	RelatedID string     `json:"related_id,omitempty"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// UserFilter narrows a user search. Empty fields match everything;
// username and real name match as substrings, the rest exactly.
type UserFilter struct {
	Username string
	RealName string
	Phone    string
	Role     auth.Role
	Status   auth.Status
}

// UserUpdate carries optional field changes; nil means leave as-is.
type UserUpdate struct {
	RealName *string
	Phone    *string
	Email    *string
	Role     *auth.Role
	Status   *auth.Status
}

// StudentUpdate carries optional field changes; nil means leave as-is.
type StudentUpdate struct {
	Name           *string
	Gender         *string
	ClassID        *string
	GuardianUserID *string
	Status         *string
}

// ClassUpdate carries optional field changes; nil means leave as-is.
type ClassUpdate struct {
	Name        *string
	Grade       *string
	Description *string
	Status      *string
}

// RecordUpdate carries optional field changes; nil means leave as-is.
type RecordUpdate struct {
	Type       *string
	Title      *string
	Content    *string
	Importance *string
	Public     *bool
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Clamp normalizes a page to sane bounds.
func (p Page) Clamp() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
