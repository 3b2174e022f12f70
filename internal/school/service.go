package school

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"schoolbridge.org/internal/auth"
)

// Service validates input and delegates persistence to a Store.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("school: store is required")
	}
	return &Service{store: store}, nil
}

// CreateUser registers an account. The caller supplies the plaintext
// password; only its bcrypt hash reaches the store.
func (s *Service) CreateUser(ctx context.Context, u User, password string) (User, error) {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	role, ok := auth.ParseRole(string(u.Role))
	if !ok {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, u.Role)
	}
	u.Role = role
	if u.Status == "" {
		u.Status = auth.StatusActive
	}
	if !validStatus(u.Status) {
		return User{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, u.Status)
	}
	if u.Email != "" && !strings.Contains(u.Email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, err
	}
	if err := s.store.CreateUser(ctx, &u, hash); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUser loads one account by id.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, id)
}

// GetUserByUsername loads one account by login name.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return s.store.GetUserByUsername(ctx, username)
}

// ListUsers pages through accounts.
func (s *Service) ListUsers(ctx context.Context, page Page) ([]User, error) {
	return s.store.ListUsers(ctx, page.Clamp())
}

// SearchUsers filters accounts by username, real name, phone, role or
// status. Role and status values must be known when supplied.
func (s *Service) SearchUsers(ctx context.Context, f UserFilter, page Page) ([]User, error) {
	f.Username = strings.TrimSpace(f.Username)
	f.RealName = strings.TrimSpace(f.RealName)
	f.Phone = strings.TrimSpace(f.Phone)
	if f.Role != "" {
		role, ok := auth.ParseRole(string(f.Role))
		if !ok {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, f.Role)
		}
		f.Role = role
	}
	if f.Status != "" && !validStatus(f.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	return s.store.SearchUsers(ctx, f, page.Clamp())
}

// UpdateUser applies a partial update to an account.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if upd.Role != nil {
		role, ok := auth.ParseRole(string(*upd.Role))
		if !ok {
			return User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *upd.Role)
		}
		upd.Role = &role
	}
	if upd.Status != nil && !validStatus(*upd.Status) {
		return User{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *upd.Status)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email != "" && !strings.Contains(email, "@") {
			return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	return s.store.UpdateUser(ctx, id, upd)
}

// SetUserStatus flips an account between active and disabled states.
func (s *Service) SetUserStatus(ctx context.Context, id string, status auth.Status) (User, error) {
	if !validStatus(status) {
		return User{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.UpdateUser(ctx, id, UserUpdate{Status: &status})
}

// DeleteUser removes an account.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.DeleteUser(ctx, id)
}

// CreateStudent enrolls a student.
func (s *Service) CreateStudent(ctx context.Context, st Student) (Student, error) {
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return Student{}, fmt.Errorf("%w: student name is required", ErrInvalidInput)
	}
	if st.Status == "" {
		st.Status = "active"
	}
	if err := s.store.CreateStudent(ctx, &st); err != nil {
		return Student{}, err
	}
	return st, nil
}

// GetStudent loads one student.
func (s *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Student{}, fmt.Errorf("%w: student id is required", ErrInvalidInput)
	}
	return s.store.GetStudent(ctx, id)
}

// ListStudents pages through students, optionally scoped to a class.
func (s *Service) ListStudents(ctx context.Context, classID string, page Page) ([]Student, error) {
	classID = strings.TrimSpace(classID)
	if classID != "" {
		return s.store.ListStudentsByClass(ctx, classID, page.Clamp())
	}
	return s.store.ListStudents(ctx, page.Clamp())
}

// UpdateStudent applies a partial update.
func (s *Service) UpdateStudent(ctx context.Context, id string, upd StudentUpdate) (Student, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Student{}, fmt.Errorf("%w: student id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Student{}, fmt.Errorf("%w: student name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	return s.store.UpdateStudent(ctx, id, upd)
}

// DeleteStudent removes a student.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: student id is required", ErrInvalidInput)
	}
	return s.store.DeleteStudent(ctx, id)
}

// CreateClass opens a class.
func (s *Service) CreateClass(ctx context.Context, c Class) (Class, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return Class{}, fmt.Errorf("%w: class name is required", ErrInvalidInput)
	}
	if c.Status == "" {
		c.Status = "active"
	}
	if err := s.store.CreateClass(ctx, &c); err != nil {
		return Class{}, err
	}
	return c, nil
}

// GetClass loads one class.
func (s *Service) GetClass(ctx context.Context, id string) (Class, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Class{}, fmt.Errorf("%w: class id is required", ErrInvalidInput)
	}
	return s.store.GetClass(ctx, id)
}

// ListClasses pages through classes.
func (s *Service) ListClasses(ctx context.Context, page Page) ([]Class, error) {
	return s.store.ListClasses(ctx, page.Clamp())
}

// UpdateClass applies a partial update.
func (s *Service) UpdateClass(ctx context.Context, id string, upd ClassUpdate) (Class, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Class{}, fmt.Errorf("%w: class id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Class{}, fmt.Errorf("%w: class name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	return s.store.UpdateClass(ctx, id, upd)
}

// AssignClassTeacher sets the homeroom teacher. The user must exist and
// hold a staff role.
func (s *Service) AssignClassTeacher(ctx context.Context, classID, teacherID string) error {
	classID = strings.TrimSpace(classID)
	teacherID = strings.TrimSpace(teacherID)
	if classID == "" || teacherID == "" {
		return fmt.Errorf("%w: class id and teacher id are required", ErrInvalidInput)
	}
	teacher, err := s.store.GetUser(ctx, teacherID)
	if err != nil {
		return err
	}
	if decision := auth.Authorize(&auth.Principal{Username: teacher.Username, Role: teacher.Role}, auth.StaffRoles...); !decision.Allowed {
		return fmt.Errorf("%w: %s is not a staff account", ErrInvalidInput, teacherID)
	}
	return s.store.SetClassTeacher(ctx, classID, teacherID)
}

// DeleteClass removes a class.
func (s *Service) DeleteClass(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: class id is required", ErrInvalidInput)
	}
	return s.store.DeleteClass(ctx, id)
}

// CreateRecord files a record about a student.
func (s *Service) CreateRecord(ctx context.Context, rec Record) (Record, error) {
	rec.StudentID = strings.TrimSpace(rec.StudentID)
	rec.Title = strings.TrimSpace(rec.Title)
	if rec.StudentID == "" {
		return Record{}, fmt.Errorf("%w: student id is required", ErrInvalidInput)
	}
	if rec.Title == "" {
		return Record{}, fmt.Errorf("%w: record title is required", ErrInvalidInput)
	}
	if rec.Type == "" {
		rec.Type = "general"
	}
	if rec.Importance == "" {
		rec.Importance = "medium"
	}
	if _, err := s.store.GetStudent(ctx, rec.StudentID); err != nil {
		return Record{}, err
	}
	if err := s.store.CreateRecord(ctx, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// GetRecord loads one record.
func (s *Service) GetRecord(ctx context.Context, id string) (Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}
	return s.store.GetRecord(ctx, id)
}

// ListRecords pages through records, optionally scoped to a student.
func (s *Service) ListRecords(ctx context.Context, studentID string, page Page) ([]Record, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID != "" {
		return s.store.ListRecordsByStudent(ctx, studentID, page.Clamp())
	}
	return s.store.ListRecords(ctx, page.Clamp())
}

// UpdateRecord applies a partial update.
func (s *Service) UpdateRecord(ctx context.Context, id string, upd RecordUpdate) (Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return Record{}, fmt.Errorf("%w: record title is required", ErrInvalidInput)
		}
		upd.Title = &title
	}
	return s.store.UpdateRecord(ctx, id, upd)
}

// DeleteRecord removes a record.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}
	return s.store.DeleteRecord(ctx, id)
}

// CreateNotification places an inbox item for one user.
func (s *Service) CreateNotification(ctx context.Context, n Notification) (Notification, error) {
	n.UserID = strings.TrimSpace(n.UserID)
	n.Title = strings.TrimSpace(n.Title)
	if n.UserID == "" {
		return Notification{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if n.Title == "" {
		return Notification{}, fmt.Errorf("%w: notification title is required", ErrInvalidInput)
	}
	if n.Type == "" {
		n.Type = "system"
	}
	if err := s.store.CreateNotification(ctx, &n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// ListNotifications pages through one user's inbox.
func (s *Service) ListNotifications(ctx context.Context, userID string, page Page) ([]Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.ListNotifications(ctx, userID, page.Clamp())
}

// MarkNotificationRead marks an inbox item read; the item must belong
// to the calling user.
func (s *Service) MarkNotificationRead(ctx context.Context, id, userID string) error {
	id = strings.TrimSpace(id)
	userID = strings.TrimSpace(userID)
	if id == "" || userID == "" {
		return fmt.Errorf("%w: notification id and user id are required", ErrInvalidInput)
	}
	return s.store.MarkNotificationRead(ctx, id, userID)
}

// CountUnreadNotifications reports the unread badge count.
func (s *Service) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.CountUnreadNotifications(ctx, userID)
}

func validStatus(status auth.Status) bool {
	switch status {
	case auth.StatusActive, auth.StatusInactive, auth.StatusSuspended:
		return true
	default:
		return false
	}
}
