package school

import "context"

// Store describes the persistence operations the school domain needs.
// Implementations return ErrNotFound for missing rows and ErrConflict
// for uniqueness violations.
type Store interface {
	CreateUser(ctx context.Context, u *User, passwordHash string) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, page Page) ([]User, error)
	SearchUsers(ctx context.Context, f UserFilter, page Page) ([]User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateStudent(ctx context.Context, st *Student) error
	GetStudent(ctx context.Context, id string) (Student, error)
	ListStudents(ctx context.Context, page Page) ([]Student, error)
	ListStudentsByClass(ctx context.Context, classID string, page Page) ([]Student, error)
	UpdateStudent(ctx context.Context, id string, upd StudentUpdate) (Student, error)
	DeleteStudent(ctx context.Context, id string) error

	CreateClass(ctx context.Context, c *Class) error
	GetClass(ctx context.Context, id string) (Class, error)
	ListClasses(ctx context.Context, page Page) ([]Class, error)
	UpdateClass(ctx context.Context, id string, upd ClassUpdate) (Class, error)
	SetClassTeacher(ctx context.Context, classID, teacherID string) error
	DeleteClass(ctx context.Context, id string) error

	CreateRecord(ctx context.Context, rec *Record) error
	GetRecord(ctx context.Context, id string) (Record, error)
	ListRecords(ctx context.Context, page Page) ([]Record, error)
	ListRecordsByStudent(ctx context.Context, studentID string, page Page) ([]Record, error)
	UpdateRecord(ctx context.Context, id string, upd RecordUpdate) (Record, error)
	DeleteRecord(ctx context.Context, id string) error

	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID string, page Page) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
}
