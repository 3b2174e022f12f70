package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"schoolbridge.org/internal/auth"
	"schoolbridge.org/internal/school"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestFindByUsername(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"username", "password_hash", "role", "status"}).
		AddRow("alice", "$2a$hash", "TEACHER", "active")
	mock.ExpectQuery("select username, password_hash, role, status from users").
		WithArgs("alice").WillReturnRows(rows)

	cred, err := store.FindByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if cred.Username != "alice" || cred.Role != auth.RoleTeacher || cred.Status != auth.StatusActive {
		t.Fatalf("unexpected credential: %+v", cred)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByUsernameMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select username, password_hash, role, status from users").
		WithArgs("ghost").WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "role", "status"}))

	_, err := store.FindByUsername(context.Background(), "ghost")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePasswordMissingUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update users set password_hash").
		WithArgs("$2a$new", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdatePassword(context.Background(), "ghost", "$2a$new")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	u := &school.User{Username: "alice", Role: auth.RoleParent, Status: auth.StatusActive}
	err := store.CreateUser(context.Background(), u, "$2a$hash")
	if !errors.Is(err, school.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected an id to be assigned before the insert")
	}
}

func TestUpdateUserPartial(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`update users set email = \$1, updated_at = now\(\) where id = \$2`).
		WithArgs("new@example.org", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	rows := sqlmock.NewRows([]string{"id", "username", "real_name", "phone", "email", "role", "status", "last_login_at", "created_at", "updated_at"}).
		AddRow("u1", "alice", nil, nil, "new@example.org", "PARENT", "active", nil, now, now)
	mock.ExpectQuery("select id, username, real_name, phone, email, role, status, last_login_at, created_at, updated_at from users").
		WithArgs("u1").WillReturnRows(rows)

	email := "new@example.org"
	u, err := store.UpdateUser(context.Background(), "u1", school.UserUpdate{Email: &email})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if u.Email != "new@example.org" {
		t.Fatalf("email not updated: %+v", u)
	}
	if u.LastLoginAt != nil {
		t.Fatalf("expected nil last login, got %v", u.LastLoginAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSearchUsersBuildsConditions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "username", "real_name", "phone", "email", "role", "status", "last_login_at", "created_at", "updated_at"}).
		AddRow("u1", "t.zhang", "Zhang Wei", nil, nil, "TEACHER", "active", nil, now, now)
	mock.ExpectQuery(`select id, username, real_name, phone, email, role, status, last_login_at, created_at, updated_at from users where username ilike \$1 and role = \$2 order by created_at asc limit \$3 offset \$4`).
		WithArgs("%zhang%", "TEACHER", 50, 0).
		WillReturnRows(rows)

	users, err := store.SearchUsers(context.Background(), school.UserFilter{
		Username: "zhang",
		Role:     "TEACHER",
	}, school.Page{Limit: 50})
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(users) != 1 || users[0].Username != "t.zhang" {
		t.Fatalf("unexpected result: %+v", users)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSearchUsersNoFilterListsAll(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select id, username, real_name, phone, email, role, status, last_login_at, created_at, updated_at from users order by created_at asc limit \$1 offset \$2`).
		WithArgs(25, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "real_name", "phone", "email", "role", "status", "last_login_at", "created_at", "updated_at"}))

	users, err := store.SearchUsers(context.Background(), school.UserFilter{}, school.Page{Limit: 25, Offset: 5})
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if users != nil {
		t.Fatalf("expected empty result, got %+v", users)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateUserNoFieldsSkipsWrite(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	// Only the re-fetch should hit the database.
	rows := sqlmock.NewRows([]string{"id", "username", "real_name", "phone", "email", "role", "status", "last_login_at", "created_at", "updated_at"}).
		AddRow("u1", "alice", nil, nil, nil, "PARENT", "active", nil, now, now)
	mock.ExpectQuery("select id, username, real_name, phone, email, role, status, last_login_at, created_at, updated_at from users").
		WithArgs("u1").WillReturnRows(rows)

	if _, err := store.UpdateUser(context.Background(), "u1", school.UserUpdate{}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetStudentMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, name, gender, birth_date, class_id, guardian_user_id, enrolled_at, status, created_at, updated_at from students").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetStudent(context.Background(), "s1")
	if !errors.Is(err, school.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkNotificationReadTwice(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update notifications set read = true").
		WithArgs("n1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update notifications set read = true").
		WithArgs("n1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.MarkNotificationRead(context.Background(), "n1", "u1"); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	err := store.MarkNotificationRead(context.Background(), "n1", "u1")
	if !errors.Is(err, school.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second mark, got %v", err)
	}
}

func TestCountUnreadNotifications(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select count\(\*\) from notifications`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.CountUnreadNotifications(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CountUnreadNotifications: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 unread, got %d", n)
	}
}
