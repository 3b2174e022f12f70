package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"schoolbridge.org/internal/auth"
	"schoolbridge.org/internal/school"
)

// fakeCredStore is an in-memory credential backend.
type fakeCredStore struct {
	mu    sync.Mutex
	creds map[string]auth.Credential
}

func (f *fakeCredStore) FindByUsername(_ context.Context, username string) (auth.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred, ok := f.creds[username]
	if !ok {
		return auth.Credential{}, auth.ErrNotFound
	}
	return cred, nil
}

func (f *fakeCredStore) UpdatePassword(_ context.Context, username, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred, ok := f.creds[username]
	if !ok {
		return auth.ErrNotFound
	}
	cred.PasswordHash = hash
	f.creds[username] = cred
	return nil
}

func (f *fakeCredStore) TouchLastLogin(context.Context, string, time.Time) error { return nil }

// fakeSchoolStore keeps everything in maps; enough for handler tests.
type fakeSchoolStore struct {
	mu            sync.Mutex
	users         map[string]school.User
	students      map[string]school.Student
	classes       map[string]school.Class
	records       map[string]school.Record
	notifications map[string]school.Notification
	nextID        int
}

func newFakeSchoolStore() *fakeSchoolStore {
	return &fakeSchoolStore{
		users:         make(map[string]school.User),
		students:      make(map[string]school.Student),
		classes:       make(map[string]school.Class),
		records:       make(map[string]school.Record),
		notifications: make(map[string]school.Notification),
	}
}

func (f *fakeSchoolStore) id() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeSchoolStore) CreateUser(_ context.Context, u *school.User, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return school.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = f.id()
	}
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	f.users[u.ID] = *u
	return nil
}

func (f *fakeSchoolStore) GetUser(_ context.Context, id string) (school.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return school.User{}, school.ErrNotFound
	}
	return u, nil
}

func (f *fakeSchoolStore) GetUserByUsername(_ context.Context, username string) (school.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return school.User{}, school.ErrNotFound
}

func (f *fakeSchoolStore) ListUsers(_ context.Context, _ school.Page) ([]school.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []school.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeSchoolStore) SearchUsers(_ context.Context, filter school.UserFilter, _ school.Page) ([]school.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []school.User
	for _, u := range f.users {
		if filter.Username != "" && !strings.Contains(strings.ToLower(u.Username), strings.ToLower(filter.Username)) {
			continue
		}
		if filter.RealName != "" && !strings.Contains(strings.ToLower(u.RealName), strings.ToLower(filter.RealName)) {
			continue
		}
		if filter.Phone != "" && u.Phone != filter.Phone {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeSchoolStore) UpdateUser(_ context.Context, id string, upd school.UserUpdate) (school.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return school.User{}, school.ErrNotFound
	}
	if upd.RealName != nil {
		u.RealName = *upd.RealName
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	u.UpdatedAt = time.Now().UTC()
	f.users[id] = u
	return u, nil
}

func (f *fakeSchoolStore) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return school.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeSchoolStore) CreateStudent(_ context.Context, st *school.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st.ID == "" {
		st.ID = f.id()
	}
	f.students[st.ID] = *st
	return nil
}

func (f *fakeSchoolStore) GetStudent(_ context.Context, id string) (school.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.students[id]
	if !ok {
		return school.Student{}, school.ErrNotFound
	}
	return st, nil
}

func (f *fakeSchoolStore) ListStudents(_ context.Context, _ school.Page) ([]school.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []school.Student
	for _, st := range f.students {
		out = append(out, st)
	}
	return out, nil
}

func (f *fakeSchoolStore) ListStudentsByClass(_ context.Context, classID string, _ school.Page) ([]school.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []school.Student
	for _, st := range f.students {
		if st.ClassID == classID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeSchoolStore) UpdateStudent(_ context.Context, id string, upd school.StudentUpdate) (school.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.students[id]
	if !ok {
		return school.Student{}, school.ErrNotFound
	}
	if upd.Name != nil {
		st.Name = *upd.Name
	}
	if upd.Status != nil {
		st.Status = *upd.Status
	}
	f.students[id] = st
	return st, nil
}

func (f *fakeSchoolStore) DeleteStudent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.students[id]; !ok {
		return school.ErrNotFound
	}
	delete(f.students, id)
	return nil
}

func (f *fakeSchoolStore) CreateClass(_ context.Context, c *school.Class) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		c.ID = f.id()
	}
	f.classes[c.ID] = *c
	return nil
}

func (f *fakeSchoolStore) GetClass(_ context.Context, id string) (school.Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.classes[id]
	if !ok {
		return school.Class{}, school.ErrNotFound
	}
	return c, nil
}

func (f *fakeSchoolStore) ListClasses(_ context.Context, _ school.Page) ([]school.Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []school.Class
	for _, c := range f.classes {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeSchoolStore) UpdateClass(_ context.Context, id string, upd school.ClassUpdate) (school.Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.classes[id]
	if !ok {
		return school.Class{}, school.ErrNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	f.classes[id] = c
	return c, nil
}

func (f *fakeSchoolStore) SetClassTeacher(_ context.Context, classID, teacherID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.classes[classID]
	if !ok {
		return school.ErrNotFound
	}
	c.TeacherID = teacherID
	f.classes[classID] = c
	return nil
}

func (f *fakeSchoolStore) DeleteClass(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.classes[id]; !ok {
		return school.ErrNotFound
	}
	delete(f.classes, id)
	return nil
}

func (f *fakeSchoolStore) CreateRecord(_ context.Context, rec *school.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == "" {
		rec.ID = f.id()
	}
	f.records[rec.ID] = *rec
	return nil
}

func (f *fakeSchoolStore) GetRecord(_ context.Context, id string) (school.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return school.Record{}, school.ErrNotFound
	}
	return rec, nil
}

func (f *fakeSchoolStore) ListRecords(_ context.Context, _ school.Page) ([]school.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []school.Record
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeSchoolStore) ListRecordsByStudent(_ context.Context, studentID string, _ school.Page) ([]school.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []school.Record
	for _, rec := range f.records {
		if rec.StudentID == studentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeSchoolStore) UpdateRecord(_ context.Context, id string, upd school.RecordUpdate) (school.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return school.Record{}, school.ErrNotFound
	}
	if upd.Title != nil {
		rec.Title = *upd.Title
	}
	f.records[id] = rec
	return rec, nil
}

func (f *fakeSchoolStore) DeleteRecord(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return school.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeSchoolStore) CreateNotification(_ context.Context, n *school.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == "" {
		n.ID = f.id()
	}
	f.notifications[n.ID] = *n
	return nil
}

func (f *fakeSchoolStore) ListNotifications(_ context.Context, userID string, _ school.Page) ([]school.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []school.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeSchoolStore) MarkNotificationRead(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.UserID != userID || n.Read {
		return school.ErrNotFound
	}
	n.Read = true
	f.notifications[id] = n
	return nil
}

func (f *fakeSchoolStore) CountUnreadNotifications(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, n := range f.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

// --- fixture wiring ---

type testEnv struct {
	api    *API
	now    *time.Time
	creds  *fakeCredStore
	school *fakeSchoolStore
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return hash
}

// newTestEnv builds an API over in-memory stores with an advanceable
// clock and two seeded accounts: admin/admin-pass and parent/parent-pass.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tokens, err := auth.NewTokens([]byte("test-secret"), auth.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}

	creds := &fakeCredStore{creds: map[string]auth.Credential{
		"admin": {
			Username:     "admin",
			PasswordHash: mustHash(t, "admin-pass"),
			Role:         auth.RoleAdmin,
			Status:       auth.StatusActive,
		},
		"parent": {
			Username:     "parent",
			PasswordHash: mustHash(t, "parent-pass"),
			Role:         auth.RoleParent,
			Status:       auth.StatusActive,
		},
	}}

	authSvc, err := auth.NewService(creds, tokens, auth.WithNow(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}

	store := newFakeSchoolStore()
	store.users["u-admin"] = school.User{ID: "u-admin", Username: "admin", Role: auth.RoleAdmin, Status: auth.StatusActive}
	store.users["u-parent"] = school.User{ID: "u-parent", Username: "parent", Role: auth.RoleParent, Status: auth.StatusActive}

	schoolSvc, err := school.NewService(store)
	if err != nil {
		t.Fatalf("school.NewService: %v", err)
	}

	env := &testEnv{
		api:    New(authSvc, schoolSvc, ReadyProbe{}, "test"),
		now:    &now,
		creds:  creds,
		school: store,
	}
	return env
}

func (e *testEnv) advance(d time.Duration) { *e.now = e.now.Add(d) }

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.api.Handler().ServeHTTP(rec, req)
	return rec
}
