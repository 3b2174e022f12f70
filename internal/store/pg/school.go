package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"schoolbridge.org/internal/ids"
	"schoolbridge.org/internal/school"
)

// Students ------------------------------------------------------------

const studentColumns = `id, name, gender, birth_date, class_id, guardian_user_id, enrolled_at, status, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (school.Student, error) {
	var (
		st       school.Student
		gender   sql.NullString
		birth    sql.NullTime
		classID  sql.NullString
		guardian sql.NullString
		enrolled sql.NullTime
	)
	err := row.Scan(&st.ID, &st.Name, &gender, &birth, &classID, &guardian, &enrolled, &st.Status, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return school.Student{}, school.ErrNotFound
		}
		return school.Student{}, err
	}
	st.Gender = gender.String
	st.ClassID = classID.String
	st.GuardianUserID = guardian.String
	if birth.Valid {
		t := birth.Time
		st.BirthDate = &t
	}
	if enrolled.Valid {
		t := enrolled.Time
		st.EnrolledAt = &t
	}
	return st, nil
}

func (s *Store) CreateStudent(ctx context.Context, st *school.Student) error {
	if st.ID == "" {
		st.ID = ids.New()
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into students(id, name, gender, birth_date, class_id, guardian_user_id, enrolled_at, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, st.ID, st.Name, nullIfEmpty(st.Gender), st.BirthDate, nullIfEmpty(st.ClassID), nullIfEmpty(st.GuardianUserID), st.EnrolledAt, st.Status, now, now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return school.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id string) (school.Student, error) {
	row := s.db.QueryRowContext(ctx, `select `+studentColumns+` from students where id = $1`, id)
	return scanStudent(row)
}

func (s *Store) ListStudents(ctx context.Context, page school.Page) ([]school.Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+studentColumns+` from students order by created_at asc limit $1 offset $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStudents(rows)
}

func (s *Store) ListStudentsByClass(ctx context.Context, classID string, page school.Page) ([]school.Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+studentColumns+` from students where class_id = $1 order by name asc limit $2 offset $3
	`, classID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStudents(rows)
}

func collectStudents(rows *sql.Rows) ([]school.Student, error) {
	var out []school.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStudent(ctx context.Context, id string, upd school.StudentUpdate) (school.Student, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Gender != nil {
		sets = append(sets, fmt.Sprintf("gender = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Gender))
		idx++
	}
	if upd.ClassID != nil {
		sets = append(sets, fmt.Sprintf("class_id = $%d", idx))
		args = append(args, nullIfEmpty(*upd.ClassID))
		idx++
	}
	if upd.GuardianUserID != nil {
		sets = append(sets, fmt.Sprintf("guardian_user_id = $%d", idx))
		args = append(args, nullIfEmpty(*upd.GuardianUserID))
		idx++
	}
	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *upd.Status)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update students set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return school.Student{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return school.Student{}, err
		}
		if aff == 0 {
			return school.Student{}, school.ErrNotFound
		}
	}
	return s.GetStudent(ctx, id)
}

func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "students", id)
}

// Classes -------------------------------------------------------------

const classColumns = `id, name, grade, teacher_id, description, student_count, status, created_at, updated_at`

func scanClass(row interface{ Scan(...any) error }) (school.Class, error) {
	var (
		c       school.Class
		grade   sql.NullString
		teacher sql.NullString
		desc    sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &grade, &teacher, &desc, &c.StudentCount, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return school.Class{}, school.ErrNotFound
		}
		return school.Class{}, err
	}
	c.Grade = grade.String
	c.TeacherID = teacher.String
	c.Description = desc.String
	return c, nil
}

func (s *Store) CreateClass(ctx context.Context, c *school.Class) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into classes(id, name, grade, teacher_id, description, student_count, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,0,$6,$7,$8)
	`, c.ID, c.Name, nullIfEmpty(c.Grade), nullIfEmpty(c.TeacherID), nullIfEmpty(c.Description), c.Status, now, now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return school.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetClass(ctx context.Context, id string) (school.Class, error) {
	row := s.db.QueryRowContext(ctx, `select `+classColumns+` from classes where id = $1`, id)
	return scanClass(row)
}

func (s *Store) ListClasses(ctx context.Context, page school.Page) ([]school.Class, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+classColumns+` from classes order by name asc limit $1 offset $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []school.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateClass(ctx context.Context, id string, upd school.ClassUpdate) (school.Class, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Grade != nil {
		sets = append(sets, fmt.Sprintf("grade = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Grade))
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *upd.Status)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update classes set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return school.Class{}, school.ErrConflict
			}
			return school.Class{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return school.Class{}, err
		}
		if aff == 0 {
			return school.Class{}, school.ErrNotFound
		}
	}
	return s.GetClass(ctx, id)
}

func (s *Store) SetClassTeacher(ctx context.Context, classID, teacherID string) error {
	res, err := s.db.ExecContext(ctx, `
		update classes set teacher_id = $1, updated_at = now() where id = $2
	`, teacherID, classID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return school.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteClass(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "classes", id)
}

// Records -------------------------------------------------------------

const recordColumns = `id, student_id, author_id, type, title, content, importance, public, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (school.Record, error) {
	var (
		rec     school.Record
		content sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.AuthorID, &rec.Type, &rec.Title, &content, &rec.Importance, &rec.Public, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return school.Record{}, school.ErrNotFound
		}
		return school.Record{}, err
	}
	rec.Content = content.String
	return rec, nil
}

func (s *Store) CreateRecord(ctx context.Context, rec *school.Record) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into records(id, student_id, author_id, type, title, content, importance, public, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, rec.ID, rec.StudentID, rec.AuthorID, rec.Type, rec.Title, nullIfEmpty(rec.Content), rec.Importance, rec.Public, now, now)
	return err
}

func (s *Store) GetRecord(ctx context.Context, id string) (school.Record, error) {
	row := s.db.QueryRowContext(ctx, `select `+recordColumns+` from records where id = $1`, id)
	return scanRecord(row)
}

func (s *Store) ListRecords(ctx context.Context, page school.Page) ([]school.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+recordColumns+` from records order by created_at desc limit $1 offset $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *Store) ListRecordsByStudent(ctx context.Context, studentID string, page school.Page) ([]school.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+recordColumns+` from records where student_id = $1 order by created_at desc limit $2 offset $3
	`, studentID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]school.Record, error) {
	var out []school.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRecord(ctx context.Context, id string, upd school.RecordUpdate) (school.Record, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Type != nil {
		sets = append(sets, fmt.Sprintf("type = $%d", idx))
		args = append(args, *upd.Type)
		idx++
	}
	if upd.Title != nil {
		sets = append(sets, fmt.Sprintf("title = $%d", idx))
		args = append(args, *upd.Title)
		idx++
	}
	if upd.Content != nil {
		sets = append(sets, fmt.Sprintf("content = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Content))
		idx++
	}
	if upd.Importance != nil {
		sets = append(sets, fmt.Sprintf("importance = $%d", idx))
		args = append(args, *upd.Importance)
		idx++
	}
	if upd.Public != nil {
		sets = append(sets, fmt.Sprintf("public = $%d", idx))
		args = append(args, *upd.Public)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update records set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return school.Record{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return school.Record{}, err
		}
		if aff == 0 {
			return school.Record{}, school.ErrNotFound
		}
	}
	return s.GetRecord(ctx, id)
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "records", id)
}

// Notifications -------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n *school.Notification) error {
	if n.ID == "" {
		n.ID = ids.New()
	}
	n.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		insert into notifications(id, user_id, title, content, type, related_id, read, created_at)
		values ($1,$2,$3,$4,$5,$6,false,$7)
	`, n.ID, n.UserID, n.Title, nullIfEmpty(n.Content), n.Type, nullIfEmpty(n.RelatedID), n.CreatedAt)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, userID string, page school.Page) ([]school.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, title, content, type, related_id, read, read_at, created_at
		from notifications where user_id = $1 order by created_at desc limit $2 offset $3
	`, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []school.Notification
	for rows.Next() {
		var (
			n       school.Notification
			content sql.NullString
			related sql.NullString
			readAt  sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &content, &n.Type, &related, &n.Read, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Content = content.String
		n.RelatedID = related.String
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		update notifications set read = true, read_at = now() where id = $1 and user_id = $2 and read = false
	`, id, userID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return school.ErrNotFound
	}
	return nil
}

func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from notifications where user_id = $1 and read = false
	`, userID).Scan(&n)
	return n, err
}

func (s *Store) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where id = $1`, table), id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return school.ErrNotFound
	}
	return nil
}
