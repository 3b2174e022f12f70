package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"schoolbridge.org/internal/auth"
	"schoolbridge.org/internal/ids"
	"schoolbridge.org/internal/school"
)

const pgErrUniqueViolation = "23505"

// Store implements the school persistence contract and the auth
// credential lookup on PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ school.Store         = (*Store)(nil)
	_ auth.CredentialStore = (*Store)(nil)
)

// Open connects to PostgreSQL via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing connection pool (used by tests).
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// Users ---------------------------------------------------------------

const userColumns = `id, username, real_name, phone, email, role, status, last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (school.User, error) {
	var (
		u         school.User
		realName  sql.NullString
		phone     sql.NullString
		email     sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &realName, &phone, &email, &u.Role, &u.Status, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return school.User{}, school.ErrNotFound
		}
		return school.User{}, err
	}
	u.RealName = realName.String
	u.Phone = phone.String
	u.Email = email.String
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *school.User, passwordHash string) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, username, password_hash, real_name, phone, email, role, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, u.ID, u.Username, passwordHash, nullIfEmpty(u.RealName), nullIfEmpty(u.Phone), nullIfEmpty(u.Email), string(u.Role), string(u.Status), now, now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return school.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (school.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (school.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where username = $1`, username)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context, page school.Page) ([]school.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+` from users order by created_at asc limit $1 offset $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []school.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) SearchUsers(ctx context.Context, f school.UserFilter, page school.Page) ([]school.User, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if f.Username != "" {
		where = append(where, fmt.Sprintf("username ilike $%d", idx))
		args = append(args, "%"+f.Username+"%")
		idx++
	}
	if f.RealName != "" {
		where = append(where, fmt.Sprintf("real_name ilike $%d", idx))
		args = append(args, "%"+f.RealName+"%")
		idx++
	}
	if f.Phone != "" {
		where = append(where, fmt.Sprintf("phone = $%d", idx))
		args = append(args, f.Phone)
		idx++
	}
	if f.Role != "" {
		where = append(where, fmt.Sprintf("role = $%d", idx))
		args = append(args, string(f.Role))
		idx++
	}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(f.Status))
		idx++
	}

	query := `select ` + userColumns + ` from users`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += fmt.Sprintf(` order by created_at asc limit $%d offset $%d`, idx, idx+1)
	args = append(args, page.Limit, page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []school.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd school.UserUpdate) (school.User, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.RealName != nil {
		sets = append(sets, fmt.Sprintf("real_name = $%d", idx))
		args = append(args, nullIfEmpty(*upd.RealName))
		idx++
	}
	if upd.Phone != nil {
		sets = append(sets, fmt.Sprintf("phone = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Phone))
		idx++
	}
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Email))
		idx++
	}
	if upd.Role != nil {
		sets = append(sets, fmt.Sprintf("role = $%d", idx))
		args = append(args, string(*upd.Role))
		idx++
	}
	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(*upd.Status))
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return school.User{}, school.ErrConflict
			}
			return school.User{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return school.User{}, err
		}
		if aff == 0 {
			return school.User{}, school.ErrNotFound
		}
	}
	return s.GetUser(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
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

// Credential lookup for the auth core --------------------------------

func (s *Store) FindByUsername(ctx context.Context, username string) (auth.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		select username, password_hash, role, status from users where username = $1
	`, username)
	var cred auth.Credential
	if err := row.Scan(&cred.Username, &cred.PasswordHash, &cred.Role, &cred.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Credential{}, auth.ErrNotFound
		}
		return auth.Credential{}, err
	}
	return cred, nil
}

func (s *Store) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $1, updated_at = now() where username = $2
	`, passwordHash, username)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update users set last_login_at = $1 where username = $2
	`, at, username)
	return err
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
