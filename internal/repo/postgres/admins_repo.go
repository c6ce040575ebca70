package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinichub/clinic-backend/internal/domain"
)

type AdminsRepo interface {
	Create(ctx context.Context, in *domain.NewAdmin) (*domain.Admin, bool, error)
	FindByID(ctx context.Context, id int64) (*domain.Admin, error)
	FindByEmail(ctx context.Context, email string) (*domain.Admin, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	RootAdminExists(ctx context.Context) (bool, error)
	List(ctx context.Context, p domain.PageRequest) ([]domain.Admin, int64, error)
	ListCreatedBy(ctx context.Context, creatorID int64, p domain.PageRequest) ([]domain.Admin, int64, error)
	ListPendingApproval(ctx context.Context) ([]domain.Admin, error)
	UpdateStatus(ctx context.Context, id int64, status domain.AdminStatus) error
	UpdateProfile(ctx context.Context, id int64, name, phone string, level *domain.AdminLevel, status *domain.AdminStatus) (*domain.Admin, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	RecordLoginFailure(ctx context.Context, id int64, maxAttempts int, lockFor time.Duration) (int, *time.Time, error)
	RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error
}

type AdminsRepoImpl struct{ pool *pgxpool.Pool }

func NewAdminsRepo(pool *pgxpool.Pool) *AdminsRepoImpl { return &AdminsRepoImpl{pool: pool} }

const adminCols = `id, name, email, password_hash, phone, admin_level, status,
login_attempts, locked_until, last_login, created_by, created_at, updated_at`

func scanAdmin(row pgx.Row) (*domain.Admin, error) {
	var a domain.Admin
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Phone, &a.Level, &a.Status,
		&a.LoginAttempts, &a.LockedUntil, &a.LastLogin, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new admin. The bootstrap decision is made inside the
// transaction under an advisory lock: when the table is empty the new account
// is forced to ROOT_ADMIN/ACTIVE regardless of what the caller decided, and
// the second return value reports whether that happened. Two concurrent
// empty-store signups therefore cannot both become the first admin.
func (r *AdminsRepoImpl) Create(ctx context.Context, in *domain.NewAdmin) (*domain.Admin, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('admins:signup', 0))`); err != nil {
		return nil, false, err
	}

	var count int64
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM admins`).Scan(&count); err != nil {
		return nil, false, err
	}

	level, status := in.Level, in.Status
	first := count == 0
	if first {
		level = domain.LevelRootAdmin
		status = domain.AdminActive
	}

	const q = `INSERT INTO admins (name, email, password_hash, phone, admin_level, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING ` + adminCols

	a, err := scanAdmin(tx.QueryRow(ctx, q, in.Name, in.Email, in.PasswordHash, in.Phone, level, status, in.CreatedBy))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, false, domain.E(domain.KindDuplicateEmail, "email address is already registered")
		}
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return a, first, nil
}

func (r *AdminsRepoImpl) FindByID(ctx context.Context, id int64) (*domain.Admin, error) {
	const q = `SELECT ` + adminCols + ` FROM admins WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAdmin(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *AdminsRepoImpl) FindByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	const q = `SELECT ` + adminCols + ` FROM admins WHERE lower(email)=lower($1)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAdmin(r.pool.QueryRow(ctx, q, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *AdminsRepoImpl) EmailExists(ctx context.Context, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM admins WHERE lower(email)=lower($1))`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, email).Scan(&exists)
	return exists, err
}

func (r *AdminsRepoImpl) RootAdminExists(ctx context.Context) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM admins WHERE admin_level='ROOT_ADMIN')`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q).Scan(&exists)
	return exists, err
}

// sortColumns whitelists what listAdmins may order by.
var sortColumns = map[string]string{
	"name":        "name",
	"email":       "email",
	"status":      "status",
	"admin_level": "admin_level",
	"created_at":  "created_at",
}

func orderClause(p domain.PageRequest) string {
	col, ok := sortColumns[p.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if p.SortDir == "asc" {
		dir = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s", col, dir)
}

func (r *AdminsRepoImpl) List(ctx context.Context, p domain.PageRequest) ([]domain.Admin, int64, error) {
	p = p.Normalize()
	q := `SELECT ` + adminCols + ` FROM admins ` + orderClause(p) + ` LIMIT $1 OFFSET $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM admins`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, q, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	admins, err := collectAdmins(rows, p.Size)
	return admins, total, err
}

func (r *AdminsRepoImpl) ListCreatedBy(ctx context.Context, creatorID int64, p domain.PageRequest) ([]domain.Admin, int64, error) {
	p = p.Normalize()
	q := `SELECT ` + adminCols + ` FROM admins WHERE created_by=$1 ` + orderClause(p) + ` LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM admins WHERE created_by=$1`, creatorID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, q, creatorID, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	admins, err := collectAdmins(rows, p.Size)
	return admins, total, err
}

func (r *AdminsRepoImpl) ListPendingApproval(ctx context.Context) ([]domain.Admin, error) {
	const q = `SELECT ` + adminCols + ` FROM admins WHERE status='PENDING_APPROVAL' ORDER BY created_at ASC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAdmins(rows, 8)
}

func collectAdmins(rows pgx.Rows, sizeHint int) ([]domain.Admin, error) {
	admins := make([]domain.Admin, 0, sizeHint)
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, *a)
	}
	return admins, rows.Err()
}

func (r *AdminsRepoImpl) UpdateStatus(ctx context.Context, id int64, status domain.AdminStatus) error {
	const q = `UPDATE admins SET status=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, status)
	return err
}

func (r *AdminsRepoImpl) UpdateProfile(ctx context.Context, id int64, name, phone string, level *domain.AdminLevel, status *domain.AdminStatus) (*domain.Admin, error) {
	const q = `UPDATE admins SET
  name=$2,
  phone=$3,
  admin_level=COALESCE($4, admin_level),
  status=COALESCE($5, status),
  updated_at=now()
WHERE id=$1
RETURNING ` + adminCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAdmin(r.pool.QueryRow(ctx, q, id, name, phone, level, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *AdminsRepoImpl) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const q = `UPDATE admins SET password_hash=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, passwordHash)
	return err
}

// RecordLoginFailure bumps the attempt counter and arms the lockout in one
// statement, so concurrent failed logins cannot under-count toward the
// threshold. It returns the new counter and the lockout deadline, if armed.
func (r *AdminsRepoImpl) RecordLoginFailure(ctx context.Context, id int64, maxAttempts int, lockFor time.Duration) (int, *time.Time, error) {
	const q = `UPDATE admins SET
  login_attempts = login_attempts + 1,
  locked_until = CASE
    WHEN login_attempts + 1 >= $2 THEN now() + make_interval(secs => $3)
    ELSE locked_until
  END,
  updated_at = now()
WHERE id=$1
RETURNING login_attempts, locked_until`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var attempts int
	var lockedUntil *time.Time
	err := r.pool.QueryRow(ctx, q, id, maxAttempts, lockFor.Seconds()).Scan(&attempts, &lockedUntil)
	return attempts, lockedUntil, err
}

func (r *AdminsRepoImpl) RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE admins SET login_attempts=0, locked_until=NULL, last_login=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, at)
	return err
}

var _ AdminsRepo = (*AdminsRepoImpl)(nil)
