package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinichub/clinic-backend/internal/domain"
)

type AppointmentsRepo interface {
	Create(ctx context.Context, in *domain.Appointment) (*domain.Appointment, error)
	GetByID(ctx context.Context, id int64) (*domain.Appointment, error)
	Schedule(ctx context.Context, id int64, at time.Time, typ domain.AppointmentType, notes string) (*domain.Appointment, bool, error)
	UpdateStatusIf(ctx context.Context, id int64, to domain.AppointmentStatus, from ...domain.AppointmentStatus) (bool, error)
	Complete(ctx context.Context, id int64, notes string) (bool, error)
	UpdateNotes(ctx context.Context, id int64, notes string) (bool, error)
	ListByDoctor(ctx context.Context, doctorID int64, status *domain.AppointmentStatus) ([]domain.Appointment, error)
	ListByPatient(ctx context.Context, patientID int64, status *domain.AppointmentStatus) ([]domain.Appointment, error)
	ListPending(ctx context.Context, doctorID int64) ([]domain.Appointment, error)
	ListUpcoming(ctx context.Context, doctorID int64) ([]domain.Appointment, error)
	ListByDoctorBetween(ctx context.Context, doctorID int64, from, to time.Time) ([]domain.Appointment, error)
}

type AppointmentsRepoImpl struct{ pool *pgxpool.Pool }

func NewAppointmentsRepo(pool *pgxpool.Pool) *AppointmentsRepoImpl {
	return &AppointmentsRepoImpl{pool: pool}
}

const appointmentCols = `id, doctor_id, patient_id, scheduled_time, status, type,
notes, followup_date, created_at, updated_at`

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var a domain.Appointment
	err := row.Scan(
		&a.ID, &a.DoctorID, &a.PatientID, &a.ScheduledTime, &a.Status, &a.Type,
		&a.Notes, &a.FollowupDate, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AppointmentsRepoImpl) Create(ctx context.Context, in *domain.Appointment) (*domain.Appointment, error) {
	const q = `INSERT INTO appointments (doctor_id, patient_id, scheduled_time, status, type, notes, followup_date)
VALUES ($1,$2,$3,'REQUESTED',$4,$5,$6)
RETURNING ` + appointmentCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanAppointment(r.pool.QueryRow(ctx, q,
		in.DoctorID, in.PatientID, in.ScheduledTime, in.Type, in.Notes, in.FollowupDate,
	))
}

func (r *AppointmentsRepoImpl) GetByID(ctx context.Context, id int64) (*domain.Appointment, error) {
	const q = `SELECT ` + appointmentCols + ` FROM appointments WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAppointment(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// Schedule flips a REQUESTED appointment to SCHEDULED after the conflict
// check, all inside one transaction. Scheduling for a doctor is serialized by
// a per-doctor advisory lock, so two concurrent calls cannot both pass the
// conflict check for overlapping times. The bool reports a conflict; a nil
// appointment with no error means the row was gone or no longer REQUESTED.
func (r *AppointmentsRepoImpl) Schedule(ctx context.Context, id int64, at time.Time, typ domain.AppointmentType, notes string) (*domain.Appointment, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	var doctorID int64
	var status domain.AppointmentStatus
	err = tx.QueryRow(ctx, `SELECT doctor_id, status FROM appointments WHERE id=$1 FOR UPDATE`, id).
		Scan(&doctorID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if status != domain.AppointmentRequested {
		return nil, false, nil
	}

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended('appointments:doctor:' || $1::text, 0))`,
		doctorID,
	); err != nil {
		return nil, false, err
	}

	var conflicts int
	err = tx.QueryRow(ctx, `SELECT count(*) FROM appointments
WHERE doctor_id=$1 AND id<>$2 AND status<>'CANCELLED'
  AND scheduled_time > $3 AND scheduled_time < $4`,
		doctorID, id, at.Add(-domain.ConflictWindow), at.Add(domain.ConflictWindow),
	).Scan(&conflicts)
	if err != nil {
		return nil, false, err
	}
	if conflicts > 0 {
		return nil, true, nil
	}

	const q = `UPDATE appointments SET
  scheduled_time=$2, type=$3, notes=$4, followup_date=$2, status='SCHEDULED', updated_at=now()
WHERE id=$1 AND status='REQUESTED'
RETURNING ` + appointmentCols

	a, err := scanAppointment(tx.QueryRow(ctx, q, id, at, typ, notes))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return a, false, nil
}

// UpdateStatusIf is a compare-and-set on status; it reports whether a row
// actually transitioned. Terminal states stay terminal because they are never
// listed in from.
func (r *AppointmentsRepoImpl) UpdateStatusIf(ctx context.Context, id int64, to domain.AppointmentStatus, from ...domain.AppointmentStatus) (bool, error) {
	const q = `UPDATE appointments SET status=$2, updated_at=now() WHERE id=$1 AND status = ANY($3)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	ct, err := r.pool.Exec(ctx, q, id, to, allowed)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *AppointmentsRepoImpl) Complete(ctx context.Context, id int64, notes string) (bool, error) {
	const q = `UPDATE appointments SET
  status='COMPLETED',
  notes = CASE WHEN btrim($2) <> '' THEN $2 ELSE notes END,
  updated_at=now()
WHERE id=$1 AND status IN ('SCHEDULED','CONFIRMED')`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, notes)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *AppointmentsRepoImpl) UpdateNotes(ctx context.Context, id int64, notes string) (bool, error) {
	const q = `UPDATE appointments SET notes=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, notes)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *AppointmentsRepoImpl) ListByDoctor(ctx context.Context, doctorID int64, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	const q = `SELECT ` + appointmentCols + ` FROM appointments
WHERE doctor_id=$1 AND ($2::text IS NULL OR status=$2::text)
ORDER BY created_at DESC`
	return r.list(ctx, q, doctorID, statusParam(status))
}

func (r *AppointmentsRepoImpl) ListByPatient(ctx context.Context, patientID int64, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	const q = `SELECT ` + appointmentCols + ` FROM appointments
WHERE patient_id=$1 AND ($2::text IS NULL OR status=$2::text)
ORDER BY created_at DESC`
	return r.list(ctx, q, patientID, statusParam(status))
}

func (r *AppointmentsRepoImpl) ListPending(ctx context.Context, doctorID int64) ([]domain.Appointment, error) {
	const q = `SELECT ` + appointmentCols + ` FROM appointments
WHERE doctor_id=$1 AND status='REQUESTED'
ORDER BY created_at DESC`
	return r.list(ctx, q, doctorID)
}

func (r *AppointmentsRepoImpl) ListUpcoming(ctx context.Context, doctorID int64) ([]domain.Appointment, error) {
	const q = `SELECT ` + appointmentCols + ` FROM appointments
WHERE doctor_id=$1 AND status IN ('SCHEDULED','CONFIRMED')
ORDER BY scheduled_time ASC`
	return r.list(ctx, q, doctorID)
}

func (r *AppointmentsRepoImpl) ListByDoctorBetween(ctx context.Context, doctorID int64, from, to time.Time) ([]domain.Appointment, error) {
	const q = `SELECT ` + appointmentCols + ` FROM appointments
WHERE doctor_id=$1 AND scheduled_time >= $2 AND scheduled_time < $3
ORDER BY scheduled_time ASC`
	return r.list(ctx, q, doctorID, from, to)
}

func statusParam(status *domain.AppointmentStatus) *string {
	if status == nil {
		return nil
	}
	s := string(*status)
	return &s
}

func (r *AppointmentsRepoImpl) list(ctx context.Context, q string, args ...any) ([]domain.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appts := make([]domain.Appointment, 0, 16)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}

var _ AppointmentsRepo = (*AppointmentsRepoImpl)(nil)
