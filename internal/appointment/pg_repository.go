package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	constraintSlot   = "uq_doctor_practice_slot"
	constraintNumber = "uq_appointment_number"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type txKey struct{}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) conn(ctx context.Context) queryable {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

func (r *PgRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Helpers

const appointmentCols = `id, appointment_number, doctor_id, patient_id, session_type_id,
	practice_id, branch_id, appointment_date, start_time, end_time, status::text,
	consultation_type::text, checked_in_at, notes, cancellation_reason, created_at, updated_at`

const historyCols = `id, appointment_id, old_status::text, new_status::text, changed_by_id,
	cancellation_type::text, rescheduled_to_appointment_id, reason, changed_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start, end pgtype.Time

	err := row.Scan(
		&a.ID,
		&a.AppointmentNumber,
		&a.DoctorID,
		&a.PatientID,
		&a.SessionTypeID,
		&a.PracticeID,
		&a.BranchID,
		&a.AppointmentDate,
		&start,
		&end,
		&a.Status,
		&a.ConsultationType,
		&a.CheckedInAt,
		&a.Notes,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.AppointmentDate = DateOnly(a.AppointmentDate)
	a.StartTime = fromPgTime(start)
	a.EndTime = fromPgTime(end)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanHistory(row pgx.Row) (*StatusHistory, error) {
	var h StatusHistory
	var oldStatus, cancellation *string

	err := row.Scan(
		&h.ID,
		&h.AppointmentID,
		&oldStatus,
		&h.NewStatus,
		&h.ChangedByID,
		&cancellation,
		&h.RescheduledToAppointmentID,
		&h.Reason,
		&h.ChangedAt,
	)
	if err != nil {
		return nil, err
	}

	if oldStatus != nil {
		s := AppointmentStatus(*oldStatus)
		h.OldStatus = &s
	}
	if cancellation != nil {
		c := CancellationType(*cancellation)
		h.CancellationType = &c
	}
	return &h, nil
}

func toPgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * 1_000_000, Valid: true}
}

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / 1_000_000)
}

func statusStrings(in []AppointmentStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// translateWriteErr maps constraint violations onto the package error kinds.
func translateWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintSlot:
			return ErrSlotAlreadyBooked
		case constraintNumber:
			return ErrAppointmentNumberTaken
		}
		return fmt.Errorf("%w: unique constraint %s", ErrConflict, pgErr.ConstraintName)
	case pgForeignKeyViolation:
		return ErrAppointmentNotFound
	}
	return err
}

// Interface methods

func (r *PgRepository) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, appointment_number, doctor_id, patient_id, session_type_id,
			practice_id, branch_id, appointment_date, start_time, end_time, status,
			consultation_type, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::appointment_status,
			$12::consultation_type, $13, now(), now())
		RETURNING `+appointmentCols,
		a.ID, a.AppointmentNumber, a.DoctorID, a.PatientID, a.SessionTypeID,
		a.PracticeID, a.BranchID, a.AppointmentDate, toPgTime(a.StartTime), toPgTime(a.EndTime),
		string(a.Status), string(a.ConsultationType), a.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		return translateWriteErr(err)
	}
	*a = *created
	return nil
}

func (r *PgRepository) SlotTaken(ctx context.Context, slot Slot) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND practice_id IS NOT DISTINCT FROM $2
			  AND appointment_date = $3
			  AND start_time = $4
		)
	`, slot.DoctorID, slot.PracticeID, slot.Date, toPgTime(slot.StartTime)).Scan(&exists)
	return exists, err
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetByNumber(ctx context.Context, number string) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE appointment_number = $1`, number)
	return scanAppointment(row)
}

func (r *PgRepository) Search(ctx context.Context, f Filter, p Page) ([]Appointment, int, error) {
	var where []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.PracticeID != nil {
		add("practice_id = $%d", *f.PracticeID)
	}
	if f.SessionTypeID != nil {
		add("session_type_id = $%d", *f.SessionTypeID)
	}
	if f.BranchID != nil {
		add("(branch_id = $%d OR branch_id IS NULL)", *f.BranchID)
	}
	switch {
	case f.Date != nil:
		add("appointment_date = $%d", DateOnly(*f.Date))
	default:
		if f.StartDate != nil {
			add("appointment_date >= $%d", DateOnly(*f.StartDate))
		}
		if f.EndDate != nil {
			add("appointment_date <= $%d", DateOnly(*f.EndDate))
		}
	}
	if len(f.Statuses) > 0 {
		add("status::text = ANY($%d)", statusStrings(f.Statuses))
	}
	if f.ConsultationType != nil {
		add("consultation_type::text = $%d", string(*f.ConsultationType))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM appointments%s
		ORDER BY appointment_date, start_time, id LIMIT $%d OFFSET $%d`,
		appointmentCols, clause, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search appointments: %w", err)
	}

	items, err := scanAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgRepository) UpdateDetails(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	var consultation *string
	if req.ConsultationType != nil {
		c := string(*req.ConsultationType)
		consultation = &c
	}

	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET notes = COALESCE($2, notes),
		    consultation_type = COALESCE($3::consultation_type, consultation_type),
		    cancellation_reason = COALESCE($4, cancellation_reason),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentCols, id, req.Notes, consultation, req.CancellationReason)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateBranch(ctx context.Context, id, branchID uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET branch_id = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentCols, id, branchID)
	return scanAppointment(row)
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET status = $2::appointment_status,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentCols, id, string(to))
	return scanAppointment(row)
}

func (r *PgRepository) MarkCheckedIn(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET status = 'CHECKED_IN',
		    checked_in_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND checked_in_at IS NULL
		RETURNING `+appointmentCols, id, at)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// Zero rows: either the appointment is gone or someone checked in first.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyCheckedIn
	}
	return a, err
}

func (r *PgRepository) HasOverlap(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end TimeOfDay) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND appointment_date = $2
			  AND status::text = ANY($3)
			  AND start_time < $5
			  AND end_time > $4
		)
	`, doctorID, DateOnly(date), statusStrings(ActiveStatuses), toPgTime(start), toPgTime(end)).Scan(&exists)
	return exists, err
}

func (r *PgRepository) ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time, statuses []AppointmentStatus) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status::text = ANY($3)
		ORDER BY start_time
	`, doctorID, DateOnly(date), statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListIDsByBranch(ctx context.Context, branchID uuid.UUID, from, to time.Time) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id FROM appointments
		WHERE branch_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		ORDER BY appointment_date, start_time
	`, branchID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *PgRepository) FindStaleScheduled(ctx context.Context, cutoffDate time.Time, cutoffTime TimeOfDay) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE status = 'SCHEDULED'
		  AND (appointment_date < $1 OR (appointment_date = $1 AND end_time <= $2))
		ORDER BY appointment_date, start_time
	`, DateOnly(cutoffDate), toPgTime(cutoffTime))
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) CountByStatus(ctx context.Context, branchID *uuid.UUID) (map[AppointmentStatus]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status::text, COUNT(*)
		FROM appointments
		WHERE $1::uuid IS NULL OR branch_id = $1
		GROUP BY status
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[AppointmentStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[AppointmentStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *PgRepository) InsertHistory(ctx context.Context, h *StatusHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}

	var oldStatus, cancellation *string
	if h.OldStatus != nil {
		s := string(*h.OldStatus)
		oldStatus = &s
	}
	if h.CancellationType != nil {
		c := string(*h.CancellationType)
		cancellation = &c
	}

	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_status_history (id, appointment_id, old_status, new_status,
			changed_by_id, cancellation_type, rescheduled_to_appointment_id, reason, changed_at)
		VALUES ($1, $2, $3::appointment_status, $4::appointment_status, $5,
			$6::cancellation_type, $7, $8, clock_timestamp())
		RETURNING `+historyCols,
		h.ID, h.AppointmentID, oldStatus, string(h.NewStatus), h.ChangedByID,
		cancellation, h.RescheduledToAppointmentID, h.Reason)

	inserted, err := scanHistory(row)
	if err != nil {
		return fmt.Errorf("insert status history: %w", translateWriteErr(err))
	}
	*h = *inserted
	return nil
}

func (r *PgRepository) ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]StatusHistory, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+historyCols+`
		FROM appointment_status_history
		WHERE appointment_id = $1
		ORDER BY changed_at DESC, id DESC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StatusHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
