package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meditrack/meditrack/internal/platform/db"
)

// slotConstraint is the partial unique index over active appointments.
const slotConstraint = "appointment_doctor_slot_uq"

// filter accumulates " AND ..." clauses with positional arguments.
type filter struct {
	sql  string
	args []interface{}
}

func (f *filter) add(format string, v interface{}) {
	f.args = append(f.args, v)
	f.sql += fmt.Sprintf(format, len(f.args))
}

func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", ErrNotFound, what, id)
	}
	return err
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorCols = `id, user_id, full_name, specialization, hospital, city, license_number,
	consultation_fee, available_weekdays, available_time_slots, is_active, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.FullName, &d.Specialization, &d.Hospital, &d.City,
		&d.LicenseNumber, &d.ConsultationFee, &d.AvailableWeekdays, &d.AvailableTimeSlots,
		&d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (user_id, full_name, specialization, hospital, city, license_number,
			consultation_fee, available_weekdays, available_time_slots, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at, updated_at`,
		d.UserID, d.FullName, d.Specialization, d.Hospital, d.City, d.LicenseNumber,
		d.ConsultationFee, d.AvailableWeekdays, d.AvailableTimeSlots, d.IsActive,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	d, err := r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "doctor", id)
	}
	return d, nil
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID string) (*Doctor, error) {
	d, err := r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err, "doctor for user", userID)
	}
	return d, nil
}

func (r *doctorRepoPG) List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	var w filter
	if f.Specialization != "" {
		w.add(` AND specialization ILIKE $%d`, f.Specialization)
	}
	if f.City != "" {
		w.add(` AND city ILIKE $%d`, f.City)
	}
	if f.ActiveOnly {
		w.add(` AND is_active = $%d`, true)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor WHERE 1=1`+w.sql, w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(w.args)
	query := `SELECT ` + doctorCols + ` FROM doctor WHERE 1=1` + w.sql +
		fmt.Sprintf(` ORDER BY full_name, id LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *doctorRepoPG) UpdateAvailability(ctx context.Context, id int64, weekdays []int, timeSlots []string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor SET available_weekdays = $2, available_time_slots = $3, updated_at = NOW()
		WHERE id = $1`, id, weekdays, timeSlots)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: doctor %d", ErrNotFound, id)
	}
	return nil
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const patientCols = `id, user_id, full_name, blood_group, allergies, emergency_contact, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.BloodGroup, &p.Allergies,
		&p.EmergencyContact, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (user_id, full_name, blood_group, allergies, emergency_contact)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at, updated_at`,
		p.UserID, p.FullName, p.BloodGroup, p.Allergies, p.EmergencyContact,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "patient", id)
	}
	return p, nil
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID string) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err, "patient for user", userID)
	}
	return p, nil
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `id, reference, doctor_id, patient_id, date, time, end_time, status, reason,
	other_reason, symptoms, cancellation_reason, cancelled_by, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Reference, &a.DoctorID, &a.PatientID, &a.Date, &a.Time, &a.EndTime,
		&a.Status, &a.Reason, &a.OtherReason, &a.Symptoms, &a.CancellationReason, &a.CancelledBy,
		&a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

// Create inserts a. A unique violation on the active-slot index is reported
// as ErrSlotConflict.
func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.Reference == uuid.Nil {
		a.Reference = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (reference, doctor_id, patient_id, date, time, end_time, status,
			reason, other_reason, symptoms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at, updated_at`,
		a.Reference, a.DoctorID, a.PatientID, a.Date, a.Time, a.EndTime, a.Status,
		a.Reason, a.OtherReason, a.Symptoms,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, slotConstraint) {
		return fmt.Errorf("%w: doctor %d at %s %s", ErrSlotConflict, a.DoctorID, a.Date, a.Time)
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "appointment", id)
	}
	return a, nil
}

func (r *appointmentRepoPG) HasActiveAppointment(ctx context.Context, doctorID int64, date Date, t TimeOfDay) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND date = $2 AND time = $3 AND status <> 'cancelled'
		)`, doctorID, date, t).Scan(&exists)
	return exists, err
}

func (r *appointmentRepoPG) BookedTimes(ctx context.Context, doctorID int64, date Date) ([]TimeOfDay, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT time FROM appointment
		WHERE doctor_id = $1 AND date = $2 AND status <> 'cancelled'
		ORDER BY time`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []TimeOfDay
	for rows.Next() {
		var t TimeOfDay
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func (r *appointmentRepoPG) CountActiveOnDate(ctx context.Context, doctorID int64, date Date) (int, error) {
	return r.CountActiveInRange(ctx, doctorID, date, date)
}

func (r *appointmentRepoPG) CountActiveInRange(ctx context.Context, doctorID int64, from, to Date) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE doctor_id = $1 AND date BETWEEN $2 AND $3 AND status <> 'cancelled'`,
		doctorID, from, to).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET status = $2, end_time = $3, cancellation_reason = $4,
			cancelled_by = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Status, a.EndTime, a.CancellationReason, a.CancelledBy,
	).Scan(&a.UpdatedAt)
	if err != nil {
		return notFound(err, "appointment", a.ID)
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	var w filter
	if f.DoctorID != 0 {
		w.add(` AND doctor_id = $%d`, f.DoctorID)
	}
	if f.PatientID != 0 {
		w.add(` AND patient_id = $%d`, f.PatientID)
	}
	if f.Status != "" {
		w.add(` AND status = $%d`, f.Status)
	}
	if !f.From.IsZero() {
		w.add(` AND date >= $%d`, f.From)
	}
	if !f.To.IsZero() {
		w.add(` AND date <= $%d`, f.To)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE 1=1`+w.sql, w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(w.args)
	query := `SELECT ` + apptCols + ` FROM appointment WHERE 1=1` + w.sql +
		fmt.Sprintf(` ORDER BY date DESC, time DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
