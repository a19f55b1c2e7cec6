package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meditrack/meditrack/internal/domain/scheduling"
	"github.com/meditrack/meditrack/internal/platform/db"
)

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &prescriptionRepoPG{pool: pool} }

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const rxCols = `rx.id, rx.appointment_id, a.doctor_id, a.patient_id, rx.diagnosis, rx.medicines,
	rx.advice, rx.follow_up_date, rx.is_digital_signature, rx.created_by, rx.created_at, rx.updated_at`

const rxFrom = ` FROM prescription rx JOIN appointment a ON a.id = rx.appointment_id`

func (r *prescriptionRepoPG) scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.AppointmentID, &p.DoctorID, &p.PatientID, &p.Diagnosis, &p.Medicines,
		&p.Advice, &p.FollowUpDate, &p.IsDigitalSignature, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func medicinesOf(p *Prescription) []Medicine {
	if p.Medicines == nil {
		return []Medicine{}
	}
	return p.Medicines
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (appointment_id, diagnosis, medicines, advice, follow_up_date,
			is_digital_signature, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at, updated_at`,
		p.AppointmentID, p.Diagnosis, medicinesOf(p), p.Advice, p.FollowUpDate,
		p.IsDigitalSignature, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id int64) (*Prescription, error) {
	p, err := r.scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+rxFrom+` WHERE rx.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: prescription %d", scheduling.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *prescriptionRepoPG) Update(ctx context.Context, p *Prescription) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE prescription SET diagnosis = $2, medicines = $3, advice = $4, follow_up_date = $5,
			is_digital_signature = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Diagnosis, medicinesOf(p), p.Advice, p.FollowUpDate, p.IsDigitalSignature,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: prescription %d", scheduling.ErrNotFound, p.ID)
	}
	return err
}

func (r *prescriptionRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM prescription WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: prescription %d", scheduling.ErrNotFound, id)
	}
	return nil
}

func (r *prescriptionRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	var where string
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}
	if f.AppointmentID != 0 {
		add(` AND rx.appointment_id = $%d`, f.AppointmentID)
	}
	if f.DoctorID != 0 {
		add(` AND a.doctor_id = $%d`, f.DoctorID)
	}
	if f.PatientID != 0 {
		add(` AND a.patient_id = $%d`, f.PatientID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+rxFrom+` WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + rxCols + rxFrom + ` WHERE 1=1` + where +
		fmt.Sprintf(` ORDER BY rx.created_at DESC, rx.id DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
