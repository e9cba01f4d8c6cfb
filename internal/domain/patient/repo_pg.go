package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const patientCols = `id, name, age, sex, pregnant, diagnosis, disease_category,
	requires_isolation, required_complexity, requirements,
	socio_medical, socio_legal, awaiting_cardiac_surgery,
	origin, waiting_state, referral_state,
	current_bed_id, destination_bed_id,
	admitted_at, waiting_since, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var reqs []string
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.Sex, &p.Pregnant, &p.Diagnosis, &p.DiseaseCategory,
		&p.RequiresIsolation, &p.RequiredComplexity, &reqs,
		&p.SocioMedical, &p.SocioLegal, &p.AwaitingCardiacSurgery,
		&p.Origin, &p.WaitingState, &p.ReferralState,
		&p.CurrentBedID, &p.DestinationBedID,
		&p.AdmittedAt, &p.WaitingSince, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Requirements = make([]Requirement, 0, len(reqs))
	for _, r := range reqs {
		p.Requirements = append(p.Requirements, Requirement(r))
	}
	return &p, nil
}

func requirementStrings(reqs []Requirement) []string {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, string(r))
	}
	return out
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient (id, name, age, sex, pregnant, diagnosis, disease_category,
			requires_isolation, required_complexity, requirements,
			socio_medical, socio_legal, awaiting_cardiac_surgery,
			origin, waiting_state, referral_state,
			current_bed_id, destination_bed_id, admitted_at, waiting_since)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		p.ID, p.Name, p.Age, p.Sex, p.Pregnant, p.Diagnosis, p.DiseaseCategory,
		p.RequiresIsolation, p.RequiredComplexity, requirementStrings(p.Requirements),
		p.SocioMedical, p.SocioLegal, p.AwaitingCardiacSurgery,
		p.Origin, p.WaitingState, p.ReferralState,
		p.CurrentBedID, p.DestinationBedID, p.AdmittedAt, p.WaitingSince)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient SET name=$2, age=$3, sex=$4, pregnant=$5, diagnosis=$6, disease_category=$7,
			requires_isolation=$8, required_complexity=$9, requirements=$10,
			socio_medical=$11, socio_legal=$12, awaiting_cardiac_surgery=$13,
			origin=$14, waiting_state=$15, referral_state=$16,
			current_bed_id=$17, destination_bed_id=$18, admitted_at=$19, waiting_since=$20,
			updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Age, p.Sex, p.Pregnant, p.Diagnosis, p.DiseaseCategory,
		p.RequiresIsolation, p.RequiredComplexity, requirementStrings(p.Requirements),
		p.SocioMedical, p.SocioLegal, p.AwaitingCardiacSurgery,
		p.Origin, p.WaitingState, p.ReferralState,
		p.CurrentBedID, p.DestinationBedID, p.AdmittedAt, p.WaitingSince)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByWaitingState(ctx context.Context, state WaitingState) ([]*Patient, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+patientCols+` FROM patient WHERE waiting_state = $1 ORDER BY waiting_since ASC`, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
