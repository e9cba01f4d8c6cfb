package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caresuite/bedflow/internal/domain/patient"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const referralCols = `id, direction, patient_id, origin_bed_id,
	origin_hospital, destination_hospital,
	reason, document_ref, state, reject_reason, patient_snapshot,
	created_at, updated_at`

func scanReferral(row pgx.Row) (*Request, error) {
	var r Request
	var snapshot []byte
	err := row.Scan(&r.ID, &r.Direction, &r.PatientID, &r.OriginBedID,
		&r.OriginHospital, &r.DestinationHospital,
		&r.Reason, &r.DocumentRef, &r.State, &r.RejectReason, &snapshot,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		var p patient.Patient
		if err := json.Unmarshal(snapshot, &p); err != nil {
			return nil, fmt.Errorf("decode patient snapshot: %w", err)
		}
		r.Patient = &p
	}
	return &r, nil
}

func snapshotBytes(p *patient.Patient) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (r *repoPG) Create(ctx context.Context, req *Request) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	snapshot, err := snapshotBytes(req.Patient)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO referral_request (id, direction, patient_id, origin_bed_id,
			origin_hospital, destination_hospital,
			reason, document_ref, state, reject_reason, patient_snapshot)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		req.ID, req.Direction, req.PatientID, req.OriginBedID,
		req.OriginHospital, req.DestinationHospital,
		req.Reason, req.DocumentRef, req.State, req.RejectReason, snapshot)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return scanReferral(r.pool.QueryRow(ctx, `SELECT `+referralCols+` FROM referral_request WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, req *Request) error {
	snapshot, err := snapshotBytes(req.Patient)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE referral_request SET state=$2, reject_reason=$3, document_ref=$4,
			patient_snapshot=$5, updated_at=NOW()
		WHERE id = $1`,
		req.ID, req.State, req.RejectReason, req.DocumentRef, snapshot)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Request, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM referral_request`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+referralCols+` FROM referral_request ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		req, err := scanReferral(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan referral: %w", err)
		}
		items = append(items, req)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByState(ctx context.Context, state State) ([]*Request, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+referralCols+` FROM referral_request WHERE state = $1 ORDER BY created_at ASC`, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		req, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		items = append(items, req)
	}
	return items, rows.Err()
}
