package waitlist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) Upsert(ctx context.Context, e *Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO waiting_list (patient_id, reason, target_service, searching, entered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (patient_id) DO UPDATE SET
			reason = EXCLUDED.reason,
			target_service = EXCLUDED.target_service,
			searching = EXCLUDED.searching`,
		e.PatientID, e.Reason, e.TargetService, e.Searching, e.EnteredAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM waiting_list WHERE patient_id = $1`, patientID)
	return err
}

func (r *repoPG) LoadAll(ctx context.Context) ([]*Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT patient_id, reason, target_service, searching, entered_at
		FROM waiting_list ORDER BY entered_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.PatientID, &e.Reason, &e.TargetService, &e.Searching, &e.EnteredAt); err != nil {
			return nil, fmt.Errorf("scan waiting entry: %w", err)
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}
