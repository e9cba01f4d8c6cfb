package bed

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caresuite/bedflow/internal/domain/patient"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const bedCols = `id, hospital_id, service, ward, room, state, complexity, isolation_capable,
	occupant_id, occupant_sex, occupant_complexity, occupant_isolation,
	incoming_id, incoming_sex, incoming_complexity, incoming_isolation,
	block_reason, status_note, created_at, updated_at`

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	var occID, incID *uuid.UUID
	var occSex, occTier, incSex, incTier *string
	var occIso, incIso *bool
	err := row.Scan(&b.ID, &b.HospitalID, &b.Service, &b.Ward, &b.Room, &b.State, &b.Complexity, &b.IsolationCapable,
		&occID, &occSex, &occTier, &occIso,
		&incID, &incSex, &incTier, &incIso,
		&b.BlockReason, &b.StatusNote, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if occID != nil {
		b.Occupant = &Occupant{
			PatientID:         *occID,
			Sex:               patient.Sex(deref(occSex)),
			Complexity:        patient.ComplexityTier(deref(occTier)),
			RequiresIsolation: occIso != nil && *occIso,
		}
	}
	if incID != nil {
		b.Incoming = &Occupant{
			PatientID:         *incID,
			Sex:               patient.Sex(deref(incSex)),
			Complexity:        patient.ComplexityTier(deref(incTier)),
			RequiresIsolation: incIso != nil && *incIso,
		}
	}
	return &b, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func occupantFields(o *Occupant) (id *uuid.UUID, sex, tier *string, iso *bool) {
	if o == nil {
		return nil, nil, nil, nil
	}
	s, t, i := string(o.Sex), string(o.Complexity), o.RequiresIsolation
	return &o.PatientID, &s, &t, &i
}

func (r *repoPG) Save(ctx context.Context, b *Bed) error {
	occID, occSex, occTier, occIso := occupantFields(b.Occupant)
	incID, incSex, incTier, incIso := occupantFields(b.Incoming)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bed (id, hospital_id, service, ward, room, state, complexity, isolation_capable,
			occupant_id, occupant_sex, occupant_complexity, occupant_isolation,
			incoming_id, incoming_sex, incoming_complexity, incoming_isolation,
			block_reason, status_note, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO UPDATE SET
			service=EXCLUDED.service, ward=EXCLUDED.ward, room=EXCLUDED.room,
			state=EXCLUDED.state, complexity=EXCLUDED.complexity,
			isolation_capable=EXCLUDED.isolation_capable,
			occupant_id=EXCLUDED.occupant_id, occupant_sex=EXCLUDED.occupant_sex,
			occupant_complexity=EXCLUDED.occupant_complexity, occupant_isolation=EXCLUDED.occupant_isolation,
			incoming_id=EXCLUDED.incoming_id, incoming_sex=EXCLUDED.incoming_sex,
			incoming_complexity=EXCLUDED.incoming_complexity, incoming_isolation=EXCLUDED.incoming_isolation,
			block_reason=EXCLUDED.block_reason, status_note=EXCLUDED.status_note,
			updated_at=EXCLUDED.updated_at`,
		b.ID, b.HospitalID, b.Service, b.Ward, b.Room, b.State, b.Complexity, b.IsolationCapable,
		occID, occSex, occTier, occIso,
		incID, incSex, incTier, incIso,
		b.BlockReason, b.StatusNote, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM bed WHERE id = $1`, id)
	return err
}

func (r *repoPG) LoadAll(ctx context.Context, hospitalID string) ([]*Bed, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bedCols+` FROM bed WHERE hospital_id = $1`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var beds []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bed: %w", err)
		}
		beds = append(beds, b)
	}
	return beds, rows.Err()
}
