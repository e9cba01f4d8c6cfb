package waitlist

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists waiting-list memberships so the list survives a
// restart. The manager is authoritative at runtime.
type Repository interface {
	Upsert(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, patientID uuid.UUID) error
	LoadAll(ctx context.Context) ([]*Entry, error)
}
