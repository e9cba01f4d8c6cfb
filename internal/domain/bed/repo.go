package bed

import (
	"context"

	"github.com/google/uuid"
)

// Repository mirrors registry state to durable storage. The registry stays
// authoritative at runtime; the repository exists so a node can reload its
// arena on boot.
type Repository interface {
	Save(ctx context.Context, b *Bed) error
	Delete(ctx context.Context, id uuid.UUID) error
	LoadAll(ctx context.Context, hospitalID string) ([]*Bed, error)
}
