package bundle

import "context"

// Store persists bundle records. Writes are single statements: the external
// calls are the unit being compensated, not the local store.
type Store interface {
	Insert(ctx context.Context, b *Bundle) error
	List(ctx context.Context) ([]Bundle, error)
	// GetByID returns ErrBundleNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*Bundle, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	Delete(ctx context.Context, id string) error
}
