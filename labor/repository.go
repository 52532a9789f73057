package labor

import "context"

// Repository persists positions and the salary configuration.
// See generic/store.go for the contract every implementation follows.
type Repository interface {
	GetPosition(ctx context.Context, id string) (Position, error)
	ListPositions(ctx context.Context) ([]Position, error)
	PutPosition(ctx context.Context, p Position) error
	DeletePosition(ctx context.Context, id string) error

	// GetConfiguration returns found=false when nothing was stored yet.
	GetConfiguration(ctx context.Context) (cfg SalaryConfiguration, found bool, err error)
	PutConfiguration(ctx context.Context, cfg SalaryConfiguration) error

	// WithTx runs fn atomically. Readers outside fn never see a partial write.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
