package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"sandwich-watch/internal/domain"
)

// FindingStore provides access to sandwich_findings storage.
type FindingStore interface {
	// Insert adds a new finding. Returns ErrDuplicateKey if finding_id exists.
	Insert(ctx context.Context, f *domain.Finding) error

	// GetByID retrieves a finding by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, findingID string) (*domain.Finding, error)

	// GetByFrontrunner retrieves all findings attributed to an account, ordered by block ASC.
	GetByFrontrunner(ctx context.Context, account common.Address) ([]*domain.Finding, error)

	// GetByBlockRange retrieves findings whose back trade lies in [from, to] (inclusive),
	// ordered by block ASC.
	GetByBlockRange(ctx context.Context, from, to uint64) ([]*domain.Finding, error)
}

// ObservationStore provides access to swap_observations storage.
// Observations keep their router match flag so stored history can be replayed.
type ObservationStore interface {
	// Insert adds a new observation. Returns ErrDuplicateKey if (tx_ref, log_index) exists.
	Insert(ctx context.Context, o *domain.SwapEvent) error

	// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, observations []*domain.SwapEvent) error

	// GetByBlockRange retrieves observations emitted by router in [from, to] (inclusive),
	// ordered by (block_number, tx_index, log_index) ASC.
	GetByBlockRange(ctx context.Context, router common.Address, from, to uint64) ([]*domain.SwapEvent, error)
}
