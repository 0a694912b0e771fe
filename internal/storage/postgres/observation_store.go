package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/storage"
)

const insertObservation = `
	INSERT INTO swap_observations (
		router, account, token_in, token_out, amount_in, amount_out,
		tx_ref, block_number, tx_index, log_index, router_matched
	) VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7, $8, $9, $10, $11)
`

// ObservationStore implements storage.ObservationStore using PostgreSQL.
type ObservationStore struct {
	pool *Pool
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(pool *Pool) *ObservationStore {
	return &ObservationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

// Insert adds a new observation. Returns ErrDuplicateKey if (tx_ref, log_index) exists.
func (s *ObservationStore) Insert(ctx context.Context, o *domain.SwapEvent) error {
	if o == nil || o.TxRef == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertObservation, observationArgs(o)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
func (s *ObservationStore) InsertBulk(ctx context.Context, observations []*domain.SwapEvent) error {
	if len(observations) == 0 {
		return nil
	}

	for _, o := range observations {
		if o == nil || o.TxRef == "" {
			return storage.ErrInvalidInput
		}
	}

	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, o := range observations {
			batch.Queue(insertObservation, observationArgs(o)...)
		}

		results := tx.SendBatch(ctx, batch)
		for range observations {
			if _, err := results.Exec(); err != nil {
				results.Close()
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert observation in bulk: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
		return nil
	})
}

// GetByBlockRange retrieves observations emitted by router in [from, to] (inclusive),
// ordered by (block_number, tx_index, log_index) ASC.
func (s *ObservationStore) GetByBlockRange(ctx context.Context, router common.Address, from, to uint64) ([]*domain.SwapEvent, error) {
	query := `
		SELECT router, account, token_in, token_out, amount_in::text, amount_out::text,
			tx_ref, block_number, tx_index, log_index, router_matched, created_at
		FROM swap_observations
		WHERE router = $1 AND block_number >= $2 AND block_number <= $3
		ORDER BY block_number ASC, tx_index ASC, log_index ASC
	`

	rows, err := s.pool.Query(ctx, query, router.Hex(), from, to)
	if err != nil {
		return nil, fmt.Errorf("get observations by block range: %w", err)
	}
	defer rows.Close()

	var observations []*domain.SwapEvent
	for rows.Next() {
		var (
			o                                     domain.SwapEvent
			routerHex, account, tokenIn, tokenOut string
			amountIn, amountOut                   string
		)
		err := rows.Scan(
			&routerHex, &account, &tokenIn, &tokenOut, &amountIn, &amountOut,
			&o.TxRef, &o.BlockNumber, &o.TxIndex, &o.LogIndex, &o.RouterMatched, &o.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}

		o.Router = common.HexToAddress(routerHex)
		o.Account = common.HexToAddress(account)
		o.TokenIn = common.HexToAddress(tokenIn)
		o.TokenOut = common.HexToAddress(tokenOut)
		if o.AmountIn, err = uint256.FromDecimal(amountIn); err != nil {
			return nil, fmt.Errorf("parse amount_in %q: %w", amountIn, err)
		}
		if o.AmountOut, err = uint256.FromDecimal(amountOut); err != nil {
			return nil, fmt.Errorf("parse amount_out %q: %w", amountOut, err)
		}
		observations = append(observations, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}

	return observations, nil
}

func observationArgs(o *domain.SwapEvent) []any {
	return []any{
		o.Router.Hex(),
		o.Account.Hex(),
		o.TokenIn.Hex(),
		o.TokenOut.Hex(),
		domain.AmountString(o.AmountIn),
		domain.AmountString(o.AmountOut),
		o.TxRef,
		o.BlockNumber,
		o.TxIndex,
		o.LogIndex,
		o.RouterMatched,
	}
}
