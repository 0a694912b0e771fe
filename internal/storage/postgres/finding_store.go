package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/storage"
)

const selectFindings = `
	SELECT finding_id, router, block_number,
		front_tx_ref, victim_tx_ref, back_tx_ref,
		victim_account, victim_token_in, victim_token_out,
		victim_amount_in::text, victim_amount_out::text,
		frontrunner_account, frontrunner_profit::text, profit_token,
		detected_at, created_at
	FROM sandwich_findings
`

// FindingStore implements storage.FindingStore using PostgreSQL.
type FindingStore struct {
	pool *Pool
}

// NewFindingStore creates a new FindingStore.
func NewFindingStore(pool *Pool) *FindingStore {
	return &FindingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FindingStore = (*FindingStore)(nil)

// Insert adds a new finding. Returns ErrDuplicateKey if finding_id exists.
func (s *FindingStore) Insert(ctx context.Context, f *domain.Finding) error {
	if f == nil || f.FindingID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO sandwich_findings (
			finding_id, router, block_number,
			front_tx_ref, victim_tx_ref, back_tx_ref,
			victim_account, victim_token_in, victim_token_out,
			victim_amount_in, victim_amount_out,
			frontrunner_account, frontrunner_profit, profit_token, detected_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10::text::numeric, $11::text::numeric,
			$12, $13::text::numeric, $14, $15
		)
	`

	_, err := s.pool.Exec(ctx, query,
		f.FindingID,
		f.Router.Hex(),
		f.BlockNumber,
		f.FrontTxRef,
		f.VictimTxRef,
		f.BackTxRef,
		f.VictimAccount.Hex(),
		f.VictimTokenIn.Hex(),
		f.VictimTokenOut.Hex(),
		f.VictimAmountIn,
		f.VictimAmountOut,
		f.FrontrunnerAccount.Hex(),
		f.FrontrunnerProfit,
		f.ProfitToken.Hex(),
		f.DetectedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

// GetByID retrieves a finding by its ID. Returns ErrNotFound if not exists.
func (s *FindingStore) GetByID(ctx context.Context, findingID string) (*domain.Finding, error) {
	row := s.pool.QueryRow(ctx, selectFindings+` WHERE finding_id = $1`, findingID)

	f, err := scanFinding(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get finding by id: %w", err)
	}
	return f, nil
}

// GetByFrontrunner retrieves all findings attributed to an account, ordered by block ASC.
func (s *FindingStore) GetByFrontrunner(ctx context.Context, account common.Address) ([]*domain.Finding, error) {
	query := selectFindings + `
		WHERE frontrunner_account = $1
		ORDER BY block_number ASC, finding_id ASC
	`

	rows, err := s.pool.Query(ctx, query, account.Hex())
	if err != nil {
		return nil, fmt.Errorf("get findings by frontrunner: %w", err)
	}
	defer rows.Close()

	return scanFindings(rows)
}

// GetByBlockRange retrieves findings in [from, to] (inclusive), ordered by block ASC.
func (s *FindingStore) GetByBlockRange(ctx context.Context, from, to uint64) ([]*domain.Finding, error) {
	query := selectFindings + `
		WHERE block_number >= $1 AND block_number <= $2
		ORDER BY block_number ASC, finding_id ASC
	`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("get findings by block range: %w", err)
	}
	defer rows.Close()

	return scanFindings(rows)
}

// scanFinding scans a single row into a Finding.
func scanFinding(row pgx.Row) (*domain.Finding, error) {
	var (
		f                                          domain.Finding
		router, victim, tokenIn, tokenOut, account string
		profitToken                                string
	)

	err := row.Scan(
		&f.FindingID,
		&router,
		&f.BlockNumber,
		&f.FrontTxRef,
		&f.VictimTxRef,
		&f.BackTxRef,
		&victim,
		&tokenIn,
		&tokenOut,
		&f.VictimAmountIn,
		&f.VictimAmountOut,
		&account,
		&f.FrontrunnerProfit,
		&profitToken,
		&f.DetectedAt,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Router = common.HexToAddress(router)
	f.VictimAccount = common.HexToAddress(victim)
	f.VictimTokenIn = common.HexToAddress(tokenIn)
	f.VictimTokenOut = common.HexToAddress(tokenOut)
	f.FrontrunnerAccount = common.HexToAddress(account)
	f.ProfitToken = common.HexToAddress(profitToken)
	return &f, nil
}

// scanFindings scans multiple rows into a slice of Finding.
func scanFindings(rows pgx.Rows) ([]*domain.Finding, error) {
	var findings []*domain.Finding

	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finding row: %w", err)
		}
		findings = append(findings, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finding rows: %w", err)
	}

	return findings, nil
}
