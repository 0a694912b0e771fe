package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/storage"
)

const findingColumns = `
	finding_id, router, block_number,
	front_tx_ref, victim_tx_ref, back_tx_ref,
	victim_account, victim_token_in, victim_token_out, victim_amount_in, victim_amount_out,
	frontrunner_account, frontrunner_profit, profit_token, detected_at`

// FindingStore implements storage.FindingStore using ClickHouse.
type FindingStore struct {
	conn *Conn
}

// NewFindingStore creates a new FindingStore.
func NewFindingStore(conn *Conn) *FindingStore {
	return &FindingStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FindingStore = (*FindingStore)(nil)

// Insert adds a new finding. Returns ErrDuplicateKey if finding_id exists.
func (s *FindingStore) Insert(ctx context.Context, f *domain.Finding) error {
	if f == nil || f.FindingID == "" {
		return storage.ErrInvalidInput
	}

	// ReplacingMergeTree would silently collapse duplicates
	exists, err := s.exists(ctx, f.FindingID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `INSERT INTO sandwich_findings (` + findingColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err = s.conn.Exec(ctx, query,
		f.FindingID, f.Router.Hex(), f.BlockNumber,
		f.FrontTxRef, f.VictimTxRef, f.BackTxRef,
		f.VictimAccount.Hex(), f.VictimTokenIn.Hex(), f.VictimTokenOut.Hex(),
		f.VictimAmountIn, f.VictimAmountOut,
		f.FrontrunnerAccount.Hex(), f.FrontrunnerProfit, f.ProfitToken.Hex(), f.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

// GetByID retrieves a finding by its ID. Returns ErrNotFound if not exists.
func (s *FindingStore) GetByID(ctx context.Context, findingID string) (*domain.Finding, error) {
	query := `SELECT ` + findingColumns + `
		FROM sandwich_findings FINAL
		WHERE finding_id = ?
		LIMIT 1`

	rows, err := s.conn.Query(ctx, query, findingID)
	if err != nil {
		return nil, fmt.Errorf("get finding by id: %w", err)
	}
	defer rows.Close()

	findings, err := scanFindings(rows)
	if err != nil {
		return nil, err
	}
	if len(findings) == 0 {
		return nil, storage.ErrNotFound
	}
	return findings[0], nil
}

// GetByFrontrunner retrieves all findings attributed to an account, ordered by block ASC.
func (s *FindingStore) GetByFrontrunner(ctx context.Context, account common.Address) ([]*domain.Finding, error) {
	query := `SELECT ` + findingColumns + `
		FROM sandwich_findings FINAL
		WHERE frontrunner_account = ?
		ORDER BY block_number ASC, finding_id ASC`

	rows, err := s.conn.Query(ctx, query, account.Hex())
	if err != nil {
		return nil, fmt.Errorf("get findings by frontrunner: %w", err)
	}
	defer rows.Close()

	return scanFindings(rows)
}

// GetByBlockRange retrieves findings in [from, to] (inclusive), ordered by block ASC.
func (s *FindingStore) GetByBlockRange(ctx context.Context, from, to uint64) ([]*domain.Finding, error) {
	query := `SELECT ` + findingColumns + `
		FROM sandwich_findings FINAL
		WHERE block_number >= ? AND block_number <= ?
		ORDER BY block_number ASC, finding_id ASC`

	rows, err := s.conn.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("get findings by block range: %w", err)
	}
	defer rows.Close()

	return scanFindings(rows)
}

// DailyProfit is one row of the per-day frontrunner rollup.
type DailyProfit struct {
	Day                time.Time
	FrontrunnerAccount common.Address
	ProfitToken        common.Address
	Findings           uint64
	Profit             string // signed decimal
}

// DailyProfitSince returns the frontrunner_profit_daily rollup from day since onwards,
// ordered by day then account.
func (s *FindingStore) DailyProfitSince(ctx context.Context, since time.Time) ([]DailyProfit, error) {
	query := `
		SELECT day, frontrunner_account, profit_token, sum(findings), toString(sum(profit))
		FROM frontrunner_profit_daily
		WHERE day >= ?
		GROUP BY day, frontrunner_account, profit_token
		ORDER BY day ASC, frontrunner_account ASC, profit_token ASC
	`

	rows, err := s.conn.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query daily profit: %w", err)
	}
	defer rows.Close()

	var result []DailyProfit
	for rows.Next() {
		var (
			d              DailyProfit
			account, token string
		)
		if err := rows.Scan(&d.Day, &account, &token, &d.Findings, &d.Profit); err != nil {
			return nil, fmt.Errorf("scan daily profit row: %w", err)
		}
		d.FrontrunnerAccount = common.HexToAddress(account)
		d.ProfitToken = common.HexToAddress(token)
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily profit rows: %w", err)
	}
	return result, nil
}

func (s *FindingStore) exists(ctx context.Context, findingID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count(*) FROM sandwich_findings FINAL WHERE finding_id = ?`, findingID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanFindings(rows chRows) ([]*domain.Finding, error) {
	var findings []*domain.Finding

	for rows.Next() {
		var (
			f                                           domain.Finding
			router, victim, tokenIn, tokenOut, frontrun string
			profitToken                                 string
		)
		err := rows.Scan(
			&f.FindingID, &router, &f.BlockNumber,
			&f.FrontTxRef, &f.VictimTxRef, &f.BackTxRef,
			&victim, &tokenIn, &tokenOut, &f.VictimAmountIn, &f.VictimAmountOut,
			&frontrun, &f.FrontrunnerProfit, &profitToken, &f.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan finding row: %w", err)
		}
		f.Router = common.HexToAddress(router)
		f.VictimAccount = common.HexToAddress(victim)
		f.VictimTokenIn = common.HexToAddress(tokenIn)
		f.VictimTokenOut = common.HexToAddress(tokenOut)
		f.FrontrunnerAccount = common.HexToAddress(frontrun)
		f.ProfitToken = common.HexToAddress(profitToken)
		findings = append(findings, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finding rows: %w", err)
	}

	return findings, nil
}
