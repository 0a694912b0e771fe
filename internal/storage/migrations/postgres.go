package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sandwich-watch/internal/storage/postgres"
)

const pgTrackingDDL = `
	CREATE TABLE IF NOT EXISTS ` + trackingTable + ` (
		version    TEXT PRIMARY KEY,
		checksum   TEXT        NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// RunPostgresMigrations applies the embedded schemas not yet recorded in
// schema_migrations. Each file and its tracking row commit in one transaction.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) (*Result, error) {
	migrations, err := load(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, pgTrackingDDL); err != nil {
		return nil, fmt.Errorf("create %s: %w", trackingTable, err)
	}

	applied, err := appliedPostgres(ctx, pool)
	if err != nil {
		return nil, err
	}

	pending, res, err := plan(migrations, applied)
	if err != nil {
		return nil, err
	}

	for _, m := range pending {
		err := pool.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO `+trackingTable+` (version, checksum) VALUES ($1, $2)`,
				m.Version, m.Checksum)
			return err
		})
		if err != nil {
			return res, fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		res.Applied = append(res.Applied, m.Version)
	}

	return res, nil
}

func appliedPostgres(ctx context.Context, pool *postgres.Pool) (map[string]string, error) {
	rows, err := pool.Query(ctx, `SELECT version, checksum FROM `+trackingTable)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", trackingTable, err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("scan %s: %w", trackingTable, err)
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}
