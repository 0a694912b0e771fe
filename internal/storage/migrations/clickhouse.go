package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	chstore "sandwich-watch/internal/storage/clickhouse"
)

const chTrackingDDL = `
	CREATE TABLE IF NOT EXISTS ` + trackingTable + ` (
		version    String,
		checksum   String,
		applied_at DateTime DEFAULT now()
	)
	ENGINE = ReplacingMergeTree(applied_at)
	ORDER BY version
`

// RunClickhouseMigrations creates the DSN's database if needed and applies the
// embedded schemas not yet recorded in schema_migrations. The returned
// connection targets that database and is handed to the analytics store.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, *Result, error) {
	migrations, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, nil, err
	}
	for _, m := range migrations {
		if err := validateNoSemicolonInStrings(m.SQL); err != nil {
			return nil, nil, fmt.Errorf("validate migration %s: %w", m.Version, err)
		}
	}

	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, nil, err
	}

	adminConn, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	if err := adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		adminConn.Close()
		return nil, nil, fmt.Errorf("create database %s: %w", dbName, err)
	}
	if err := adminConn.Close(); err != nil {
		return nil, nil, fmt.Errorf("close admin connection: %w", err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	res, err := applyClickhouse(ctx, conn, migrations)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, res, nil
}

// applyClickhouse runs pending migrations one statement at a time, since the
// driver rejects multi-statement Exec. ClickHouse has no transactions, so a
// migration is recorded only after all of its statements succeed.
func applyClickhouse(ctx context.Context, conn *chstore.Conn, migrations []Migration) (*Result, error) {
	if err := conn.Exec(ctx, chTrackingDDL); err != nil {
		return nil, fmt.Errorf("create %s: %w", trackingTable, err)
	}

	applied, err := appliedClickhouse(ctx, conn)
	if err != nil {
		return nil, err
	}

	pending, res, err := plan(migrations, applied)
	if err != nil {
		return nil, err
	}

	for _, m := range pending {
		for _, stmt := range splitStatements(m.SQL) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("apply migration %s: %w", m.Version, err)
			}
		}
		if err := conn.Exec(ctx,
			"INSERT INTO "+trackingTable+" (version, checksum) VALUES (?, ?)",
			m.Version, m.Checksum); err != nil {
			return nil, fmt.Errorf("record migration %s: %w", m.Version, err)
		}
		res.Applied = append(res.Applied, m.Version)
	}
	return res, nil
}

func appliedClickhouse(ctx context.Context, conn *chstore.Conn) (map[string]string, error) {
	rows, err := conn.Query(ctx, "SELECT version, checksum FROM "+trackingTable+" FINAL")
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

// splitStatements drops comment-only lines and splits on semicolons. It does
// not understand string literals, so migrations are checked with
// validateNoSemicolonInStrings first and use -- comments only.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}
	joined := strings.Join(filtered, "\n")

	var stmts []string
	for _, part := range strings.Split(joined, ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings rejects a semicolon inside a single-quoted
// literal. Doubled quotes are treated as an escape.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		} else if ch == ';' && inString {
			return fmt.Errorf("semicolon inside string literal at offset %d", i)
		}
	}
	return nil
}

// databaseFromDSN returns the path component of dsn, which must name a database.
func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
