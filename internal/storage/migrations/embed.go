package migrations

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// PostgresFS holds the swap_observations, sandwich_findings and
// ingestion_checkpoints schemas.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the analytics mirror of sandwich_findings and its
// daily frontrunner rollup.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// trackingTable records applied migrations in both databases.
const trackingTable = "schema_migrations"

// ErrChecksumMismatch is returned when an applied migration file was edited afterwards.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")

// Migration is one SQL file, identified by its name without the .sql suffix.
type Migration struct {
	Version  string
	SQL      string
	Checksum string
}

// Result lists the versions a run applied and those already recorded.
type Result struct {
	Applied []string
	Skipped []string
}

// load reads the non-empty .sql files under dir in lexical order.
func load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		sum := sha256.Sum256(data)
		migrations = append(migrations, Migration{
			Version:  strings.TrimSuffix(name, ".sql"),
			SQL:      string(data),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	return migrations, nil
}

// plan splits migrations into those still to run and those already recorded
// in applied (version -> checksum). A recorded version whose checksum differs
// from the embedded file fails the whole run before anything executes.
func plan(migrations []Migration, applied map[string]string) ([]Migration, *Result, error) {
	res := &Result{}
	var pending []Migration
	for _, m := range migrations {
		sum, ok := applied[m.Version]
		switch {
		case !ok:
			pending = append(pending, m)
		case sum != m.Checksum:
			return nil, nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, m.Version)
		default:
			res.Skipped = append(res.Skipped, m.Version)
		}
	}
	return pending, res, nil
}
