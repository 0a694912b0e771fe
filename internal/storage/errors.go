package storage

import "errors"

// Sentinel errors shared by the memory, Postgres and ClickHouse stores.
var (
	// ErrNotFound is returned when a finding or router checkpoint does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a finding_id or an observation's
	// (tx_ref, log_index) is inserted twice. Findings and observations are
	// insert-only; checkpoints upsert and never return it.
	ErrDuplicateKey = errors.New("duplicate key: record already stored")

	// ErrInvalidInput is returned for nil records or records missing their key.
	ErrInvalidInput = errors.New("invalid input")
)
