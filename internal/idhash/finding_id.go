package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeFindingID computes a deterministic finding_id using SHA256.
// Formula: SHA256(front_tx|victim_tx|back_tx), tx refs lower-cased.
// Returns hex-encoded hash (64 characters).
func ComputeFindingID(frontTx, victimTx, backTx string) string {
	data := fmt.Sprintf("%s|%s|%s",
		strings.ToLower(frontTx),
		strings.ToLower(victimTx),
		strings.ToLower(backTx),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
