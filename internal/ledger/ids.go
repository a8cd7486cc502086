package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// RecordID derives the deterministic ledger id for an ingested document.
// When legislature, session and date are all known the id is readable and
// stable across runs. Otherwise it falls back to a truncated SHA-256 of the
// filename — collision-resistant for distinct names, but two differently
// named copies of the same document still get distinct ids; that is accepted
// best-effort behavior, not a uniqueness guarantee.
func RecordID(source string, legislature, session int, date time.Time, filename string) string {
	if legislature > 0 && session > 0 && !date.IsZero() {
		return fmt.Sprintf("%s-leg%d-sed%04d-%s", source, legislature, session, date.Format("2006-01-02"))
	}
	sum := sha256.Sum256([]byte(filename))
	return fmt.Sprintf("%s-%s", source, hex.EncodeToString(sum[:])[:16])
}

// ContentHash returns the hex SHA-256 of a document body, recorded in the
// ledger for downstream integrity checks.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
