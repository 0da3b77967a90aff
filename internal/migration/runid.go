package migration

import (
	"crypto/sha256"
	"encoding/hex"
)

// RunIDLength is the number of hex characters kept from the digest.
const RunIDLength = 12

// RunID derives the run identifier from a version pair. The same pair always
// yields the same identifier, which is what makes a second launch for the
// pair collide with the first.
func RunID(fromVersion, toVersion string) string {
	sum := sha256.Sum256([]byte(fromVersion + "→" + toVersion))
	return hex.EncodeToString(sum[:])[:RunIDLength]
}
