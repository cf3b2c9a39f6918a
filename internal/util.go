package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns a short stable hex digest used for cache keys and
// S3 object paths.
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
