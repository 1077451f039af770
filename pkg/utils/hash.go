package utils

import (
	"crypto/sha256"
	"fmt"
)

// HashString returns a hex SHA-256 digest, used for cache keys and
// deterministic record IDs.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", sum)
}
