package rand

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateUuid returns a UUID in string format (including hyphens).
func GenerateUuid() string {
	return uuid.NewString()
}

// GenerateClientID returns prefix followed by the first block of a fresh UUID,
// short enough for brokers that cap client id length at 23 bytes.
func GenerateClientID(prefix string) string {
	id := uuid.NewString()
	return prefix + "-" + id[:strings.IndexByte(id, '-')]
}
