package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewVisitorID returns an anonymous visitor identifier of the form
// visitor-<unix millis>-<random>. The clock part orders ids minted by one
// browser, the random part keeps concurrent tabs from colliding.
func NewVisitorID(now time.Time) string {
	return fmt.Sprintf("visitor-%d-%s", now.UnixMilli(), RandomToken(8))
}

// RandomToken returns n lowercase hex characters taken from a random UUID.
// n is clamped to the 32 characters a UUID provides.
func RandomToken(n int) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n <= 0 || n > len(token) {
		return token
	}
	return token[:n]
}
