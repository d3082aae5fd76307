package gateway

import (
	"strconv"
	"time"
)

// NewTransactionID returns prefix followed by the current time in
// nanoseconds. Transaction ids are only used for logging; replies are
// matched to requests by the HTTP round trip, so collisions are harmless.
func NewTransactionID(prefix string) string {
	return prefix + strconv.FormatInt(time.Now().UnixNano(), 10)
}
