package upstream

import "github.com/google/uuid"

// IdempotencyHeader carries the operation's idempotency key so the
// upstream system can deduplicate replayed mutating requests.
const IdempotencyHeader = "Idempotency-Key"

// NewIdempotencyKey returns a globally unique key. Stateless and safe
// for concurrent use; call it once per logical operation, not per
// attempt.
func NewIdempotencyKey() string {
	return uuid.NewString()
}
