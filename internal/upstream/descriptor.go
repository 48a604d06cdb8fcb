package upstream

import (
	"net/http"
	"time"
)

// Default request-shaping parameters, used when a Descriptor field is
// left zero.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultBaseRetryDelay = 500 * time.Millisecond
)

// Descriptor describes one logical upstream call. It is built once per
// operation; the executor reuses it verbatim across retry attempts, so
// the idempotency key assigned here is stable for the operation's
// lifetime.
type Descriptor struct {
	Method  string
	Target  string
	Headers map[string]string
	Body    []byte

	// IdempotencyKey deduplicates replayed side effects upstream. Set
	// automatically by NewDescriptor for mutating methods; never
	// regenerated per attempt.
	IdempotencyKey string

	// ExpectJSON demands a structurally valid JSON body on success.
	ExpectJSON bool

	Timeout        time.Duration
	MaxRetries     int
	BaseRetryDelay time.Duration
}

// NewDescriptor builds a Descriptor with defaults applied and, for
// mutating methods, a fresh idempotency key.
func NewDescriptor(method, target string) Descriptor {
	d := Descriptor{
		Method:         method,
		Target:         target,
		ExpectJSON:     true,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		BaseRetryDelay: DefaultBaseRetryDelay,
	}
	if IsMutating(method) {
		d.IdempotencyKey = NewIdempotencyKey()
	}
	return d
}

// IsMutating reports whether method implies upstream side effects and
// therefore needs an idempotency key for safe replay.
func IsMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func (d Descriptor) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

func (d Descriptor) baseRetryDelay() time.Duration {
	if d.BaseRetryDelay > 0 {
		return d.BaseRetryDelay
	}
	return DefaultBaseRetryDelay
}
