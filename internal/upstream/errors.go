package upstream

import "fmt"

// Kind classifies a failed upstream call and determines retry
// eligibility. Only KindTimeout and KindTransient are retryable.
type Kind int

const (
	// KindTimeout: the per-attempt timer fired before the call completed.
	KindTimeout Kind = iota

	// KindAborted: the caller cancelled the operation. Terminal; wins
	// over retry eligibility.
	KindAborted

	// KindTransient: network-level failure, 5xx, or rate limiting (429).
	KindTransient

	// KindPermanent: a 4xx other than 429, or another failure that
	// retrying cannot fix.
	KindPermanent

	// KindInvalidResponse: the response body did not match the expected
	// structural contract. Treated as permanent.
	KindInvalidResponse

	// KindRetriesExhausted: a retryable failure repeated past MaxRetries.
	KindRetriesExhausted
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindAborted:
		return "aborted"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindInvalidResponse:
		return "invalid_response"
	case KindRetriesExhausted:
		return "retries_exhausted"
	default:
		return "unknown"
	}
}

// Error is a classified upstream failure surfaced to callers.
type Error struct {
	Kind        Kind   `json:"-"`
	Code        string `json:"errorCode"` // stable machine-readable code
	UserMessage string `json:"userMessage"`
	RetryHint   string `json:"retryHint,omitempty"`
	HTTPStatus  int    `json:"httpStatus,omitempty"` // zero when no response was received
	Err         error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the executor may retry after this failure.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindTransient
}

func timeoutError(err error) *Error {
	return &Error{
		Kind:        KindTimeout,
		Code:        "timeout",
		UserMessage: "The upstream service did not respond in time.",
		RetryHint:   "retry with backoff",
		Err:         err,
	}
}

func abortedError(err error) *Error {
	return &Error{
		Kind:        KindAborted,
		Code:        "aborted",
		UserMessage: "The request was cancelled.",
		Err:         err,
	}
}

func transientError(code string, status int, err error) *Error {
	return &Error{
		Kind:        KindTransient,
		Code:        code,
		UserMessage: "The upstream service is temporarily unavailable.",
		RetryHint:   "retry with backoff",
		HTTPStatus:  status,
		Err:         err,
	}
}

func permanentError(status int, err error) *Error {
	return &Error{
		Kind:        KindPermanent,
		Code:        fmt.Sprintf("http_%d", status),
		UserMessage: "The upstream service rejected the request.",
		HTTPStatus:  status,
		Err:         err,
	}
}

func invalidResponseError(status int, err error) *Error {
	return &Error{
		Kind:        KindInvalidResponse,
		Code:        "invalid_response",
		UserMessage: "The upstream service returned an unreadable response.",
		HTTPStatus:  status,
		Err:         err,
	}
}

// retriesExhausted wraps the final retryable failure once MaxRetries is
// spent. Unwrap reaches the last attempt's error.
func retriesExhausted(last *Error) *Error {
	return &Error{
		Kind:        KindRetriesExhausted,
		Code:        "retries_exhausted",
		UserMessage: "The upstream service kept failing after several attempts.",
		RetryHint:   "try again later",
		HTTPStatus:  last.HTTPStatus,
		Err:         last,
	}
}
