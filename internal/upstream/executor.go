package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Executor performs one logical upstream call with a per-attempt
// timeout and exponential-backoff retries. It holds no per-call state;
// a single Executor serves any number of concurrent operations.
type Executor struct {
	client *http.Client
	logger *slog.Logger
}

// Response is a completed upstream call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewExecutor creates an Executor. client may be nil for a default
// client; per-attempt deadlines come from the Descriptor, not the
// client's Timeout.
func NewExecutor(client *http.Client, logger *slog.Logger) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{client: client, logger: logger}
}

// Do executes the described call. Retryable failures (timeouts and
// transient errors) are retried up to d.MaxRetries with a delay of
// BaseRetryDelay * 2^attempt between attempts. Cancellation of ctx is
// observed at every suspension point and always wins over retrying.
func (e *Executor) Do(ctx context.Context, d Descriptor) (*Response, error) {
	retries := d.MaxRetries
	if retries < 0 {
		retries = 0
	}
	var last *Error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(d.baseRetryDelay(), attempt-1)
			e.logger.Debug("retrying upstream call",
				"target", d.Target, "attempt", attempt, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				return nil, abortedError(err)
			}
		}

		resp, cerr := e.attempt(ctx, d)
		if cerr == nil {
			return resp, nil
		}
		if !cerr.Retryable() {
			return nil, cerr
		}
		last = cerr
	}
	return nil, retriesExhausted(last)
}

// attempt performs a single HTTP round trip under the descriptor's
// timeout and classifies any failure.
func (e *Executor) attempt(ctx context.Context, d Descriptor) (*Response, *Error) {
	actx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	var body io.Reader
	if len(d.Body) > 0 {
		body = bytes.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(actx, d.Method, d.Target, body)
	if err != nil {
		return nil, permanentError(0, fmt.Errorf("create request: %w", err))
	}
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	// Every attempt of a mutating operation carries the same key.
	if d.IdempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, d.IdempotencyKey)
	}

	httpResp, err := e.client.Do(req)
	if err != nil {
		return nil, e.classifyTransport(ctx, actx, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, e.classifyTransport(ctx, actx, fmt.Errorf("read response: %w", err))
	}

	if cerr := classifyStatus(httpResp, respBody); cerr != nil {
		return nil, cerr
	}

	if d.ExpectJSON && len(respBody) > 0 && !json.Valid(respBody) {
		return nil, invalidResponseError(httpResp.StatusCode,
			errors.New("response body is not valid JSON"))
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   respBody,
	}, nil
}

// classifyTransport maps a transport-level failure: caller cancellation
// is terminal, the attempt timer firing is a retryable timeout, and
// everything else (connection reset, DNS, broken read) is transient.
func (e *Executor) classifyTransport(ctx, actx context.Context, err error) *Error {
	if ctx.Err() != nil {
		return abortedError(ctx.Err())
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(err)
	}
	return transientError("network", 0, err)
}

// classifyStatus maps a non-2xx status: 5xx and 429 are transient, the
// remaining 4xx are permanent.
func classifyStatus(resp *http.Response, body []byte) *Error {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		cerr := transientError("rate_limited", status,
			fmt.Errorf("http 429: %s", truncate(body)))
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			cerr.RetryHint = "retry after " + ra + "s"
		}
		return cerr
	case status >= 500:
		return transientError("upstream_error", status,
			fmt.Errorf("http %d: %s", status, truncate(body)))
	default:
		return permanentError(status, fmt.Errorf("http %d: %s", status, truncate(body)))
	}
}

// backoffDelay is the wait after the 0-indexed attempt fails:
// base * 2^attempt.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << uint(attempt)
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
