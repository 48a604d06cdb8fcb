// Package fallback links the request executor and the tiered cache into
// the caller-facing fetch operation: try a live call, then a fresh cache
// entry, then a stale one, then a caller-supplied default, and only then
// surface the classified error. Callers always get either a value with a
// provenance tag or one classified error, never a silent empty result.
package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/revittco/fetchgate/internal/cache"
	"github.com/revittco/fetchgate/internal/upstream"
	"golang.org/x/sync/singleflight"
)

// Doer executes one described upstream call.
type Doer interface {
	Do(ctx context.Context, d upstream.Descriptor) (*upstream.Response, error)
}

// Source tags where a fetched value came from.
type Source int

const (
	SourceLive Source = iota
	SourceCacheFresh
	SourceCacheStale
	SourceDefault
)

func (s Source) String() string {
	switch s {
	case SourceLive:
		return "live"
	case SourceCacheFresh:
		return "cache_fresh"
	case SourceCacheStale:
		return "cache_stale"
	case SourceDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Request is one guarded fetch.
type Request[V any] struct {
	// Key is the canonical cache key bound to this call.
	Key string

	Descriptor upstream.Descriptor

	// Cache controls the write-through entry created on live success.
	Cache cache.EntryOptions

	// Default, when set, is the last value source before the error
	// propagates.
	Default func() (V, error)
}

// Result is a fetched value with its provenance.
type Result[V any] struct {
	Value  V
	Source Source
}

// Controller composes an executor and a tiered cache per the chain
// Live -> CacheFresh -> CacheStale -> Default -> Failed.
type Controller[V any] struct {
	exec   Doer
	cache  *cache.Tiered[V]
	decode func([]byte) (V, error)
	group  singleflight.Group
	logger *slog.Logger
}

// New creates a Controller. decode may be nil to unmarshal response
// bodies as JSON into V.
func New[V any](exec Doer, c *cache.Tiered[V], decode func([]byte) (V, error), logger *slog.Logger) *Controller[V] {
	if decode == nil {
		decode = func(data []byte) (V, error) {
			var v V
			err := json.Unmarshal(data, &v)
			return v, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller[V]{exec: exec, cache: c, decode: decode, logger: logger}
}

// Fetch runs the fallback chain for req. On live success the value is
// written through to the cache and tagged SourceLive. On live failure
// the cache is consulted directly: a fresh entry beats a stale one,
// which beats the default provider; if nothing yields a value, the
// classified live error propagates.
func (f *Controller[V]) Fetch(ctx context.Context, req Request[V]) (Result[V], error) {
	v, liveErr := f.live(ctx, req)
	if liveErr == nil {
		return Result[V]{Value: v, Source: SourceLive}, nil
	}

	// A cancelled caller gets the error straight back: there is nobody
	// left to consume a substitute value, and durable-tier reads under
	// a cancelled context would fail anyway.
	var cerr *upstream.Error
	if errors.As(liveErr, &cerr) && cerr.Kind == upstream.KindAborted {
		return Result[V]{}, liveErr
	}

	f.logger.Debug("live fetch failed, consulting cache", "key", req.Key, "err", liveErr)

	if v, ok := f.cache.Get(ctx, req.Key); ok {
		return Result[V]{Value: v, Source: SourceCacheFresh}, nil
	}
	if v, ok := f.cache.GetStale(ctx, req.Key); ok {
		return Result[V]{Value: v, Source: SourceCacheStale}, nil
	}
	if req.Default != nil {
		if dv, err := req.Default(); err == nil {
			return Result[V]{Value: dv, Source: SourceDefault}, nil
		}
	}
	return Result[V]{}, liveErr
}

// live performs the upstream call. Concurrent non-mutating fetches of
// the same key share a single call; mutating requests never coalesce.
func (f *Controller[V]) live(ctx context.Context, req Request[V]) (V, error) {
	if upstream.IsMutating(req.Descriptor.Method) {
		return f.fetchAndStore(ctx, req)
	}
	out, err, _ := f.group.Do(req.Key, func() (any, error) {
		return f.fetchAndStore(ctx, req)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return out.(V), nil
}

func (f *Controller[V]) fetchAndStore(ctx context.Context, req Request[V]) (V, error) {
	var zero V

	resp, err := f.exec.Do(ctx, req.Descriptor)
	if err != nil {
		return zero, err
	}

	v, err := f.decode(resp.Body)
	if err != nil {
		return zero, &upstream.Error{
			Kind:        upstream.KindInvalidResponse,
			Code:        "invalid_response",
			UserMessage: "The upstream service returned an unreadable response.",
			HTTPStatus:  resp.Status,
			Err:         err,
		}
	}

	// Write-through failure never masks the live value.
	if err := f.cache.Set(ctx, req.Key, v, req.Cache); err != nil {
		f.logger.Warn("write-through failed", "key", req.Key, "err", err)
	}
	return v, nil
}
