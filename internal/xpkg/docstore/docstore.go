// Package docstore is a small transactional document store: JSON objects
// addressed by slash-separated paths ("orders/{id}", "users/{uid}/orders/{id}"),
// written with replace or top-level merge semantics, plus one optimistic
// multi-document transaction primitive that retries on conflict.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrConflict         = errors.New("transaction conflict")
	ErrRetriesExhausted = errors.New("transaction retries exhausted")
	ErrInvalidPath      = errors.New("invalid document path")
	ErrNotObject        = errors.New("document value must encode to a JSON object")
)

// Snapshot is a document as read from the store.
type Snapshot struct {
	Path      string
	Data      []byte
	Version   int64
	UpdatedAt time.Time
}

// DataTo decodes the document into v.
func (s Snapshot) DataTo(v any) error {
	return json.Unmarshal(s.Data, v)
}

type setOptions struct {
	merge bool
}

type SetOption func(*setOptions)

// Merge overlays the top-level fields of the new value onto the stored document
// instead of replacing it.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

// Tx is the view of the store inside RunTransaction. Reads observe the
// transaction's own writes.
type Tx interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, v any, opts ...SetOption) error
}

type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, v any, opts ...SetOption) error
	// List returns the documents directly under a collection path, most
	// recently updated first.
	List(ctx context.Context, collection string) ([]Snapshot, error)
	// RunTransaction runs fn atomically. fn may be invoked several times;
	// it must not have side effects outside tx. When every attempt conflicts
	// the returned error wraps ErrRetriesExhausted.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Options controls the transaction retry loop shared by all backends.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	return o
}

// runWithRetry calls attempt until it succeeds, fails with a non-conflict
// error, or the attempt budget is spent.
func runWithRetry(ctx context.Context, opts Options, attempt func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i < opts.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err

		if opts.Backoff > 0 && i+1 < opts.MaxAttempts {
			// linear backoff with jitter so colliding terminals spread out
			d := opts.Backoff*time.Duration(i+1) + time.Duration(rand.Int64N(int64(opts.Backoff)))
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, opts.MaxAttempts, lastErr)
}

// splitPath returns the collection and id of a document path. A document
// path has an even number of segments.
func splitPath(path string) (string, string, error) {
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	i := strings.LastIndex(path, "/")
	return path[:i], path[i+1:], nil
}

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return nil, ErrNotObject
	}
	return data, nil
}

// mergeJSON overlays the top-level keys of patch onto base.
func mergeJSON(base, patch []byte) ([]byte, error) {
	if len(base) == 0 {
		return patch, nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	overlay := map[string]json.RawMessage{}
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	for k, v := range overlay {
		fields[k] = v
	}
	return json.Marshal(fields)
}

func applyOptions(opts []SetOption) setOptions {
	o := setOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
