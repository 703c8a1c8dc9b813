// Package search runs collaborator lookups with last-request-wins semantics:
// a newer call cancels the one before it, and results of superseded calls
// are dropped instead of returned.
package search

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSuperseded is returned by a call that a newer call replaced.
var ErrSuperseded = errors.New("search superseded by a newer request")

// FetchFunc performs one lookup.
type FetchFunc[Q, R any] func(ctx context.Context, q Q) (R, error)

// Latest serializes lookups from one source by sequence number.
type Latest[Q, R any] struct {
	fetch    FetchFunc[Q, R]
	debounce time.Duration

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewLatest returns a Latest that waits debounce before calling fetch.
func NewLatest[Q, R any](fetch FetchFunc[Q, R], debounce time.Duration) *Latest[Q, R] {
	return &Latest[Q, R]{fetch: fetch, debounce: debounce}
}

// Do starts a new lookup for q and cancels any lookup still running.
// It returns ErrSuperseded if another Do started before this one finished.
func (l *Latest[Q, R]) Do(ctx context.Context, q Q) (R, error) {
	var zero R

	l.mu.Lock()
	l.seq++
	seq := l.seq
	if l.cancel != nil {
		l.cancel()
	}
	callCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()
	defer cancel()

	if l.debounce > 0 {
		timer := time.NewTimer(l.debounce)
		select {
		case <-timer.C:
		case <-callCtx.Done():
			timer.Stop()
			if l.superseded(seq) {
				return zero, ErrSuperseded
			}
			return zero, callCtx.Err()
		}
	}

	if l.superseded(seq) {
		return zero, ErrSuperseded
	}

	r, err := l.fetch(callCtx, q)
	if l.superseded(seq) {
		return zero, ErrSuperseded
	}
	return r, err
}

// Seq returns the sequence number of the most recent call.
func (l *Latest[Q, R]) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

func (l *Latest[Q, R]) superseded(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq != seq
}

// Keyed keeps one Latest per key, such as a tenant and designer session.
// Entries with no call in flight are dropped.
type Keyed[Q, R any] struct {
	fetch    func(ctx context.Context, key string, q Q) (R, error)
	debounce time.Duration

	mu      sync.Mutex
	entries map[string]*keyedEntry[Q, R]
}

type keyedEntry[Q, R any] struct {
	latest *Latest[Q, R]
	refs   int
}

// NewKeyed returns an empty Keyed.
func NewKeyed[Q, R any](fetch func(ctx context.Context, key string, q Q) (R, error), debounce time.Duration) *Keyed[Q, R] {
	return &Keyed[Q, R]{
		fetch:    fetch,
		debounce: debounce,
		entries:  make(map[string]*keyedEntry[Q, R]),
	}
}

// Do runs q through the Latest bound to key.
func (k *Keyed[Q, R]) Do(ctx context.Context, key string, q Q) (R, error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry[Q, R]{
			latest: NewLatest(func(ctx context.Context, q Q) (R, error) {
				return k.fetch(ctx, key, q)
			}, k.debounce),
		}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}()

	return e.latest.Do(ctx, q)
}

// Len returns the number of keys with a call in flight.
func (k *Keyed[Q, R]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
