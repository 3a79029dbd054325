package store

import (
	"errors"
	"sync"
	"time"
)

// DefaultWindow is how long a timestamp's nonces are remembered after the
// timestamp was last claimed.
const DefaultWindow = 5 * time.Minute

// ErrNonceReused is returned when a nonce was already claimed for a
// different payload at the same timestamp.
var ErrNonceReused = errors.New("nonce already used for a different payload")

// Ledger defines the interface for recording nonces used by a signer.
type Ledger interface {
	// Claim records nonce as used at timestamp for the payload digest.
	// Claiming the same nonce again for the same digest succeeds.
	Claim(timestamp int64, nonce string, digest [32]byte) error
	Len() int
}

// bucket holds the nonces claimed at one request timestamp.
type bucket struct {
	nonces  map[string][32]byte
	touched time.Time
}

// MemoryLedger is an in-memory implementation of the Ledger interface.
// Any request timestamp is accepted; freshness is the provider's concern.
// A timestamp's nonces are dropped once the ledger clock has moved a full
// window past the last claim at that timestamp, so the request timestamps
// themselves never decide what is forgotten.
type MemoryLedger struct {
	mu        sync.Mutex
	window    time.Duration
	now       func() time.Time
	lastPrune time.Time
	data      map[int64]*bucket
	count     int
}

// LedgerOption configures a MemoryLedger.
type LedgerOption func(*MemoryLedger)

// WithClock sets the wall clock used for retention.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *MemoryLedger) {
		l.now = now
	}
}

// NewMemoryLedger creates a new MemoryLedger. A non-positive window selects
// DefaultWindow.
func NewMemoryLedger(window time.Duration, opts ...LedgerOption) *MemoryLedger {
	if window <= 0 {
		window = DefaultWindow
	}
	l := &MemoryLedger{
		window: window,
		now:    time.Now,
		data:   make(map[int64]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLedger) Claim(timestamp int64, nonce string, digest [32]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	b, ok := l.data[timestamp]
	if !ok {
		b = &bucket{nonces: make(map[string][32]byte)}
		l.data[timestamp] = b
	}
	if now.After(b.touched) {
		b.touched = now
	}

	if prev, ok := b.nonces[nonce]; ok {
		if prev != digest {
			return ErrNonceReused
		}
		return nil
	}
	b.nonces[nonce] = digest
	l.count++
	return nil
}

// Len returns the number of nonces currently held.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// prune drops buckets untouched for a full window. It scans at most once a second.
func (l *MemoryLedger) prune(now time.Time) {
	if now.Sub(l.lastPrune) < time.Second {
		return
	}
	l.lastPrune = now

	horizon := now.Add(-l.window)
	for ts, b := range l.data {
		if b.touched.Before(horizon) {
			l.count -= len(b.nonces)
			delete(l.data, ts)
		}
	}
}
