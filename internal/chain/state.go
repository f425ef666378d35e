package chain

import (
	"math/big"
	"sync"

	"github.com/meloseed/meloseed/internal/nft"
)

// LookupState is the lifecycle of one token lookup.
type LookupState int

const (
	LookupIdle LookupState = iota
	LookupFetching
	LookupResolved
	LookupFailed
)

func (s LookupState) String() string {
	switch s {
	case LookupIdle:
		return "idle"
	case LookupFetching:
		return "fetching"
	case LookupResolved:
		return "resolved"
	case LookupFailed:
		return "failed"
	}
	return "unknown"
}

// Lookup is the observable record of one (token, attempt) resolution.
type Lookup struct {
	TokenID  *big.Int
	Attempt  int
	State    LookupState
	Metadata nft.Metadata
	Err      error
}

// LookupTracker keeps the latest lookup per token for display purposes.
// A lookup with a higher attempt count supersedes the previous in-flight
// one; it does not cancel the underlying call. Lookups for different tokens
// are independent.
type LookupTracker struct {
	mu      sync.Mutex
	lookups map[string]*Lookup
}

// NewLookupTracker creates an empty tracker.
func NewLookupTracker() *LookupTracker {
	return &LookupTracker{lookups: make(map[string]*Lookup)}
}

// Start records a lookup entering the Fetching state. Returns false if a
// newer attempt for the same token is already tracked; the caller should
// still run the lookup, but its outcome will be ignored for display.
func (t *LookupTracker) Start(tokenID *big.Int, attempt int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := tokenID.String()
	if cur, ok := t.lookups[key]; ok && cur.Attempt > attempt {
		return false
	}
	t.lookups[key] = &Lookup{TokenID: new(big.Int).Set(tokenID), Attempt: attempt, State: LookupFetching}
	return true
}

// Complete records a lookup's outcome. Outcomes from superseded attempts
// are dropped.
func (t *LookupTracker) Complete(tokenID *big.Int, attempt int, meta nft.Metadata, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := tokenID.String()
	cur, ok := t.lookups[key]
	if !ok || cur.Attempt != attempt {
		return
	}
	if err != nil {
		cur.State = LookupFailed
		cur.Err = err
		return
	}
	cur.State = LookupResolved
	cur.Metadata = meta
	cur.Err = nil
}

// Get returns the tracked lookup for a token, or a zero-valued Idle lookup.
func (t *LookupTracker) Get(tokenID *big.Int) Lookup {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.lookups[tokenID.String()]; ok {
		return *cur
	}
	return Lookup{TokenID: new(big.Int).Set(tokenID), State: LookupIdle}
}
