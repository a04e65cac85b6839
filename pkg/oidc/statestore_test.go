package oidc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...StateStoreOption) *StateStore {
	t.Helper()
	store := NewStateStore(opts...)
	t.Cleanup(store.Stop)
	return store
}

func TestStateSingleUse(t *testing.T) {
	store := newTestStore(t)

	store.StoreState("state-1", "verifier", "/notes")

	entry, ok := store.GetState("state-1")
	require.True(t, ok)
	assert.Equal(t, "verifier", entry.CodeVerifier)
	assert.Equal(t, "/notes", entry.RedirectURL)

	store.DeleteState("state-1")

	_, ok = store.GetState("state-1")
	assert.False(t, ok, "state must not be retrievable after deletion")

	// Deleting again is a no-op.
	store.DeleteState("state-1")
}

func TestStateExpiry(t *testing.T) {
	now := time.Now()
	store := newTestStore(t, WithClock(func() time.Time { return now }), WithStateTTL(10*time.Minute))

	store.StoreState("state-1", "", "")

	now = now.Add(10*time.Minute - time.Second)
	_, ok := store.GetState("state-1")
	assert.True(t, ok, "state should be valid just before TTL")

	now = now.Add(2 * time.Second)
	_, ok = store.GetState("state-1")
	assert.False(t, ok, "state should be expired just after TTL")

	// Expired entries are lazily deleted.
	now = now.Add(-2 * time.Second)
	_, ok = store.GetState("state-1")
	assert.False(t, ok)
}

func TestConsumeStateSingleUse(t *testing.T) {
	store := newTestStore(t)

	store.StoreState("state-1", "verifier", "/notes")

	entry, ok := store.ConsumeState("state-1")
	require.True(t, ok)
	assert.Equal(t, "verifier", entry.CodeVerifier)
	assert.Equal(t, "/notes", entry.RedirectURL)

	_, ok = store.ConsumeState("state-1")
	assert.False(t, ok, "second consumption must fail")
}

func TestConsumeStateExpired(t *testing.T) {
	now := time.Now()
	store := newTestStore(t, WithClock(func() time.Time { return now }), WithStateTTL(10*time.Minute))

	store.StoreState("state-1", "", "")

	now = now.Add(10*time.Minute + time.Second)
	_, ok := store.ConsumeState("state-1")
	assert.False(t, ok, "expired state must read as absent")
}

func TestStateConcurrentConsumption(t *testing.T) {
	store := newTestStore(t)
	store.StoreState("state-1", "verifier", "/")

	const goroutines = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := store.ConsumeState("state-1"); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one callback may consume a state")
}

func TestExchangeCodeSingleUse(t *testing.T) {
	store := newTestStore(t)

	store.StoreExchangeResult("code-1", ExchangeResult{AccessToken: "at", RefreshToken: "rt", RedirectURL: "/"})

	result, ok := store.ConsumeExchangeCode("code-1")
	require.True(t, ok)
	assert.Equal(t, "at", result.AccessToken)

	_, ok = store.ConsumeExchangeCode("code-1")
	assert.False(t, ok, "second consumption must fail")
}

func TestExchangeCodeExpiry(t *testing.T) {
	now := time.Now()
	store := newTestStore(t, WithClock(func() time.Time { return now }), WithExchangeTTL(60*time.Second))

	store.StoreExchangeResult("code-1", ExchangeResult{AccessToken: "at"})

	now = now.Add(61 * time.Second)
	_, ok := store.ConsumeExchangeCode("code-1")
	assert.False(t, ok, "expired code must read as absent")
}

func TestExchangeCodeConcurrentConsumption(t *testing.T) {
	store := newTestStore(t)
	store.StoreExchangeResult("code-1", ExchangeResult{AccessToken: "at"})

	const goroutines = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := store.ConsumeExchangeCode("code-1"); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one consumer may receive the result")
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	now := time.Now()
	store := newTestStore(t, WithClock(func() time.Time { return now }))

	store.StoreState("state-1", "", "")
	store.StoreExchangeResult("code-1", ExchangeResult{})

	now = now.Add(time.Hour)
	store.sweep()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.states)
	assert.Empty(t, store.results)
}
