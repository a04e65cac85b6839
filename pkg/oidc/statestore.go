package oidc

import (
	"sync"
	"time"

	"github.com/tendant/simple-notes/pkg/user"
)

const (
	defaultStateTTL    = 10 * time.Minute
	defaultExchangeTTL = 60 * time.Second
	sweepInterval      = 5 * time.Minute
)

// PendingState is the CSRF/PKCE context stored between initiation and
// callback.
type PendingState struct {
	CodeVerifier string
	RedirectURL  string
	ExpiresAt    time.Time
}

// ExchangeResult is a completed authentication result parked under a
// one-time exchange code, so tokens never ride in a redirect URL.
type ExchangeResult struct {
	AccessToken  string
	RefreshToken string
	User         *user.User
	RedirectURL  string
	ExpiresAt    time.Time
}

// StateStore holds pending OIDC states and exchange results in process
// memory. Lookups never fail with an error; absence and expiry both read
// as "not found". A background sweep bounds memory, correctness relies
// only on lazy eviction.
type StateStore struct {
	mu       sync.Mutex
	states   map[string]PendingState
	results  map[string]ExchangeResult
	stateTTL time.Duration
	codeTTL  time.Duration

	now  func() time.Time
	done chan struct{}
	stop sync.Once
}

// StateStoreOption configures a StateStore
type StateStoreOption func(*StateStore)

// WithStateTTL overrides the pending state lifetime
func WithStateTTL(d time.Duration) StateStoreOption {
	return func(s *StateStore) { s.stateTTL = d }
}

// WithExchangeTTL overrides the exchange code lifetime
func WithExchangeTTL(d time.Duration) StateStoreOption {
	return func(s *StateStore) { s.codeTTL = d }
}

// WithClock injects the time source, used by tests to drive expiry
func WithClock(now func() time.Time) StateStoreOption {
	return func(s *StateStore) { s.now = now }
}

// NewStateStore creates a state store and starts its background sweep.
// Call Stop when the owning process shuts down.
func NewStateStore(opts ...StateStoreOption) *StateStore {
	s := &StateStore{
		states:   make(map[string]PendingState),
		results:  make(map[string]ExchangeResult),
		stateTTL: defaultStateTTL,
		codeTTL:  defaultExchangeTTL,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.sweepLoop()
	return s
}

// StoreState records a pending authorization attempt under its CSRF state.
func (s *StateStore) StoreState(state, codeVerifier, redirectURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state] = PendingState{
		CodeVerifier: codeVerifier,
		RedirectURL:  redirectURL,
		ExpiresAt:    s.now().Add(s.stateTTL),
	}
}

// GetState returns the pending state if present and unexpired. An expired
// entry is deleted and reads as absent.
func (s *StateStore) GetState(state string) (PendingState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.states[state]
	if !ok {
		return PendingState{}, false
	}
	if s.now().After(entry.ExpiresAt) {
		delete(s.states, state)
		return PendingState{}, false
	}
	return entry, true
}

// ConsumeState atomically removes and returns the pending state. At most
// one caller ever receives a given entry, so concurrent callbacks carrying
// the same state token cannot both proceed; expired entries are deleted and
// read as absent.
func (s *StateStore) ConsumeState(state string) (PendingState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.states[state]
	if !ok {
		return PendingState{}, false
	}
	delete(s.states, state)
	if s.now().After(entry.ExpiresAt) {
		return PendingState{}, false
	}
	return entry, true
}

// DeleteState removes a pending state. Idempotent.
func (s *StateStore) DeleteState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, state)
}

// StoreExchangeResult parks a completed authentication result under code.
func (s *StateStore) StoreExchangeResult(code string, result ExchangeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result.ExpiresAt = s.now().Add(s.codeTTL)
	s.results[code] = result
}

// ConsumeExchangeCode atomically removes and returns the result for code.
// At most one caller ever receives a given result; expired entries are
// deleted and read as absent.
func (s *StateStore) ConsumeExchangeCode(code string) (ExchangeResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[code]
	if !ok {
		return ExchangeResult{}, false
	}
	delete(s.results, code)
	if s.now().After(result.ExpiresAt) {
		return ExchangeResult{}, false
	}
	return result, true
}

// Stop terminates the background sweep. Safe to call more than once.
func (s *StateStore) Stop() {
	s.stop.Do(func() { close(s.done) })
}

func (s *StateStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *StateStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for state, entry := range s.states {
		if now.After(entry.ExpiresAt) {
			delete(s.states, state)
		}
	}
	for code, result := range s.results {
		if now.After(result.ExpiresAt) {
			delete(s.results, code)
		}
	}
}
