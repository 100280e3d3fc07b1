package idempotency

import (
	"context"
	"sync"
	"time"

	x402 "github.com/sectionzeroinc/x402"
)

// InMemoryStore is a SettlementStore for single-instance deployments.
// Cached receipts expire after the configured TTL; expired entries are
// cleaned up lazily on access.
type InMemoryStore struct {
	mu       sync.Mutex
	results  map[string]*x402.SettleResponse
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

// NewInMemoryStore creates an in-memory settlement store. The TTL bounds the
// deduplication window; 5-15 minutes is typical.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		results:  make(map[string]*x402.SettleResponse),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

func (s *InMemoryStore) CheckAndMark(key string) (SettlementStatus, *x402.SettleResponse, chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, exists := s.expiry[key]; exists {
		if time.Now().Before(expiry) {
			if result, ok := s.results[key]; ok {
				return StatusCached, result, nil
			}
		}
		delete(s.results, key)
		delete(s.expiry, key)
	}

	if done, exists := s.inFlight[key]; exists {
		return StatusInFlight, nil, done
	}

	done := make(chan struct{})
	s.inFlight[key] = done
	return StatusNotFound, nil, done
}

func (s *InMemoryStore) WaitForResult(ctx context.Context, key string, done chan struct{}) (*x402.SettleResponse, error) {
	select {
	case <-done:
		return s.get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *InMemoryStore) get(key string) *x402.SettleResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, exists := s.expiry[key]
	if !exists {
		return nil
	}

	if time.Now().After(expiry) {
		delete(s.results, key)
		delete(s.expiry, key)
		return nil
	}

	return s.results[key]
}

func (s *InMemoryStore) Complete(key string, response *x402.SettleResponse, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[key] = response
	s.expiry[key] = time.Now().Add(s.ttl)
	delete(s.inFlight, key)
	close(done)
}

func (s *InMemoryStore) Fail(key string, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, key)
	close(done)
}
