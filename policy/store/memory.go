// Package store provides policy.Store implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/rating-engine/policy"
	"github.com/warp/rating-engine/rating"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps policies and breakdowns in process memory with the same
// optimistic-versioning contract as the durable store.
type Memory struct {
	mu         sync.RWMutex
	policies   map[string]policy.Policy
	breakdowns map[string]rating.PremiumBreakdown
}

func NewMemory() *Memory {
	return &Memory{
		policies:   make(map[string]policy.Policy),
		breakdowns: make(map[string]rating.PremiumBreakdown),
	}
}

// Create stores policy and breakdown together; both or neither.
func (m *Memory) Create(_ context.Context, p *policy.Policy, breakdown rating.PremiumBreakdown) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.policies[p.Number]; ok {
		return policy.ErrPolicyExists
	}
	p.Version = 1
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.policies[p.Number] = *p
	m.breakdowns[p.Number] = breakdown
	return nil
}

// Save applies a mutation under the compare-and-bump version rule.
func (m *Memory) Save(_ context.Context, p *policy.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.policies[p.Number]
	if !ok {
		return policy.ErrPolicyNotFound
	}
	if stored.Version != p.Version {
		return policy.ErrVersionConflict
	}
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	m.policies[p.Number] = *p
	return nil
}

func (m *Memory) Load(_ context.Context, number string) (*policy.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.policies[number]
	if !ok {
		return nil, policy.ErrPolicyNotFound
	}
	p := stored
	return &p, nil
}

func (m *Memory) LoadBreakdown(_ context.Context, number string) (rating.PremiumBreakdown, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.breakdowns[number]
	if !ok {
		return rating.PremiumBreakdown{}, policy.ErrPolicyNotFound
	}
	return b, nil
}
