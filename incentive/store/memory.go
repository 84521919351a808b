// Package store provides in-memory incentive.TxStore and audit sink
// implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/campus-rims/incentive-engine/incentive"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	policies map[incentive.PolicyID]incentive.Policy
	byKey    map[incentive.DomainKey][]incentive.PolicyID
}

func NewMemory() *Memory {
	return &Memory{
		policies: make(map[incentive.PolicyID]incentive.Policy),
		byKey:    make(map[incentive.DomainKey][]incentive.PolicyID),
	}
}

func (m *Memory) Save(_ context.Context, p incentive.Policy) (incentive.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(p)
}

func (m *Memory) Get(_ context.Context, id incentive.PolicyID) (incentive.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) FindActiveAsOf(_ context.Context, key incentive.DomainKey, asOf incentive.Date) (*incentive.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findActiveLocked(key, asOf), nil
}

func (m *Memory) FindAllByDomain(_ context.Context, key incentive.DomainKey) ([]incentive.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allByKeyLocked(key), nil
}

func (m *Memory) List(_ context.Context, domain incentive.Domain) ([]incentive.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(domain), nil
}

func (m *Memory) Delete(_ context.Context, id incentive.PolicyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

// saveLocked inserts when ID is empty and replaces otherwise. The caller
// holds the write lock.
func (m *Memory) saveLocked(p incentive.Policy) (incentive.Policy, error) {
	if p.ID == "" {
		p.ID = incentive.PolicyID(uuid.NewString())
	} else {
		old, ok := m.policies[p.ID]
		if !ok {
			return incentive.Policy{}, &incentive.NotFoundError{ID: p.ID}
		}
		if old.Key != p.Key {
			m.unindex(old)
		} else {
			m.policies[p.ID] = p.Clone()
			m.sortKey(p.Key)
			return p, nil
		}
	}
	m.policies[p.ID] = p.Clone()
	m.byKey[p.Key] = append(m.byKey[p.Key], p.ID)
	m.sortKey(p.Key)
	return p, nil
}

func (m *Memory) getLocked(id incentive.PolicyID) (incentive.Policy, error) {
	p, ok := m.policies[id]
	if !ok {
		return incentive.Policy{}, &incentive.NotFoundError{ID: id}
	}
	return p.Clone(), nil
}

// findActiveLocked returns the active policy whose window contains asOf with
// the latest EffectiveFrom.
func (m *Memory) findActiveLocked(key incentive.DomainKey, asOf incentive.Date) *incentive.Policy {
	ids := m.byKey[key]
	for i := len(ids) - 1; i >= 0; i-- {
		p := m.policies[ids[i]]
		if p.IsActive && p.Window().Contains(asOf) {
			c := p.Clone()
			return &c
		}
	}
	return nil
}

func (m *Memory) allByKeyLocked(key incentive.DomainKey) []incentive.Policy {
	ids := m.byKey[key]
	result := make([]incentive.Policy, len(ids))
	for i, id := range ids {
		result[i] = m.policies[id].Clone()
	}
	return result
}

func (m *Memory) listLocked(domain incentive.Domain) []incentive.Policy {
	var result []incentive.Policy
	for _, p := range m.policies {
		if domain == "" || p.Key.Domain == domain {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Key != b.Key {
			return a.Key.String() < b.Key.String()
		}
		return a.EffectiveFrom.Before(b.EffectiveFrom)
	})
	return result
}

func (m *Memory) deleteLocked(id incentive.PolicyID) error {
	p, ok := m.policies[id]
	if !ok {
		return &incentive.NotFoundError{ID: id}
	}
	m.unindex(p)
	delete(m.policies, id)
	return nil
}

func (m *Memory) unindex(p incentive.Policy) {
	ids := m.byKey[p.Key]
	for i, id := range ids {
		if id == p.ID {
			m.byKey[p.Key] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(m.byKey[p.Key]) == 0 {
		delete(m.byKey, p.Key)
	}
}

// sortKey keeps a key's IDs ordered by EffectiveFrom, ties by ID.
func (m *Memory) sortKey(key incentive.DomainKey) {
	ids := m.byKey[key]
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := m.policies[ids[i]], m.policies[ids[j]]
		if !a.EffectiveFrom.Equal(b.EffectiveFrom) {
			return a.EffectiveFrom.Before(b.EffectiveFrom)
		}
		return a.ID < b.ID
	})
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn holding the store's write lock, which serializes every
// writer (a superset of per-key serialization). Writes are applied directly
// and rolled back from a snapshot if fn fails.
func (tm *TxMemory) WithTx(ctx context.Context, _ incentive.DomainKey, fn func(incentive.PolicyStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	policies := make(map[incentive.PolicyID]incentive.Policy, len(tm.policies))
	for k, v := range tm.policies {
		policies[k] = v
	}
	byKey := make(map[incentive.DomainKey][]incentive.PolicyID, len(tm.byKey))
	for k, v := range tm.byKey {
		byKey[k] = append([]incentive.PolicyID(nil), v...)
	}
	return memorySnapshot{policies: policies, byKey: byKey}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.policies = s.policies
	tm.byKey = s.byKey
}

type memorySnapshot struct {
	policies map[incentive.PolicyID]incentive.Policy
	byKey    map[incentive.DomainKey][]incentive.PolicyID
}

// txMemoryView is the store handed to WithTx callbacks. The parent's write
// lock is already held, so it uses the unlocked helpers.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Save(_ context.Context, p incentive.Policy) (incentive.Policy, error) {
	return tv.parent.saveLocked(p)
}

func (tv *txMemoryView) Get(_ context.Context, id incentive.PolicyID) (incentive.Policy, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) FindActiveAsOf(_ context.Context, key incentive.DomainKey, asOf incentive.Date) (*incentive.Policy, error) {
	return tv.parent.findActiveLocked(key, asOf), nil
}

func (tv *txMemoryView) FindAllByDomain(_ context.Context, key incentive.DomainKey) ([]incentive.Policy, error) {
	return tv.parent.allByKeyLocked(key), nil
}

func (tv *txMemoryView) List(_ context.Context, domain incentive.Domain) ([]incentive.Policy, error) {
	return tv.parent.listLocked(domain), nil
}

func (tv *txMemoryView) Delete(_ context.Context, id incentive.PolicyID) error {
	return tv.parent.deleteLocked(id)
}

// =============================================================================
// AUDIT
// =============================================================================

// MemoryAudit keeps audit events in insertion order.
type MemoryAudit struct {
	mu     sync.RWMutex
	events []incentive.AuditEvent
}

func NewMemoryAudit() *MemoryAudit { return &MemoryAudit{} }

func (a *MemoryAudit) Record(_ context.Context, ev incentive.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return nil
}

// QueryAudit returns matching events newest first.
func (a *MemoryAudit) QueryAudit(_ context.Context, f incentive.AuditFilter) ([]incentive.AuditEvent, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result []incentive.AuditEvent
	for i := len(a.events) - 1; i >= 0; i-- {
		ev := a.events[i]
		if f.PolicyID != "" && ev.PolicyID != f.PolicyID {
			continue
		}
		if f.Domain != "" && ev.Key.Domain != f.Domain {
			continue
		}
		result = append(result, ev)
		if f.Limit > 0 && len(result) == f.Limit {
			break
		}
	}
	return result, nil
}
