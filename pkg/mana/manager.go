package mana

import (
	"sync"

	"github.com/benbjohnson/clock"
)

// Manager is the mana ledger: it owns every pool and serializes access to
// them. All balance reads re-apply elapsed regeneration first, which is the
// only point regeneration happens.
type Manager struct {
	mu       sync.Mutex
	pools    map[Scope]*Pool
	clock    clock.Clock
	defaults PoolConfig
}

type ManagerParams struct {
	Clock    clock.Clock
	Defaults PoolConfig
}

func NewManager(params ManagerParams) *Manager {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.Defaults == (PoolConfig{}) {
		params.Defaults = DefaultPoolConfig
	}
	return &Manager{
		pools:    make(map[Scope]*Pool),
		clock:    params.Clock,
		defaults: params.Defaults,
	}
}

// CreatePool registers a pool for the scope with the given config, replacing
// any existing pool.
func (m *Manager) CreatePool(scope Scope, cfg PoolConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := cfg.Initial
	if current > cfg.Max {
		current = cfg.Max
	}
	m.pools[scope] = &Pool{
		Current:     current,
		Max:         cfg.Max,
		RegenPerSec: cfg.RegenPerSec,
		LastUpdated: m.clock.Now(),
	}
}

// pool returns the pool for the scope, creating an empty one with the
// manager's default shape when create is set. Implicitly created pools start
// at zero; only CreatePool grants an initial balance. Callers hold the lock.
func (m *Manager) pool(scope Scope, create bool) (*Pool, bool) {
	p, ok := m.pools[scope]
	if !ok && create {
		p = &Pool{
			Current:     0,
			Max:         m.defaults.Max,
			RegenPerSec: m.defaults.RegenPerSec,
			LastUpdated: m.clock.Now(),
		}
		m.pools[scope] = p
		ok = true
	}
	return p, ok
}

// regenerate applies elapsed-time regeneration to the pool, capped at max.
// LastUpdated only advances when at least one whole unit was gained, so
// sub-second fractions aren't silently dropped by frequent reads.
func (m *Manager) regenerate(p *Pool) {
	now := m.clock.Now()
	elapsed := now.Sub(p.LastUpdated)
	if elapsed <= 0 || p.RegenPerSec <= 0 {
		return
	}
	gained := uint64(elapsed.Seconds() * p.RegenPerSec)
	if gained == 0 {
		return
	}
	p.Current += gained
	if p.Current > p.Max {
		p.Current = p.Max
	}
	p.LastUpdated = now
}

// Available returns the regenerated balance for the scope. An unknown scope
// has zero mana; reading never creates a pool.
func (m *Manager) Available(scope Scope) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pool(scope, false)
	if !ok {
		return 0
	}
	m.regenerate(p)
	return p.Current
}

// Consume debits amount from the scope's pool. Insufficient balance leaves
// the pool untouched and reports the shortfall.
func (m *Manager) Consume(scope Scope, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumeLocked(scope, amount)
}

func (m *Manager) consumeLocked(scope Scope, amount uint64) error {
	p, ok := m.pool(scope, false)
	if !ok {
		return NewErrInsufficientMana(scope, amount, 0)
	}
	m.regenerate(p)
	if p.Current < amount {
		return NewErrInsufficientMana(scope, amount, p.Current)
	}
	p.Current -= amount
	return nil
}

// Credit adds amount to the scope's pool, creating it with defaults if
// absent. The balance is capped at the pool's max; minting above the cap is
// silently truncated.
func (m *Manager) Credit(scope Scope, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creditLocked(scope, amount)
}

func (m *Manager) creditLocked(scope Scope, amount uint64) {
	p, _ := m.pool(scope, true)
	m.regenerate(p)
	p.Current += amount
	if p.Current > p.Max {
		p.Current = p.Max
	}
}

// Transfer moves amount from one scope to another. The spend happens first;
// if it fails the destination is never touched. Only on a successful spend
// is the destination pool created (if absent) and credited. Both sides move
// under one lock acquisition, so no caller observes the amount in flight.
func (m *Manager) Transfer(from, to Scope, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.consumeLocked(from, amount); err != nil {
		return err
	}
	m.creditLocked(to, amount)
	return nil
}

// Snapshot returns a copy of the pool for the scope after regeneration.
func (m *Manager) Snapshot(scope Scope) (Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pool(scope, false)
	if !ok {
		return Pool{}, NewErrPoolNotFound(scope)
	}
	m.regenerate(p)
	return *p, nil
}

// Scopes returns all scopes with a pool, in no particular order.
func (m *Manager) Scopes() []Scope {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Scope, 0, len(m.pools))
	for scope := range m.pools {
		result = append(result, scope)
	}
	return result
}
