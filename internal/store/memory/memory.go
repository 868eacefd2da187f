// Package memory provides an in-memory Store for tests and single-process
// demo wiring. It honors the same per-identity serialization contract as the
// Postgres store, using a keyed mutex instead of an advisory lock.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/permit"
)

type pairKey struct {
	MOI    string
	Permit string
}

// Store keeps permits, employees, and the run ledger in maps. Safe for
// concurrent use.
type Store struct {
	mu             sync.RWMutex
	permits        map[int64]permit.Permit
	byMOI          map[string]int64
	byPair         map[pairKey]int64
	employees      map[string]permit.Employee
	nextPermitID   int64
	nextEmployeeID int64
	runs           []permit.RunSummary

	keyMu sync.Mutex
	keys  map[string]*sync.Mutex
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		permits:   make(map[int64]permit.Permit),
		byMOI:     make(map[string]int64),
		byPair:    make(map[pairKey]int64),
		employees: make(map[string]permit.Employee),
		keys:      make(map[string]*sync.Mutex),
	}
}

// WithIdentityLock serializes fn against any other caller holding the same
// MOI number.
func (m *Store) WithIdentityLock(ctx context.Context, moiNumber string, fn func(permit.Store) error) error {
	lk := m.keyLock(moiNumber)
	lk.Lock()
	defer lk.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(m)
}

func (m *Store) keyLock(key string) *sync.Mutex {
	m.keyMu.Lock()
	defer m.keyMu.Unlock()

	lk, ok := m.keys[key]
	if !ok {
		lk = &sync.Mutex{}
		m.keys[key] = lk
	}
	return lk
}

func (m *Store) PermitByIdentityAndNumber(_ context.Context, moiNumber, permitNumber string) (*permit.Permit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byPair[pairKey{MOI: moiNumber, Permit: permitNumber}]
	if !ok {
		return nil, permit.ErrNotFound
	}
	p := m.permits[id]
	return &p, nil
}

func (m *Store) PermitByIdentity(_ context.Context, moiNumber string) (*permit.Permit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byMOI[moiNumber]
	if !ok {
		return nil, permit.ErrNotFound
	}
	p := m.permits[id]
	return &p, nil
}

func (m *Store) InsertPermit(_ context.Context, p *permit.Permit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byMOI[p.MOINumber]; exists {
		return fmt.Errorf("permit already exists for MOI number %s", p.MOINumber)
	}

	m.nextPermitID++
	p.ID = m.nextPermitID
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	m.permits[p.ID] = *p
	m.byMOI[p.MOINumber] = p.ID
	m.byPair[pairKey{MOI: p.MOINumber, Permit: p.PermitNumber}] = p.ID
	return nil
}

func (m *Store) UpdatePermit(_ context.Context, p *permit.Permit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.permits[p.ID]
	if !ok {
		return permit.ErrNotFound
	}

	delete(m.byPair, pairKey{MOI: old.MOINumber, Permit: old.PermitNumber})

	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	m.permits[p.ID] = *p
	m.byMOI[p.MOINumber] = p.ID
	m.byPair[pairKey{MOI: p.MOINumber, Permit: p.PermitNumber}] = p.ID
	return nil
}

func (m *Store) EmployeeByIdentity(_ context.Context, moiNumber string) (*permit.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.employees[moiNumber]
	if !ok {
		return nil, permit.ErrNotFound
	}
	return &e, nil
}

func (m *Store) InsertEmployee(_ context.Context, e *permit.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.employees[e.MOINumber]; exists {
		return fmt.Errorf("employee already exists for MOI number %s", e.MOINumber)
	}

	m.nextEmployeeID++
	e.ID = m.nextEmployeeID
	e.CreatedAt = time.Now().UTC()
	m.employees[e.MOINumber] = *e
	return nil
}

// SealRun appends a run summary to the in-memory ledger.
func (m *Store) SealRun(_ context.Context, run *permit.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *run
	cp.Errors = append([]string(nil), run.Errors...)
	m.runs = append(m.runs, cp)
	return nil
}

// Runs returns sealed runs, newest first.
func (m *Store) Runs(_ context.Context, limit int) ([]permit.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.runs)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]permit.RunSummary, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := m.runs[i]
		cp.Errors = append([]string(nil), m.runs[i].Errors...)
		out = append(out, cp)
	}
	return out, nil
}

func (m *Store) RunByID(_ context.Context, id string) (*permit.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.runs {
		if m.runs[i].ID == id {
			cp := m.runs[i]
			cp.Errors = append([]string(nil), m.runs[i].Errors...)
			return &cp, nil
		}
	}
	return nil, permit.ErrNotFound
}

// PermitCount reports how many permits are stored. Used by tests and the
// CLI's in-memory mode summary.
func (m *Store) PermitCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.permits)
}

// EmployeeCount reports how many employees are stored.
func (m *Store) EmployeeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.employees)
}
