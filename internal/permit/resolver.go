package permit

import (
	"context"
	"errors"
	"fmt"
)

// resolver finds or creates the employee owning a permit, keyed by MOI
// number. It caches per run so a batch with many permits for the same person
// performs at most one lookup per distinct MOI number.
//
// Employees created by resolve are NOT cached here: creation happens inside
// the row's per-identity critical section, which may still roll back. The
// engine calls remember once the section commits. Lookup hits are cached
// immediately since those records exist regardless of the row's fate.
//
// The resolver never updates an existing employee's attributes: what, if
// anything, about a person changes is not this engine's call.
type resolver struct {
	cache map[string]*Employee
}

func newResolver() *resolver {
	return &resolver{cache: make(map[string]*Employee)}
}

// resolve returns the employee for the candidate's MOI number, creating one
// from the candidate's attributes on first sighting. created reports whether
// the employee was inserted by this call and is awaiting remember.
func (r *resolver) resolve(ctx context.Context, s Store, c Candidate) (e *Employee, created bool, err error) {
	if e, ok := r.cache[c.MOINumber]; ok {
		return e, false, nil
	}

	e, err = s.EmployeeByIdentity(ctx, c.MOINumber)
	if err == nil {
		r.cache[c.MOINumber] = e
		return e, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("look up employee: %w", err)
	}

	e = &Employee{
		MOINumber:      c.MOINumber,
		NameEnglish:    c.NameEnglish,
		NameArabic:     c.NameArabic,
		Nationality:    c.Nationality,
		PassportNumber: c.PassportNumber,
	}
	if err := s.InsertEmployee(ctx, e); err != nil {
		return nil, false, fmt.Errorf("create employee: %w", err)
	}

	return e, true, nil
}

// remember caches a created employee after its row committed. Caching before
// commit would let a rolled-back insert leak into later rows, which would
// then reference an employee record that was never persisted.
func (r *resolver) remember(moi string, e *Employee) {
	r.cache[moi] = e
}
