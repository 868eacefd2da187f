package permit

import (
	"context"
	"errors"
)

// Sentinel errors surfaced by Store implementations.
var (
	// ErrNotFound means the lookup matched no record.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable means the store itself cannot be reached. The engine
	// treats this as fatal for the remainder of a run.
	ErrUnavailable = errors.New("storage unavailable")
)

// Store is the persistence boundary for permits and employees.
//
// Implementations must guarantee that the lookups and the subsequent write
// for a given MOI number are serialized against any other run touching the
// same MOI number; WithIdentityLock is the engine's way of delimiting that
// critical section. The engine itself never locks.
//
// Implementations: store/memory (tests, demo wiring) and store/postgres.
type Store interface {
	// PermitByIdentityAndNumber looks up the exact (MOI number, permit
	// number) pair. Returns ErrNotFound if no such record exists.
	PermitByIdentityAndNumber(ctx context.Context, moiNumber, permitNumber string) (*Permit, error)

	// PermitByIdentity looks up the single permit held under an MOI number.
	// Returns ErrNotFound if the person holds no permit.
	PermitByIdentity(ctx context.Context, moiNumber string) (*Permit, error)

	// InsertPermit creates a new permit record, assigning its ID.
	InsertPermit(ctx context.Context, p *Permit) error

	// UpdatePermit overwrites the mutable fields of an existing record,
	// keyed by p.ID. The record's ID and owning employee are unchanged.
	UpdatePermit(ctx context.Context, p *Permit) error

	// EmployeeByIdentity finds a person by MOI number.
	EmployeeByIdentity(ctx context.Context, moiNumber string) (*Employee, error)

	// InsertEmployee creates a new person record, assigning its ID.
	InsertEmployee(ctx context.Context, e *Employee) error

	// WithIdentityLock runs fn while holding the write serialization for one
	// MOI number. fn receives a Store scoped to the critical section (the
	// same store, or a transaction-backed view of it).
	WithIdentityLock(ctx context.Context, moiNumber string, fn func(Store) error) error
}

// LedgerStore persists sealed run summaries for the audit history view.
type LedgerStore interface {
	// SealRun persists a finished run summary.
	SealRun(ctx context.Context, run *RunSummary) error

	// Runs returns the most recent sealed runs, newest first.
	Runs(ctx context.Context, limit int) ([]RunSummary, error)

	// RunByID returns one sealed run. Returns ErrNotFound if unknown.
	RunByID(ctx context.Context, id string) (*RunSummary, error)
}
