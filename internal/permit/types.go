// Package permit provides the business logic for permit bulk-import
// reconciliation. Given a batch of spreadsheet-derived candidate rows, the
// engine decides per row whether the permit is a duplicate of an existing
// record, a supersession of a prior permit held by the same person, or a
// brand-new permit. This package has no UI dependencies.
package permit

import "time"

// Candidate is one row extracted from an uploaded spreadsheet. It is either
// valid (all mandatory fields present) or carries a non-empty list of
// validation errors; invalid candidates are never written to storage but are
// still reported so the uploader can locate the offending row.
type Candidate struct {
	RowNumber int // 1-based line number in the source file

	PermitNumber   string
	PermitType     string
	IssuedFor      string
	NameEnglish    string
	NameArabic     string
	MOINumber      string // government identity number, natural key for ownership
	PassportNumber string
	Nationality    string
	PlateNumber    string // optional
	IssueLocation  string
	IssueDate      string // opaque pass-through, not parsed here
	ExpiryDate     string

	Errors []string
}

// Valid reports whether the candidate passed mandatory-field validation.
func (c Candidate) Valid() bool {
	return len(c.Errors) == 0
}

// Permit is one tracked permit record. At most one permit may exist per MOI
// number: a new permit number for a known MOI number overwrites the prior
// record in place (supersession) rather than creating a second one.
type Permit struct {
	ID             int64
	PermitNumber   string
	PermitType     string
	IssuedFor      string
	NameEnglish    string
	NameArabic     string
	MOINumber      string
	PassportNumber string
	Nationality    string
	PlateNumber    string
	IssueLocation  string
	IssueDate      string
	ExpiryDate     string
	EmployeeID     int64
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PermitStatusActive is the only status this engine writes. Archival states
// are managed elsewhere in the product.
const PermitStatusActive = "active"

// Employee is the owning person for one or more permits, identified by MOI
// number. Created implicitly on first sighting, never updated or deleted by
// the import engine.
type Employee struct {
	ID             int64
	MOINumber      string
	NameEnglish    string
	NameArabic     string
	Nationality    string
	PassportNumber string
	CreatedAt      time.Time
}

// Outcome classifies the result of reconciling a single candidate row.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeSkipped
)

// RowResult is the immutable per-row outcome produced by the engine. Err is
// non-empty only for validation or per-row storage failures; a duplicate skip
// is an expected outcome and carries no error.
type RowResult struct {
	RowNumber int
	Outcome   Outcome
	Err       string
}

// RunStatus is the completion status recorded in the upload ledger.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunMeta identifies who started an import run and from which file.
// RunID is optional; the engine generates one when it is empty.
type RunMeta struct {
	RunID      string
	UploadedBy string
	FileName   string
}

// RunSummary is the auditable outcome of one import run. The counters
// satisfy Inserted+Updated+Skipped == Total for a completed run; a failed
// run reflects only the rows processed before the abort.
type RunSummary struct {
	ID          string    `json:"id"`
	UploadedBy  string    `json:"uploadedBy"`
	FileName    string    `json:"fileName"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Total       int       `json:"total"`
	Inserted    int       `json:"inserted"`
	Updated     int       `json:"updated"`
	Skipped     int       `json:"skipped"`
	Errors      []string  `json:"errors"`
	Status      RunStatus `json:"status"`
}

// Progress is one progress event, emitted once per processed row.
type Progress struct {
	CurrentRow int    `json:"currentRow"`
	TotalRows  int    `json:"totalRows"`
	Percentage int    `json:"percentage"` // 0-100, rounded
	Status     string `json:"statusMessage"`
}

// ProgressFunc receives progress events. It is a pure notification channel:
// the engine swallows and logs any panic raised by the callback.
type ProgressFunc func(Progress)
