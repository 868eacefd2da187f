package permit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SealTimeout bounds the best-effort ledger write at the end of a run.
var SealTimeout = 10 * time.Second

// Engine reconciles candidate records against the permit store. Processing
// is strictly sequential over the input order so that row-numbered progress
// and error reporting are deterministic.
type Engine struct {
	store  Store
	ledger LedgerStore
}

// NewEngine creates an Engine. ledger may be nil when no audit persistence
// is wanted (the CLI's in-memory mode).
func NewEngine(store Store, ledger LedgerStore) *Engine {
	return &Engine{store: store, ledger: ledger}
}

// Run processes the candidates in order and returns the sealed run summary.
//
// Per candidate: invalid rows are skipped with their errors recorded; an
// exact (MOI number, permit number) match is skipped as a duplicate; an MOI
// match under a different permit number supersedes the prior record in
// place; otherwise the employee is resolved and a new permit inserted.
//
// A per-row storage failure skips that row and continues. ErrUnavailable
// aborts the run: the summary is sealed as failed with the counts so far and
// the error is returned. Cancellation between rows is handled the same way.
// Ledger persistence is best-effort and never changes the returned summary.
func (e *Engine) Run(ctx context.Context, candidates []Candidate, meta RunMeta, report ProgressFunc) (*RunSummary, error) {
	runID := meta.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	run := &RunSummary{
		ID:         runID,
		UploadedBy: meta.UploadedBy,
		FileName:   meta.FileName,
		StartedAt:  time.Now().UTC(),
		Total:      len(candidates),
		Errors:     []string{},
		Status:     RunCompleted,
	}

	log := slog.Default().With("run_id", run.ID, "file", meta.FileName)
	log.Info("import run started", "candidates", len(candidates), "uploaded_by", meta.UploadedBy)

	res := newResolver()
	total := len(candidates)
	var fatal error

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			run.Status = RunFailed
			run.Errors = append(run.Errors, fmt.Sprintf("run stopped before row %d: %v", c.RowNumber, err))
			fatal = err
			break
		}

		rr, err := e.reconcileOne(ctx, res, c)
		if err != nil {
			run.Status = RunFailed
			run.Errors = append(run.Errors, fmt.Sprintf("row %d: %v", c.RowNumber, err))
			fatal = err
			break
		}

		switch rr.Outcome {
		case OutcomeInserted:
			run.Inserted++
		case OutcomeUpdated:
			run.Updated++
		case OutcomeSkipped:
			run.Skipped++
		}
		if rr.Err != "" {
			run.Errors = append(run.Errors, rr.Err)
		}

		e.report(report, log, i+1, total, statusMessage(rr))
	}

	run.CompletedAt = time.Now().UTC()
	e.seal(ctx, run, log)

	if fatal != nil {
		log.Error("import run aborted",
			"processed", run.Inserted+run.Updated+run.Skipped, "error", fatal)
		return run, fmt.Errorf("import run %s aborted: %w", run.ID, fatal)
	}

	log.Info("import run completed",
		"inserted", run.Inserted, "updated", run.Updated, "skipped", run.Skipped,
		"errors", len(run.Errors))
	return run, nil
}

// reconcileOne classifies and applies a single candidate. The returned error
// is non-nil only for the fatal storage-unavailable class; every other
// failure is folded into the RowResult.
func (e *Engine) reconcileOne(ctx context.Context, res *resolver, c Candidate) (RowResult, error) {
	if !c.Valid() {
		return RowResult{
			RowNumber: c.RowNumber,
			Outcome:   OutcomeSkipped,
			Err:       fmt.Sprintf("row %d: %s", c.RowNumber, strings.Join(c.Errors, "; ")),
		}, nil
	}

	out := RowResult{RowNumber: c.RowNumber}
	var createdEmp *Employee

	// The lookup-then-write for one MOI number runs inside the store's
	// per-identity critical section so two concurrent runs cannot both
	// observe "no existing record" and both insert.
	err := e.store.WithIdentityLock(ctx, c.MOINumber, func(s Store) error {
		_, err := s.PermitByIdentityAndNumber(ctx, c.MOINumber, c.PermitNumber)
		if err == nil {
			// Same person, same permit number: the incoming data is
			// redundant. An expected skip, not an error.
			out.Outcome = OutcomeSkipped
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("look up permit: %w", err)
		}

		prior, err := s.PermitByIdentity(ctx, c.MOINumber)
		if err == nil {
			// Same person, new permit number: the authority reissued the
			// permit. One live permit per person, so overwrite in place.
			applyCandidate(prior, c)
			if err := s.UpdatePermit(ctx, prior); err != nil {
				return fmt.Errorf("supersede permit: %w", err)
			}
			out.Outcome = OutcomeUpdated
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("look up permit holder: %w", err)
		}

		emp, created, err := res.resolve(ctx, s, c)
		if err != nil {
			return err
		}
		if created {
			createdEmp = emp
		}

		p := newPermit(c, emp.ID)
		if err := s.InsertPermit(ctx, p); err != nil {
			return fmt.Errorf("insert permit: %w", err)
		}
		out.Outcome = OutcomeInserted
		return nil
	})

	if err == nil && createdEmp != nil {
		// The critical section committed, so the employee is durable now
		// and later rows may reuse it.
		res.remember(c.MOINumber, createdEmp)
	}

	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return RowResult{}, err
		}
		return RowResult{
			RowNumber: c.RowNumber,
			Outcome:   OutcomeSkipped,
			Err:       fmt.Sprintf("row %d: %v", c.RowNumber, err),
		}, nil
	}

	return out, nil
}

// newPermit builds a permit record from a candidate for an owning employee.
func newPermit(c Candidate, employeeID int64) *Permit {
	return &Permit{
		PermitNumber:   c.PermitNumber,
		PermitType:     c.PermitType,
		IssuedFor:      c.IssuedFor,
		NameEnglish:    c.NameEnglish,
		NameArabic:     c.NameArabic,
		MOINumber:      c.MOINumber,
		PassportNumber: c.PassportNumber,
		Nationality:    c.Nationality,
		PlateNumber:    c.PlateNumber,
		IssueLocation:  c.IssueLocation,
		IssueDate:      c.IssueDate,
		ExpiryDate:     c.ExpiryDate,
		EmployeeID:     employeeID,
		Status:         PermitStatusActive,
	}
}

// applyCandidate overwrites a permit's mutable fields with the candidate's
// values. ID, owning employee, and status are left alone.
func applyCandidate(p *Permit, c Candidate) {
	p.PermitNumber = c.PermitNumber
	p.PermitType = c.PermitType
	p.IssuedFor = c.IssuedFor
	p.NameEnglish = c.NameEnglish
	p.NameArabic = c.NameArabic
	p.PassportNumber = c.PassportNumber
	p.Nationality = c.Nationality
	p.PlateNumber = c.PlateNumber
	p.IssueLocation = c.IssueLocation
	p.IssueDate = c.IssueDate
	p.ExpiryDate = c.ExpiryDate
}

// report delivers one progress event. Callback panics are logged and
// swallowed: reporting must never abort a run.
func (e *Engine) report(fn ProgressFunc, log *slog.Logger, current, total int, status string) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("progress callback panicked", "panic", r)
		}
	}()
	fn(Progress{
		CurrentRow: current,
		TotalRows:  total,
		Percentage: percentage(current, total),
		Status:     status,
	})
}

// seal persists the run summary. Best-effort: a ledger failure is logged and
// the in-memory summary is returned to the caller unchanged. Uses a context
// detached from the run's so a cancelled run can still be sealed.
func (e *Engine) seal(ctx context.Context, run *RunSummary, log *slog.Logger) {
	if e.ledger == nil {
		return
	}
	sealCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SealTimeout)
	defer cancel()
	if err := e.ledger.SealRun(sealCtx, run); err != nil {
		log.Warn("sealing run in ledger failed", "error", err)
	}
}

func statusMessage(rr RowResult) string {
	switch rr.Outcome {
	case OutcomeInserted:
		return fmt.Sprintf("row %d inserted", rr.RowNumber)
	case OutcomeUpdated:
		return fmt.Sprintf("row %d updated", rr.RowNumber)
	default:
		return fmt.Sprintf("row %d skipped", rr.RowNumber)
	}
}

func percentage(current, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(current) / float64(total) * 100))
}
