package permit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunTimeout bounds one import run when positive. Zero, the default, means
// no deadline: large batches rely on progress reporting and cancellation.
var RunTimeout time.Duration

// retainFinished is how long a finished run stays queryable in memory after
// completion. The sealed ledger entry outlives it.
var retainFinished = 5 * time.Minute

// Service manages asynchronous import runs: it parses uploads, hands them to
// the engine on a background goroutine, and fans progress out to
// subscribers. One Service handles many concurrent runs; per-identity
// serialization across runs is the store's job.
type Service struct {
	engine *Engine
	ledger LedgerStore

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	ID       string
	FileName string
	Cancel   context.CancelFunc
	Done     chan struct{}

	// Summary and Err are written once, before Done closes.
	Summary *RunSummary
	Err     error

	listenerMu sync.Mutex
	progress   Progress
	listeners  []chan Progress
}

// NewService creates a Service over the given store. ledger may be nil to
// disable audit persistence.
func NewService(store Store, ledger LedgerStore) *Service {
	return &Service{
		engine: NewEngine(store, ledger),
		ledger: ledger,
		runs:   make(map[string]*activeRun),
	}
}

// StartRun parses the uploaded file and begins an asynchronous import run.
// Returns the run ID immediately; use SubscribeProgress and Result to follow
// it. File-level parse failures are returned here, before a run exists.
func (s *Service) StartRun(ctx context.Context, fileName, uploadedBy string, data []byte) (string, error) {
	parsed, err := ParseUpload(data)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()

	// The run outlives the upload request; only an explicit cancel (or
	// the optional timeout) stops it.
	runCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, RunTimeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}

	run := &activeRun{
		ID:       runID,
		FileName: fileName,
		Cancel:   cancel,
		Done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	meta := RunMeta{RunID: runID, UploadedBy: uploadedBy, FileName: fileName}
	go s.process(runCtx, run, parsed.Candidates, meta)

	return runID, nil
}

func (s *Service) process(ctx context.Context, run *activeRun, candidates []Candidate, meta RunMeta) {
	defer func() {
		// Done first: a subscriber arriving mid-teardown either sees the
		// closed Done or lands in the listener list closeListeners drains.
		close(run.Done)
		run.closeListeners()
		run.Cancel()
		s.cleanup(run.ID, retainFinished)
	}()

	summary, err := s.engine.Run(ctx, candidates, meta, run.publish)
	run.Summary = summary
	run.Err = err
}

// Preview analyzes an upload without writing anything: the detected header
// mapping plus how many rows would pass validation.
func (s *Service) Preview(fileName string, data []byte) (*PreviewResult, error) {
	parsed, err := ParseUpload(data)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		FileName:        fileName,
		Mapping:         parsed.Mapping.Describe(parsed.Header),
		MappingComplete: parsed.Mapping.HasMandatory(),
		TotalRows:       len(parsed.Candidates),
		Errors:          []string{},
	}

	for _, c := range parsed.Candidates {
		if c.Valid() {
			result.ValidRows++
			continue
		}
		result.InvalidRows++
		result.Errors = append(result.Errors,
			fmt.Sprintf("row %d: %s", c.RowNumber, c.Errors[0]))
	}

	return result, nil
}

// PreviewResult is the dry-run analysis of an upload.
type PreviewResult struct {
	FileName        string            `json:"fileName"`
	Mapping         map[string]string `json:"mapping"`
	MappingComplete bool              `json:"mappingComplete"`
	TotalRows       int               `json:"totalRows"`
	ValidRows       int               `json:"validRows"`
	InvalidRows     int               `json:"invalidRows"`
	Errors          []string          `json:"errors"`
}

// SubscribeProgress returns a channel receiving progress updates for a run.
// The current progress is delivered immediately; the channel closes when the
// run finishes.
func (s *Service) SubscribeProgress(runID string) (<-chan Progress, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 16)

	run.listenerMu.Lock()
	select {
	case <-run.Done:
		// Already finished: deliver the final progress and close.
		ch <- run.progress
		close(ch)
	default:
		run.listeners = append(run.listeners, ch)
		select {
		case ch <- run.progress:
		default:
		}
	}
	run.listenerMu.Unlock()

	return ch, nil
}

// CancelRun asks an in-progress run to stop. The engine stops between rows;
// rows already committed remain committed.
func (s *Service) CancelRun(runID string) error {
	run, err := s.get(runID)
	if err != nil {
		return err
	}
	run.Cancel()
	return nil
}

// Result blocks until the run finishes and returns its summary. The error is
// the run's fatal error, if any; a summary is returned either way.
func (s *Service) Result(runID string) (*RunSummary, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	<-run.Done
	return run.Summary, run.Err
}

// ErrRunActive is returned by TryResult while a run is still processing.
var ErrRunActive = errors.New("run still in progress")

// TryResult returns the run's summary without blocking. While the run is
// still processing it returns ErrRunActive.
func (s *Service) TryResult(runID string) (*RunSummary, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.Done:
		return run.Summary, run.Err
	default:
		return nil, ErrRunActive
	}
}

// History returns the most recent sealed runs from the ledger.
func (s *Service) History(ctx context.Context, limit int) ([]RunSummary, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.Runs(ctx, limit)
}

// HistoryRun returns one sealed run from the ledger.
func (s *Service) HistoryRun(ctx context.Context, id string) (*RunSummary, error) {
	if s.ledger == nil {
		return nil, ErrNotFound
	}
	return s.ledger.RunByID(ctx, id)
}

func (s *Service) get(runID string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, nil
}

// cleanup drops a finished run from the in-memory map after a grace period.
func (s *Service) cleanup(runID string, after time.Duration) {
	go func() {
		time.Sleep(after)
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	}()
}

// publish records the latest progress and fans it out to listeners without
// blocking: a slow subscriber misses intermediate events, never stalls the run.
func (run *activeRun) publish(p Progress) {
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()

	run.progress = p
	for _, ch := range run.listeners {
		select {
		case ch <- p:
		default:
		}
	}
}

func (run *activeRun) closeListeners() {
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()

	for _, ch := range run.listeners {
		close(ch)
	}
	run.listeners = nil
}
