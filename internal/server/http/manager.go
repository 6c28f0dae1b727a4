package httpserver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/questscholar/litpipeline/internal/domain"
	"github.com/questscholar/litpipeline/internal/pipeline"
)

// ReviewRunner executes one review run to completion. *pipeline.Runner
// satisfies it.
type ReviewRunner interface {
	Run(ctx context.Context, rc pipeline.RunConfig) (*pipeline.RunSummary, error)
}

// RunStatus is a read-only view of one tracked run.
type RunStatus struct {
	RunID     string
	Subject   string
	CreatedAt time.Time
	Done      bool

	// Summary is the run summary. While the run is in flight it carries
	// only identity fields; once Done it is the runner's final summary.
	Summary *pipeline.RunSummary

	// Err is the runner's terminal error, nil until Done.
	Err error
}

// runRecord is the mutable tracking entry for one run.
type runRecord struct {
	runID     string
	subject   string
	createdAt time.Time
	cancel    context.CancelFunc
	done      bool
	summary   *pipeline.RunSummary
	err       error
}

// RunManager tracks review runs in memory and executes them asynchronously.
// Runs live for the lifetime of the process; there is no persistence.
type RunManager struct {
	runner ReviewRunner
	logger zerolog.Logger

	mu    sync.RWMutex
	runs  map[string]*runRecord
	order []string

	wg sync.WaitGroup
}

// NewRunManager creates a manager executing runs with the given runner.
func NewRunManager(runner ReviewRunner, logger zerolog.Logger) *RunManager {
	return &RunManager{
		runner: runner,
		logger: logger.With().Str("component", "run_manager").Logger(),
		runs:   make(map[string]*runRecord),
	}
}

// Start registers a run and launches it in the background. The run ID is
// assigned here when the config does not carry one, so callers get it back
// before the run produces any output.
func (m *RunManager) Start(rc pipeline.RunConfig) (string, error) {
	if rc.RunID == "" {
		rc.RunID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if _, exists := m.runs[rc.RunID]; exists {
		m.mu.Unlock()
		cancel()
		return "", domain.NewValidationError("run_id", "run already exists")
	}
	rec := &runRecord{
		runID:     rc.RunID,
		subject:   rc.Subject,
		createdAt: time.Now(),
		cancel:    cancel,
	}
	m.runs[rc.RunID] = rec
	m.order = append(m.order, rc.RunID)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		summary, err := m.runner.Run(ctx, rc)
		if err != nil {
			m.logger.Error().Err(err).Str("run_id", rc.RunID).Msg("review run finished with error")
		} else {
			m.logger.Info().Str("run_id", rc.RunID).Msg("review run finished")
		}

		m.mu.Lock()
		rec.summary = summary
		rec.err = err
		rec.done = true
		m.mu.Unlock()
	}()

	return rc.RunID, nil
}

// Get returns the status of one run.
func (m *RunManager) Get(runID string) (RunStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.runs[runID]
	if !ok {
		return RunStatus{}, false
	}
	return rec.status(), true
}

// List returns all tracked runs, most recently started first.
func (m *RunManager) List() []RunStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]RunStatus, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		statuses = append(statuses, m.runs[m.order[i]].status())
	}
	return statuses
}

// Cancel requests cancellation of a running run. It reports whether the run
// exists and whether it was still in flight when the request arrived.
func (m *RunManager) Cancel(runID string) (found, inFlight bool) {
	m.mu.RLock()
	rec, ok := m.runs[runID]
	done := ok && rec.done
	m.mu.RUnlock()
	if !ok {
		return false, false
	}
	if done {
		return true, false
	}

	rec.cancel()
	return true, true
}

// Close waits for in-flight runs to finish or the context to expire.
func (m *RunManager) Close(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// status builds the read-only view. Caller holds at least a read lock.
func (r *runRecord) status() RunStatus {
	st := RunStatus{
		RunID:     r.runID,
		Subject:   r.subject,
		CreatedAt: r.createdAt,
		Done:      r.done,
		Summary:   r.summary,
		Err:       r.err,
	}
	if st.Summary == nil {
		st.Summary = &pipeline.RunSummary{
			RunID:   r.runID,
			Subject: r.subject,
			State:   domain.RunStateSearching,
		}
	}
	return st
}
