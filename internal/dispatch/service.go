package dispatch

// service.go owns the lifecycle of batch runs: start, watch, cancel, fetch
// the result. Batches run in the background; callers get a batch id back
// immediately and follow along over SubscribeProgress.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBatchTimeout is the maximum wall time for one batch run.
	DefaultBatchTimeout = 10 * time.Minute

	// DefaultResultRetention is how long finished batches stay queryable.
	DefaultResultRetention = 30 * time.Minute
)

// BatchRequest is a pasted block of dispatch notes plus the operator's
// customer assignments.
type BatchRequest struct {
	Text string

	// CustomerID applies to every line without a per-line override.
	CustomerID string

	// LineCustomers overrides the customer for individual line numbers.
	LineCustomers map[int]string
}

// Recorder observes finished batches. Implementations are best effort:
// errors are logged and never affect the batch outcome. RecordBatch is
// called once per batch, off the request path.
type Recorder interface {
	RecordBatch(ctx context.Context, result BatchResult) error
}

// ServiceConfig tunes the batch service. Zero values fall back to the
// package defaults.
type ServiceConfig struct {
	Workers              int           // per-batch submission workers
	LineTimeout          time.Duration // remote budget per line
	MaxConcurrentBatches int
	MaxSlotWait          time.Duration // how long StartBatch waits for a slot
	BatchTimeout         time.Duration
	ResultRetention      time.Duration
}

// Service coordinates batch runs against the order-management backend.
type Service struct {
	backend   Backend
	limiter   *BatchLimiter
	cfg       ServiceConfig
	recorders []Recorder
	logger    *slog.Logger

	mu      sync.RWMutex
	batches map[string]*activeBatch
}

type activeBatch struct {
	ID     string
	Cancel context.CancelFunc
	Done   chan struct{}

	// ListenerMu guards Progress, Result, Listeners and finished.
	ListenerMu sync.Mutex
	Progress   BatchProgress
	Result     *BatchResult
	Listeners  []chan BatchProgress
	finished   bool
}

// NewService creates a batch service talking to the given backend.
// Recorders (history store, event publishers) are optional.
func NewService(backend Backend, cfg ServiceConfig, logger *slog.Logger, recorders ...Recorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.ResultRetention <= 0 {
		cfg.ResultRetention = DefaultResultRetention
	}

	return &Service{
		backend:   backend,
		limiter:   NewBatchLimiter(cfg.MaxConcurrentBatches, cfg.MaxSlotWait),
		cfg:       cfg,
		recorders: recorders,
		logger:    logger,
		batches:   make(map[string]*activeBatch),
	}
}

// StartBatch parses the pasted text, applies customer assignments and
// begins submitting in the background. Returns the batch id immediately;
// use SubscribeProgress for updates and GetBatchResult for the outcome.
//
// Returns ErrEmptyBatch when the paste contains no parseable lines and
// ErrTooManyBatches when no batch slot frees up within the configured wait.
func (s *Service) StartBatch(ctx context.Context, req BatchRequest) (string, error) {
	// Parse before burning a limiter slot: empty pastes are cheap to reject.
	lines := ParseText(req.Text)
	if len(lines) == 0 {
		return "", ErrEmptyBatch
	}
	assignCustomers(lines, req)

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	batchID := uuid.New().String()

	// The run is detached from the request context: the operator's browser
	// disconnecting must not abort a half-submitted batch.
	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.BatchTimeout)

	batch := &activeBatch{
		ID:     batchID,
		Cancel: cancel,
		Progress: BatchProgress{
			BatchID:    batchID,
			Phase:      PhaseStarting,
			TotalLines: len(lines),
		},
		Done:      make(chan struct{}),
		Listeners: make([]chan BatchProgress, 0),
	}

	s.mu.Lock()
	s.batches[batchID] = batch
	s.mu.Unlock()

	// Process in background with panic recovery so the limiter slot is
	// always released.
	go func() {
		defer s.limiter.Release()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in batch",
					"batch_id", batchID,
					"panic", r,
				)
				s.finishBatch(batch, BatchResult{
					BatchID:    batchID,
					TotalLines: len(lines),
					Failed:     len(lines),
					Error:      fmt.Sprintf("internal error: %v", r),
				}, PhaseFailed)
			}
		}()
		s.runBatch(runCtx, batch, lines)
	}()

	return batchID, nil
}

// runBatch loads backend snapshots, runs the line pipeline and records the
// outcome.
func (s *Service) runBatch(ctx context.Context, batch *activeBatch, lines []ParsedLine) {
	defer batch.Cancel()

	start := time.Now()
	logger := s.logger.With("batch_id", batch.ID)

	batch.publish(BatchProgress{
		BatchID:    batch.ID,
		Phase:      PhaseResolving,
		TotalLines: len(lines),
	})

	roster, err := s.backend.ListDrivers(ctx)
	if err != nil {
		s.failBatch(batch, lines, start, fmt.Errorf("load driver roster: %w", err))
		return
	}
	customerList, err := s.backend.ListCustomers(ctx)
	if err != nil {
		s.failBatch(batch, lines, start, fmt.Errorf("load customers: %w", err))
		return
	}
	customers := make(map[string]Customer, len(customerList))
	for _, c := range customerList {
		customers[c.ID] = c
	}

	resolver := NewSiteResolver(s.backend)
	if sites, err := s.backend.ListSites(ctx); err != nil {
		// Not fatal: every site then goes through find-or-create.
		logger.Warn("site snapshot unavailable, resolving cold", "error", err)
	} else {
		resolver.Seed(sites)
	}

	var progressMu sync.Mutex
	var processed, succeeded, failed int

	runner := &Runner{
		Sites:       resolver,
		Orders:      s.backend,
		Roster:      roster,
		Customers:   customers,
		Workers:     s.cfg.Workers,
		LineTimeout: s.cfg.LineTimeout,
		Logger:      logger,
		OnLineDone: func(lr LineResult) {
			progressMu.Lock()
			processed++
			if lr.Success {
				succeeded++
			} else {
				failed++
			}
			p := BatchProgress{
				BatchID:    batch.ID,
				Phase:      PhaseSubmitting,
				TotalLines: len(lines),
				Processed:  processed,
				Succeeded:  succeeded,
				Failed:     failed,
			}
			progressMu.Unlock()
			batch.publish(p)
		},
	}

	batch.publish(BatchProgress{
		BatchID:    batch.ID,
		Phase:      PhaseSubmitting,
		TotalLines: len(lines),
	})

	results := runner.Run(ctx, lines)

	result := BuildResult(batch.ID, results, time.Since(start), ctx.Err() != nil)

	phase := PhaseComplete
	if result.Cancelled {
		phase = PhaseCancelled
	}
	s.finishBatch(batch, result, phase)

	logger.Info("batch finished",
		"status", result.Status(),
		"total", result.TotalLines,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration_ms", result.DurationMs,
	)

	s.record(result)
}

// failBatch ends a batch that broke before any line was submitted.
func (s *Service) failBatch(batch *activeBatch, lines []ParsedLine, start time.Time, err error) {
	s.logger.Error("batch failed", "batch_id", batch.ID, "error", err)

	lineResults := make([]LineResult, len(lines))
	for i, ln := range lines {
		lineResults[i] = LineResult{
			LineNumber: ln.LineNumber,
			State:      LinePending,
			Error:      "not submitted (batch failed)",
		}
	}

	result := BuildResult(batch.ID, lineResults, time.Since(start), false)
	result.Error = err.Error()
	s.finishBatch(batch, result, PhaseFailed)
	s.record(result)
}

// finishBatch stores the result, broadcasts the terminal phase, wakes
// waiters and schedules eviction. Calling it twice is a no-op so the panic
// recovery path cannot re-finish an already finished batch.
func (s *Service) finishBatch(batch *activeBatch, result BatchResult, phase BatchPhase) {
	final := BatchProgress{
		BatchID:    batch.ID,
		Phase:      phase,
		TotalLines: result.TotalLines,
		Processed:  result.Succeeded + result.Failed,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		Error:      result.Error,
	}

	batch.ListenerMu.Lock()
	if batch.finished {
		batch.ListenerMu.Unlock()
		return
	}
	batch.Result = &result
	batch.Progress = final
	batch.finished = true
	for _, ch := range batch.Listeners {
		select {
		case ch <- final:
		default:
		}
		close(ch)
	}
	batch.Listeners = nil
	batch.ListenerMu.Unlock()

	close(batch.Done)
	s.cleanup(batch.ID, s.cfg.ResultRetention)
}

// record hands the finished batch to every recorder, best effort.
func (s *Service) record(result BatchResult) {
	if len(s.recorders) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, r := range s.recorders {
		if err := r.RecordBatch(ctx, result); err != nil {
			s.logger.Warn("batch recorder failed",
				"batch_id", result.BatchID,
				"error", err,
			)
		}
	}
}

// SubscribeProgress returns a channel receiving progress updates for the
// batch. The current state is delivered immediately and the channel closes
// once the batch reaches a terminal phase.
func (s *Service) SubscribeProgress(batchID string) (<-chan BatchProgress, error) {
	batch, err := s.lookup(batchID)
	if err != nil {
		return nil, err
	}

	ch := make(chan BatchProgress, 10)

	batch.ListenerMu.Lock()
	if batch.finished {
		// Late subscriber: deliver the terminal state and close.
		ch <- batch.Progress
		close(ch)
		batch.ListenerMu.Unlock()
		return ch, nil
	}
	batch.Listeners = append(batch.Listeners, ch)
	select {
	case ch <- batch.Progress:
	default:
	}
	batch.ListenerMu.Unlock()

	return ch, nil
}

// CancelBatch stops dispatching new lines for the batch. Lines already in
// flight finish their steps; the final result reports the rest as
// cancelled.
func (s *Service) CancelBatch(batchID string) error {
	batch, err := s.lookup(batchID)
	if err != nil {
		return err
	}
	batch.Cancel()
	return nil
}

// GetBatchResult returns the final result, blocking until the batch
// completes if it is still running.
func (s *Service) GetBatchResult(batchID string) (*BatchResult, error) {
	batch, err := s.lookup(batchID)
	if err != nil {
		return nil, err
	}

	<-batch.Done

	batch.ListenerMu.Lock()
	defer batch.ListenerMu.Unlock()
	return batch.Result, nil
}

// GetBatchProgress returns the current progress without blocking.
func (s *Service) GetBatchProgress(batchID string) (BatchProgress, error) {
	batch, err := s.lookup(batchID)
	if err != nil {
		return BatchProgress{}, err
	}

	batch.ListenerMu.Lock()
	defer batch.ListenerMu.Unlock()
	return batch.Progress, nil
}

// WaitForBatches blocks until all running batches finish or the context is
// cancelled. Used during graceful shutdown.
func (s *Service) WaitForBatches(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// LimiterStatus reports the batch limiter state for monitoring.
func (s *Service) LimiterStatus() BatchLimiterStatus {
	return s.limiter.Status()
}

// publish updates the batch's progress and fans it out to listeners.
// Slow listeners miss intermediate updates rather than blocking workers.
func (b *activeBatch) publish(p BatchProgress) {
	b.ListenerMu.Lock()
	defer b.ListenerMu.Unlock()
	if b.finished {
		return
	}
	b.Progress = p
	for _, ch := range b.Listeners {
		select {
		case ch <- p:
		default:
		}
	}
}

// lookup finds a tracked batch or reports ErrBatchNotFound.
func (s *Service) lookup(batchID string) (*activeBatch, error) {
	s.mu.RLock()
	batch, ok := s.batches[batchID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	return batch, nil
}

// cleanup evicts the batch from tracking after the retention delay.
func (s *Service) cleanup(batchID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.batches, batchID)
		s.mu.Unlock()
	})
}

// assignCustomers applies the operator's customer choices to parsed lines.
// A per-line override beats the batch-wide customer; lines with neither
// stay unassigned and fail with "missing customer" at submission.
func assignCustomers(lines []ParsedLine, req BatchRequest) {
	for i := range lines {
		if id, ok := req.LineCustomers[lines[i].LineNumber]; ok {
			lines[i].CustomerID = id
			continue
		}
		lines[i].CustomerID = req.CustomerID
	}
}
