package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend composes the order and site fakes into a full Backend.
type fakeBackend struct {
	*fakeOrderService
	*fakeSiteDirectory

	drivers   []Driver
	customers []Customer
	sites     []Site
	listErr   error // when set, every List call fails with it
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		fakeOrderService:  &fakeOrderService{},
		fakeSiteDirectory: &fakeSiteDirectory{},
		drivers:           testRoster(),
		customers: []Customer{
			{ID: "cust-adg", Code: "ADG", Name: "An Dương Glass"},
			{ID: "cust-vt", Code: "VT", Name: "Vĩnh Thành"},
		},
	}
}

func (f *fakeBackend) ListDrivers(context.Context) ([]Driver, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.drivers, nil
}

func (f *fakeBackend) ListCustomers(context.Context) ([]Customer, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.customers, nil
}

func (f *fakeBackend) ListSites(context.Context) ([]Site, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sites, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []BatchResult
}

func (r *fakeRecorder) RecordBatch(_ context.Context, res BatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func newTestService(backend Backend, cfg ServiceConfig, recorders ...Recorder) *Service {
	return NewService(backend, cfg, discardLogger(), recorders...)
}

// eventually polls cond until it holds or the timeout expires.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

const pasteThree = `185) A Tuyến: CHÙA VẼ - Hưng Yên- 1x40
186) A Phúc: TÂN VŨ - Bắc Ninh- 1x20
187) ai đó: ĐÌNH VŨ - Hà Nội- 1x40`

// ============================================================================
// Service Tests
// ============================================================================

func TestService_BatchRunsToCompletion(t *testing.T) {
	backend := newFakeBackend()
	svc := newTestService(backend, ServiceConfig{Workers: 2})

	id, err := svc.StartBatch(context.Background(), BatchRequest{
		Text:       pasteThree,
		CustomerID: "cust-adg",
	})
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	ch, err := svc.SubscribeProgress(id)
	if err != nil {
		t.Fatalf("SubscribeProgress failed: %v", err)
	}
	var last BatchProgress
	for p := range ch {
		last = p
	}

	if last.Phase != PhaseComplete {
		t.Errorf("final phase = %s, want %s", last.Phase, PhaseComplete)
	}
	if last.Percent() != 100 {
		t.Errorf("final percent = %d, want 100", last.Percent())
	}

	res, err := svc.GetBatchResult(id)
	if err != nil {
		t.Fatalf("GetBatchResult failed: %v", err)
	}
	if res.BatchID != id {
		t.Errorf("result batch id = %s, want %s", res.BatchID, id)
	}
	if res.Succeeded != 3 || res.Failed != 0 {
		t.Errorf("tallies = %d/%d, want 3/0", res.Succeeded, res.Failed)
	}
	if res.Status() != StatusCompleted {
		t.Errorf("status = %s, want %s", res.Status(), StatusCompleted)
	}
	if len(res.Lines) != 3 {
		t.Fatalf("got %d line results, want 3", len(res.Lines))
	}
	if res.Lines[0].OrderCode != "ADG-185" {
		t.Errorf("first order code = %q, want ADG-185", res.Lines[0].OrderCode)
	}
}

func TestService_EmptyPaste(t *testing.T) {
	svc := newTestService(newFakeBackend(), ServiceConfig{})

	_, err := svc.StartBatch(context.Background(), BatchRequest{
		Text:       "just chatter\nno numbered lines here",
		CustomerID: "cust-adg",
	})

	if !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("StartBatch = %v, want ErrEmptyBatch", err)
	}
	if got := svc.LimiterStatus().Active; got != 0 {
		t.Errorf("limiter active = %d after rejected start, want 0", got)
	}
}

func TestService_PerLineCustomerOverride(t *testing.T) {
	backend := newFakeBackend()
	svc := newTestService(backend, ServiceConfig{Workers: 1})

	id, err := svc.StartBatch(context.Background(), BatchRequest{
		Text:          "185) A Tuyến: CHÙA VẼ - Hưng Yên- 1x40\n186) A Phúc: TÂN VŨ - Bắc Ninh- 1x20",
		CustomerID:    "cust-adg",
		LineCustomers: map[int]string{186: "cust-vt"},
	})
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	res, err := svc.GetBatchResult(id)
	if err != nil {
		t.Fatalf("GetBatchResult failed: %v", err)
	}
	if res.Lines[0].OrderCode != "ADG-185" {
		t.Errorf("line 185 order code = %q, want ADG-185", res.Lines[0].OrderCode)
	}
	if res.Lines[1].OrderCode != "VT-186" {
		t.Errorf("line 186 order code = %q, want VT-186", res.Lines[1].OrderCode)
	}
}

func TestService_NoCustomerFailsLines(t *testing.T) {
	backend := newFakeBackend()
	svc := newTestService(backend, ServiceConfig{})

	id, err := svc.StartBatch(context.Background(), BatchRequest{Text: pasteThree})
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	res, err := svc.GetBatchResult(id)
	if err != nil {
		t.Fatalf("GetBatchResult failed: %v", err)
	}
	if res.Succeeded != 0 || res.Failed != 3 {
		t.Errorf("tallies = %d/%d, want 0/3", res.Succeeded, res.Failed)
	}
	if res.Status() != StatusFailed {
		t.Errorf("status = %s, want %s", res.Status(), StatusFailed)
	}
	if got := backend.createdCount(); got != 0 {
		t.Errorf("created %d orders, want 0", got)
	}
}

func TestService_CancelBatch(t *testing.T) {
	backend := newFakeBackend()
	backend.fakeOrderService.entered = make(chan string, 2)
	backend.fakeOrderService.createGate = make(chan struct{})
	svc := newTestService(backend, ServiceConfig{Workers: 1})

	id, err := svc.StartBatch(context.Background(), BatchRequest{
		Text:       "185) A Tuyến: CHÙA VẼ - Hưng Yên- 1x40\n186) A Phúc: TÂN VŨ - Bắc Ninh- 1x20",
		CustomerID: "cust-adg",
	})
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	// First line is talking to the backend; cancel, then let it finish.
	<-backend.fakeOrderService.entered
	if err := svc.CancelBatch(id); err != nil {
		t.Fatalf("CancelBatch failed: %v", err)
	}
	close(backend.fakeOrderService.createGate)

	res, err := svc.GetBatchResult(id)
	if err != nil {
		t.Fatalf("GetBatchResult failed: %v", err)
	}
	if !res.Cancelled {
		t.Error("result not marked cancelled")
	}
	if res.Status() != StatusCancelled {
		t.Errorf("status = %s, want %s", res.Status(), StatusCancelled)
	}
	if !res.Lines[0].Success {
		t.Errorf("in-flight line failed: %s", res.Lines[0].Error)
	}
	if res.Lines[1].Error != "batch cancelled" {
		t.Errorf("line 186 error = %q, want batch cancelled", res.Lines[1].Error)
	}

	progress, err := svc.GetBatchProgress(id)
	if err != nil {
		t.Fatalf("GetBatchProgress failed: %v", err)
	}
	if progress.Phase != PhaseCancelled {
		t.Errorf("final phase = %s, want %s", progress.Phase, PhaseCancelled)
	}
}

func TestService_TooManyBatches(t *testing.T) {
	backend := newFakeBackend()
	backend.fakeOrderService.entered = make(chan string, 1)
	backend.fakeOrderService.createGate = make(chan struct{})
	svc := newTestService(backend, ServiceConfig{
		Workers:              1,
		MaxConcurrentBatches: 1,
		MaxSlotWait:          50 * time.Millisecond,
	})

	first, err := svc.StartBatch(context.Background(), BatchRequest{
		Text:       "185) A Tuyến: CHÙA VẼ - Hưng Yên- 1x40",
		CustomerID: "cust-adg",
	})
	if err != nil {
		t.Fatalf("first StartBatch failed: %v", err)
	}
	<-backend.fakeOrderService.entered // first batch is mid-flight, slot held

	_, err = svc.StartBatch(context.Background(), BatchRequest{
		Text:       "186) A Phúc: TÂN VŨ - Bắc Ninh- 1x20",
		CustomerID: "cust-adg",
	})
	if !errors.Is(err, ErrTooManyBatches) {
		t.Errorf("second StartBatch = %v, want ErrTooManyBatches", err)
	}

	close(backend.fakeOrderService.createGate)
	if _, err := svc.GetBatchResult(first); err != nil {
		t.Fatalf("GetBatchResult failed: %v", err)
	}
}

func TestService_SnapshotFailureFailsBatch(t *testing.T) {
	backend := newFakeBackend()
	backend.listErr = errors.New("connection refused")
	svc := newTestService(backend, ServiceConfig{})

	id, err := svc.StartBatch(context.Background(), BatchRequest{
		Text:       pasteThree,
		CustomerID: "cust-adg",
	})
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	res, err := svc.GetBatchResult(id)
	if err != nil {
		t.Fatalf("GetBatchResult failed: %v", err)
	}
	if res.Error == "" {
		t.Fatal("batch error empty, want snapshot failure")
	}
	if res.Status() != StatusFailed {
		t.Errorf("status = %s, want %s", res.Status(), StatusFailed)
	}
	if len(res.Lines) != 3 {
		t.Fatalf("got %d line results, want 3", len(res.Lines))
	}
	for _, ln := range res.Lines {
		if ln.State != LinePending {
			t.Errorf("line %d state = %s, want %s", ln.LineNumber, ln.State, LinePending)
		}
	}

	progress, _ := svc.GetBatchProgress(id)
	if progress.Phase != PhaseFailed {
		t.Errorf("phase = %s, want %s", progress.Phase, PhaseFailed)
	}
}

func TestService_LateSubscriberGetsTerminalState(t *testing.T) {
	svc := newTestService(newFakeBackend(), ServiceConfig{})

	id, err := svc.StartBatch(context.Background(), BatchRequest{
		Text:       "185) A Tuyến: CHÙA VẼ - Hưng Yên- 1x40",
		CustomerID: "cust-adg",
	})
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	if _, err := svc.GetBatchResult(id); err != nil {
		t.Fatalf("GetBatchResult failed: %v", err)
	}

	ch, err := svc.SubscribeProgress(id)
	if err != nil {
		t.Fatalf("SubscribeProgress failed: %v", err)
	}

	p, ok := <-ch
	if !ok {
		t.Fatal("channel closed without delivering the terminal state")
	}
	if !p.Phase.Terminal() {
		t.Errorf("late subscriber got phase %s, want terminal", p.Phase)
	}
	if _, ok := <-ch; ok {
		t.Error("channel still open after terminal state")
	}
}

func TestService_UnknownBatchID(t *testing.T) {
	svc := newTestService(newFakeBackend(), ServiceConfig{})

	if _, err := svc.SubscribeProgress("missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("SubscribeProgress = %v, want ErrBatchNotFound", err)
	}
	if err := svc.CancelBatch("missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("CancelBatch = %v, want ErrBatchNotFound", err)
	}
	if _, err := svc.GetBatchResult("missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("GetBatchResult = %v, want ErrBatchNotFound", err)
	}
	if _, err := svc.GetBatchProgress("missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("GetBatchProgress = %v, want ErrBatchNotFound", err)
	}
}

func TestService_RecordersObserveResult(t *testing.T) {
	recorder := &fakeRecorder{}
	svc := newTestService(newFakeBackend(), ServiceConfig{}, recorder)

	id, err := svc.StartBatch(context.Background(), BatchRequest{
		Text:       "185) A Tuyến: CHÙA VẼ - Hưng Yên- 1x40",
		CustomerID: "cust-adg",
	})
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	if _, err := svc.GetBatchResult(id); err != nil {
		t.Fatalf("GetBatchResult failed: %v", err)
	}

	// Recording happens after the result is published.
	eventually(t, time.Second, func() bool { return recorder.count() == 1 },
		"recorder never saw the batch")

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if recorder.results[0].BatchID != id {
		t.Errorf("recorded batch id = %s, want %s", recorder.results[0].BatchID, id)
	}
}

func TestService_WaitForBatches(t *testing.T) {
	svc := newTestService(newFakeBackend(), ServiceConfig{})

	id, err := svc.StartBatch(context.Background(), BatchRequest{
		Text:       "185) A Tuyến: CHÙA VẼ - Hưng Yên- 1x40",
		CustomerID: "cust-adg",
	})
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	if _, err := svc.GetBatchResult(id); err != nil {
		t.Fatalf("GetBatchResult failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.WaitForBatches(ctx); err != nil {
		t.Errorf("WaitForBatches = %v, want nil", err)
	}
}
