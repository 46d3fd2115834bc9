package dispatch

// batch.go drives parsed lines through site resolution, order creation and
// driver assignment with per-line failure isolation.
//
// Each line walks PENDING -> SITES_RESOLVED -> ORDER_CREATED ->
// [DRIVER_ASSIGNED] -> DONE, dropping to FAILED from any step. Failures
// stay on their line; the rest of the batch is unaffected. Site resolution
// failures are softer still: the order is created with raw text only.
//
// Lines are submitted by a bounded worker pool. Results land in a slice
// indexed by input position, so the final report preserves input order no
// matter which worker finishes first. Cancelling the batch context stops
// lines that have not started; a line already past its gate finishes its
// step sequence on a detached per-line budget.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers bounds submission concurrency when the runner is not
	// configured otherwise. Order creation is remote-bound; a small pool
	// keeps the order service comfortable.
	DefaultWorkers = 4

	// DefaultLineTimeout is the remote budget one line may spend across
	// all of its steps once dispatched.
	DefaultLineTimeout = 2 * time.Minute
)

// Runner submits one batch of parsed lines to the order service.
// Roster and Customers are snapshots taken before the run; Sites is a
// fresh per-batch resolver. The zero Workers and LineTimeout fall back to
// the package defaults.
type Runner struct {
	Sites       *SiteResolver
	Orders      OrderSubmitter
	Roster      []Driver
	Customers   map[string]Customer // keyed by customer id
	Workers     int
	LineTimeout time.Duration
	Logger      *slog.Logger

	// OnLineDone, when set, observes each line reaching a terminal state.
	// Called from worker goroutines; implementations must be safe for
	// concurrent use.
	OnLineDone func(LineResult)
}

// Run processes every line and returns one result per line in input order.
// Cancelling ctx stops dispatching new lines; lines already dispatched run
// to a terminal state regardless. Run never returns an error: failures are
// per line, inside the results.
func (r *Runner) Run(ctx context.Context, lines []ParsedLine) []LineResult {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]LineResult, len(lines))

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range lines {
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = LineResult{
					LineNumber: lines[i].LineNumber,
					State:      LinePending,
					Error:      "batch cancelled",
				}
			} else {
				results[i] = r.processLine(ctx, lines[i], logger)
			}
			if r.OnLineDone != nil {
				r.OnLineDone(results[i])
			}
			return nil
		})
	}
	g.Wait()

	return results
}

// processLine walks one line through the submission steps. The returned
// result is terminal: DONE or FAILED.
func (r *Runner) processLine(ctx context.Context, line ParsedLine, logger *slog.Logger) LineResult {
	res := LineResult{LineNumber: line.LineNumber, State: LinePending}

	// Detach from batch cancellation: once a line starts it finishes its
	// steps, bounded only by its own budget.
	timeout := r.LineTimeout
	if timeout <= 0 {
		timeout = DefaultLineTimeout
	}
	lineCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if line.CustomerID == "" {
		return r.failLine(res, logger, ErrMissingCustomer)
	}
	customer, ok := r.Customers[line.CustomerID]
	if !ok {
		return r.failLine(res, logger, fmt.Errorf("%w: %s", ErrUnknownCustomer, line.CustomerID))
	}

	driver, matched := MatchDriver(line.DriverName, r.Roster)

	// Site resolution is best effort. The draft carries the raw text
	// either way, so the order service can still route the order.
	pickupSiteID, err := r.Sites.Resolve(lineCtx, line.PickupText, SitePickup)
	if err != nil {
		logger.Warn("pickup site resolution failed",
			"line", line.LineNumber,
			"text", line.PickupText,
			"error", err,
		)
		pickupSiteID = ""
	}
	deliverySiteID, err := r.Sites.Resolve(lineCtx, line.DeliveryText, SiteDelivery)
	if err != nil {
		logger.Warn("delivery site resolution failed",
			"line", line.LineNumber,
			"text", line.DeliveryText,
			"error", err,
		)
		deliverySiteID = ""
	}
	res.State = LineSitesResolved

	draft := OrderDraft{
		CustomerID:            line.CustomerID,
		OrderCode:             OrderCode(customer.Code, line.LineNumber),
		PickupSiteID:          pickupSiteID,
		DeliverySiteID:        deliverySiteID,
		PickupText:            line.PickupText,
		DeliveryText:          line.DeliveryText,
		EquipmentSize:         line.EquipmentSize,
		Quantity:              1,
		ContainerCode:         line.ContainerCode,
		CargoNote:             line.CargoNote,
		CustomerRequestedDate: line.DeliveryDate,
	}
	res.OrderCode = draft.OrderCode

	order, err := r.Orders.CreateOrder(lineCtx, draft)
	if err != nil {
		if errors.Is(err, ErrDuplicateOrderCode) {
			return r.failLine(res, logger, fmt.Errorf("duplicate order code: %s", draft.OrderCode))
		}
		return r.failLine(res, logger, err)
	}
	res.State = LineOrderCreated
	res.OrderID = order.ID

	if matched {
		assignment := DriverAssignment{
			OrderID:       order.ID,
			DriverID:      driver.ID,
			ETAPickupAt:   etaAt(line.PickupDate, ShiftMorning),
			ETADeliveryAt: etaAt(line.DeliveryDate, line.DeliveryShift),
		}
		if err := r.Orders.AssignDriver(lineCtx, assignment); err != nil {
			// The order exists; it just needs a driver by hand.
			logger.Warn("driver assignment failed",
				"line", line.LineNumber,
				"order_code", res.OrderCode,
				"driver", driver.FullName,
				"error", err,
			)
		} else {
			res.State = LineDriverAssigned
			res.DriverID = driver.ID
			res.DriverName = driver.FullName
		}
	}

	res.State = LineDone
	res.Success = true
	return res
}

// failLine stamps a terminal failure onto the line result.
func (r *Runner) failLine(res LineResult, logger *slog.Logger, err error) LineResult {
	res.State = LineFailed
	res.Error = err.Error()
	logger.Info("line failed",
		"line", res.LineNumber,
		"order_code", res.OrderCode,
		"error", err,
	)
	return res
}

// etaAt maps a dispatch date and shift onto the clock time trucks are
// planned for. Nil dates produce nil ETAs.
func etaAt(date *time.Time, shift Shift) *time.Time {
	if date == nil {
		return nil
	}
	t := shift.At(*date)
	return &t
}
