package dispatch

import (
	"context"
	"time"
)

// Shift is the delivery window requested on a dispatch line.
type Shift string

const (
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
	ShiftEvening   Shift = "evening"
)

// ClockHour returns the wall-clock hour dispatchers plan around for a shift.
func (s Shift) ClockHour() int {
	switch s {
	case ShiftAfternoon:
		return 13
	case ShiftEvening:
		return 18
	default:
		return 8
	}
}

// At pins the shift's clock time onto a calendar date.
func (s Shift) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), s.ClockHour(), 0, 0, 0, date.Location())
}

// SiteType distinguishes where a site sits in an order.
type SiteType string

const (
	SitePickup   SiteType = "pickup"
	SiteDelivery SiteType = "delivery"
)

// DriverSource indicates whether a driver is on payroll or subcontracted.
type DriverSource string

const (
	DriverInternal DriverSource = "internal"
	DriverExternal DriverSource = "external"
)

// Driver is a roster entry from the order-management backend.
type Driver struct {
	ID        string       `json:"id"`
	FullName  string       `json:"fullName"`
	ShortName string       `json:"shortName,omitempty"` // how dispatchers write the name, e.g. "A Tuyến"
	Phone     string       `json:"phone,omitempty"`
	Source    DriverSource `json:"source"`
}

// Customer is a billing account orders are created under.
type Customer struct {
	ID   string `json:"id"`
	Code string `json:"code"` // short code used in order codes, e.g. "ADG"
	Name string `json:"name"`
}

// Site is a pickup or delivery point known to the backend.
type Site struct {
	ID          string   `json:"id"`
	Code        string   `json:"code,omitempty"`
	CompanyName string   `json:"companyName"`
	LocationID  string   `json:"locationId,omitempty"`
	Type        SiteType `json:"type"`
	Status      string   `json:"status,omitempty"`
}

// Location is a geographic area sites belong to (district, province).
type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Province string `json:"province,omitempty"`
}

// Equipment sizes accepted on a dispatch line (container feet).
const (
	Equipment20 = "20"
	Equipment40 = "40"
	Equipment45 = "45"
)

// DefaultEquipmentSize is assumed when a line carries no NxSS token.
const DefaultEquipmentSize = Equipment40

// ParsedLine is the structured form of one dispatch-note line.
// All fields except LineNumber are best-effort; absent clauses leave
// zero values. CustomerID is assigned by the operator before submission,
// never by the parser.
type ParsedLine struct {
	LineNumber      int        `json:"lineNumber"`
	DriverName      string     `json:"driverName"`
	PickupText      string     `json:"pickupText"`
	DeliveryText    string     `json:"deliveryText"`
	ContainerCode   string     `json:"containerCode,omitempty"`
	EquipmentSize   string     `json:"equipmentSize"`
	CargoNote       string     `json:"cargoNote,omitempty"`
	PickupDate      *time.Time `json:"pickupDate,omitempty"`
	DeliveryDate    *time.Time `json:"deliveryDate,omitempty"`
	DeliveryShift   Shift      `json:"deliveryShift"`
	DeliveryAddress string     `json:"deliveryAddress,omitempty"`
	DeliveryContact string     `json:"deliveryContact,omitempty"`
	CustomerID      string     `json:"customerId,omitempty"`
}

// OrderDraft is the payload sent to the backend's order.create operation.
// Site ids are present only when resolution succeeded; the raw pickup and
// delivery text always rides along so the backend can fall back to it.
type OrderDraft struct {
	CustomerID            string     `json:"customerId"`
	OrderCode             string     `json:"orderCode"`
	PickupSiteID          string     `json:"pickupSiteId,omitempty"`
	DeliverySiteID        string     `json:"deliverySiteId,omitempty"`
	PickupText            string     `json:"pickupText,omitempty"`
	DeliveryText          string     `json:"deliveryText,omitempty"`
	EquipmentSize         string     `json:"equipmentSize"`
	Quantity              int        `json:"quantity"`
	ContainerCode         string     `json:"containerCode,omitempty"`
	CargoNote             string     `json:"cargoNote,omitempty"`
	CustomerRequestedDate *time.Time `json:"customerRequestedDate,omitempty"`
}

// Order is the backend's record of a created order.
type Order struct {
	ID        string `json:"id"`
	OrderCode string `json:"orderCode"`
}

// DriverAssignment is the payload for the backend's order.assign_driver
// operation. ETAs are nil when the line carried no usable date.
type DriverAssignment struct {
	OrderID       string     `json:"orderId"`
	DriverID      string     `json:"driverId"`
	ETAPickupAt   *time.Time `json:"etaPickupAt,omitempty"`
	ETADeliveryAt *time.Time `json:"etaDeliveryAt,omitempty"`
}

// LineState tracks how far a line got through the submission pipeline.
type LineState string

const (
	LinePending        LineState = "PENDING"
	LineSitesResolved  LineState = "SITES_RESOLVED"
	LineOrderCreated   LineState = "ORDER_CREATED"
	LineDriverAssigned LineState = "DRIVER_ASSIGNED"
	LineDone           LineState = "DONE"
	LineFailed         LineState = "FAILED"
)

// LineResult is the outcome of submitting one parsed line.
type LineResult struct {
	LineNumber int       `json:"lineNumber"`
	State      LineState `json:"state"`
	Success    bool      `json:"success"`
	OrderCode  string    `json:"orderCode,omitempty"`
	OrderID    string    `json:"orderId,omitempty"`
	DriverID   string    `json:"driverId,omitempty"`
	DriverName string    `json:"driverName,omitempty"` // resolved roster name, not the raw fragment
	Error      string    `json:"error,omitempty"`
}

// BatchResult is the final outcome of a batch run. Lines holds one entry
// per submitted ParsedLine in input order regardless of completion order.
type BatchResult struct {
	BatchID    string        `json:"batchId"`
	TotalLines int           `json:"totalLines"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Cancelled  bool          `json:"cancelled"`
	Lines      []LineResult  `json:"lines"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"durationMs"`
	Error      string        `json:"error,omitempty"` // batch-level failure, e.g. snapshot load
}

// BatchPhase indicates the current stage of batch processing.
type BatchPhase string

const (
	PhaseStarting   BatchPhase = "starting"
	PhaseParsing    BatchPhase = "parsing"
	PhaseResolving  BatchPhase = "resolving"
	PhaseSubmitting BatchPhase = "submitting"
	PhaseComplete   BatchPhase = "complete"
	PhaseFailed     BatchPhase = "failed"
	PhaseCancelled  BatchPhase = "cancelled"
)

// Terminal reports whether the phase is an end state.
func (p BatchPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// BatchProgress represents the current state of a batch run.
type BatchProgress struct {
	BatchID    string     `json:"batchId"`
	Phase      BatchPhase `json:"phase"`
	TotalLines int        `json:"totalLines"`
	Processed  int        `json:"processed"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"` // non-empty if Phase is PhaseFailed
}

// Percent returns the progress as a percentage (0-100).
func (p BatchProgress) Percent() int {
	if p.Phase.Terminal() {
		return 100
	}
	if p.TotalLines > 0 {
		return (p.Processed * 100) / p.TotalLines
	}
	return 0
}

// SiteDirectory is the slice of the backend the site resolver needs.
type SiteDirectory interface {
	FindOrCreateSite(ctx context.Context, searchText string, siteType SiteType) (Site, error)
}

// OrderSubmitter is the slice of the backend the runner needs.
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, draft OrderDraft) (Order, error)
	AssignDriver(ctx context.Context, assignment DriverAssignment) error
}

// Backend is the full order-management surface the batch service consumes.
// Satisfied by *orderapi.Client.
type Backend interface {
	SiteDirectory
	OrderSubmitter
	ListDrivers(ctx context.Context) ([]Driver, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	ListSites(ctx context.Context) ([]Site, error)
}
