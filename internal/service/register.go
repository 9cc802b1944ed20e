// Package service holds the order reconciler of a register: the cart, the
// active discount and tip, the selected order context, and the flows that
// turn them into sales, kitchen tickets and pre-order updates on the backend.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cafe-pos/register/internal/backend"
	"github.com/cafe-pos/register/internal/cart"
	"github.com/cafe-pos/register/internal/draft"
	"github.com/cafe-pos/register/internal/enum"
	"github.com/cafe-pos/register/internal/events"
	"github.com/cafe-pos/register/internal/journal"
	"github.com/cafe-pos/register/internal/modifier"
	"github.com/cafe-pos/register/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	draftTimeout         = 2 * time.Second
)

// Backend is the remote collaborator. Satisfied by *backend.Client.
type Backend interface {
	CreateSale(ctx context.Context, req backend.CreateSaleRequest) (*backend.CreateSaleResponse, error)
	CreateComanda(ctx context.Context, req backend.CreateComandaRequest) (*backend.CreateComandaResponse, error)
	CreateTip(ctx context.Context, req backend.CreateTipRequest) (*backend.CreateTipResponse, error)
	GetPreorder(ctx context.Context, id int64) (*backend.Preorder, error)
	UpdatePreorder(ctx context.Context, id int64, req backend.UpdatePreorderRequest) (*backend.Preorder, error)
	ProcessPreorderPayment(ctx context.Context, id int64, req backend.PreorderPaymentRequest) (*backend.PreorderPaymentResponse, error)
	ProcessSalePayment(ctx context.Context, saleID int64, req backend.SalePaymentRequest) (*backend.Sale, error)
	ListPendingPreorders(ctx context.Context) ([]backend.Preorder, error)
	ListFinishedUnpaidTickets(ctx context.Context) ([]backend.Comanda, error)
}

// Publisher is satisfied by *events.Bus.
type Publisher interface {
	Publish(ctx context.Context, e events.Event)
}

// Observer is satisfied by *metrics.Metrics.
type Observer interface {
	ObserveSubmission(flow, outcome string, d time.Duration)
	ObservePoll(list string, size int, err error)
}

type Config struct {
	RegisterID    string
	SubmitTimeout time.Duration
}

// Deps are the collaborators of a Register. Only Backend is required.
type Deps struct {
	Backend Backend
	Journal journal.Recorder
	Drafts  draft.Store
	Events  Publisher
	Metrics Observer
	Logger  logrus.FieldLogger
}

// Register is the order reconciler of one register terminal. All methods are
// safe for concurrent use; remote calls run without holding the state lock,
// and while one is in flight every mutation fails with ErrSubmitInFlight.
type Register struct {
	mu      sync.Mutex
	cart    *cart.Cart
	calc    pricing.Calculator
	order   OrderContext
	busy    bool
	lastErr string

	// Draft writes happen outside mu, in draftSeq order.
	draftSeq     uint64
	draftLive    bool
	draftMu      sync.Mutex
	draftWritten uint64

	// The generations advance on every stored poll so a slower, older
	// poll cannot overwrite a newer list.
	listMu      sync.RWMutex
	preorders   []backend.Preorder
	preorderGen uint64
	tickets     []backend.Comanda
	ticketGen   uint64
	seenTickets map[int64]bool

	backend       Backend
	journal       journal.Recorder
	drafts        draft.Store
	events        Publisher
	metrics       Observer
	logger        logrus.FieldLogger
	registerID    string
	submitTimeout time.Duration
}

// NewRegister creates an idle register.
func NewRegister(cfg Config, deps Deps) *Register {
	r := &Register{
		cart:          cart.New(),
		backend:       deps.Backend,
		journal:       deps.Journal,
		drafts:        deps.Drafts,
		events:        deps.Events,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		registerID:    cfg.RegisterID,
		submitTimeout: cfg.SubmitTimeout,
	}
	if r.journal == nil {
		r.journal = journal.NopRecorder{}
	}
	if r.drafts == nil {
		r.drafts = draft.NopStore{}
	}
	if r.events == nil {
		r.events = nopPublisher{}
	}
	if r.metrics == nil {
		r.metrics = nopObserver{}
	}
	if r.logger == nil {
		r.logger = logrus.StandardLogger()
	}
	r.logger = r.logger.WithField("register_id", cfg.RegisterID)
	if r.submitTimeout <= 0 {
		r.submitTimeout = defaultSubmitTimeout
	}
	return r
}

// LineView is a cart line with its derived values.
type LineView struct {
	cart.Line
	Identity      string          `json:"identity"`
	Observations  string          `json:"observations"`
	UnitSurcharge decimal.Decimal `json:"unit_surcharge"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

// Snapshot is a consistent copy of the register state.
type Snapshot struct {
	State     State             `json:"state"`
	Context   OrderContext      `json:"context"`
	Lines     []LineView        `json:"lines"`
	Breakdown pricing.Breakdown `json:"breakdown"`
	Discount  pricing.Discount  `json:"discount"`
	Tip       pricing.Tip       `json:"tip"`
	Error     string            `json:"error,omitempty"`
}

// Snapshot returns the current state. Totals are recomputed on every call,
// so a percentage tip always reflects the current cart and discount.
func (r *Register) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := r.cart.Snapshot()
	views := make([]LineView, 0, len(lines))
	for _, l := range lines {
		views = append(views, LineView{
			Line:          l,
			Identity:      l.Identity(),
			Observations:  l.Observations(),
			UnitSurcharge: l.UnitSurcharge(),
			Subtotal:      l.Subtotal(),
		})
	}

	s := Snapshot{
		State:     r.stateLocked(),
		Lines:     views,
		Breakdown: r.breakdownLocked(lines),
		Discount:  r.calc.Discount(),
		Tip:       r.calc.Tip(),
		Error:     r.lastErr,
	}
	if r.order != nil {
		s.Context = r.order.clone()
	}
	return s
}

func (r *Register) stateLocked() State {
	switch {
	case r.busy:
		return StateSubmitting
	case r.lastErr != "":
		return StateError
	case r.order == nil:
		return StateIdle
	}
	return r.order.State()
}

// breakdownLocked prices lines. A ticket whose sale came without priced
// lines is priced from the sale total.
func (r *Register) breakdownLocked(lines []cart.Line) pricing.Breakdown {
	if ft, ok := r.order.(*FinishedTicket); ok && !hasPrices(lines) && ft.Sale.Total.IsPositive() {
		lines = []cart.Line{{Name: "Ticket", UnitPrice: ft.Sale.Total, Quantity: 1}}
	}
	return r.calc.Compute(lines)
}

func hasPrices(lines []cart.Line) bool {
	for _, l := range lines {
		if !l.UnitPrice.IsZero() {
			return true
		}
	}
	return false
}

// AddItem adds one unit of p. An idle register starts a new order.
func (r *Register) AddItem(ctx context.Context, p cart.Product, mods modifier.Set) (cart.Line, error) {
	return r.AddItemWithNote(ctx, p, mods, "")
}

// AddItemWithNote adds one unit of p carrying note. Units only merge into a
// line whose note is the same.
func (r *Register) AddItemWithNote(ctx context.Context, p cart.Product, mods modifier.Set, note string) (cart.Line, error) {
	if err := mods.Validate(); err != nil {
		return cart.Line{}, err
	}
	if strings.TrimSpace(p.Name) == "" || p.Price.IsNegative() {
		return cart.Line{}, errors.Join(cart.ErrInvalidInput, errors.New("product needs a name and a non-negative price"))
	}

	var line cart.Line
	err := r.mutate(ctx, func() error {
		if err := r.linesEditableLocked(); err != nil {
			return err
		}
		r.ensureOrderLocked()
		line = r.cart.AddWithNote(p, mods, note)
		return nil
	})
	return line, err
}

// AddCustomItem adds a free-text item.
func (r *Register) AddCustomItem(ctx context.Context, name string, price decimal.Decimal) (cart.Line, error) {
	var line cart.Line
	err := r.mutate(ctx, func() error {
		if err := r.linesEditableLocked(); err != nil {
			return err
		}
		var err error
		if line, err = r.cart.AddCustomItem(name, price); err != nil {
			return err
		}
		r.ensureOrderLocked()
		return nil
	})
	return line, err
}

// UpdateQuantity changes a line's quantity by delta, removing it at zero.
func (r *Register) UpdateQuantity(ctx context.Context, lineID uuid.UUID, delta int) (bool, error) {
	var present bool
	err := r.mutate(ctx, func() error {
		if err := r.linesEditableLocked(); err != nil {
			return err
		}
		var err error
		present, err = r.cart.UpdateQuantity(lineID, delta)
		return err
	})
	return present, err
}

// SetModifiers replaces a line's modifiers, merging it into an identical line
// if one exists.
func (r *Register) SetModifiers(ctx context.Context, lineID uuid.UUID, mods modifier.Set) (cart.Line, error) {
	if err := mods.Validate(); err != nil {
		return cart.Line{}, err
	}
	var line cart.Line
	err := r.mutate(ctx, func() error {
		if err := r.linesEditableLocked(); err != nil {
			return err
		}
		var err error
		line, err = r.cart.SetModifiers(lineID, mods)
		return err
	})
	return line, err
}

// SetNote replaces a line's free-text note.
func (r *Register) SetNote(ctx context.Context, lineID uuid.UUID, note string) error {
	return r.mutate(ctx, func() error {
		if err := r.linesEditableLocked(); err != nil {
			return err
		}
		_, err := r.cart.SetNote(lineID, note)
		return err
	})
}

// RemoveItem deletes a line.
func (r *Register) RemoveItem(ctx context.Context, lineID uuid.UUID) error {
	return r.mutate(ctx, func() error {
		if err := r.linesEditableLocked(); err != nil {
			return err
		}
		return r.cart.Remove(lineID)
	})
}

// ClearCart removes every line but keeps the selected order.
func (r *Register) ClearCart(ctx context.Context) error {
	return r.mutate(ctx, func() error {
		if err := r.linesEditableLocked(); err != nil {
			return err
		}
		r.cart.Clear()
		return nil
	})
}

// SetDetails replaces the customer fields of a new order or pre-order.
func (r *Register) SetDetails(ctx context.Context, d Details) error {
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	d.Comments = strings.TrimSpace(d.Comments)
	if d.ServiceType != "" && !enum.IsServiceType(d.ServiceType) {
		return ErrInvalidServiceType
	}

	return r.mutate(ctx, func() error {
		if r.busy {
			return ErrSubmitInFlight
		}
		r.ensureOrderLocked()
		switch o := r.order.(type) {
		case *NewOrder:
			if d.ServiceType == "" {
				d.ServiceType = o.ServiceType
			}
			o.Details = d.clone()
		case *PreorderEdit:
			if d.ServiceType == "" {
				d.ServiceType = o.ServiceType
			}
			o.Details = d.clone()
		default:
			return ErrNotEditable
		}
		return nil
	})
}

// SetServiceType changes dine-in/take-out on any order, including a ticket
// waiting for payment.
func (r *Register) SetServiceType(ctx context.Context, serviceType string) error {
	if !enum.IsServiceType(serviceType) {
		return ErrInvalidServiceType
	}
	return r.mutate(ctx, func() error {
		if r.busy {
			return ErrSubmitInFlight
		}
		r.ensureOrderLocked()
		switch o := r.order.(type) {
		case *NewOrder:
			o.ServiceType = serviceType
		case *PreorderEdit:
			o.ServiceType = serviceType
		case *FinishedTicket:
			o.ServiceType = serviceType
		}
		return nil
	})
}

// SetDiscount selects the order discount, replacing any previous one. On an
// idle register the discount is held for the order the next item starts.
func (r *Register) SetDiscount(ctx context.Context, kind string, value decimal.Decimal) error {
	return r.mutate(ctx, func() error {
		if r.busy {
			return ErrSubmitInFlight
		}
		if _, ok := r.order.(*PreorderEdit); ok {
			return ErrDiscountUnsupported
		}
		return r.calc.SetDiscount(kind, value)
	})
}

// ClearDiscount removes the discount.
func (r *Register) ClearDiscount(ctx context.Context) error {
	return r.mutate(ctx, func() error {
		if r.busy {
			return ErrSubmitInFlight
		}
		r.calc.ClearDiscount()
		return nil
	})
}

// SetTip selects the tip, replacing any previous one. Like a discount, a tip
// chosen while idle does not open an order.
func (r *Register) SetTip(ctx context.Context, kind string, value decimal.Decimal) error {
	return r.mutate(ctx, func() error {
		if r.busy {
			return ErrSubmitInFlight
		}
		return r.calc.SetTip(kind, value)
	})
}

// ClearTip removes the tip.
func (r *Register) ClearTip(ctx context.Context) error {
	return r.mutate(ctx, func() error {
		if r.busy {
			return ErrSubmitInFlight
		}
		r.calc.ClearTip()
		return nil
	})
}

// Cancel returns to Idle, discarding local edits. Nothing is sent to the
// backend; a selected pre-order or ticket keeps its last persisted state.
func (r *Register) Cancel(ctx context.Context) error {
	return r.mutate(ctx, func() error {
		if r.busy {
			return ErrSubmitInFlight
		}
		r.resetLocked()
		return nil
	})
}

// Restore reloads a saved new-order draft into an idle register. It reports
// whether a draft was restored.
func (r *Register) Restore(ctx context.Context) (bool, error) {
	d, err := r.drafts.Load(ctx, r.registerID)
	if err != nil || d == nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.order != nil || r.busy {
		return false, nil
	}
	r.order = &NewOrder{Details: Details{
		CustomerName: d.CustomerName,
		CustomerID:   d.CustomerID,
		ServiceType:  d.ServiceType,
		Comments:     d.Comments,
	}}
	r.cart.Load(d.Lines)
	r.calc.Restore(d.Discount, d.Tip)
	r.draftLive = true

	r.logger.WithFields(logrus.Fields{
		"lines":    r.cart.Len(),
		"saved_at": d.SavedAt,
	}).Info("restored new-order draft")
	return true, nil
}

func (r *Register) linesEditableLocked() error {
	if r.busy {
		return ErrSubmitInFlight
	}
	if _, ok := r.order.(*FinishedTicket); ok {
		return ErrLinesLocked
	}
	return nil
}

func (r *Register) ensureOrderLocked() {
	if r.order == nil {
		r.order = &NewOrder{Details: Details{ServiceType: enum.ServiceTypeDineIn}}
	}
}

// mutate runs fn under the state lock. On success the error banner is
// cleared and the new-order draft is written once the lock is released.
func (r *Register) mutate(ctx context.Context, fn func() error) error {
	r.mu.Lock()
	err := fn()
	var op *draftOp
	if err == nil {
		r.lastErr = ""
		op = r.draftOpLocked()
	}
	r.mu.Unlock()

	r.persistDraft(ctx, op)
	return err
}

// draftOp is a pending write to the draft store. seq orders ops in the order
// the state changed.
type draftOp struct {
	seq   uint64
	save  *draft.Draft
	clear bool
}

// draftOpLocked captures what the draft store should hold for the current
// state: the new order, or nothing once the register moved on from one.
func (r *Register) draftOpLocked() *draftOp {
	o, ok := r.order.(*NewOrder)
	if !ok {
		if !r.draftLive {
			return nil
		}
		r.draftLive = false
		r.draftSeq++
		return &draftOp{seq: r.draftSeq, clear: true}
	}

	r.draftLive = true
	r.draftSeq++
	return &draftOp{seq: r.draftSeq, save: &draft.Draft{
		CustomerName: o.CustomerName,
		CustomerID:   o.CustomerID,
		ServiceType:  o.ServiceType,
		Comments:     o.Comments,
		Lines:        r.cart.Snapshot(),
		Discount:     r.calc.Discount(),
		Tip:          r.calc.Tip(),
	}}
}

// persistDraft applies op unless a later op already reached the store.
func (r *Register) persistDraft(ctx context.Context, op *draftOp) {
	if op == nil {
		return
	}
	r.draftMu.Lock()
	defer r.draftMu.Unlock()
	if op.seq <= r.draftWritten {
		return
	}
	r.draftWritten = op.seq

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), draftTimeout)
	defer cancel()
	if op.clear {
		if err := r.drafts.Delete(ctx, r.registerID); err != nil {
			r.logger.WithError(err).Warn("draft not deleted")
		}
		return
	}
	if err := r.drafts.Save(ctx, r.registerID, *op.save); err != nil {
		r.logger.WithError(err).Warn("draft not saved")
	}
}

// resetLocked empties the register. The draft is dropped by the next
// draftOpLocked.
func (r *Register) resetLocked() {
	r.cart.Clear()
	r.calc.Reset()
	r.order = nil
	r.lastErr = ""
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, events.Event) {}

type nopObserver struct{}

func (nopObserver) ObserveSubmission(string, string, time.Duration) {}
func (nopObserver) ObservePoll(string, int, error) {}
