package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cafe-pos/register/internal/backend"
	"github.com/cafe-pos/register/internal/cart"
	"github.com/cafe-pos/register/internal/enum"
	"github.com/cafe-pos/register/internal/events"
	"github.com/cafe-pos/register/internal/journal"
	"github.com/cafe-pos/register/internal/pricing"
	"github.com/sirupsen/logrus"
)

// PayRequest settles the selected order.
type PayRequest struct {
	Method    string
	CashierID int64
}

// Receipt describes a completed flow.
type Receipt struct {
	Flow        string            `json:"flow"`
	SaleID      *int64            `json:"sale_id,omitempty"`
	ComandaID   *int64            `json:"comanda_id,omitempty"`
	TicketID    *int64            `json:"ticket_id,omitempty"`
	PreorderID  *int64            `json:"preorder_id,omitempty"`
	DailyNumber *int              `json:"daily_number,omitempty"`
	Method      string            `json:"method"`
	Paid        bool              `json:"paid"`
	Totals      pricing.Breakdown `json:"totals"`
	Message     string            `json:"message,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// submission is the state captured when a flow starts. The flow works on
// this copy only.
type submission struct {
	order     OrderContext
	lines     []cart.Line
	discount  pricing.Discount
	tip       pricing.Tip
	breakdown pricing.Breakdown
}

// outcome is what a flow reports back to complete.
type outcome struct {
	receipt   *Receipt
	contextID *int64
	saleID    *int64
	comandaID *int64
	total     pricing.Breakdown
	events    []events.Event
	// reset returns the register to Idle on success.
	reset bool
	// apply runs under the state lock on success.
	apply func()
}

// Pay settles the selected order with the flow that fits its context.
func (r *Register) Pay(ctx context.Context, req PayRequest) (*Receipt, error) {
	method := strings.TrimSpace(req.Method)

	sub, err := r.beginSubmit()
	if err != nil {
		return nil, err
	}

	var (
		flow string
		run  func(context.Context, *submission) (outcome, error)
	)
	switch o := sub.order.(type) {
	case *NewOrder:
		flow = journal.FlowNewOrder
		err = validatePayment(method, sub, false, o.Details)
		run = func(ctx context.Context, s *submission) (outcome, error) {
			return r.createOrder(ctx, s, o.Details, method, req.CashierID, true)
		}
	case *PreorderEdit:
		flow = journal.FlowPreorderPay
		err = validatePayment(method, sub, true, o.Details)
		run = func(ctx context.Context, s *submission) (outcome, error) {
			return r.payPreorder(ctx, s, o, method)
		}
	case *FinishedTicket:
		flow = journal.FlowTicketPay
		err = validateMethod(method)
		run = func(ctx context.Context, s *submission) (outcome, error) {
			return r.payTicket(ctx, s, o, method)
		}
	default:
		err = ErrEmptyCart
	}
	if err != nil {
		r.abortSubmit()
		return nil, err
	}
	return r.runSubmit(ctx, flow, sub, run)
}

// SendUnpaid sends a new order to the kitchen without payment. The sale is
// created unpaid with method "pending"; it comes back as a finished-unpaid
// ticket once the kitchen is done.
func (r *Register) SendUnpaid(ctx context.Context, cashierID int64) (*Receipt, error) {
	sub, err := r.beginSubmit()
	if err != nil {
		return nil, err
	}

	o, ok := sub.order.(*NewOrder)
	switch {
	case sub.order == nil:
		err = ErrEmptyCart
	case !ok:
		err = ErrWrongContext
	case len(sub.lines) == 0:
		err = ErrEmptyCart
	case o.CustomerName == "":
		err = ErrCustomerNameRequired
	}
	if err != nil {
		r.abortSubmit()
		return nil, err
	}

	return r.runSubmit(ctx, journal.FlowSendUnpaid, sub, func(ctx context.Context, s *submission) (outcome, error) {
		return r.createOrder(ctx, s, o.Details, enum.PaymentMethodPending, cashierID, false)
	})
}

// SavePreorder writes the edited lines and details back to the selected
// pre-order. The register stays on the same pre-order.
func (r *Register) SavePreorder(ctx context.Context) error {
	sub, err := r.beginSubmit()
	if err != nil {
		return err
	}

	o, ok := sub.order.(*PreorderEdit)
	switch {
	case sub.order == nil:
		err = ErrNoContext
	case !ok:
		err = ErrWrongContext
	case len(sub.lines) == 0:
		err = ErrEmptyCart
	case o.CustomerName == "":
		err = ErrCustomerNameRequired
	}
	if err != nil {
		r.abortSubmit()
		return err
	}

	_, err = r.runSubmit(ctx, journal.FlowPreorderSave, sub, func(ctx context.Context, s *submission) (outcome, error) {
		id := o.Preorder.ID
		updated, err := r.backend.UpdatePreorder(ctx, id, preorderUpdate(o.Details, s, ""))
		if err != nil {
			return outcome{contextID: &id}, err
		}
		return outcome{
			receipt:   &Receipt{Flow: journal.FlowPreorderSave, PreorderID: &id, Totals: s.breakdown},
			contextID: &id,
			total:     s.breakdown,
			apply: func() {
				if pe, ok := r.order.(*PreorderEdit); ok && pe.Preorder.ID == id && updated != nil && updated.ID == id {
					pe.Preorder = *updated
				}
			},
		}, nil
	})
	return err
}

func validateMethod(method string) error {
	if method == "" {
		return ErrPaymentMethodRequired
	}
	if !enum.IsSettlingPaymentMethod(method) {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
	}
	return nil
}

func validatePayment(method string, sub *submission, nameRequired bool, d Details) error {
	if len(sub.lines) == 0 {
		return ErrEmptyCart
	}
	if nameRequired && d.CustomerName == "" {
		return ErrCustomerNameRequired
	}
	return validateMethod(method)
}

// createOrder is the new-order flow: Sale, then Comanda linked to it, then an
// optional tip record. A Comanda failure leaves the Sale in place.
func (r *Register) createOrder(ctx context.Context, s *submission, d Details, method string, cashierID int64, paid bool) (outcome, error) {
	b := s.breakdown
	flow := journal.FlowNewOrder
	if !paid {
		flow = journal.FlowSendUnpaid
	}

	kind, value, amount := discountFields(s.discount, b.DiscountAmount)
	req := backend.CreateSaleRequest{
		CustomerID:     d.CustomerID,
		CustomerName:   d.CustomerName,
		UsuarioID:      cashierID,
		Total:          wire(b.NetAfterDiscount),
		Method:         method,
		ServiceType:    d.ServiceType,
		Comments:       d.Comments,
		Lines:          saleLines(s.lines),
		DiscountKind:   kind,
		DiscountValue:  value,
		DiscountAmount: amount,
		Paid:           paid,
	}
	if b.MilkTotal.IsPositive() {
		req.MilkSurchargeTotal = wirePtr(b.MilkTotal)
	}

	sale, err := r.backend.CreateSale(ctx, req)
	if err != nil {
		return outcome{total: b}, err
	}
	saleID := sale.SaleID
	out := outcome{
		saleID: &saleID,
		total:  b,
		receipt: &Receipt{
			Flow:        flow,
			SaleID:      &saleID,
			DailyNumber: sale.DailyNumber,
			Method:      method,
			Paid:        paid,
			Totals:      b,
		},
	}

	comanda, err := r.backend.CreateComanda(ctx, backend.CreateComandaRequest{
		SaleID: saleID,
		Status: enum.ComandaStatusPending,
		Lines:  comandaLines(s.lines),
	})
	if err != nil {
		return out, &PartialCommitError{Flow: flow, SaleID: &saleID, Err: err}
	}
	comandaID := comanda.ComandaID
	out.comandaID = &comandaID
	out.receipt.ComandaID = &comandaID

	if paid && b.TipAmount.IsPositive() {
		pct, amt := tipFields(s.tip, b.TipAmount)
		if _, err := r.backend.CreateTip(ctx, backend.CreateTipRequest{
			ComandaID:  comandaID,
			SaleID:     saleID,
			Amount:     *amt,
			Percentage: pct,
			Method:     method,
		}); err != nil {
			r.logger.WithFields(logrus.Fields{
				"sale_id":    saleID,
				"comanda_id": comandaID,
				"error":      err.Error(),
			}).Warn("tip not recorded")
			out.receipt.Warnings = append(out.receipt.Warnings, "tip was not recorded: "+err.Error())
		}
	}

	out.events = append(out.events, events.Event{
		Kind:        events.KindTicketCreated,
		SaleID:      &saleID,
		ComandaID:   &comandaID,
		DailyNumber: sale.DailyNumber,
	})
	if paid {
		total := b.GrandTotal
		out.events = append(out.events, events.Event{
			Kind:        events.KindPaymentProcessed,
			SaleID:      &saleID,
			ComandaID:   &comandaID,
			DailyNumber: sale.DailyNumber,
			Total:       &total,
		})
	}
	out.reset = true
	return out, nil
}

// payPreorder re-syncs the cart to the pre-order, forcing in_register, then
// asks the backend to settle it. The backend creates the Sale and Comanda.
func (r *Register) payPreorder(ctx context.Context, s *submission, o *PreorderEdit, method string) (outcome, error) {
	b := s.breakdown
	id := o.Preorder.ID
	out := outcome{contextID: &id, total: b}

	if _, err := r.backend.UpdatePreorder(ctx, id, preorderUpdate(o.Details, s, enum.PreorderStatusInRegister)); err != nil {
		return out, err
	}

	pct, amt := tipFields(s.tip, b.TipAmount)
	resp, err := r.backend.ProcessPreorderPayment(ctx, id, backend.PreorderPaymentRequest{
		Method:        method,
		CustomerID:    o.CustomerID,
		TipPercentage: pct,
		TipAmount:     amt,
	})
	if err != nil {
		return out, &PartialCommitError{Flow: journal.FlowPreorderPay, PreorderID: &id, Err: err}
	}

	saleID := resp.SaleID
	comandaID := resp.ComandaID
	if comandaID == nil {
		comandaID = resp.TicketID
	}
	out.saleID = &saleID
	out.comandaID = comandaID
	out.receipt = &Receipt{
		Flow:        journal.FlowPreorderPay,
		SaleID:      &saleID,
		ComandaID:   resp.ComandaID,
		TicketID:    resp.TicketID,
		PreorderID:  &id,
		DailyNumber: resp.DailyNumber,
		Method:      method,
		Paid:        true,
		Totals:      b,
		Message:     resp.Message,
	}

	if comandaID != nil {
		out.events = append(out.events, events.Event{
			Kind:        events.KindTicketCreated,
			SaleID:      &saleID,
			ComandaID:   comandaID,
			PreorderID:  &id,
			DailyNumber: resp.DailyNumber,
		})
	}
	total := b.GrandTotal
	out.events = append(out.events, events.Event{
		Kind:        events.KindPaymentProcessed,
		SaleID:      &saleID,
		ComandaID:   comandaID,
		PreorderID:  &id,
		DailyNumber: resp.DailyNumber,
		Total:       &total,
	})
	out.reset = true
	return out, nil
}

// payTicket settles the sale behind a finished ticket. Lines are never sent
// again, so no second kitchen ticket is created.
func (r *Register) payTicket(ctx context.Context, s *submission, o *FinishedTicket, method string) (outcome, error) {
	b := s.breakdown
	saleID := o.Sale.ID
	comandaID := o.Comanda.ID
	out := outcome{contextID: &comandaID, saleID: &saleID, comandaID: &comandaID, total: b}

	kind, value, amount := discountFields(s.discount, b.DiscountAmount)
	pct, amt := tipFields(s.tip, b.TipAmount)
	sale, err := r.backend.ProcessSalePayment(ctx, saleID, backend.SalePaymentRequest{
		Method:         method,
		ServiceType:    o.ServiceType,
		DiscountKind:   kind,
		DiscountValue:  value,
		DiscountAmount: amount,
		TipPercentage:  pct,
		TipAmount:      amt,
	})
	if err != nil {
		return out, err
	}

	daily := o.Sale.DailyNumber
	if sale != nil && sale.DailyNumber != nil {
		daily = sale.DailyNumber
	}
	out.receipt = &Receipt{
		Flow:        journal.FlowTicketPay,
		SaleID:      &saleID,
		ComandaID:   &comandaID,
		DailyNumber: daily,
		Method:      method,
		Paid:        true,
		Totals:      b,
	}
	total := b.GrandTotal
	out.events = append(out.events, events.Event{
		Kind:        events.KindPaymentProcessed,
		SaleID:      &saleID,
		ComandaID:   &comandaID,
		DailyNumber: daily,
		Total:       &total,
	})
	out.reset = true
	out.apply = func() { r.forgetTicket(comandaID) }
	return out, nil
}

func preorderUpdate(d Details, s *submission, status string) backend.UpdatePreorderRequest {
	b := s.breakdown
	name, serviceType, comments := d.CustomerName, d.ServiceType, d.Comments
	return backend.UpdatePreorderRequest{
		CustomerName:         &name,
		ServiceType:          &serviceType,
		Comments:             &comments,
		Lines:                preorderLines(s.lines),
		MilkSurchargeTotal:   wirePtr(b.MilkTotal),
		ExtrasSurchargeTotal: wirePtr(b.ExtrasTotal.Add(b.ProteinTotal)),
		Status:               status,
	}
}

// beginSubmit captures the state and marks the register busy.
func (r *Register) beginSubmit() (*submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return nil, ErrSubmitInFlight
	}
	lines := r.cart.Snapshot()
	s := &submission{
		lines:     lines,
		discount:  r.calc.Discount(),
		tip:       r.calc.Tip(),
		breakdown: r.breakdownLocked(lines),
	}
	if r.order != nil {
		s.order = r.order.clone()
	}
	r.busy = true
	return s, nil
}

// abortSubmit releases the busy flag after a validation failure.
func (r *Register) abortSubmit() {
	r.mu.Lock()
	r.busy = false
	r.mu.Unlock()
}

// runSubmit executes a flow under the submit timeout, then journals it,
// counts it, and updates local state. On failure the context and cart are
// left as they were so the cashier can retry.
func (r *Register) runSubmit(ctx context.Context, flow string, sub *submission, run func(context.Context, *submission) (outcome, error)) (*Receipt, error) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, r.submitTimeout)
	out, err := run(runCtx, sub)
	cancel()

	var partial *PartialCommitError
	result := journal.OutcomeSucceeded
	switch {
	case errors.As(err, &partial):
		result = journal.OutcomePartial
	case err != nil:
		result = journal.OutcomeFailed
	}

	// The flow already happened remotely; record it even if the caller's
	// context is gone.
	bg := context.WithoutCancel(ctx)
	r.record(bg, flow, result, out, err)
	r.metrics.ObserveSubmission(flow, result, time.Since(start))

	log := r.logger.WithFields(logrus.Fields{
		"flow":        flow,
		"outcome":     result,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if out.saleID != nil {
		log = log.WithField("sale_id", *out.saleID)
	}
	if out.comandaID != nil {
		log = log.WithField("comanda_id", *out.comandaID)
	}

	var op *draftOp
	r.mu.Lock()
	r.busy = false
	if err != nil {
		r.lastErr = err.Error()
	} else {
		if out.apply != nil {
			out.apply()
		}
		if out.reset {
			r.resetLocked()
		}
		r.lastErr = ""
		op = r.draftOpLocked()
	}
	r.mu.Unlock()
	r.persistDraft(bg, op)

	if err != nil {
		log.WithField("error", err.Error()).Error("submission failed")
		return nil, err
	}
	log.Info("submission succeeded")

	for _, e := range out.events {
		r.events.Publish(bg, e)
	}
	r.refreshLists(bg)
	return out.receipt, nil
}

func (r *Register) record(ctx context.Context, flow, result string, out outcome, err error) {
	s := journal.Submission{
		RegisterID: r.registerID,
		Flow:       flow,
		ContextID:  out.contextID,
		SaleID:     out.saleID,
		ComandaID:  out.comandaID,
		Outcome:    result,
		Total:      out.total.GrandTotal,
	}
	if flow == journal.FlowSendUnpaid {
		s.Total = out.total.NetAfterDiscount
	}
	if err != nil {
		s.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if jerr := r.journal.Record(ctx, s); jerr != nil {
		r.logger.WithFields(logrus.Fields{
			"flow":  flow,
			"error": jerr.Error(),
		}).Warn("submission not journaled")
	}
}
