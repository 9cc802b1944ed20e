package service

import (
	"context"

	"github.com/cafe-pos/register/internal/backend"
	"github.com/cafe-pos/register/internal/enum"
	"github.com/cafe-pos/register/internal/pricing"
	"github.com/sirupsen/logrus"
)

// SelectPreorder opens a pre-order for editing, replacing whatever the
// register was working on. A pre-order still in "preorder" (or paid from the
// system) is first moved to in_register; if that update fails the pre-order
// is still loaded and the context carries a warning.
func (r *Register) SelectPreorder(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	if err := r.beginRemote(); err != nil {
		return err
	}

	p, warning, err := r.fetchPreorder(ctx, id)
	if err != nil {
		r.endRemote(err)
		return err
	}

	r.mu.Lock()
	r.busy = false
	r.resetLocked()
	r.order = &PreorderEdit{
		Details: Details{
			CustomerName: p.CustomerName,
			CustomerID:   p.CustomerID,
			ServiceType:  p.ServiceType,
			Comments:     p.Comments,
		},
		Preorder: *p,
		Warning:  warning,
	}
	r.cart.Load(linesFromPreorder(p.Lines))
	n := r.cart.Len()
	op := r.draftOpLocked()
	r.mu.Unlock()
	r.persistDraft(ctx, op)

	r.logger.WithFields(logrus.Fields{
		"preorder_id": id,
		"status":      p.Status,
		"lines":       n,
	}).Info("pre-order selected")
	return nil
}

func (r *Register) fetchPreorder(ctx context.Context, id int64) (*backend.Preorder, string, error) {
	p, err := r.backend.GetPreorder(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !p.Enterable() {
		return nil, "", ErrNotEditable
	}
	if !p.NeedsRegisterTransition() {
		return p, "", nil
	}

	updated, err := r.backend.UpdatePreorder(ctx, id, backend.UpdatePreorderRequest{
		Status: enum.PreorderStatusInRegister,
	})
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"preorder_id": id,
			"error":       err.Error(),
		}).Warn("pre-order not moved to in_register")
		return p, "pre-order could not be moved to the register: " + err.Error(), nil
	}
	if updated == nil || updated.ID != id {
		p.Status = enum.PreorderStatusInRegister
		return p, "", nil
	}
	if len(updated.Lines) == 0 {
		updated.Lines = p.Lines
	}
	return updated, "", nil
}

// SelectTicket opens a finished-unpaid ticket for payment. Its lines are
// loaded for display only. The ticket is looked up in the last polled list,
// refreshing it once if the ticket is not there.
func (r *Register) SelectTicket(ctx context.Context, comandaID int64) error {
	if comandaID <= 0 {
		return ErrInvalidID
	}
	if err := r.beginRemote(); err != nil {
		return err
	}

	c, ok := r.findTicket(comandaID)
	if !ok {
		if _, err := r.RefreshTickets(ctx); err != nil {
			r.endRemote(err)
			return err
		}
		c, ok = r.findTicket(comandaID)
	}
	if !ok || c.Sale == nil {
		r.endRemote(nil)
		return ErrTicketNotFound
	}

	lines := linesFromSale(c.Sale.Lines)
	if len(lines) == 0 {
		lines = linesFromComanda(c.Lines)
	}
	serviceType := c.Sale.ServiceType
	if !enum.IsServiceType(serviceType) {
		serviceType = enum.ServiceTypeDineIn
	}

	r.mu.Lock()
	r.busy = false
	r.resetLocked()
	r.order = &FinishedTicket{
		Comanda:     c,
		Sale:        *c.Sale,
		ServiceType: serviceType,
	}
	r.cart.Load(lines)
	if c.Sale.DiscountKind != "" && c.Sale.DiscountValue != nil {
		r.calc.Restore(pricing.Discount{Kind: c.Sale.DiscountKind, Value: *c.Sale.DiscountValue}, pricing.Tip{})
	}
	op := r.draftOpLocked()
	r.mu.Unlock()
	r.persistDraft(ctx, op)

	r.logger.WithFields(logrus.Fields{
		"comanda_id": comandaID,
		"sale_id":    c.Sale.ID,
	}).Info("ticket selected")
	return nil
}

// beginRemote marks the register busy for a selection.
func (r *Register) beginRemote() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return ErrSubmitInFlight
	}
	r.busy = true
	return nil
}

// endRemote releases the busy flag after a failed selection. The previous
// context is kept.
func (r *Register) endRemote(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = false
	if err != nil && !IsValidation(err) && !IsState(err) {
		r.lastErr = err.Error()
	}
}
