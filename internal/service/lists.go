package service

import (
	"context"

	"github.com/cafe-pos/register/internal/backend"
	"github.com/cafe-pos/register/internal/events"
	"github.com/sirupsen/logrus"
)

// RefreshPreorders polls the pre-orders the register may open. A poll that
// finishes after a newer one has stored its list is discarded.
func (r *Register) RefreshPreorders(ctx context.Context) ([]backend.Preorder, error) {
	r.listMu.RLock()
	gen := r.preorderGen
	r.listMu.RUnlock()

	list, err := r.backend.ListPendingPreorders(ctx)
	r.metrics.ObservePoll("preorders", len(list), err)
	if err != nil {
		r.logger.WithField("error", err.Error()).Warn("pre-order refresh failed")
		return nil, err
	}

	r.listMu.Lock()
	if r.preorderGen != gen {
		current := append([]backend.Preorder(nil), r.preorders...)
		r.listMu.Unlock()
		r.logger.Debug("stale pre-order poll dropped")
		return current, nil
	}
	r.preorderGen++
	r.preorders = list
	r.listMu.Unlock()

	r.logger.WithField("count", len(list)).Debug("pre-orders refreshed")
	return append([]backend.Preorder(nil), list...), nil
}

// RefreshTickets polls finished-unpaid tickets. Tickets that were not in the
// previous successful poll are announced as ready to pay; the first poll
// only establishes the baseline. A poll that finishes after a newer poll or
// a local payment changed the list is discarded, so a paid ticket cannot
// come back from a response fetched before it was paid.
func (r *Register) RefreshTickets(ctx context.Context) ([]backend.Comanda, error) {
	r.listMu.RLock()
	gen := r.ticketGen
	r.listMu.RUnlock()

	list, err := r.backend.ListFinishedUnpaidTickets(ctx)
	r.metrics.ObservePoll("tickets", len(list), err)
	if err != nil {
		r.logger.WithField("error", err.Error()).Warn("ticket refresh failed")
		return nil, err
	}

	var fresh []backend.Comanda
	seen := make(map[int64]bool, len(list))

	r.listMu.Lock()
	if r.ticketGen != gen {
		current := append([]backend.Comanda(nil), r.tickets...)
		r.listMu.Unlock()
		r.logger.Debug("stale ticket poll dropped")
		return current, nil
	}
	for _, c := range list {
		seen[c.ID] = true
		if r.seenTickets != nil && !r.seenTickets[c.ID] {
			fresh = append(fresh, c)
		}
	}
	r.ticketGen++
	r.seenTickets = seen
	r.tickets = list
	r.listMu.Unlock()

	for _, c := range fresh {
		id := c.ID
		e := events.Event{Kind: events.KindTicketReadyToPay, ComandaID: &id}
		if c.Sale != nil {
			saleID := c.Sale.ID
			total := c.Sale.Total
			e.SaleID = &saleID
			e.DailyNumber = c.Sale.DailyNumber
			e.Total = &total
		}
		r.events.Publish(ctx, e)
	}

	r.logger.WithFields(logrus.Fields{"count": len(list), "new": len(fresh)}).Debug("tickets refreshed")
	return append([]backend.Comanda(nil), list...), nil
}

// PendingPreorders returns the pre-orders from the last successful poll.
func (r *Register) PendingPreorders() []backend.Preorder {
	r.listMu.RLock()
	defer r.listMu.RUnlock()
	return append([]backend.Preorder(nil), r.preorders...)
}

// FinishedTickets returns the tickets from the last successful poll.
func (r *Register) FinishedTickets() []backend.Comanda {
	r.listMu.RLock()
	defer r.listMu.RUnlock()
	return append([]backend.Comanda(nil), r.tickets...)
}

// refreshLists re-fetches both lists after a local mutation. Failures are
// logged only; the pollers will catch up.
func (r *Register) refreshLists(ctx context.Context) {
	_, _ = r.RefreshPreorders(ctx)
	_, _ = r.RefreshTickets(ctx)
}

func (r *Register) findTicket(comandaID int64) (backend.Comanda, bool) {
	r.listMu.RLock()
	defer r.listMu.RUnlock()
	for _, c := range r.tickets {
		if c.ID == comandaID {
			return c, true
		}
	}
	return backend.Comanda{}, false
}

// forgetTicket drops a paid ticket from the cached list before the next poll.
// It stays in the seen set so it is not announced again, and polls already in
// flight are invalidated.
func (r *Register) forgetTicket(comandaID int64) {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	r.ticketGen++
	out := r.tickets[:0]
	for _, c := range r.tickets {
		if c.ID != comandaID {
			out = append(out, c)
		}
	}
	r.tickets = out
}
