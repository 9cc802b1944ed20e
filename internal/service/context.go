package service

import (
	"github.com/cafe-pos/register/internal/backend"
)

// State is the reconciler state as seen by the UI.
type State string

const (
	StateIdle           State = "idle"
	StateNewOrder       State = "new_order"
	StatePreorderEdit   State = "preorder_edit"
	StateFinishedTicket State = "finished_unpaid_ticket"
	StateSubmitting     State = "submitting"
	StateError          State = "error"
)

// OrderContext is the order the register is working on: exactly one of
// *NewOrder, *PreorderEdit or *FinishedTicket. A nil context means Idle.
type OrderContext interface {
	State() State
	clone() OrderContext
}

// Details are the customer-facing fields of an order.
type Details struct {
	CustomerName string `json:"customer_name"`
	CustomerID   *int64 `json:"customer_id,omitempty"`
	ServiceType  string `json:"service_type"`
	Comments     string `json:"comments"`
}

func (d Details) clone() Details {
	if d.CustomerID != nil {
		id := *d.CustomerID
		d.CustomerID = &id
	}
	return d
}

// NewOrder is an order with no backing remote resource yet.
type NewOrder struct {
	Details
}

func (*NewOrder) State() State { return StateNewOrder }

func (n *NewOrder) clone() OrderContext {
	return &NewOrder{Details: n.Details.clone()}
}

// PreorderEdit wraps a remote pre-order opened at the register.
type PreorderEdit struct {
	Details
	Preorder backend.Preorder `json:"preorder"`
	// Warning is set when the pre-order could not be moved to in_register
	// on selection; it is shown but does not block editing.
	Warning string `json:"warning,omitempty"`
}

func (*PreorderEdit) State() State { return StatePreorderEdit }

func (p *PreorderEdit) clone() OrderContext {
	c := *p
	c.Details = p.Details.clone()
	return &c
}

// FinishedTicket wraps a kitchen ticket that is finished but unpaid. Its
// lines are informational; only payment fields can change.
type FinishedTicket struct {
	Comanda     backend.Comanda `json:"comanda"`
	Sale        backend.Sale    `json:"sale"`
	ServiceType string          `json:"service_type"`
}

func (*FinishedTicket) State() State { return StateFinishedTicket }

func (f *FinishedTicket) clone() OrderContext {
	c := *f
	return &c
}
