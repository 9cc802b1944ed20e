package backend

import (
	"time"

	"github.com/cafe-pos/register/internal/enum"
	"github.com/shopspring/decimal"
)

// SaleLine is one line of a sale. UnitPrice is the base price; Subtotal
// includes modifier surcharges.
type SaleLine struct {
	ProductID    *int64          `json:"productId"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	CustomName   string          `json:"customName,omitempty"`
	Observations string          `json:"observations,omitempty"`
}

// CreateSaleRequest is the CreateSale payload.
type CreateSaleRequest struct {
	CustomerID         *int64           `json:"customerId,omitempty"`
	CustomerName       string           `json:"customerName,omitempty"`
	UsuarioID          int64            `json:"usuarioId"`
	Total              decimal.Decimal  `json:"total"`
	Method             string           `json:"method"`
	ServiceType        string           `json:"serviceType,omitempty"`
	Comments           string           `json:"comments,omitempty"`
	MilkSurchargeTotal *decimal.Decimal `json:"milkSurchargeTotal,omitempty"`
	Lines              []SaleLine       `json:"lines"`
	DiscountKind       string           `json:"discountKind,omitempty"`
	DiscountValue      *decimal.Decimal `json:"discountValue,omitempty"`
	DiscountAmount     *decimal.Decimal `json:"discountAmount,omitempty"`
	Paid               bool             `json:"paid"`
}

// CreateSaleResponse carries the id assigned by the backend.
type CreateSaleResponse struct {
	SaleID      int64 `json:"saleId"`
	DailyNumber *int  `json:"numeroPedidoDia,omitempty"`
}

// ComandaLine is one line of a kitchen ticket.
type ComandaLine struct {
	ProductID    *int64 `json:"productId"`
	Quantity     int    `json:"quantity"`
	CustomName   string `json:"customName,omitempty"`
	Observations string `json:"observations,omitempty"`
	PrepStyle    string `json:"prepStyle,omitempty"`
}

// CreateComandaRequest is the CreateComanda payload.
type CreateComandaRequest struct {
	SaleID int64         `json:"saleId"`
	Status string        `json:"status"`
	Lines  []ComandaLine `json:"lines"`
}

// CreateComandaResponse carries the id assigned by the backend.
type CreateComandaResponse struct {
	ComandaID int64 `json:"comandaId"`
}

// CreateTipRequest registers a tip against a kitchen ticket.
type CreateTipRequest struct {
	ComandaID  int64            `json:"comandaId"`
	SaleID     int64            `json:"saleId"`
	Amount     decimal.Decimal  `json:"amount"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
	Method     string           `json:"method,omitempty"`
}

// CreateTipResponse carries the id of the tip record.
type CreateTipResponse struct {
	TipID int64 `json:"tipId"`
}

// PreorderLine is one line of a pre-order.
type PreorderLine struct {
	ProductID    *int64          `json:"productId"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Observations string          `json:"observations,omitempty"`
}

// Preorder is a draft order owned by the backend.
type Preorder struct {
	ID                   int64           `json:"id"`
	Status               string          `json:"status"`
	Origin               string          `json:"origin"`
	CustomerName         string          `json:"customerName"`
	CustomerID           *int64          `json:"customerId,omitempty"`
	ServiceType          string          `json:"serviceType"`
	Comments             string          `json:"comments"`
	Lines                []PreorderLine  `json:"lines"`
	Total                decimal.Decimal `json:"total"`
	MilkSurchargeTotal   decimal.Decimal `json:"milkSurchargeTotal"`
	ExtrasSurchargeTotal decimal.Decimal `json:"extrasSurchargeTotal"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// Enterable reports whether the register may open the pre-order for editing.
func (p Preorder) Enterable() bool {
	switch p.Status {
	case enum.PreorderStatusPreorder, enum.PreorderStatusInRegister:
		return true
	case enum.PreorderStatusPaid:
		return p.Origin == enum.PreorderOriginSystem
	}
	return false
}

// NeedsRegisterTransition reports whether opening the pre-order must first
// move it to in_register.
func (p Preorder) NeedsRegisterTransition() bool {
	return p.Status == enum.PreorderStatusPreorder ||
		(p.Status == enum.PreorderStatusPaid && p.Origin == enum.PreorderOriginSystem)
}

// UpdatePreorderRequest is the UpdatePreorder payload. Nil fields are left
// untouched by the backend.
type UpdatePreorderRequest struct {
	CustomerName         *string          `json:"customerName,omitempty"`
	ServiceType          *string          `json:"serviceType,omitempty"`
	Comments             *string          `json:"comments,omitempty"`
	Lines                []PreorderLine   `json:"lines,omitempty"`
	MilkSurchargeTotal   *decimal.Decimal `json:"milkSurchargeTotal,omitempty"`
	ExtrasSurchargeTotal *decimal.Decimal `json:"extrasSurchargeTotal,omitempty"`
	Status               string           `json:"status,omitempty"`
	Origin               string           `json:"origin,omitempty"`
}

// PreorderPaymentRequest is the ProcessPreorderPayment payload.
type PreorderPaymentRequest struct {
	Method        string           `json:"method"`
	CustomerID    *int64           `json:"customerId,omitempty"`
	TipPercentage *decimal.Decimal `json:"tipPercentage,omitempty"`
	TipAmount     *decimal.Decimal `json:"tipAmount,omitempty"`
}

// PreorderPaymentResponse describes the sale the backend created for a paid
// pre-order.
type PreorderPaymentResponse struct {
	Message     string `json:"message"`
	SaleID      int64  `json:"saleId"`
	ComandaID   *int64 `json:"comandaId,omitempty"`
	TicketID    *int64 `json:"ticketId,omitempty"`
	DailyNumber *int   `json:"numeroPedidoDia,omitempty"`
}

// SalePaymentRequest is the ProcessSalePayment payload.
type SalePaymentRequest struct {
	Method         string           `json:"method"`
	ServiceType    string           `json:"serviceType,omitempty"`
	DiscountKind   string           `json:"discountKind,omitempty"`
	DiscountValue  *decimal.Decimal `json:"discountValue,omitempty"`
	DiscountAmount *decimal.Decimal `json:"discountAmount,omitempty"`
	TipPercentage  *decimal.Decimal `json:"tipPercentage,omitempty"`
	TipAmount      *decimal.Decimal `json:"tipAmount,omitempty"`
}

// Sale is a sale owned by the backend.
type Sale struct {
	ID             int64            `json:"id"`
	Paid           bool             `json:"paid"`
	Method         string           `json:"method"`
	Total          decimal.Decimal  `json:"total"`
	CustomerName   string           `json:"customerName"`
	CustomerID     *int64           `json:"customerId,omitempty"`
	ServiceType    string           `json:"serviceType"`
	Comments       string           `json:"comments"`
	Lines          []SaleLine       `json:"lines"`
	DiscountKind   string           `json:"discountKind,omitempty"`
	DiscountValue  *decimal.Decimal `json:"discountValue,omitempty"`
	DiscountAmount *decimal.Decimal `json:"discountAmount,omitempty"`
	DailyNumber    *int             `json:"numeroPedidoDia,omitempty"`
}

// Comanda is a kitchen ticket, with its sale embedded when the backend
// includes it.
type Comanda struct {
	ID        int64         `json:"id"`
	SaleID    int64         `json:"saleId"`
	Status    string        `json:"status"`
	Lines     []ComandaLine `json:"lines"`
	Sale      *Sale         `json:"sale,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// FinishedUnpaid reports whether the kitchen is done with the ticket but its
// sale is still open.
func (c Comanda) FinishedUnpaid() bool {
	return c.Status == enum.ComandaStatusFinished && c.Sale != nil && !c.Sale.Paid
}

// PendingPreorders keeps the pre-orders the register may open.
func PendingPreorders(all []Preorder) []Preorder {
	out := make([]Preorder, 0, len(all))
	for _, p := range all {
		if p.Enterable() {
			out = append(out, p)
		}
	}
	return out
}

// FinishedUnpaid keeps the tickets waiting for payment.
func FinishedUnpaid(all []Comanda) []Comanda {
	out := make([]Comanda, 0, len(all))
	for _, c := range all {
		if c.FinishedUnpaid() {
			out = append(out, c)
		}
	}
	return out
}
