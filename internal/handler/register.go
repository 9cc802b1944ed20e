package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cafe-pos/register/internal/backend"
	"github.com/cafe-pos/register/internal/cart"
	"github.com/cafe-pos/register/internal/journal"
	"github.com/cafe-pos/register/internal/middleware"
	"github.com/cafe-pos/register/internal/modifier"
	"github.com/cafe-pos/register/internal/pricing"
	"github.com/cafe-pos/register/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RegisterServicer defines the reconciler methods the register API drives.
// Satisfied by *service.Register; narrow interface for testability.
type RegisterServicer interface {
	Snapshot() service.Snapshot
	AddItemWithNote(ctx context.Context, p cart.Product, mods modifier.Set, note string) (cart.Line, error)
	AddCustomItem(ctx context.Context, name string, price decimal.Decimal) (cart.Line, error)
	UpdateQuantity(ctx context.Context, lineID uuid.UUID, delta int) (bool, error)
	SetModifiers(ctx context.Context, lineID uuid.UUID, mods modifier.Set) (cart.Line, error)
	SetNote(ctx context.Context, lineID uuid.UUID, note string) error
	RemoveItem(ctx context.Context, lineID uuid.UUID) error
	ClearCart(ctx context.Context) error
	SetDetails(ctx context.Context, d service.Details) error
	SetServiceType(ctx context.Context, serviceType string) error
	SetDiscount(ctx context.Context, kind string, value decimal.Decimal) error
	ClearDiscount(ctx context.Context) error
	SetTip(ctx context.Context, kind string, value decimal.Decimal) error
	ClearTip(ctx context.Context) error
	Cancel(ctx context.Context) error
	SelectPreorder(ctx context.Context, id int64) error
	SelectTicket(ctx context.Context, comandaID int64) error
	SavePreorder(ctx context.Context) error
	Pay(ctx context.Context, req service.PayRequest) (*service.Receipt, error)
	SendUnpaid(ctx context.Context, cashierID int64) (*service.Receipt, error)
	RefreshPreorders(ctx context.Context) ([]backend.Preorder, error)
	RefreshTickets(ctx context.Context) ([]backend.Comanda, error)
	PendingPreorders() []backend.Preorder
	FinishedTickets() []backend.Comanda
}

// RegisterHandler serves the register terminal API.
type RegisterHandler struct {
	svc        RegisterServicer
	journal    journal.Recorder
	registerID string
	logger     logrus.FieldLogger
}

func NewRegisterHandler(svc RegisterServicer, rec journal.Recorder, registerID string, logger logrus.FieldLogger) *RegisterHandler {
	if rec == nil {
		rec = journal.NopRecorder{}
	}
	return &RegisterHandler{svc: svc, journal: rec, registerID: registerID, logger: logger.WithField("component", "handler")}
}

// RegisterRoutes registers register endpoints on the given Chi router.
// Expected to be mounted at /register behind Authenticate.
func (h *RegisterHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Get("/catalog", h.Catalog)

	r.Post("/items", h.AddItem)
	r.Post("/custom-items", h.AddCustomItem)
	r.Delete("/items", h.ClearCart)
	r.Patch("/items/{lineID}", h.UpdateQuantity)
	r.Put("/items/{lineID}/modifiers", h.SetModifiers)
	r.Put("/items/{lineID}/note", h.SetNote)
	r.Delete("/items/{lineID}", h.RemoveItem)

	r.Put("/details", h.SetDetails)
	r.Put("/service-type", h.SetServiceType)
	r.Put("/discount", h.SetDiscount)
	r.Delete("/discount", h.ClearDiscount)
	r.Put("/tip", h.SetTip)
	r.Delete("/tip", h.ClearTip)
	r.Post("/cancel", h.Cancel)

	r.Get("/preorders", h.ListPreorders)
	r.Post("/preorders/{id}/select", h.SelectPreorder)
	r.Post("/preorder/save", h.SavePreorder)
	r.Get("/tickets", h.ListTickets)
	r.Post("/tickets/{id}/select", h.SelectTicket)

	r.Post("/pay", h.Pay)
	r.Post("/send-unpaid", h.SendUnpaid)
	r.Get("/submissions", h.Submissions)
}

// --- Request / Response types ---

type addItemRequest struct {
	ProductID int64        `json:"product_id"`
	Name      string       `json:"name"`
	Price     string       `json:"price"`
	Modifiers modifier.Set `json:"modifiers"`
	Note      string       `json:"note"`
}

type customItemRequest struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

type quantityRequest struct {
	Delta int `json:"delta"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type detailsRequest struct {
	CustomerName string `json:"customer_name"`
	CustomerID   *int64 `json:"customer_id"`
	ServiceType  string `json:"service_type"`
	Comments     string `json:"comments"`
}

type serviceTypeRequest struct {
	ServiceType string `json:"service_type"`
}

type adjustmentRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type payRequest struct {
	Method string `json:"method"`
}

type totalsResponse struct {
	Subtotal         string `json:"subtotal"`
	MilkTotal        string `json:"milk_total"`
	ExtrasTotal      string `json:"extras_total"`
	ProteinTotal     string `json:"protein_total"`
	ModifierTotal    string `json:"modifier_total"`
	Gross            string `json:"gross"`
	DiscountAmount   string `json:"discount_amount"`
	NetAfterDiscount string `json:"net_after_discount"`
	TipAmount        string `json:"tip_amount"`
	GrandTotal       string `json:"grand_total"`
}

type lineResponse struct {
	ID            uuid.UUID    `json:"id"`
	ProductID     *int64       `json:"product_id"`
	Name          string       `json:"name"`
	UnitPrice     string       `json:"unit_price"`
	Quantity      int          `json:"quantity"`
	Modifiers     modifier.Set `json:"modifiers"`
	Note          string       `json:"note"`
	Observations  string       `json:"observations"`
	UnitSurcharge string       `json:"unit_surcharge"`
	Subtotal      string       `json:"subtotal"`
}

type adjustmentResponse struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type contextResponse struct {
	CustomerName   string `json:"customer_name"`
	CustomerID     *int64 `json:"customer_id"`
	ServiceType    string `json:"service_type"`
	Comments       string `json:"comments"`
	PreorderID     *int64 `json:"preorder_id,omitempty"`
	PreorderStatus string `json:"preorder_status,omitempty"`
	ComandaID      *int64 `json:"comanda_id,omitempty"`
	SaleID         *int64 `json:"sale_id,omitempty"`
	DailyNumber    *int   `json:"daily_number,omitempty"`
	Warning        string `json:"warning,omitempty"`
}

type snapshotResponse struct {
	State    service.State       `json:"state"`
	Context  *contextResponse    `json:"context"`
	Lines    []lineResponse      `json:"lines"`
	Totals   totalsResponse      `json:"totals"`
	Discount *adjustmentResponse `json:"discount"`
	Tip      *adjustmentResponse `json:"tip"`
	Error    string              `json:"error,omitempty"`
}

type receiptResponse struct {
	Flow        string         `json:"flow"`
	SaleID      *int64         `json:"sale_id,omitempty"`
	ComandaID   *int64         `json:"comanda_id,omitempty"`
	TicketID    *int64         `json:"ticket_id,omitempty"`
	PreorderID  *int64         `json:"preorder_id,omitempty"`
	DailyNumber *int           `json:"daily_number,omitempty"`
	Method      string         `json:"method"`
	Paid        bool           `json:"paid"`
	Totals      totalsResponse `json:"totals"`
	Message     string         `json:"message,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
}

type preorderResponse struct {
	ID           int64     `json:"id"`
	Status       string    `json:"status"`
	Origin       string    `json:"origin"`
	CustomerName string    `json:"customer_name"`
	ServiceType  string    `json:"service_type"`
	Lines        int       `json:"lines"`
	Total        string    `json:"total"`
	CreatedAt    time.Time `json:"created_at"`
}

type ticketResponse struct {
	ComandaID    int64     `json:"comanda_id"`
	SaleID       int64     `json:"sale_id"`
	DailyNumber  *int      `json:"daily_number"`
	CustomerName string    `json:"customer_name"`
	ServiceType  string    `json:"service_type"`
	Lines        int       `json:"lines"`
	Total        string    `json:"total"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type catalogOptionResponse struct {
	Family    string `json:"family"`
	Value     string `json:"value"`
	Surcharge string `json:"surcharge"`
}

func toTotalsResponse(b pricing.Breakdown) totalsResponse {
	return totalsResponse{
		Subtotal:         pricing.Money(b.Subtotal),
		MilkTotal:        pricing.Money(b.MilkTotal),
		ExtrasTotal:      pricing.Money(b.ExtrasTotal),
		ProteinTotal:     pricing.Money(b.ProteinTotal),
		ModifierTotal:    pricing.Money(b.ModifierTotal),
		Gross:            pricing.Money(b.Gross),
		DiscountAmount:   pricing.Money(b.DiscountAmount),
		NetAfterDiscount: pricing.Money(b.NetAfterDiscount),
		TipAmount:        pricing.Money(b.TipAmount),
		GrandTotal:       pricing.Money(b.GrandTotal),
	}
}

func toContextResponse(o service.OrderContext) *contextResponse {
	switch c := o.(type) {
	case *service.NewOrder:
		return &contextResponse{
			CustomerName: c.CustomerName,
			CustomerID:   c.CustomerID,
			ServiceType:  c.ServiceType,
			Comments:     c.Comments,
		}
	case *service.PreorderEdit:
		id := c.Preorder.ID
		return &contextResponse{
			CustomerName:   c.CustomerName,
			CustomerID:     c.CustomerID,
			ServiceType:    c.ServiceType,
			Comments:       c.Comments,
			PreorderID:     &id,
			PreorderStatus: c.Preorder.Status,
			Warning:        c.Warning,
		}
	case *service.FinishedTicket:
		comandaID, saleID := c.Comanda.ID, c.Sale.ID
		return &contextResponse{
			CustomerName: c.Sale.CustomerName,
			CustomerID:   c.Sale.CustomerID,
			ServiceType:  c.ServiceType,
			Comments:     c.Sale.Comments,
			ComandaID:    &comandaID,
			SaleID:       &saleID,
			DailyNumber:  c.Sale.DailyNumber,
		}
	}
	return nil
}

func toSnapshotResponse(s service.Snapshot) snapshotResponse {
	lines := make([]lineResponse, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, lineResponse{
			ID:            l.ID,
			ProductID:     l.ProductID,
			Name:          l.Name,
			UnitPrice:     pricing.Money(l.UnitPrice),
			Quantity:      l.Quantity,
			Modifiers:     l.Modifiers,
			Note:          l.Note,
			Observations:  l.Observations,
			UnitSurcharge: pricing.Money(l.UnitSurcharge),
			Subtotal:      pricing.Money(l.Subtotal),
		})
	}
	resp := snapshotResponse{
		State:   s.State,
		Context: toContextResponse(s.Context),
		Lines:   lines,
		Totals:  toTotalsResponse(s.Breakdown),
		Error:   s.Error,
	}
	if !s.Discount.IsZero() {
		resp.Discount = &adjustmentResponse{Kind: s.Discount.Kind, Value: s.Discount.Value.String()}
	}
	if !s.Tip.IsZero() {
		resp.Tip = &adjustmentResponse{Kind: s.Tip.Kind, Value: s.Tip.Value.String()}
	}
	return resp
}

func toReceiptResponse(rc *service.Receipt) receiptResponse {
	return receiptResponse{
		Flow:        rc.Flow,
		SaleID:      rc.SaleID,
		ComandaID:   rc.ComandaID,
		TicketID:    rc.TicketID,
		PreorderID:  rc.PreorderID,
		DailyNumber: rc.DailyNumber,
		Method:      rc.Method,
		Paid:        rc.Paid,
		Totals:      toTotalsResponse(rc.Totals),
		Message:     rc.Message,
		Warnings:    rc.Warnings,
	}
}

// --- Handlers ---

// Get handles GET /register.
func (h *RegisterHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSnapshotResponse(h.svc.Snapshot()))
}

// Catalog handles GET /register/catalog.
func (h *RegisterHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	opts := modifier.Catalog()
	resp := make([]catalogOptionResponse, 0, len(opts))
	for _, o := range opts {
		resp = append(resp, catalogOptionResponse{Family: o.Family, Value: o.Value, Surcharge: pricing.Money(o.Surcharge)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// respond writes the register state after a successful mutation, or the
// mapped error.
func (h *RegisterHandler) respond(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(h.svc.Snapshot()))
}

// AddItem handles POST /register/items.
func (h *RegisterHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "product_id is required"})
		return
	}
	price, ok := parseAmount(w, "price", req.Price)
	if !ok {
		return
	}

	_, err := h.svc.AddItemWithNote(r.Context(), cart.Product{ID: req.ProductID, Name: req.Name, Price: price}, req.Modifiers, req.Note)
	h.respond(w, err)
}

// AddCustomItem handles POST /register/custom-items.
func (h *RegisterHandler) AddCustomItem(w http.ResponseWriter, r *http.Request) {
	var req customItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	price, ok := parseAmount(w, "price", req.Price)
	if !ok {
		return
	}
	_, err := h.svc.AddCustomItem(r.Context(), req.Name, price)
	h.respond(w, err)
}

// UpdateQuantity handles PATCH /register/items/{lineID}.
func (h *RegisterHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	lineID, ok := parseLineID(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Delta == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "delta must not be 0"})
		return
	}
	_, err := h.svc.UpdateQuantity(r.Context(), lineID, req.Delta)
	h.respond(w, err)
}

// SetModifiers handles PUT /register/items/{lineID}/modifiers.
func (h *RegisterHandler) SetModifiers(w http.ResponseWriter, r *http.Request) {
	lineID, ok := parseLineID(w, r)
	if !ok {
		return
	}
	var mods modifier.Set
	if !decodeBody(w, r, &mods) {
		return
	}
	_, err := h.svc.SetModifiers(r.Context(), lineID, mods)
	h.respond(w, err)
}

// SetNote handles PUT /register/items/{lineID}/note.
func (h *RegisterHandler) SetNote(w http.ResponseWriter, r *http.Request) {
	lineID, ok := parseLineID(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, h.svc.SetNote(r.Context(), lineID, req.Note))
}

// RemoveItem handles DELETE /register/items/{lineID}.
func (h *RegisterHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	lineID, ok := parseLineID(w, r)
	if !ok {
		return
	}
	h.respond(w, h.svc.RemoveItem(r.Context(), lineID))
}

// ClearCart handles DELETE /register/items.
func (h *RegisterHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.svc.ClearCart(r.Context()))
}

// SetDetails handles PUT /register/details.
func (h *RegisterHandler) SetDetails(w http.ResponseWriter, r *http.Request) {
	var req detailsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, h.svc.SetDetails(r.Context(), service.Details{
		CustomerName: req.CustomerName,
		CustomerID:   req.CustomerID,
		ServiceType:  req.ServiceType,
		Comments:     req.Comments,
	}))
}

// SetServiceType handles PUT /register/service-type.
func (h *RegisterHandler) SetServiceType(w http.ResponseWriter, r *http.Request) {
	var req serviceTypeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, h.svc.SetServiceType(r.Context(), req.ServiceType))
}

// SetDiscount handles PUT /register/discount.
func (h *RegisterHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	value, ok := parseAmount(w, "value", req.Value)
	if !ok {
		return
	}
	h.respond(w, h.svc.SetDiscount(r.Context(), req.Kind, value))
}

// ClearDiscount handles DELETE /register/discount.
func (h *RegisterHandler) ClearDiscount(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.svc.ClearDiscount(r.Context()))
}

// SetTip handles PUT /register/tip.
func (h *RegisterHandler) SetTip(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	value, ok := parseAmount(w, "value", req.Value)
	if !ok {
		return
	}
	h.respond(w, h.svc.SetTip(r.Context(), req.Kind, value))
}

// ClearTip handles DELETE /register/tip.
func (h *RegisterHandler) ClearTip(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.svc.ClearTip(r.Context()))
}

// Cancel handles POST /register/cancel.
func (h *RegisterHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.svc.Cancel(r.Context()))
}

// ListPreorders handles GET /register/preorders. ?refresh=true polls the
// backend instead of returning the last polled list.
func (h *RegisterHandler) ListPreorders(w http.ResponseWriter, r *http.Request) {
	list := h.svc.PendingPreorders()
	if r.URL.Query().Get("refresh") == "true" {
		var err error
		if list, err = h.svc.RefreshPreorders(r.Context()); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	resp := make([]preorderResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, preorderResponse{
			ID:           p.ID,
			Status:       p.Status,
			Origin:       p.Origin,
			CustomerName: p.CustomerName,
			ServiceType:  p.ServiceType,
			Lines:        len(p.Lines),
			Total:        pricing.Money(p.Total),
			CreatedAt:    p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// SelectPreorder handles POST /register/preorders/{id}/select.
func (h *RegisterHandler) SelectPreorder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	h.respond(w, h.svc.SelectPreorder(r.Context(), id))
}

// SavePreorder handles POST /register/preorder/save.
func (h *RegisterHandler) SavePreorder(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.svc.SavePreorder(r.Context()))
}

// ListTickets handles GET /register/tickets. ?refresh=true polls the backend.
func (h *RegisterHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	list := h.svc.FinishedTickets()
	if r.URL.Query().Get("refresh") == "true" {
		var err error
		if list, err = h.svc.RefreshTickets(r.Context()); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	resp := make([]ticketResponse, 0, len(list))
	for _, c := range list {
		t := ticketResponse{
			ComandaID: c.ID,
			SaleID:    c.SaleID,
			Lines:     len(c.Lines),
			UpdatedAt: c.UpdatedAt,
		}
		if c.Sale != nil {
			t.DailyNumber = c.Sale.DailyNumber
			t.CustomerName = c.Sale.CustomerName
			t.ServiceType = c.Sale.ServiceType
			t.Total = pricing.Money(c.Sale.Total)
		}
		resp = append(resp, t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SelectTicket handles POST /register/tickets/{id}/select.
func (h *RegisterHandler) SelectTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	h.respond(w, h.svc.SelectTicket(r.Context(), id))
}

// Pay handles POST /register/pay.
func (h *RegisterHandler) Pay(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}
	var req payRequest
	if !decodeBody(w, r, &req) {
		return
	}

	receipt, err := h.svc.Pay(r.Context(), service.PayRequest{Method: req.Method, CashierID: claims.UserID})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptResponse(receipt))
}

// SendUnpaid handles POST /register/send-unpaid.
func (h *RegisterHandler) SendUnpaid(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	receipt, err := h.svc.SendUnpaid(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptResponse(receipt))
}

// Submissions handles GET /register/submissions.
func (h *RegisterHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := h.journal.Recent(r.Context(), h.registerID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if rows == nil {
		rows = []journal.Submission{}
	}
	writeJSON(w, http.StatusOK, rows)
}
