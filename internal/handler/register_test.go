package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cafe-pos/register/internal/auth"
	"github.com/cafe-pos/register/internal/backend"
	"github.com/cafe-pos/register/internal/cart"
	"github.com/cafe-pos/register/internal/enum"
	"github.com/cafe-pos/register/internal/handler"
	"github.com/cafe-pos/register/internal/journal"
	"github.com/cafe-pos/register/internal/middleware"
	"github.com/cafe-pos/register/internal/modifier"
	"github.com/cafe-pos/register/internal/pricing"
	"github.com/cafe-pos/register/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
)

const testJWTSecret = "test-secret-key-for-handler-tests"

// --- Mock RegisterServicer ---

type mockRegister struct {
	snapshot service.Snapshot

	addItemFn          func(ctx context.Context, p cart.Product, mods modifier.Set, note string) (cart.Line, error)
	addCustomItemFn    func(ctx context.Context, name string, price decimal.Decimal) (cart.Line, error)
	updateQuantityFn   func(ctx context.Context, lineID uuid.UUID, delta int) (bool, error)
	setModifiersFn     func(ctx context.Context, lineID uuid.UUID, mods modifier.Set) (cart.Line, error)
	setNoteFn          func(ctx context.Context, lineID uuid.UUID, note string) error
	removeItemFn       func(ctx context.Context, lineID uuid.UUID) error
	setDetailsFn       func(ctx context.Context, d service.Details) error
	setDiscountFn      func(ctx context.Context, kind string, value decimal.Decimal) error
	setTipFn           func(ctx context.Context, kind string, value decimal.Decimal) error
	selectPreorderFn   func(ctx context.Context, id int64) error
	selectTicketFn     func(ctx context.Context, comandaID int64) error
	savePreorderFn     func(ctx context.Context) error
	payFn              func(ctx context.Context, req service.PayRequest) (*service.Receipt, error)
	sendUnpaidFn       func(ctx context.Context, cashierID int64) (*service.Receipt, error)
	refreshPreordersFn func(ctx context.Context) ([]backend.Preorder, error)

	preorders []backend.Preorder
	tickets   []backend.Comanda
	cleared   bool
	cancelled bool
}

func (m *mockRegister) Snapshot() service.Snapshot { return m.snapshot }

func (m *mockRegister) AddItemWithNote(ctx context.Context, p cart.Product, mods modifier.Set, note string) (cart.Line, error) {
	if m.addItemFn != nil {
		return m.addItemFn(ctx, p, mods, note)
	}
	return cart.Line{ID: uuid.New()}, nil
}

func (m *mockRegister) AddCustomItem(ctx context.Context, name string, price decimal.Decimal) (cart.Line, error) {
	if m.addCustomItemFn != nil {
		return m.addCustomItemFn(ctx, name, price)
	}
	return cart.Line{ID: uuid.New()}, nil
}

func (m *mockRegister) UpdateQuantity(ctx context.Context, lineID uuid.UUID, delta int) (bool, error) {
	if m.updateQuantityFn != nil {
		return m.updateQuantityFn(ctx, lineID, delta)
	}
	return false, nil
}

func (m *mockRegister) SetModifiers(ctx context.Context, lineID uuid.UUID, mods modifier.Set) (cart.Line, error) {
	if m.setModifiersFn != nil {
		return m.setModifiersFn(ctx, lineID, mods)
	}
	return cart.Line{ID: lineID, Modifiers: mods}, nil
}

func (m *mockRegister) SetNote(ctx context.Context, lineID uuid.UUID, note string) error {
	if m.setNoteFn != nil {
		return m.setNoteFn(ctx, lineID, note)
	}
	return nil
}

func (m *mockRegister) RemoveItem(ctx context.Context, lineID uuid.UUID) error {
	if m.removeItemFn != nil {
		return m.removeItemFn(ctx, lineID)
	}
	return nil
}

func (m *mockRegister) ClearCart(context.Context) error {
	m.cleared = true
	return nil
}

func (m *mockRegister) SetDetails(ctx context.Context, d service.Details) error {
	if m.setDetailsFn != nil {
		return m.setDetailsFn(ctx, d)
	}
	return nil
}

func (m *mockRegister) SetServiceType(context.Context, string) error { return nil }

func (m *mockRegister) SetDiscount(ctx context.Context, kind string, value decimal.Decimal) error {
	if m.setDiscountFn != nil {
		return m.setDiscountFn(ctx, kind, value)
	}
	return nil
}

func (m *mockRegister) ClearDiscount(context.Context) error { return nil }

func (m *mockRegister) SetTip(ctx context.Context, kind string, value decimal.Decimal) error {
	if m.setTipFn != nil {
		return m.setTipFn(ctx, kind, value)
	}
	return nil
}

func (m *mockRegister) ClearTip(context.Context) error { return nil }

func (m *mockRegister) Cancel(context.Context) error {
	m.cancelled = true
	return nil
}

func (m *mockRegister) SelectPreorder(ctx context.Context, id int64) error {
	if m.selectPreorderFn != nil {
		return m.selectPreorderFn(ctx, id)
	}
	return nil
}

func (m *mockRegister) SelectTicket(ctx context.Context, comandaID int64) error {
	if m.selectTicketFn != nil {
		return m.selectTicketFn(ctx, comandaID)
	}
	return nil
}

func (m *mockRegister) SavePreorder(ctx context.Context) error {
	if m.savePreorderFn != nil {
		return m.savePreorderFn(ctx)
	}
	return nil
}

func (m *mockRegister) Pay(ctx context.Context, req service.PayRequest) (*service.Receipt, error) {
	return m.payFn(ctx, req)
}

func (m *mockRegister) SendUnpaid(ctx context.Context, cashierID int64) (*service.Receipt, error) {
	return m.sendUnpaidFn(ctx, cashierID)
}

func (m *mockRegister) RefreshPreorders(ctx context.Context) ([]backend.Preorder, error) {
	if m.refreshPreordersFn != nil {
		return m.refreshPreordersFn(ctx)
	}
	return m.preorders, nil
}

func (m *mockRegister) RefreshTickets(context.Context) ([]backend.Comanda, error) {
	return m.tickets, nil
}

func (m *mockRegister) PendingPreorders() []backend.Preorder { return m.preorders }

func (m *mockRegister) FinishedTickets() []backend.Comanda { return m.tickets }

// --- Mock journal ---

type mockJournal struct {
	rows        []journal.Submission
	gotLimit    int
	gotRegister string
}

func (m *mockJournal) Record(context.Context, journal.Submission) error { return nil }

func (m *mockJournal) Recent(_ context.Context, registerID string, limit int) ([]journal.Submission, error) {
	m.gotRegister = registerID
	m.gotLimit = limit
	return m.rows, nil
}

// --- Helpers ---

func cashierClaims() *auth.Claims {
	return &auth.Claims{UserID: 7, Name: "Ana", Role: enum.UserRoleCashier}
}

func setupRegisterRouter(svc *mockRegister, rec journal.Recorder) *chi.Mux {
	logger, _ := test.NewNullLogger()
	h := handler.NewRegisterHandler(svc, rec, "reg-1", logger)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/register", h.RegisterRoutes)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	claims := cashierClaims()
	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.Name, claims.Role, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return m
}

func newOrderSnapshot() service.Snapshot {
	pid := int64(1)
	line := cart.Line{
		ID:        uuid.New(),
		ProductID: &pid,
		Name:      "Latte",
		UnitPrice: decimal.NewFromInt(50),
		Quantity:  2,
		Modifiers: modifier.Set{Milk: modifier.MilkLactoseFree},
	}
	breakdown := pricing.Compute([]cart.Line{line}, pricing.Discount{}, pricing.Tip{Kind: enum.TipKindPercentage, Value: decimal.NewFromInt(10)})
	return service.Snapshot{
		State:   service.StateNewOrder,
		Context: &service.NewOrder{Details: service.Details{CustomerName: "Luis", ServiceType: enum.ServiceTypeDineIn}},
		Lines: []service.LineView{{
			Line:          line,
			Identity:      line.Identity(),
			Observations:  line.Observations(),
			UnitSurcharge: line.UnitSurcharge(),
			Subtotal:      line.Subtotal(),
		}},
		Breakdown: breakdown,
		Tip:       pricing.Tip{Kind: enum.TipKindPercentage, Value: decimal.NewFromInt(10)},
	}
}

// --- Tests ---

func TestRegisterGet_RendersMoneyAsStrings(t *testing.T) {
	svc := &mockRegister{snapshot: newOrderSnapshot()}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "GET", "/register/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeMap(t, rr)
	if resp["state"] != "new_order" {
		t.Errorf("state = %v, want new_order", resp["state"])
	}
	totals := resp["totals"].(map[string]interface{})
	if totals["subtotal"] != "100.00" {
		t.Errorf("subtotal = %v, want 100.00", totals["subtotal"])
	}
	if totals["milk_total"] != "30.00" {
		t.Errorf("milk_total = %v, want 30.00", totals["milk_total"])
	}
	if totals["tip_amount"] != "13.00" {
		t.Errorf("tip_amount = %v, want 13.00", totals["tip_amount"])
	}
	if totals["grand_total"] != "143.00" {
		t.Errorf("grand_total = %v, want 143.00", totals["grand_total"])
	}
	lines := resp["lines"].([]interface{})
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	line := lines[0].(map[string]interface{})
	if line["subtotal"] != "130.00" {
		t.Errorf("line subtotal = %v, want 130.00", line["subtotal"])
	}
	if line["observations"] == "" {
		t.Error("observations should describe the milk selection")
	}
	if resp["discount"] != nil {
		t.Errorf("discount = %v, want null", resp["discount"])
	}
	ctx := resp["context"].(map[string]interface{})
	if ctx["customer_name"] != "Luis" {
		t.Errorf("customer_name = %v, want Luis", ctx["customer_name"])
	}
}

func TestRegisterGet_IdleHasNullContext(t *testing.T) {
	svc := &mockRegister{snapshot: service.Snapshot{State: service.StateIdle}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "GET", "/register/", nil)
	resp := decodeMap(t, rr)
	if resp["context"] != nil {
		t.Errorf("context = %v, want null", resp["context"])
	}
	if lines := resp["lines"].([]interface{}); len(lines) != 0 {
		t.Errorf("lines = %d, want 0", len(lines))
	}
}

func TestRegisterGet_NoAuth(t *testing.T) {
	router := setupRegisterRouter(&mockRegister{}, nil)

	req := httptest.NewRequest("GET", "/register/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRegisterCatalog(t *testing.T) {
	router := setupRegisterRouter(&mockRegister{}, nil)

	rr := doRequest(t, router, "GET", "/register/catalog", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var opts []map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&opts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(opts) != len(modifier.Catalog()) {
		t.Fatalf("options = %d, want %d", len(opts), len(modifier.Catalog()))
	}
	for _, o := range opts {
		if o["family"] == "prep" && o["surcharge"] != "0.00" {
			t.Errorf("prep %s surcharge = %s, want 0.00", o["value"], o["surcharge"])
		}
	}
}

func TestRegisterAddItem_PassesProductAndNote(t *testing.T) {
	var gotProduct cart.Product
	var gotMods modifier.Set
	var gotNote string
	svc := &mockRegister{
		snapshot: newOrderSnapshot(),
		addItemFn: func(_ context.Context, p cart.Product, mods modifier.Set, note string) (cart.Line, error) {
			gotProduct, gotMods, gotNote = p, mods, note
			return cart.Line{ID: uuid.New()}, nil
		},
		setNoteFn: func(context.Context, uuid.UUID, string) error {
			t.Error("the note must travel with the item, not as a separate edit")
			return nil
		},
	}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "POST", "/register/items", map[string]interface{}{
		"product_id": 1,
		"name":       "Latte",
		"price":      "50",
		"modifiers":  map[string]interface{}{"milk": string(modifier.MilkLactoseFree)},
		"note":       "muy caliente",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if gotProduct.ID != 1 || gotProduct.Name != "Latte" || !gotProduct.Price.Equal(decimal.NewFromInt(50)) {
		t.Errorf("product = %+v", gotProduct)
	}
	if gotMods.Milk != modifier.MilkLactoseFree {
		t.Errorf("milk = %q, want %q", gotMods.Milk, modifier.MilkLactoseFree)
	}
	if gotNote != "muy caliente" {
		t.Errorf("note = %q", gotNote)
	}
}

func TestRegisterAddItem_Validation(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"missing product", map[string]interface{}{"name": "Latte", "price": "50"}},
		{"bad price", map[string]interface{}{"product_id": 1, "price": "fifty"}},
		{"not json", "oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockRegister{addItemFn: func(context.Context, cart.Product, modifier.Set, string) (cart.Line, error) {
				t.Error("service must not be called")
				return cart.Line{}, nil
			}}
			router := setupRegisterRouter(svc, nil)

			rr := doRequest(t, router, "POST", "/register/items", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestRegisterAddItem_UnknownModifier(t *testing.T) {
	svc := &mockRegister{addItemFn: func(context.Context, cart.Product, modifier.Set, string) (cart.Line, error) {
		return cart.Line{}, modifier.ErrUnknownMilk
	}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "POST", "/register/items", map[string]interface{}{"product_id": 1, "price": "50"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRegisterLineRoutes(t *testing.T) {
	lineID := uuid.New()
	var gotDelta int
	var removed uuid.UUID
	svc := &mockRegister{
		updateQuantityFn: func(_ context.Context, id uuid.UUID, delta int) (bool, error) {
			gotDelta = delta
			return false, nil
		},
		removeItemFn: func(_ context.Context, id uuid.UUID) error {
			removed = id
			return nil
		},
	}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "PATCH", "/register/items/"+lineID.String(), map[string]int{"delta": -1})
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d; body: %s", rr.Code, rr.Body.String())
	}
	if gotDelta != -1 {
		t.Errorf("delta = %d, want -1", gotDelta)
	}

	rr = doRequest(t, router, "PATCH", "/register/items/"+lineID.String(), map[string]int{"delta": 0})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("zero delta status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = doRequest(t, router, "DELETE", "/register/items/"+lineID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if removed != lineID {
		t.Errorf("removed = %s, want %s", removed, lineID)
	}

	rr = doRequest(t, router, "DELETE", "/register/items/not-a-uuid", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = doRequest(t, router, "DELETE", "/register/items", nil)
	if rr.Code != http.StatusOK || !svc.cleared {
		t.Errorf("clear status = %d, cleared = %v", rr.Code, svc.cleared)
	}
}

func TestRegisterRemoveItem_UnknownLine(t *testing.T) {
	svc := &mockRegister{removeItemFn: func(context.Context, uuid.UUID) error {
		return cart.ErrLineNotFound
	}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "DELETE", "/register/items/"+uuid.NewString(), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestRegisterSetDetails_StateError(t *testing.T) {
	svc := &mockRegister{setDetailsFn: func(_ context.Context, d service.Details) error {
		if d.CustomerName != "Luis" {
			t.Errorf("customer_name = %q", d.CustomerName)
		}
		return service.ErrNotEditable
	}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "PUT", "/register/details", map[string]string{"customer_name": "Luis"})
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusConflict)
	}
	resp := decodeMap(t, rr)
	if resp["error"] != service.ErrNotEditable.Error() {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestRegisterDiscountAndTip(t *testing.T) {
	var discountKind, tipKind string
	var discountValue, tipValue decimal.Decimal
	svc := &mockRegister{
		setDiscountFn: func(_ context.Context, kind string, v decimal.Decimal) error {
			discountKind, discountValue = kind, v
			return nil
		},
		setTipFn: func(_ context.Context, kind string, v decimal.Decimal) error {
			tipKind, tipValue = kind, v
			return nil
		},
	}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "PUT", "/register/discount", map[string]string{"kind": "percentage", "value": "10"})
	if rr.Code != http.StatusOK {
		t.Fatalf("discount status = %d", rr.Code)
	}
	if discountKind != enum.DiscountKindPercentage || !discountValue.Equal(decimal.NewFromInt(10)) {
		t.Errorf("discount = %s %s", discountKind, discountValue)
	}

	rr = doRequest(t, router, "PUT", "/register/tip", map[string]string{"kind": "custom", "value": "12.5"})
	if rr.Code != http.StatusOK {
		t.Fatalf("tip status = %d", rr.Code)
	}
	if tipKind != enum.TipKindCustom || !tipValue.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("tip = %s %s", tipKind, tipValue)
	}

	rr = doRequest(t, router, "PUT", "/register/tip", map[string]string{"kind": "custom", "value": ""})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty tip status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRegisterDiscount_InvalidKind(t *testing.T) {
	svc := &mockRegister{setDiscountFn: func(context.Context, string, decimal.Decimal) error {
		return pricing.ErrInvalidKind
	}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "PUT", "/register/discount", map[string]string{"kind": "bogus", "value": "1"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRegisterCancel(t *testing.T) {
	svc := &mockRegister{}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "POST", "/register/cancel", nil)
	if rr.Code != http.StatusOK || !svc.cancelled {
		t.Errorf("status = %d, cancelled = %v", rr.Code, svc.cancelled)
	}
}

func TestRegisterListPreorders(t *testing.T) {
	cached := []backend.Preorder{{ID: 1, Status: enum.PreorderStatusPreorder, Total: decimal.NewFromInt(50)}}
	fresh := []backend.Preorder{
		{ID: 1, Status: enum.PreorderStatusPreorder, Total: decimal.NewFromInt(50)},
		{ID: 2, Status: enum.PreorderStatusInRegister, CustomerName: "Eva", Total: decimal.RequireFromString("72.5")},
	}
	svc := &mockRegister{
		preorders:          cached,
		refreshPreordersFn: func(context.Context) ([]backend.Preorder, error) { return fresh, nil },
	}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "GET", "/register/preorders", nil)
	var list []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("cached list = %d, want 1", len(list))
	}

	rr = doRequest(t, router, "GET", "/register/preorders?refresh=true", nil)
	list = nil
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("refreshed list = %d, want 2", len(list))
	}
	if list[1]["total"] != "72.50" || list[1]["customer_name"] != "Eva" {
		t.Errorf("preorder = %v", list[1])
	}
}

func TestRegisterListPreorders_RefreshFails(t *testing.T) {
	svc := &mockRegister{refreshPreordersFn: func(context.Context) ([]backend.Preorder, error) {
		return nil, backend.ErrNetwork
	}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "GET", "/register/preorders?refresh=true", nil)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
}

func TestRegisterListTickets(t *testing.T) {
	n := 14
	svc := &mockRegister{tickets: []backend.Comanda{{
		ID:     5,
		SaleID: 77,
		Status: enum.ComandaStatusFinished,
		Sale:   &backend.Sale{ID: 77, Total: decimal.NewFromInt(130), DailyNumber: &n, ServiceType: enum.ServiceTypeTakeOut},
	}}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "GET", "/register/tickets", nil)
	var list []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("tickets = %d, want 1", len(list))
	}
	if list[0]["total"] != "130.00" || list[0]["daily_number"] != float64(14) {
		t.Errorf("ticket = %v", list[0])
	}
}

func TestRegisterSelectPreorder(t *testing.T) {
	var got int64
	svc := &mockRegister{selectPreorderFn: func(_ context.Context, id int64) error {
		got = id
		return nil
	}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "POST", "/register/preorders/30/select", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got != 30 {
		t.Errorf("id = %d, want 30", got)
	}

	rr = doRequest(t, router, "POST", "/register/preorders/abc/select", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRegisterSelectTicket_NotFound(t *testing.T) {
	svc := &mockRegister{selectTicketFn: func(context.Context, int64) error {
		return service.ErrTicketNotFound
	}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "POST", "/register/tickets/9/select", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestRegisterSavePreorder_Rejected(t *testing.T) {
	svc := &mockRegister{savePreorderFn: func(context.Context) error {
		return &backend.RejectionError{
			StatusCode: 422,
			Message:    "customerName: requerido",
			Fields:     []backend.FieldError{{Field: "customerName", Message: "requerido"}},
		}
	}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "POST", "/register/preorder/save", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	resp := decodeMap(t, rr)
	if resp["error"] != "customerName: requerido" {
		t.Errorf("error = %v", resp["error"])
	}
	if fields := resp["fields"].([]interface{}); len(fields) != 1 {
		t.Errorf("fields = %v", fields)
	}
}

func TestRegisterPay_HappyPath(t *testing.T) {
	saleID := int64(77)
	var got service.PayRequest
	svc := &mockRegister{payFn: func(_ context.Context, req service.PayRequest) (*service.Receipt, error) {
		got = req
		return &service.Receipt{
			Flow:   journal.FlowNewOrder,
			SaleID: &saleID,
			Method: req.Method,
			Paid:   true,
			Totals: newOrderSnapshot().Breakdown,
		}, nil
	}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "POST", "/register/pay", map[string]string{"method": "card"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if got.Method != enum.PaymentMethodCard || got.CashierID != 7 {
		t.Errorf("request = %+v, want card by cashier 7", got)
	}
	resp := decodeMap(t, rr)
	if resp["sale_id"] != float64(77) || resp["paid"] != true {
		t.Errorf("receipt = %v", resp)
	}
	if totals := resp["totals"].(map[string]interface{}); totals["grand_total"] != "143.00" {
		t.Errorf("grand_total = %v", totals["grand_total"])
	}
}

func TestRegisterPay_PartialCommit(t *testing.T) {
	saleID := int64(77)
	svc := &mockRegister{payFn: func(context.Context, service.PayRequest) (*service.Receipt, error) {
		return nil, &service.PartialCommitError{
			Flow:   journal.FlowNewOrder,
			SaleID: &saleID,
			Err:    &backend.RejectionError{StatusCode: 500, Message: "kitchen offline"},
		}
	}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "POST", "/register/pay", map[string]string{"method": "cash"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	resp := decodeMap(t, rr)
	if resp["partial"] != true || resp["sale_id"] != float64(77) {
		t.Errorf("response = %v, want partial with sale 77", resp)
	}
}

func TestRegisterPay_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"empty cart", service.ErrEmptyCart, http.StatusBadRequest},
		{"invalid method", service.ErrInvalidPaymentMethod, http.StatusBadRequest},
		{"in flight", service.ErrSubmitInFlight, http.StatusConflict},
		{"no context", service.ErrNoContext, http.StatusConflict},
		{"network", backend.ErrNetwork, http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockRegister{payFn: func(context.Context, service.PayRequest) (*service.Receipt, error) {
				return nil, tt.err
			}}
			router := setupRegisterRouter(svc, nil)

			rr := doRequest(t, router, "POST", "/register/pay", map[string]string{"method": "cash"})
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			if tt.status == http.StatusInternalServerError {
				if resp := decodeMap(t, rr); resp["error"] != "internal server error" {
					t.Errorf("error = %v, internal errors must not leak", resp["error"])
				}
			}
		})
	}
}

func TestRegisterPay_NoClaims(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := handler.NewRegisterHandler(&mockRegister{}, nil, "reg-1", logger)

	req := httptest.NewRequest("POST", "/pay", bytes.NewReader([]byte(`{"method":"cash"}`)))
	rr := httptest.NewRecorder()
	h.Pay(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRegisterSendUnpaid(t *testing.T) {
	var gotCashier int64
	svc := &mockRegister{sendUnpaidFn: func(_ context.Context, cashierID int64) (*service.Receipt, error) {
		gotCashier = cashierID
		return &service.Receipt{Flow: journal.FlowSendUnpaid, Method: enum.PaymentMethodPending}, nil
	}}
	router := setupRegisterRouter(svc, nil)

	rr := doRequest(t, router, "POST", "/register/send-unpaid", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if gotCashier != 7 {
		t.Errorf("cashier = %d, want 7", gotCashier)
	}
	if resp := decodeMap(t, rr); resp["paid"] != false || resp["method"] != "pending" {
		t.Errorf("receipt = %v", resp)
	}
}

func TestRegisterSendUnpaid_WithClaimsInContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	svc := &mockRegister{sendUnpaidFn: func(_ context.Context, cashierID int64) (*service.Receipt, error) {
		if cashierID != 3 {
			t.Errorf("cashier = %d, want 3", cashierID)
		}
		return &service.Receipt{Flow: journal.FlowSendUnpaid}, nil
	}}
	h := handler.NewRegisterHandler(svc, nil, "reg-1", logger)

	req := httptest.NewRequest("POST", "/send-unpaid", nil)
	req = req.WithContext(middleware.WithClaims(req.Context(), &auth.Claims{UserID: 3, Role: enum.UserRoleManager}))
	rr := httptest.NewRecorder()
	h.SendUnpaid(rr, req)

	if rr.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusCreated)
	}
}

func TestRegisterSubmissions(t *testing.T) {
	rec := &mockJournal{rows: []journal.Submission{{
		ID:         uuid.New(),
		RegisterID: "reg-1",
		Flow:       journal.FlowNewOrder,
		Outcome:    journal.OutcomeSucceeded,
		Total:      decimal.NewFromInt(58),
	}}}
	router := setupRegisterRouter(&mockRegister{}, rec)

	rr := doRequest(t, router, "GET", "/register/submissions?limit=500", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rec.gotLimit != 100 {
		t.Errorf("limit = %d, want capped at 100", rec.gotLimit)
	}
	if rec.gotRegister != "reg-1" {
		t.Errorf("register = %q, want reg-1", rec.gotRegister)
	}
	var rows []journal.Submission
	if err := json.NewDecoder(rr.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Flow != journal.FlowNewOrder {
		t.Errorf("rows = %+v", rows)
	}
}

func TestRegisterSubmissions_DefaultsAndEmpty(t *testing.T) {
	rec := &mockJournal{}
	router := setupRegisterRouter(&mockRegister{}, rec)

	rr := doRequest(t, router, "GET", "/register/submissions?limit=abc", nil)
	if rec.gotLimit != 20 {
		t.Errorf("limit = %d, want default 20", rec.gotLimit)
	}
	if body := bytes.TrimSpace(rr.Body.Bytes()); string(body) != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}
