// Package backend is the HTTP client for the POS backend that owns products,
// sales, kitchen tickets, tips and pre-orders.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cafe-pos/register/internal/config"
	"github.com/cafe-pos/register/internal/enum"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// Client talks to the POS backend over JSON/HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// New creates a backend client.
func New(cfg config.BackendConfig, logger logrus.FieldLogger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.WithField("component", "backend"),
	}
}

// CreateSale records a sale.
func (c *Client) CreateSale(ctx context.Context, req CreateSaleRequest) (*CreateSaleResponse, error) {
	var out CreateSaleResponse
	if err := c.do(ctx, http.MethodPost, "/api/sales", req, &out); err != nil {
		return nil, fmt.Errorf("create sale: %w", err)
	}
	return &out, nil
}

// CreateComanda sends a kitchen ticket for an existing sale.
func (c *Client) CreateComanda(ctx context.Context, req CreateComandaRequest) (*CreateComandaResponse, error) {
	var out CreateComandaResponse
	if err := c.do(ctx, http.MethodPost, "/api/comandas", req, &out); err != nil {
		return nil, fmt.Errorf("create comanda: %w", err)
	}
	return &out, nil
}

// CreateTip records a tip against a kitchen ticket.
func (c *Client) CreateTip(ctx context.Context, req CreateTipRequest) (*CreateTipResponse, error) {
	var out CreateTipResponse
	if err := c.do(ctx, http.MethodPost, "/api/tips", req, &out); err != nil {
		return nil, fmt.Errorf("create tip: %w", err)
	}
	return &out, nil
}

// GetPreorder fetches one pre-order.
func (c *Client) GetPreorder(ctx context.Context, id int64) (*Preorder, error) {
	var out Preorder
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/preorders/%d", id), nil, &out); err != nil {
		return nil, fmt.Errorf("get preorder %d: %w", id, err)
	}
	return &out, nil
}

// UpdatePreorder applies a partial update and returns the stored pre-order.
func (c *Client) UpdatePreorder(ctx context.Context, id int64, req UpdatePreorderRequest) (*Preorder, error) {
	var out Preorder
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/preorders/%d", id), req, &out); err != nil {
		return nil, fmt.Errorf("update preorder %d: %w", id, err)
	}
	return &out, nil
}

// ProcessPreorderPayment settles a pre-order. The backend creates the sale
// and, when applicable, the kitchen ticket.
func (c *Client) ProcessPreorderPayment(ctx context.Context, id int64, req PreorderPaymentRequest) (*PreorderPaymentResponse, error) {
	var out PreorderPaymentResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/preorders/%d/payment", id), req, &out); err != nil {
		return nil, fmt.Errorf("pay preorder %d: %w", id, err)
	}
	return &out, nil
}

// ProcessSalePayment settles an existing unpaid sale.
func (c *Client) ProcessSalePayment(ctx context.Context, saleID int64, req SalePaymentRequest) (*Sale, error) {
	var out Sale
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/sales/%d/payment", saleID), req, &out); err != nil {
		return nil, fmt.Errorf("pay sale %d: %w", saleID, err)
	}
	return &out, nil
}

// ListPendingPreorders returns the pre-orders the register may open.
func (c *Client) ListPendingPreorders(ctx context.Context) ([]Preorder, error) {
	var all []Preorder
	if err := c.list(ctx, "/api/preorders", &all, "preorders"); err != nil {
		return nil, fmt.Errorf("list preorders: %w", err)
	}
	return PendingPreorders(all), nil
}

// ListFinishedUnpaidTickets returns kitchen tickets that are finished but
// whose sale has not been paid.
func (c *Client) ListFinishedUnpaidTickets(ctx context.Context) ([]Comanda, error) {
	q := url.Values{"status": {enum.ComandaStatusFinished}}
	var all []Comanda
	if err := c.list(ctx, "/api/comandas?"+q.Encode(), &all, "comandas"); err != nil {
		return nil, fmt.Errorf("list comandas: %w", err)
	}
	return FinishedUnpaid(all), nil
}

// list decodes either a bare JSON array or an object wrapping it under
// "data" or key.
func (c *Client) list(ctx context.Context, path string, out any, key string) error {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, out)
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	for _, k := range []string{"data", key, "results"} {
		if inner, ok := wrapped[k]; ok {
			return json.Unmarshal(inner, out)
		}
	}
	return fmt.Errorf("decode %s: no list in response", path)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		}).Error("backend request failed")
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", ErrNetwork, path, err)
	}

	fields := logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rej := parseRejection(resp.StatusCode, raw)
		c.logger.WithFields(fields).WithField("error", rej.Message).Warn("backend rejected request")
		return rej
	}
	if rej := errorEnvelope(resp.StatusCode, raw); rej != nil {
		c.logger.WithFields(fields).WithField("error", rej.Message).Warn("backend rejected request")
		return rej
	}

	c.logger.WithFields(fields).Debug("backend request")

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if rm, ok := out.(*json.RawMessage); ok {
		*rm = append((*rm)[:0], raw...)
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// IsNetwork reports whether err means the backend could not be reached.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
