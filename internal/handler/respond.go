package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cafe-pos/register/internal/backend"
	"github.com/cafe-pos/register/internal/cart"
	"github.com/cafe-pos/register/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode JSON response")
	}
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error      string               `json:"error"`
	Fields     []backend.FieldError `json:"fields,omitempty"`
	Partial    bool                 `json:"partial,omitempty"`
	SaleID     *int64               `json:"sale_id,omitempty"`
	PreorderID *int64               `json:"preorder_id,omitempty"`
}

// writeError maps an error from the register to a status code:
// validation 400, unknown line or ticket 404, wrong state 409, backend
// rejection 422 (message verbatim), no backend response 502.
func writeError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	body := errorResponse{Error: err.Error()}

	var partial *service.PartialCommitError
	if errors.As(err, &partial) {
		body.Partial = true
		body.SaleID = partial.SaleID
		body.PreorderID = partial.PreorderID
	}

	status := http.StatusInternalServerError
	switch {
	case service.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrTicketNotFound), errors.Is(err, cart.ErrLineNotFound):
		status = http.StatusNotFound
	case service.IsState(err):
		status = http.StatusConflict
	default:
		if rej, ok := backend.IsRejection(err); ok {
			status = http.StatusUnprocessableEntity
			body.Fields = rej.Fields
			if !body.Partial {
				body.Error = rej.Message
			}
		} else if backend.IsNetwork(err) {
			status = http.StatusBadGateway
			if !body.Partial {
				body.Error = "backend unavailable, try again"
			}
		}
	}

	if status >= http.StatusInternalServerError {
		logger.WithFields(logrus.Fields{"status": status, "error": err.Error()}).Error("register request failed")
		if status == http.StatusInternalServerError {
			body.Error = "internal server error"
		}
	}
	writeJSON(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func parseLineID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return uuid.Nil, false
	}
	return id, true
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ID"})
		return 0, false
	}
	return id, true
}

func parseAmount(w http.ResponseWriter, field, s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + field})
		return decimal.Zero, false
	}
	return d, true
}
