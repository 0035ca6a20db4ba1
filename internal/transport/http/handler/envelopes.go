package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-verify-api/internal/domain"
	"github.com/go-verify-api/internal/pkg/id"
)

// BatchRequest is the body shape shared by every batch endpoint.
type BatchRequest[T any] struct {
	Data []T `json:"data"`
}

// MessageEnvelope is the body of responses that carry no data items.
type MessageEnvelope = domain.Response[struct{}]

const internalErrorText = "internal server error"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData wraps data in the response envelope with a success message.
func writeData[T any](w http.ResponseWriter, status int, data []T, text string, warnings []domain.FieldMessage) {
	if data == nil {
		data = []T{}
	}
	resp := domain.Response[T]{
		Data:             data,
		ResponseMessages: []domain.ResponseMessage{{Type: domain.MessageSuccess, ID: id.New(), Text: text}},
	}
	for _, wm := range warnings {
		resp.Warn(wm.ID, wm.Field, wm.Text)
	}
	writeJSON(w, status, resp)
}

func writeMessage(w http.ResponseWriter, status int, text string) {
	writeData[struct{}](w, status, nil, text, nil)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{
		Data:             []struct{}{},
		ResponseMessages: []domain.ResponseMessage{{Type: domain.MessageError, ID: id.New(), Text: msg}},
	})
}

// httpError maps a service error to a status code. Only client-correctable
// failures echo their message; everything else is logged and replaced.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, publicText(err, domain.ErrNotFound))
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, publicText(err, domain.ErrConflict))
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, publicText(err, domain.ErrBadRequest))
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, publicText(err, domain.ErrUnauthorized))
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, publicText(err, domain.ErrForbidden))
	case errors.Is(err, domain.ErrIntegrity):
		slog.Error("integrity fault", "err", err)
		writeError(w, http.StatusInternalServerError, internalErrorText)
	default:
		slog.Error("unhandled error", "err", err)
		writeError(w, http.StatusInternalServerError, internalErrorText)
	}
}

// publicText drops the trailing kind from a domain error message.
func publicText(err, kind error) string {
	return strings.TrimSuffix(err.Error(), ": "+kind.Error())
}

// decodeBatch reads a {"data": [...]} body and validates every item.
// It writes the error response itself and reports whether to continue.
func decodeBatch[T any](w http.ResponseWriter, r *http.Request, validateItem func(any) error) ([]T, bool) {
	var body BatchRequest[T]
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if len(body.Data) == 0 {
		writeError(w, http.StatusBadRequest, "data must contain at least one item")
		return nil, false
	}
	for i := range body.Data {
		if err := validateItem(&body.Data[i]); err != nil {
			writeError(w, http.StatusUnprocessableEntity, publicText(err, domain.ErrBadRequest))
			return nil, false
		}
	}
	return body.Data, true
}
