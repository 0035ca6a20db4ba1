package handler

import (
	"net/http"

	"github.com/go-verify-api/internal/application/verification"
	"github.com/go-verify-api/internal/domain"
	"github.com/go-verify-api/internal/pkg/validate"
	"github.com/go-verify-api/internal/transport/http/middleware"
)

// VerificationHandler exposes the request lifecycle. Every endpoint takes a
// batch and is scoped to the authenticated application.
type VerificationHandler struct {
	svc verification.Service
}

func NewVerificationHandler(svc verification.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

func (h *VerificationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	app, ok := callerApplication(w, r)
	if !ok {
		return
	}
	items, ok := decodeBatch[domain.GenerateInput](w, r, validate.Struct)
	if !ok {
		return
	}
	res, err := h.svc.Generate(r.Context(), app.ApplicationID, items)
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusCreated, res.Items, "verification generated", res.Warnings)
}

func (h *VerificationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	app, ok := callerApplication(w, r)
	if !ok {
		return
	}
	items, ok := decodeBatch[domain.ResendInput](w, r, validate.Struct)
	if !ok {
		return
	}
	res, err := h.svc.Resend(r.Context(), app.ApplicationID, items)
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusOK, res.Items, "verification resent", res.Warnings)
}

func (h *VerificationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	app, ok := callerApplication(w, r)
	if !ok {
		return
	}
	items, ok := decodeBatch[domain.VerifyInput](w, r, validate.Struct)
	if !ok {
		return
	}
	res, err := h.svc.Verify(r.Context(), app.ApplicationID, items)
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusOK, res.Items, "verification successful", res.Warnings)
}

func callerApplication(w http.ResponseWriter, r *http.Request) (*domain.Application, bool) {
	app, ok := middleware.ApplicationFromContext(r.Context())
	if !ok {
		httpError(w, domain.ErrMissingCredentials)
		return nil, false
	}
	return app, true
}
