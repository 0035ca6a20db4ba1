package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-verify-api/internal/application/keyrotation"
	"github.com/go-verify-api/internal/application/onboarding"
	"github.com/go-verify-api/internal/domain"
	"github.com/go-verify-api/internal/pkg/validate"
)

// ApplicationHandler handles application onboarding and key rotation.
type ApplicationHandler struct {
	onboard onboarding.Service
	rotate  keyrotation.Service
}

func NewApplicationHandler(onboard onboarding.Service, rotate keyrotation.Service) *ApplicationHandler {
	return &ApplicationHandler{onboard: onboard, rotate: rotate}
}

// Register onboards a batch of applications. Credentials are only ever
// returned by this response.
func (h *ApplicationHandler) Register(w http.ResponseWriter, r *http.Request) {
	items, ok := decodeBatch[onboarding.RegisterInput](w, r, validate.Struct)
	if !ok {
		return
	}
	creds, err := h.onboard.Register(r.Context(), items)
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusCreated, creds, "application registered", nil)
}

func (h *ApplicationHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.onboard.Deactivate(r.Context(), chi.URLParam(r, "applicationCode")); err != nil {
		httpError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "application deactivated")
}

func (h *ApplicationHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	app, ok := callerApplication(w, r)
	if !ok {
		return
	}
	creds, err := h.rotate.Rotate(r.Context(), chi.URLParam(r, "applicationCode"), app.ApplicationID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusOK, []domain.Credentials{*creds}, "api key rotated", nil)
}
