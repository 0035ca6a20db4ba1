package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-verify-api/internal/application/onboarding"
	"github.com/go-verify-api/internal/domain"
	"github.com/go-verify-api/internal/pkg/validate"
)

// ServiceHandler manages the service subscriptions of an application.
type ServiceHandler struct {
	svc onboarding.Service
}

func NewServiceHandler(svc onboarding.Service) *ServiceHandler { return &ServiceHandler{svc: svc} }

func (h *ServiceHandler) Add(w http.ResponseWriter, r *http.Request) {
	items, ok := decodeBatch[domain.ServiceInput](w, r, validate.Struct)
	if !ok {
		return
	}
	subs, err := h.svc.AddServices(r.Context(), chi.URLParam(r, "applicationCode"), items)
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusCreated, subs, "services subscribed", nil)
}

// Update replaces the configuration of the subscription named in the path.
// The body may omit serviceType; when present it must match the path.
func (h *ServiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	serviceType, ok := pathServiceType(w, r)
	if !ok {
		return
	}
	var in domain.ServiceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.ServiceType == "" {
		in.ServiceType = serviceType
	}
	if in.ServiceType != serviceType {
		writeError(w, http.StatusBadRequest, "serviceType does not match the path")
		return
	}
	if err := validate.Struct(&in); err != nil {
		writeError(w, http.StatusUnprocessableEntity, publicText(err, domain.ErrBadRequest))
		return
	}
	sub, err := h.svc.UpdateService(r.Context(), chi.URLParam(r, "applicationCode"), serviceType, in)
	if err != nil {
		httpError(w, err)
		return
	}
	writeData(w, http.StatusOK, []domain.Subscription{*sub}, "service updated", nil)
}

// Delete is a soft delete.
func (h *ServiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	serviceType, ok := pathServiceType(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteService(r.Context(), chi.URLParam(r, "applicationCode"), serviceType); err != nil {
		httpError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "service deleted")
}

func pathServiceType(w http.ResponseWriter, r *http.Request) (domain.ServiceType, bool) {
	st := domain.ServiceType(chi.URLParam(r, "serviceType"))
	if !st.Valid() {
		writeError(w, http.StatusBadRequest, "unknown service type")
		return "", false
	}
	return st, true
}
