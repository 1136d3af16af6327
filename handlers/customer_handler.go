package handlers

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
)

// CreateCustomer registers a customer.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateCustomer")
	defer span.End()

	var input struct {
		Name            string `json:"name"`
		TelephoneNumber string `json:"telephoneNumber"`
		LicensePlate    string `json:"licensePlate"`
	}
	if err := decode(w, r, &input); err != nil {
		h.writeError(w, span, err)
		return
	}
	customer, err := h.customers.CreateCustomer(ctx, input.Name, input.TelephoneNumber, input.LicensePlate)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.Int64("customerID", customer.ID))
	writeJSON(w, http.StatusCreated, customer)
}

// GetCustomer returns one customer.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetCustomer")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	customer, err := h.customers.GetCustomer(ctx, id)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}
