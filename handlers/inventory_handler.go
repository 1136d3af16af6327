package handlers

import (
	"net/http"

	"fadedreams/garage/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type costItemInput struct {
	Name     string           `json:"name"`
	Cost     *decimal.Decimal `json:"cost"`
	Category string           `json:"category"`
	Stock    int              `json:"stock"`
}

func (in costItemInput) parse() (decimal.Decimal, domain.Category, error) {
	if in.Cost == nil {
		return decimal.Decimal{}, "", &domain.InvalidInputError{Field: "cost"}
	}
	category, err := domain.ParseCategory(in.Category)
	if err != nil {
		return decimal.Decimal{}, "", err
	}
	return *in.Cost, category, nil
}

// ListCostItems returns the catalog.
func (h *Handler) ListCostItems(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListCostItems")
	defer span.End()

	items, err := h.inventory.ListCostItems(ctx)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.Int("costItemCount", len(items)))
	writeJSON(w, http.StatusOK, items)
}

// RegisterCostItem adds a catalog entry.
func (h *Handler) RegisterCostItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RegisterCostItem")
	defer span.End()

	var input costItemInput
	if err := decode(w, r, &input); err != nil {
		h.writeError(w, span, err)
		return
	}
	cost, category, err := input.parse()
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	item, err := h.inventory.RegisterCostItem(ctx, input.Name, cost, category)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.Int64("costItemID", item.ID))
	writeJSON(w, http.StatusCreated, item)
}

// GetCostItem returns one catalog entry.
func (h *Handler) GetCostItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetCostItem")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	item, err := h.inventory.GetCostItem(ctx, id)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// UpdateCostItem replaces the editable fields of a catalog entry.
func (h *Handler) UpdateCostItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateCostItem")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	var input costItemInput
	if err := decode(w, r, &input); err != nil {
		h.writeError(w, span, err)
		return
	}
	cost, category, err := input.parse()
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	item, err := h.inventory.UpdateCostItem(ctx, id, domain.CostItemFields{
		Name:     input.Name,
		UnitCost: cost,
		Category: category,
		Stock:    input.Stock,
	})
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// AddStock increases the stock of a PART.
func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddStock")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	var input struct {
		Amount int `json:"amount"`
	}
	if err := decode(w, r, &input); err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.Int64("costItemID", id), attribute.Int("amount", input.Amount))
	item, err := h.inventory.AddStock(ctx, id, input.Amount)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteCostItem removes a catalog entry.
func (h *Handler) DeleteCostItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteCostItem")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	if err := h.inventory.DeleteCostItem(ctx, id); err != nil {
		h.writeError(w, span, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
