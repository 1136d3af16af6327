package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fadedreams/garage/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// repairResponse is the wire form of a repair; dates are YYYY-MM-DD.
type repairResponse struct {
	ID                int64           `json:"id"`
	CustomerID        int64           `json:"customerId"`
	ExaminationDate   string          `json:"examinationDate"`
	FoundProblems     string          `json:"foundProblems"`
	RepairDate        *string         `json:"repairDate"`
	CustomerAgreed    *bool           `json:"customerAgreed"`
	PartsUsed         []int64         `json:"partsUsed"`
	OtherActionsPrice decimal.Decimal `json:"otherActionsPrice"`
	Status            string          `json:"status"`
	Called            bool            `json:"called"`
	Paid              bool            `json:"paid"`
}

func newRepairResponse(r *domain.Repair) repairResponse {
	resp := repairResponse{
		ID:                r.ID,
		CustomerID:        r.CustomerID,
		ExaminationDate:   r.ExaminationDate.Format(time.DateOnly),
		FoundProblems:     r.FoundProblems,
		CustomerAgreed:    r.CustomerAgreed,
		PartsUsed:         r.PartsUsed,
		OtherActionsPrice: r.OtherActionsPrice,
		Status:            string(r.Status),
		Called:            r.Called,
		Paid:              r.Paid,
	}
	if r.RepairDate != nil {
		d := r.RepairDate.Format(time.DateOnly)
		resp.RepairDate = &d
	}
	return resp
}

// ListRepairs returns every repair.
func (h *Handler) ListRepairs(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListRepairs")
	defer span.End()

	repairs, err := h.repairs.ListRepairs(ctx)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	resp := make([]repairResponse, 0, len(repairs))
	for _, rp := range repairs {
		resp = append(resp, newRepairResponse(rp))
	}
	span.SetAttributes(attribute.Int("repairCount", len(resp)))
	writeJSON(w, http.StatusOK, resp)
}

// CreateRepair opens a repair for a customer.
func (h *Handler) CreateRepair(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateRepair")
	defer span.End()

	var input struct {
		CustomerID      int64  `json:"customerId"`
		ExaminationDate string `json:"examinationDate"`
	}
	if err := decode(w, r, &input); err != nil {
		h.writeError(w, span, err)
		return
	}
	date, err := parseDate("examinationDate", input.ExaminationDate)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	repair, err := h.repairs.CreateRepair(ctx, input.CustomerID, date)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.Int64("repairID", repair.ID))
	writeJSON(w, http.StatusCreated, newRepairResponse(repair))
}

// GetRepair returns one repair.
func (h *Handler) GetRepair(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetRepair")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	repair, err := h.repairs.GetRepair(ctx, id)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, newRepairResponse(repair))
}

// transition runs one lifecycle step on the repair in the path and writes the result.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, spanName string,
	step func(ctx context.Context, id int64) (*domain.Repair, error)) {
	ctx, span := h.tracer.Start(r.Context(), spanName)
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.Int64("repairID", id))
	repair, err := step(ctx, id)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, newRepairResponse(repair))
}

// RecordFoundProblems stores the examination findings.
func (h *Handler) RecordFoundProblems(w http.ResponseWriter, r *http.Request) {
	var input struct {
		FoundProblems string `json:"foundProblems"`
	}
	h.transition(w, r, "RecordFoundProblems", func(ctx context.Context, id int64) (*domain.Repair, error) {
		if err := decode(w, r, &input); err != nil {
			return nil, err
		}
		return h.repairs.RecordFoundProblems(ctx, id, input.FoundProblems)
	})
}

// CancelRepair records the customer's refusal.
func (h *Handler) CancelRepair(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "CancelRepair", h.repairs.CancelRepair)
}

// ScheduleRepair records agreement and the planned repair date.
func (h *Handler) ScheduleRepair(w http.ResponseWriter, r *http.Request) {
	var input struct {
		RepairDate string `json:"repairDate"`
	}
	h.transition(w, r, "ScheduleRepair", func(ctx context.Context, id int64) (*domain.Repair, error) {
		if err := decode(w, r, &input); err != nil {
			return nil, err
		}
		date, err := parseDate("repairDate", input.RepairDate)
		if err != nil {
			return nil, err
		}
		return h.repairs.ScheduleRepair(ctx, id, date)
	})
}

// AssignParts records the parts and actions used and consumes stock.
func (h *Handler) AssignParts(w http.ResponseWriter, r *http.Request) {
	var input struct {
		PartsUsed         []int64          `json:"partsUsed"`
		OtherActionsPrice *decimal.Decimal `json:"otherActionsPrice"`
	}
	h.transition(w, r, "AssignParts", func(ctx context.Context, id int64) (*domain.Repair, error) {
		if err := decode(w, r, &input); err != nil {
			return nil, err
		}
		if input.OtherActionsPrice == nil {
			return nil, &domain.InvalidInputError{Field: "otherActionsPrice"}
		}
		parts := input.PartsUsed
		if parts == nil {
			parts = []int64{}
		}
		return h.repairs.AssignParts(ctx, id, parts, *input.OtherActionsPrice)
	})
}

// CompleteRepair finishes the repair.
func (h *Handler) CompleteRepair(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "CompleteRepair", h.repairs.CompleteRepair)
}

// MarkCustomerCalled records that the customer was notified.
func (h *Handler) MarkCustomerCalled(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "MarkCustomerCalled", h.repairs.MarkCustomerCalled)
}

// MarkPaid records payment.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "MarkPaid", h.repairs.MarkPaid)
}

// DeleteRepair removes a repair.
func (h *Handler) DeleteRepair(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteRepair")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	if err := h.repairs.DeleteRepair(ctx, id); err != nil {
		h.writeError(w, span, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CustomersToCall lists customers whose repair is canceled or completed.
func (h *Handler) CustomersToCall(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CustomersToCall")
	defer span.End()

	customers, err := h.repairs.CustomersToCall(ctx)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.Int("customerCount", len(customers)))
	writeJSON(w, http.StatusOK, customers)
}

// Receipt renders the bill as JSON, or as plain text when the client accepts text/plain.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Receipt")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	receipt, err := h.repairs.Receipt(ctx, id)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.Int64("repairID", id), attribute.String("grandTotal", receipt.GrandTotal.StringFixed(2)))

	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(receipt.Text()))
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
