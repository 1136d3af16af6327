// Package handlers exposes the garage services over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fadedreams/garage/domain"
	"fadedreams/garage/metrics"
	"fadedreams/garage/service"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the repair, inventory and customer APIs.
type Handler struct {
	repairs   *service.RepairService
	inventory *service.InventoryService
	customers *service.CustomerService
	store     Pinger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewHandler creates a new Handler. m may be nil, in which case /metrics is not served.
func NewHandler(repairs *service.RepairService, inventory *service.InventoryService, customers *service.CustomerService,
	store Pinger, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repairs:   repairs,
		inventory: inventory,
		customers: customers,
		store:     store,
		metrics:   m,
		tracer:    otel.Tracer("garage-http"),
		logger:    logger,
	}
}

// Router builds the mux router with tracing middleware.
func (h *Handler) Router(serviceName string) *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware(serviceName))

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/repairs", h.ListRepairs).Methods("GET")
	api.HandleFunc("/repairs", h.CreateRepair).Methods("POST")
	api.HandleFunc("/repairs/completed", h.CustomersToCall).Methods("GET")
	api.HandleFunc("/repairs/{id:[0-9]+}", h.GetRepair).Methods("GET")
	api.HandleFunc("/repairs/{id:[0-9]+}", h.DeleteRepair).Methods("DELETE")
	api.HandleFunc("/repairs/{id:[0-9]+}/examined", h.RecordFoundProblems).Methods("PUT")
	api.HandleFunc("/repairs/{id:[0-9]+}/cancel", h.CancelRepair).Methods("PUT")
	api.HandleFunc("/repairs/{id:[0-9]+}/schedule", h.ScheduleRepair).Methods("PUT")
	api.HandleFunc("/repairs/{id:[0-9]+}/parts", h.AssignParts).Methods("PUT")
	api.HandleFunc("/repairs/{id:[0-9]+}/complete", h.CompleteRepair).Methods("PUT")
	api.HandleFunc("/repairs/{id:[0-9]+}/called", h.MarkCustomerCalled).Methods("PUT")
	api.HandleFunc("/repairs/{id:[0-9]+}/paid", h.MarkPaid).Methods("PUT")
	api.HandleFunc("/repairs/{id:[0-9]+}/receipt", h.Receipt).Methods("GET")

	api.HandleFunc("/costitems", h.ListCostItems).Methods("GET")
	api.HandleFunc("/costitems", h.RegisterCostItem).Methods("POST")
	api.HandleFunc("/costitems/{id:[0-9]+}", h.GetCostItem).Methods("GET")
	api.HandleFunc("/costitems/{id:[0-9]+}", h.UpdateCostItem).Methods("PUT")
	api.HandleFunc("/costitems/{id:[0-9]+}", h.DeleteCostItem).Methods("DELETE")
	api.HandleFunc("/costitems/{id:[0-9]+}/stock", h.AddStock).Methods("PUT")

	api.HandleFunc("/customers", h.CreateCustomer).Methods("POST")
	api.HandleFunc("/customers/{id:[0-9]+}", h.GetCustomer).Methods("GET")
	return r
}

// HealthCheck provides a health endpoint
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HealthCheck")
	defer span.End()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Store unreachable")
			h.logger.Error("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPreconditionFailed), errors.Is(err, domain.ErrCustomerDisagreed),
		errors.Is(err, domain.ErrRepairCompleted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOutOfStock), errors.Is(err, domain.ErrActionStock):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, span trace.Span, err error) {
	status := statusFor(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.InvalidInputError{Field: "id"}
	}
	return id, nil
}

// maxBodyBytes caps request bodies; every payload here is a small JSON object.
const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return &domain.InvalidInputError{Field: "body"}
	}
	return nil
}

func parseDate(field, value string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, &domain.InvalidInputError{Field: field}
	}
	return d, nil
}
