package metrics

import (
	"errors"
	"fmt"
	"testing"

	"fadedreams/garage/domain"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{domain.RepairNotFound(1), "not_found"},
		{&domain.InvalidInputError{Field: "name"}, "invalid_input"},
		{&domain.PreconditionError{RequiredStep: domain.StepCallCustomer}, "precondition_failed"},
		{domain.ErrCustomerDisagreed, "customer_disagreed"},
		{domain.ErrRepairCompleted, "repair_completed"},
		{fmt.Errorf("wrapped: %w", &domain.OutOfStockError{ItemID: 2}), "out_of_stock"},
		{&domain.ActionStockError{ItemID: 3}, "action_stock"},
		{errors.New("connection reset"), "error"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveOperation("assign_parts", nil)
	m.ObserveOperation("assign_parts", domain.ErrOutOfStock)
	m.ObserveOperation("assign_parts", nil)
	m.AddPartsConsumed(3)
	m.AddPartsConsumed(0)
	m.ObservePublish(errors.New("broker down"))

	if got := counterValue(t, m, "garage_operations_total", map[string]string{"operation": "assign_parts", "outcome": "ok"}); got != 2 {
		t.Errorf("ok operations = %v, want 2", got)
	}
	if got := counterValue(t, m, "garage_operations_total", map[string]string{"operation": "assign_parts", "outcome": "out_of_stock"}); got != 1 {
		t.Errorf("out_of_stock operations = %v, want 1", got)
	}
	if got := counterValue(t, m, "garage_parts_consumed_total", nil); got != 3 {
		t.Errorf("parts consumed = %v, want 3", got)
	}
	if got := counterValue(t, m, "garage_outbox_published_total", map[string]string{"outcome": "error"}); got != 1 {
		t.Errorf("failed publishes = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("x", nil)
	m.AddPartsConsumed(1)
	m.ObservePublish(nil)
}
