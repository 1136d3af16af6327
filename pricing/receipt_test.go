package pricing

import (
	"strings"
	"testing"
	"time"

	"fadedreams/garage/domain"

	"github.com/shopspring/decimal"
)

func agreedRepair(t *testing.T, parts []int64, other string) *domain.Repair {
	t.Helper()
	r, err := domain.NewRepair(1, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new repair: %v", err)
	}
	r.ID = 7
	if err := r.RecordFoundProblems("brakes"); err != nil {
		t.Fatalf("found problems: %v", err)
	}
	if err := r.Schedule(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := r.AssignParts(parts, decimal.RequireFromString(other)); err != nil {
		t.Fatalf("assign parts: %v", err)
	}
	return r
}

func TestBuildReceiptGrandTotal(t *testing.T) {
	part := &domain.CostItem{ID: 1, Name: "Brake pad", UnitCost: decimal.RequireFromString("100.00"), Category: domain.CategoryPart}
	action := &domain.CostItem{ID: 2, Name: "Fitting", UnitCost: decimal.RequireFromString("65.50"), Category: domain.CategoryAction, Stock: domain.NoStock}
	r := agreedRepair(t, []int64{2, 1}, "0")

	rc := BuildReceipt(r, []*domain.CostItem{action, part})

	if want := decimal.RequireFromString("210.5"); !rc.Total.Equal(want) {
		t.Fatalf("total = %s, want %s", rc.Total, want)
	}
	if want := decimal.RequireFromString("254.705"); !rc.GrandTotal.Equal(want) {
		t.Fatalf("grand total = %s, want %s", rc.GrandTotal, want)
	}
	kinds := []LineKind{LineExamination, LinePart, LineAction, LineOther}
	if len(rc.Lines) != len(kinds) {
		t.Fatalf("lines = %d, want %d", len(rc.Lines), len(kinds))
	}
	for i, k := range kinds {
		if rc.Lines[i].Kind != k {
			t.Errorf("line %d kind = %s, want %s", i, rc.Lines[i].Kind, k)
		}
	}
	if want := decimal.RequireFromString("21"); !rc.Lines[1].Tax.Equal(want) {
		t.Errorf("part tax = %s, want %s", rc.Lines[1].Tax, want)
	}
}

func TestBuildReceiptDuplicatePartsBilledPerOccurrence(t *testing.T) {
	part := &domain.CostItem{ID: 1, Name: "Bulb", UnitCost: decimal.RequireFromString("10"), Category: domain.CategoryPart}
	r := agreedRepair(t, []int64{1, 1}, "5")

	rc := BuildReceipt(r, []*domain.CostItem{part, part})

	if want := decimal.RequireFromString("70"); !rc.Total.Equal(want) {
		t.Fatalf("total = %s, want %s", rc.Total, want)
	}
}

func TestBuildReceiptExaminationOnly(t *testing.T) {
	tests := []struct {
		name   string
		repair func() *domain.Repair
	}{
		{
			name: "canceled",
			repair: func() *domain.Repair {
				r, _ := domain.NewRepair(1, time.Now())
				_ = r.RecordFoundProblems("rust")
				_ = r.Cancel()
				return r
			},
		},
		{
			name: "undecided",
			repair: func() *domain.Repair {
				r, _ := domain.NewRepair(1, time.Now())
				return r
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &domain.CostItem{Name: "ignored", UnitCost: decimal.NewFromInt(999), Category: domain.CategoryPart}
			rc := BuildReceipt(tt.repair(), []*domain.CostItem{item})
			if len(rc.Lines) != 1 || rc.Lines[0].Kind != LineExamination {
				t.Fatalf("lines = %+v, want examination only", rc.Lines)
			}
			if want := decimal.RequireFromString("54.45"); !rc.GrandTotal.Equal(want) {
				t.Fatalf("grand total = %s, want %s", rc.GrandTotal, want)
			}
		})
	}
}

func TestReceiptText(t *testing.T) {
	part := &domain.CostItem{Name: "Filter", UnitCost: decimal.RequireFromString("20"), Category: domain.CategoryPart}
	rc := BuildReceipt(agreedRepair(t, []int64{1}, "0"), []*domain.CostItem{part})

	text := rc.Text()
	for _, want := range []string{"Examination: €45.00", "Parts used:", "Filter: €20.00, VAT: €4.20", "Grand total: €78.65"} {
		if !strings.Contains(text, want) {
			t.Errorf("receipt text missing %q:\n%s", want, text)
		}
	}
}
