// Package pricing derives itemized bills from recorded repair state.
package pricing

import (
	"fmt"
	"strings"

	"fadedreams/garage/domain"

	"github.com/shopspring/decimal"
)

var (
	// ExaminationFee is billed on every repair.
	ExaminationFee = decimal.RequireFromString("45.00")
	// TaxRate is applied per line and on the subtotal.
	TaxRate = decimal.RequireFromString("0.21")
)

// LineKind groups receipt lines.
type LineKind string

const (
	LineExamination LineKind = "EXAMINATION"
	LinePart        LineKind = "PART"
	LineAction      LineKind = "ACTION"
	LineOther       LineKind = "OTHER"
)

// Line is one priced entry of a receipt.
type Line struct {
	Kind   LineKind        `json:"kind"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	Tax    decimal.Decimal `json:"tax"`
}

// Receipt is the bill of a repair. It is derived on demand and never stored.
type Receipt struct {
	RepairID   int64           `json:"repairId"`
	Lines      []Line          `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	TotalTax   decimal.Decimal `json:"totalTax"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
}

// BuildReceipt prices a repair. items must be the cost items of repair.PartsUsed in
// the same order; it is ignored unless the customer agreed to the repair.
func BuildReceipt(repair *domain.Repair, items []*domain.CostItem) *Receipt {
	rc := &Receipt{RepairID: repair.ID}
	rc.add(LineExamination, "Examination", ExaminationFee)

	if repair.Agreed() {
		for _, item := range items {
			if item.Category == domain.CategoryPart {
				rc.add(LinePart, item.Name, item.UnitCost)
			}
		}
		for _, item := range items {
			if item.Category == domain.CategoryAction {
				rc.add(LineAction, item.Name, item.UnitCost)
			}
		}
		rc.add(LineOther, "Other actions", repair.OtherActionsPrice)
	}

	rc.TotalTax = rc.Total.Mul(TaxRate)
	rc.GrandTotal = rc.Total.Add(rc.TotalTax)
	return rc
}

func (rc *Receipt) add(kind LineKind, name string, amount decimal.Decimal) {
	rc.Lines = append(rc.Lines, Line{Kind: kind, Name: name, Amount: amount, Tax: amount.Mul(TaxRate)})
	rc.Total = rc.Total.Add(amount)
}

// Text renders the receipt as a plain-text bill.
func (rc *Receipt) Text() string {
	var b strings.Builder
	section := LineKind("")
	for _, l := range rc.Lines {
		if l.Kind != section {
			section = l.Kind
			switch section {
			case LinePart:
				b.WriteString("\nParts used:\n")
			case LineAction:
				b.WriteString("\nActions done:\n")
			case LineOther:
				b.WriteString("\n")
			}
		}
		fmt.Fprintf(&b, "%s: €%s, VAT: €%s\n", l.Name, l.Amount.StringFixed(2), l.Tax.StringFixed(2))
	}
	b.WriteString("\n------------------------------------------\n")
	fmt.Fprintf(&b, "Total: €%s, Total VAT: €%s\n", rc.Total.StringFixed(2), rc.TotalTax.StringFixed(2))
	fmt.Fprintf(&b, "Grand total: €%s\n", rc.GrandTotal.StringFixed(2))
	return b.String()
}
