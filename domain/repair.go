package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// RepairStatus is the completion state of a repair.
type RepairStatus string

const (
	StatusUncompleted RepairStatus = "UNCOMPLETED"
	StatusCanceled    RepairStatus = "CANCELED"
	StatusCompleted   RepairStatus = "COMPLETED"
)

// Repair is one vehicle service ticket.
//
// CustomerAgreed is tri-state: nil until the customer decides. PartsUsed is nil until
// the parts step has run; an empty non-nil slice records a parts step without parts.
type Repair struct {
	ID                int64           `json:"id"`
	CustomerID        int64           `json:"customerId"`
	ExaminationDate   time.Time       `json:"examinationDate"`
	FoundProblems     string          `json:"foundProblems"`
	RepairDate        *time.Time      `json:"repairDate"`
	CustomerAgreed    *bool           `json:"customerAgreed"`
	PartsUsed         []int64         `json:"partsUsed"`
	OtherActionsPrice decimal.Decimal `json:"otherActionsPrice"`
	Status            RepairStatus    `json:"status"`
	Called            bool            `json:"called"`
	Paid              bool            `json:"paid"`
}

// NewRepair opens an UNCOMPLETED repair for a customer.
func NewRepair(customerID int64, examinationDate time.Time) (*Repair, error) {
	if examinationDate.IsZero() {
		return nil, &InvalidInputError{Field: "examinationDate"}
	}
	return &Repair{
		CustomerID:        customerID,
		ExaminationDate:   examinationDate,
		OtherActionsPrice: decimal.Zero,
		Status:            StatusUncompleted,
	}, nil
}

// PartsRecorded reports whether the parts step has run.
func (r *Repair) PartsRecorded() bool { return r.PartsUsed != nil }

// Agreed reports whether the customer explicitly agreed.
func (r *Repair) Agreed() bool { return r.CustomerAgreed != nil && *r.CustomerAgreed }

// Disagreed reports whether the customer explicitly disagreed.
func (r *Repair) Disagreed() bool { return r.CustomerAgreed != nil && !*r.CustomerAgreed }

// RecordFoundProblems stores the examination outcome.
func (r *Repair) RecordFoundProblems(text string) error {
	if text == "" {
		return &InvalidInputError{Field: "foundProblems"}
	}
	r.FoundProblems = text
	return nil
}

// Cancel records that the customer declined the repair.
func (r *Repair) Cancel() error {
	if r.FoundProblems == "" {
		return &PreconditionError{RequiredStep: StepFoundProblems}
	}
	r.CustomerAgreed = boolPtr(false)
	r.Status = StatusCanceled
	return nil
}

// Schedule records the customer's agreement and the planned repair date.
func (r *Repair) Schedule(date time.Time) error {
	if date.IsZero() {
		return &InvalidInputError{Field: "repairDate"}
	}
	if r.FoundProblems == "" {
		return &PreconditionError{RequiredStep: StepFoundProblems}
	}
	if r.Disagreed() {
		return ErrCustomerDisagreed
	}
	r.CustomerAgreed = boolPtr(true)
	r.RepairDate = &date
	return nil
}

// CheckAssignParts reports whether the parts step may run on this repair.
func (r *Repair) CheckAssignParts() error {
	if r.Disagreed() {
		return ErrCustomerDisagreed
	}
	if r.CustomerAgreed == nil {
		return &PreconditionError{RequiredStep: StepScheduleRepair}
	}
	if r.Status == StatusCompleted {
		return ErrRepairCompleted
	}
	return nil
}

// AssignParts records the consumed cost items and the free-form price.
func (r *Repair) AssignParts(partIDs []int64, otherActionsPrice decimal.Decimal) error {
	if err := r.CheckAssignParts(); err != nil {
		return err
	}
	parts := make([]int64, len(partIDs))
	copy(parts, partIDs)
	r.PartsUsed = parts
	r.OtherActionsPrice = otherActionsPrice
	return nil
}

// Complete marks the repair COMPLETED.
func (r *Repair) Complete() error {
	if r.Disagreed() {
		return ErrCustomerDisagreed
	}
	if !r.PartsRecorded() {
		return &PreconditionError{RequiredStep: StepAssignParts}
	}
	r.Status = StatusCompleted
	return nil
}

// MarkCalled records that the customer was notified.
func (r *Repair) MarkCalled() error {
	if r.Status == StatusUncompleted {
		return &PreconditionError{RequiredStep: StepCompleteOrCancel}
	}
	r.Called = true
	return nil
}

// MarkPaid records payment.
func (r *Repair) MarkPaid() error {
	if !r.Called {
		return &PreconditionError{RequiredStep: StepCallCustomer}
	}
	r.Paid = true
	return nil
}

// Clone returns a deep copy.
func (r *Repair) Clone() *Repair {
	if r == nil {
		return nil
	}
	c := *r
	if r.RepairDate != nil {
		d := *r.RepairDate
		c.RepairDate = &d
	}
	if r.CustomerAgreed != nil {
		c.CustomerAgreed = boolPtr(*r.CustomerAgreed)
	}
	if r.PartsUsed != nil {
		c.PartsUsed = slices.Clone(r.PartsUsed)
		if c.PartsUsed == nil {
			c.PartsUsed = []int64{}
		}
	}
	return &c
}

// ValidatePartsRequest checks an AssignParts request before any store is touched.
func ValidatePartsRequest(partIDs []int64, otherActionsPrice decimal.Decimal) error {
	if otherActionsPrice.IsNegative() {
		return &InvalidInputError{Field: "otherActionsPrice"}
	}
	if len(partIDs) == 0 && otherActionsPrice.IsZero() {
		return &InvalidInputError{Field: "partsUsed, otherActionsPrice"}
	}
	return nil
}

// PartUsage counts occurrences of each id, keeping first-appearance order.
type PartUsage struct {
	Order  []int64
	Counts map[int64]int
}

// CountParts groups a parts list by id.
func CountParts(partIDs []int64) PartUsage {
	u := PartUsage{Counts: make(map[int64]int, len(partIDs))}
	for _, id := range partIDs {
		if u.Counts[id] == 0 {
			u.Order = append(u.Order, id)
		}
		u.Counts[id]++
	}
	return u
}

func boolPtr(b bool) *bool { return &b }
