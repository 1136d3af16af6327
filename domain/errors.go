package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is at the transport boundary.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrPreconditionFailed = errors.New("previous step uncompleted")
	ErrCustomerDisagreed  = errors.New("customer disagreed with the repair")
	ErrRepairCompleted    = errors.New("repair already completed")
	ErrOutOfStock         = errors.New("part out of stock")
	ErrActionStock        = errors.New("cannot add stock to an action")
)

// EntityKind names the kind of record a NotFoundError refers to.
type EntityKind string

const (
	KindRepair   EntityKind = "repair"
	KindCostItem EntityKind = "cost item"
	KindCustomer EntityKind = "customer"
)

// Lifecycle steps reported by PreconditionError.
const (
	StepFoundProblems    = "set found problems"
	StepScheduleRepair   = "schedule repair"
	StepAssignParts      = "assign parts"
	StepCompleteOrCancel = "complete or cancel repair"
	StepCallCustomer     = "call customer"
)

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind EntityKind
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidInputError reports a missing or malformed input field.
type InvalidInputError struct {
	Field string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Field)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// PreconditionError reports that a lifecycle step must be completed first.
type PreconditionError struct {
	RequiredStep string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("previous step uncompleted: %s", e.RequiredStep)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPreconditionFailed }

// OutOfStockError reports a PART that cannot cover the requested units.
type OutOfStockError struct {
	ItemID int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("part with id %d is out of stock", e.ItemID)
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

// ActionStockError reports an attempt to stock an ACTION item.
type ActionStockError struct {
	ItemID int64
}

func (e *ActionStockError) Error() string {
	return fmt.Sprintf("cost item with id %d is an action and has no stock", e.ItemID)
}

func (e *ActionStockError) Is(target error) bool { return target == ErrActionStock }

func notFound(kind EntityKind, id int64) error { return &NotFoundError{Kind: kind, ID: id} }

// RepairNotFound builds the error returned for an unknown repair id.
func RepairNotFound(id int64) error { return notFound(KindRepair, id) }

// CostItemNotFound builds the error returned for an unknown cost item id.
func CostItemNotFound(id int64) error { return notFound(KindCostItem, id) }

// CustomerNotFound builds the error returned for an unknown customer id.
func CustomerNotFound(id int64) error { return notFound(KindCustomer, id) }
