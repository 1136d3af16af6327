package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Category distinguishes stock-tracked parts from billable actions.
type Category string

const (
	CategoryPart   Category = "PART"
	CategoryAction Category = "ACTION"
)

// NoStock is the stock value carried by ACTION items.
const NoStock = -1

// ParseCategory accepts a category name in any case.
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToUpper(strings.TrimSpace(s))) {
	case CategoryPart:
		return CategoryPart, nil
	case CategoryAction:
		return CategoryAction, nil
	}
	return "", &InvalidInputError{Field: "category"}
}

// CostItem is a priced catalog entry.
type CostItem struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	UnitCost decimal.Decimal `json:"cost"`
	Category Category        `json:"category"`
	Stock    int             `json:"stock"`
}

// CostItemFields carries the editable fields of a cost item.
type CostItemFields struct {
	Name     string
	UnitCost decimal.Decimal
	Category Category
	Stock    int
}

func validateFields(name string, cost decimal.Decimal, category Category) error {
	if strings.TrimSpace(name) == "" {
		return &InvalidInputError{Field: "name"}
	}
	if cost.IsNegative() {
		return &InvalidInputError{Field: "cost"}
	}
	if category != CategoryPart && category != CategoryAction {
		return &InvalidInputError{Field: "category"}
	}
	return nil
}

// NewCostItem registers a catalog entry with empty stock.
func NewCostItem(name string, cost decimal.Decimal, category Category) (*CostItem, error) {
	if err := validateFields(name, cost, category); err != nil {
		return nil, err
	}
	item := &CostItem{Name: name, UnitCost: cost, Category: category, Stock: 0}
	if category == CategoryAction {
		item.Stock = NoStock
	}
	return item, nil
}

// IsPart reports whether the item is stock-tracked.
func (c *CostItem) IsPart() bool { return c.Category == CategoryPart }

// Apply replaces the editable fields. ACTION items always end with NoStock, and an
// item turning from ACTION into PART starts from zero.
func (c *CostItem) Apply(f CostItemFields) error {
	if err := validateFields(f.Name, f.UnitCost, f.Category); err != nil {
		return err
	}
	stock := f.Stock
	switch {
	case f.Category == CategoryAction:
		stock = NoStock
	case stock == NoStock:
		stock = 0
	case stock < 0:
		return &InvalidInputError{Field: "stock"}
	}
	c.Name = f.Name
	c.UnitCost = f.UnitCost
	c.Category = f.Category
	c.Stock = stock
	return nil
}

// AddStock adds units to a PART. With rejectAction set, ACTION items fail; otherwise
// they are left untouched so their stock stays NoStock.
func (c *CostItem) AddStock(amount int, rejectAction bool) error {
	if !c.IsPart() {
		if rejectAction {
			return &ActionStockError{ItemID: c.ID}
		}
		return nil
	}
	if c.Stock+amount < 0 {
		return &InvalidInputError{Field: "amount"}
	}
	c.Stock += amount
	return nil
}

// CanSupply reports whether a PART covers the requested units.
func (c *CostItem) CanSupply(units int) bool {
	if !c.IsPart() {
		return true
	}
	return c.Stock > 0 && c.Stock >= units
}

// Clone returns a copy.
func (c *CostItem) Clone() *CostItem {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
