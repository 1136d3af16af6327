package mongodb

import (
	"fmt"
	"time"

	"fadedreams/garage/domain"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// repairDoc is the stored form of a repair. PartsRecorded keeps an empty parts
// list distinct from one that was never assigned.
type repairDoc struct {
	ID                int64                `bson:"_id"`
	CustomerID        int64                `bson:"customer_id"`
	ExaminationDate   time.Time            `bson:"examination_date"`
	FoundProblems     string               `bson:"found_problems"`
	RepairDate        *time.Time           `bson:"repair_date,omitempty"`
	CustomerAgreed    *bool                `bson:"customer_agreed,omitempty"`
	PartsRecorded     bool                 `bson:"parts_recorded"`
	PartsUsed         []int64              `bson:"parts_used"`
	OtherActionsPrice primitive.Decimal128 `bson:"other_actions_price"`
	Status            string               `bson:"status"`
	Called            bool                 `bson:"called"`
	Paid              bool                 `bson:"paid"`
}

type costItemDoc struct {
	ID       int64                `bson:"_id"`
	Name     string               `bson:"name"`
	UnitCost primitive.Decimal128 `bson:"unit_cost"`
	Category string               `bson:"category"`
	Stock    int                  `bson:"stock"`
}

type customerDoc struct {
	ID              int64  `bson:"_id"`
	Name            string `bson:"name"`
	TelephoneNumber string `bson:"telephone_number"`
	LicensePlate    string `bson:"license_plate"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to convert %s to Decimal128: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse Decimal128 %s: %w", v, err)
	}
	return d, nil
}

func newRepairDoc(r *domain.Repair) (*repairDoc, error) {
	price, err := toDecimal128(r.OtherActionsPrice)
	if err != nil {
		return nil, err
	}
	return &repairDoc{
		ID:                r.ID,
		CustomerID:        r.CustomerID,
		ExaminationDate:   r.ExaminationDate.UTC(),
		FoundProblems:     r.FoundProblems,
		RepairDate:        r.RepairDate,
		CustomerAgreed:    r.CustomerAgreed,
		PartsRecorded:     r.PartsRecorded(),
		PartsUsed:         r.PartsUsed,
		OtherActionsPrice: price,
		Status:            string(r.Status),
		Called:            r.Called,
		Paid:              r.Paid,
	}, nil
}

func (d *repairDoc) toDomain() (*domain.Repair, error) {
	price, err := fromDecimal128(d.OtherActionsPrice)
	if err != nil {
		return nil, err
	}
	r := &domain.Repair{
		ID:                d.ID,
		CustomerID:        d.CustomerID,
		ExaminationDate:   d.ExaminationDate.UTC(),
		FoundProblems:     d.FoundProblems,
		CustomerAgreed:    d.CustomerAgreed,
		OtherActionsPrice: price,
		Status:            domain.RepairStatus(d.Status),
		Called:            d.Called,
		Paid:              d.Paid,
	}
	if d.RepairDate != nil {
		rd := d.RepairDate.UTC()
		r.RepairDate = &rd
	}
	if d.PartsRecorded {
		r.PartsUsed = d.PartsUsed
		if r.PartsUsed == nil {
			r.PartsUsed = []int64{}
		}
	}
	return r, nil
}

func newCostItemDoc(c *domain.CostItem) (*costItemDoc, error) {
	cost, err := toDecimal128(c.UnitCost)
	if err != nil {
		return nil, err
	}
	return &costItemDoc{ID: c.ID, Name: c.Name, UnitCost: cost, Category: string(c.Category), Stock: c.Stock}, nil
}

func (d *costItemDoc) toDomain() (*domain.CostItem, error) {
	cost, err := fromDecimal128(d.UnitCost)
	if err != nil {
		return nil, err
	}
	return &domain.CostItem{ID: d.ID, Name: d.Name, UnitCost: cost, Category: domain.Category(d.Category), Stock: d.Stock}, nil
}

func newCustomerDoc(c *domain.Customer) *customerDoc {
	return &customerDoc{ID: c.ID, Name: c.Name, TelephoneNumber: c.TelephoneNumber, LicensePlate: c.LicensePlate}
}

func (d *customerDoc) toDomain() *domain.Customer {
	return &domain.Customer{ID: d.ID, Name: d.Name, TelephoneNumber: d.TelephoneNumber, LicensePlate: d.LicensePlate}
}
