package domain

import "context"

// Transactor runs fn as one atomic unit. Repository calls made with the context passed
// to fn take part in the transaction; if fn returns an error nothing is applied.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RepairRepository defines the data access methods for repairs.
// Lookups of an unknown id return a *NotFoundError.
type RepairRepository interface {
	CreateRepair(ctx context.Context, repair *Repair) (*Repair, error)
	GetRepairByID(ctx context.Context, id int64) (*Repair, error)
	// GetRepairForUpdate loads a repair and locks it for the rest of the transaction.
	GetRepairForUpdate(ctx context.Context, id int64) (*Repair, error)
	GetAllRepairs(ctx context.Context) ([]*Repair, error)
	UpdateRepair(ctx context.Context, repair *Repair) error
	DeleteRepair(ctx context.Context, id int64) error
	// FindCustomerIDsToCall returns distinct customer ids of CANCELED or COMPLETED repairs.
	FindCustomerIDsToCall(ctx context.Context) ([]int64, error)
}

// CostItemRepository defines the data access methods for the inventory.
type CostItemRepository interface {
	CreateCostItem(ctx context.Context, item *CostItem) (*CostItem, error)
	GetCostItemByID(ctx context.Context, id int64) (*CostItem, error)
	// GetCostItemForUpdate loads an item and locks it for the rest of the transaction.
	GetCostItemForUpdate(ctx context.Context, id int64) (*CostItem, error)
	GetAllCostItems(ctx context.Context) ([]*CostItem, error)
	// FindCostItemsByIDs returns the items in input order, repeating duplicates and
	// skipping ids that no longer exist.
	FindCostItemsByIDs(ctx context.Context, ids []int64) ([]*CostItem, error)
	UpdateCostItem(ctx context.Context, item *CostItem) error
	// DecrementStock removes units from a PART. Unless allowNegative is set it fails
	// with *OutOfStockError when fewer than units remain, leaving stock untouched.
	DecrementStock(ctx context.Context, id int64, units int, allowNegative bool) error
	DeleteCostItem(ctx context.Context, id int64) error
}

// CustomerLookup is what the repair core needs from the customer collaborator.
type CustomerLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
	FindByIDs(ctx context.Context, ids []int64) ([]*Customer, error)
}

// CustomerRepository is the thin customer collaborator store.
type CustomerRepository interface {
	CustomerLookup
	CreateCustomer(ctx context.Context, customer *Customer) (*Customer, error)
	GetCustomerByID(ctx context.Context, id int64) (*Customer, error)
}

// OutboxRepository stores lifecycle events until they are published.
type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, event *OutboxEvent) error
	GetUnprocessedOutboxEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkOutboxEventProcessed(ctx context.Context, eventID string) error
}

// Store bundles every repository a backend provides.
type Store interface {
	Transactor
	RepairRepository
	CostItemRepository
	CustomerRepository
	OutboxRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
