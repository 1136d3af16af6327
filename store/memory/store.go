// Package memory provides an in-memory implementation of the garage store used for
// tests and ephemeral environments. Transactions run against a clone of the state
// that replaces the committed state only when the transaction function succeeds.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"fadedreams/garage/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.Store = (*Store)(nil)

type state struct {
	repairs      map[int64]*domain.Repair
	items        map[int64]*domain.CostItem
	customers    map[int64]*domain.Customer
	outbox       map[string]*domain.OutboxEvent
	outboxOrder  []string
	nextRepair   int64
	nextItem     int64
	nextCustomer int64
}

func newState() state {
	return state{
		repairs:   make(map[int64]*domain.Repair),
		items:     make(map[int64]*domain.CostItem),
		customers: make(map[int64]*domain.Customer),
		outbox:    make(map[string]*domain.OutboxEvent),
	}
}

func (s state) clone() state {
	c := state{
		repairs:      make(map[int64]*domain.Repair, len(s.repairs)),
		items:        make(map[int64]*domain.CostItem, len(s.items)),
		customers:    maps.Clone(s.customers),
		outbox:       make(map[string]*domain.OutboxEvent, len(s.outbox)),
		outboxOrder:  slices.Clone(s.outboxOrder),
		nextRepair:   s.nextRepair,
		nextItem:     s.nextItem,
		nextCustomer: s.nextCustomer,
	}
	for k, v := range s.repairs {
		c.repairs[k] = v.Clone()
	}
	for k, v := range s.items {
		c.items[k] = v.Clone()
	}
	for k, v := range s.outbox {
		e := *v
		c.outbox[k] = &e
	}
	return c
}

type txKey struct{}

type transaction struct {
	state *state
}

// Store is a mutex-guarded in-memory store. Transactions are serialized.
type Store struct {
	mu    sync.RWMutex
	state state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithTransaction runs fn against a private copy of the state and commits it when fn
// succeeds. Calls nested inside a running transaction join it.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*transaction); ok {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	tx := &transaction{state: &working}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if tx, ok := ctx.Value(txKey{}).(*transaction); ok {
		return fn(tx.state)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

func (s *Store) update(ctx context.Context, fn func(st *state) error) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		tx := ctx.Value(txKey{}).(*transaction)
		return fn(tx.state)
	})
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// CreateRepair assigns the next id and stores the repair.
func (s *Store) CreateRepair(ctx context.Context, repair *domain.Repair) (*domain.Repair, error) {
	var created *domain.Repair
	err := s.update(ctx, func(st *state) error {
		st.nextRepair++
		r := repair.Clone()
		r.ID = st.nextRepair
		st.repairs[r.ID] = r
		created = r.Clone()
		return nil
	})
	return created, err
}

// GetRepairByID returns a copy of the repair.
func (s *Store) GetRepairByID(ctx context.Context, id int64) (*domain.Repair, error) {
	var out *domain.Repair
	err := s.view(ctx, func(st *state) error {
		r, ok := st.repairs[id]
		if !ok {
			return domain.RepairNotFound(id)
		}
		out = r.Clone()
		return nil
	})
	return out, err
}

// GetRepairForUpdate is GetRepairByID; transactions already hold the store lock.
func (s *Store) GetRepairForUpdate(ctx context.Context, id int64) (*domain.Repair, error) {
	return s.GetRepairByID(ctx, id)
}

// GetAllRepairs returns every repair ordered by id.
func (s *Store) GetAllRepairs(ctx context.Context) ([]*domain.Repair, error) {
	var out []*domain.Repair
	err := s.view(ctx, func(st *state) error {
		for _, id := range slices.Sorted(maps.Keys(st.repairs)) {
			out = append(out, st.repairs[id].Clone())
		}
		return nil
	})
	return out, err
}

// UpdateRepair replaces a stored repair.
func (s *Store) UpdateRepair(ctx context.Context, repair *domain.Repair) error {
	return s.update(ctx, func(st *state) error {
		if _, ok := st.repairs[repair.ID]; !ok {
			return domain.RepairNotFound(repair.ID)
		}
		st.repairs[repair.ID] = repair.Clone()
		return nil
	})
}

// DeleteRepair removes a repair.
func (s *Store) DeleteRepair(ctx context.Context, id int64) error {
	return s.update(ctx, func(st *state) error {
		if _, ok := st.repairs[id]; !ok {
			return domain.RepairNotFound(id)
		}
		delete(st.repairs, id)
		return nil
	})
}

// FindCustomerIDsToCall returns customers with a CANCELED or COMPLETED repair.
func (s *Store) FindCustomerIDsToCall(ctx context.Context) ([]int64, error) {
	var out []int64
	err := s.view(ctx, func(st *state) error {
		seen := make(map[int64]bool)
		for _, r := range st.repairs {
			if r.Status == domain.StatusUncompleted || seen[r.CustomerID] {
				continue
			}
			seen[r.CustomerID] = true
			out = append(out, r.CustomerID)
		}
		slices.Sort(out)
		return nil
	})
	return out, err
}

// CreateCostItem assigns the next id and stores the item.
func (s *Store) CreateCostItem(ctx context.Context, item *domain.CostItem) (*domain.CostItem, error) {
	var created *domain.CostItem
	err := s.update(ctx, func(st *state) error {
		st.nextItem++
		c := item.Clone()
		c.ID = st.nextItem
		st.items[c.ID] = c
		created = c.Clone()
		return nil
	})
	return created, err
}

// GetCostItemByID returns a copy of the item.
func (s *Store) GetCostItemByID(ctx context.Context, id int64) (*domain.CostItem, error) {
	var out *domain.CostItem
	err := s.view(ctx, func(st *state) error {
		c, ok := st.items[id]
		if !ok {
			return domain.CostItemNotFound(id)
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

// GetCostItemForUpdate is GetCostItemByID; transactions already hold the store lock.
func (s *Store) GetCostItemForUpdate(ctx context.Context, id int64) (*domain.CostItem, error) {
	return s.GetCostItemByID(ctx, id)
}

// GetAllCostItems returns every item ordered by id.
func (s *Store) GetAllCostItems(ctx context.Context) ([]*domain.CostItem, error) {
	var out []*domain.CostItem
	err := s.view(ctx, func(st *state) error {
		for _, id := range slices.Sorted(maps.Keys(st.items)) {
			out = append(out, st.items[id].Clone())
		}
		return nil
	})
	return out, err
}

// FindCostItemsByIDs returns items in input order.
func (s *Store) FindCostItemsByIDs(ctx context.Context, ids []int64) ([]*domain.CostItem, error) {
	var out []*domain.CostItem
	err := s.view(ctx, func(st *state) error {
		for _, id := range ids {
			if c, ok := st.items[id]; ok {
				out = append(out, c.Clone())
			}
		}
		return nil
	})
	return out, err
}

// UpdateCostItem replaces a stored item.
func (s *Store) UpdateCostItem(ctx context.Context, item *domain.CostItem) error {
	return s.update(ctx, func(st *state) error {
		if _, ok := st.items[item.ID]; !ok {
			return domain.CostItemNotFound(item.ID)
		}
		st.items[item.ID] = item.Clone()
		return nil
	})
}

// DecrementStock removes units from a PART.
func (s *Store) DecrementStock(ctx context.Context, id int64, units int, allowNegative bool) error {
	return s.update(ctx, func(st *state) error {
		c, ok := st.items[id]
		if !ok {
			return domain.CostItemNotFound(id)
		}
		if !c.IsPart() {
			return nil
		}
		if !allowNegative && c.Stock < units {
			return &domain.OutOfStockError{ItemID: id}
		}
		c.Stock -= units
		return nil
	})
}

// DeleteCostItem removes an item.
func (s *Store) DeleteCostItem(ctx context.Context, id int64) error {
	return s.update(ctx, func(st *state) error {
		if _, ok := st.items[id]; !ok {
			return domain.CostItemNotFound(id)
		}
		delete(st.items, id)
		return nil
	})
}

// CreateCustomer assigns the next id and stores the customer.
func (s *Store) CreateCustomer(ctx context.Context, customer *domain.Customer) (*domain.Customer, error) {
	var created domain.Customer
	err := s.update(ctx, func(st *state) error {
		st.nextCustomer++
		c := *customer
		c.ID = st.nextCustomer
		st.customers[c.ID] = &c
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetCustomerByID returns a copy of the customer.
func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	var out domain.Customer
	err := s.view(ctx, func(st *state) error {
		c, ok := st.customers[id]
		if !ok {
			return domain.CustomerNotFound(id)
		}
		out = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Exists reports whether a customer id is known.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := s.view(ctx, func(st *state) error {
		_, ok = st.customers[id]
		return nil
	})
	return ok, err
}

// FindByIDs resolves customer ids, skipping unknown ones.
func (s *Store) FindByIDs(ctx context.Context, ids []int64) ([]*domain.Customer, error) {
	var out []*domain.Customer
	err := s.view(ctx, func(st *state) error {
		for _, id := range ids {
			if c, ok := st.customers[id]; ok {
				cp := *c
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

// SaveOutboxEvent appends an event.
func (s *Store) SaveOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	return s.update(ctx, func(st *state) error {
		e := *event
		if _, exists := st.outbox[e.ID]; !exists {
			st.outboxOrder = append(st.outboxOrder, e.ID)
		}
		st.outbox[e.ID] = &e
		return nil
	})
}

// GetUnprocessedOutboxEvents returns up to limit pending events, oldest first.
func (s *Store) GetUnprocessedOutboxEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var out []*domain.OutboxEvent
	err := s.view(ctx, func(st *state) error {
		for _, id := range st.outboxOrder {
			if limit > 0 && len(out) == limit {
				break
			}
			if e := st.outbox[id]; !e.Processed {
				cp := *e
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

// MarkOutboxEventProcessed removes a published event from the store.
func (s *Store) MarkOutboxEventProcessed(ctx context.Context, eventID string) error {
	return s.update(ctx, func(st *state) error {
		if _, ok := st.outbox[eventID]; !ok {
			return nil
		}
		delete(st.outbox, eventID)
		st.outboxOrder = slices.DeleteFunc(st.outboxOrder, func(id string) bool { return id == eventID })
		return nil
	})
}
