package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"fadedreams/garage/domain"
	"fadedreams/garage/store/memory"

	"github.com/shopspring/decimal"
)

var (
	examDay   = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	repairDay = time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
)

type recordingEncoder struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEncoder) EncodeRepairEvent(eventType string, repair *domain.Repair, _ time.Time) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, eventType)
	return []byte(eventType), nil
}

type fixture struct {
	store     *memory.Store
	repairs   *RepairService
	inventory *InventoryService
	customers *CustomerService
	customer  *domain.Customer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	f := &fixture{
		store:     store,
		repairs:   NewRepairService(store, logger, opts...),
		inventory: NewInventoryService(store, logger, opts...),
		customers: NewCustomerService(store, logger, opts...),
	}
	c, err := f.customers.CreateCustomer(context.Background(), "Ana Lopez", "600123123", "1234ABC")
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	f.customer = c
	return f
}

func (f *fixture) part(t *testing.T, name, cost string, stock int) *domain.CostItem {
	t.Helper()
	ctx := context.Background()
	item, err := f.inventory.RegisterCostItem(ctx, name, decimal.RequireFromString(cost), domain.CategoryPart)
	if err != nil {
		t.Fatalf("register part: %v", err)
	}
	if stock > 0 {
		if item, err = f.inventory.AddStock(ctx, item.ID, stock); err != nil {
			t.Fatalf("add stock: %v", err)
		}
	}
	return item
}

func (f *fixture) action(t *testing.T, name, cost string) *domain.CostItem {
	t.Helper()
	item, err := f.inventory.RegisterCostItem(context.Background(), name, decimal.RequireFromString(cost), domain.CategoryAction)
	if err != nil {
		t.Fatalf("register action: %v", err)
	}
	return item
}

// scheduled returns a repair ready for parts assignment.
func (f *fixture) scheduled(t *testing.T) *domain.Repair {
	t.Helper()
	ctx := context.Background()
	r, err := f.repairs.CreateRepair(ctx, f.customer.ID, examDay)
	if err != nil {
		t.Fatalf("create repair: %v", err)
	}
	if _, err := f.repairs.RecordFoundProblems(ctx, r.ID, "worn brake pads"); err != nil {
		t.Fatalf("found problems: %v", err)
	}
	r, err = f.repairs.ScheduleRepair(ctx, r.ID, repairDay)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	return r
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	item, err := f.inventory.GetCostItem(context.Background(), id)
	if err != nil {
		t.Fatalf("get cost item: %v", err)
	}
	return item.Stock
}

func TestFullLifecycleReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pad := f.part(t, "Brake pad", "100.00", 2)
	fitting := f.action(t, "Fitting", "65.50")
	r := f.scheduled(t)

	if _, err := f.repairs.AssignParts(ctx, r.ID, []int64{pad.ID, fitting.ID}, decimal.Zero); err != nil {
		t.Fatalf("assign parts: %v", err)
	}
	if got := f.stock(t, pad.ID); got != 1 {
		t.Fatalf("pad stock = %d, want 1", got)
	}
	if got := f.stock(t, fitting.ID); got != domain.NoStock {
		t.Fatalf("action stock = %d, want %d", got, domain.NoStock)
	}
	if _, err := f.repairs.CompleteRepair(ctx, r.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	var pe *domain.PreconditionError
	if _, err := f.repairs.Receipt(ctx, r.ID); !errors.As(err, &pe) || pe.RequiredStep != domain.StepCallCustomer {
		t.Fatalf("receipt before call: got %v", err)
	}
	if _, err := f.repairs.MarkCustomerCalled(ctx, r.ID); err != nil {
		t.Fatalf("called: %v", err)
	}
	rc, err := f.repairs.Receipt(ctx, r.ID)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if want := decimal.RequireFromString("254.705"); !rc.GrandTotal.Equal(want) {
		t.Fatalf("grand total = %s, want %s", rc.GrandTotal, want)
	}
	if _, err := f.repairs.MarkPaid(ctx, r.ID); err != nil {
		t.Fatalf("paid: %v", err)
	}
	got, err := f.repairs.GetRepair(ctx, r.ID)
	if err != nil {
		t.Fatalf("get repair: %v", err)
	}
	if got.Status != domain.StatusCompleted || !got.Called || !got.Paid {
		t.Fatalf("final repair = %+v", got)
	}
}

func TestCanceledRepairBillsExaminationOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r, _ := f.repairs.CreateRepair(ctx, f.customer.ID, examDay)
	_, _ = f.repairs.RecordFoundProblems(ctx, r.ID, "rust")
	if _, err := f.repairs.CancelRepair(ctx, r.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.repairs.MarkCustomerCalled(ctx, r.ID); err != nil {
		t.Fatalf("called: %v", err)
	}
	rc, err := f.repairs.Receipt(ctx, r.ID)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if want := decimal.RequireFromString("54.45"); !rc.GrandTotal.Equal(want) {
		t.Fatalf("grand total = %s, want %s", rc.GrandTotal, want)
	}
}

func TestCreateRepairValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	var nf *domain.NotFoundError
	if _, err := f.repairs.CreateRepair(ctx, 404, examDay); !errors.As(err, &nf) || nf.Kind != domain.KindCustomer {
		t.Fatalf("unknown customer: got %v", err)
	}
	if _, err := f.repairs.CreateRepair(ctx, f.customer.ID, time.Time{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing date: got %v", err)
	}
	repairs, _ := f.repairs.ListRepairs(ctx)
	if len(repairs) != 0 {
		t.Fatalf("failed creates stored %d repairs", len(repairs))
	}
}

func TestFailedTransitionLeavesRepairUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r, _ := f.repairs.CreateRepair(ctx, f.customer.ID, examDay)

	steps := []struct {
		name string
		call func() error
		want error
	}{
		{"cancel", func() error { _, err := f.repairs.CancelRepair(ctx, r.ID); return err }, domain.ErrPreconditionFailed},
		{"schedule", func() error { _, err := f.repairs.ScheduleRepair(ctx, r.ID, repairDay); return err }, domain.ErrPreconditionFailed},
		{"complete", func() error { _, err := f.repairs.CompleteRepair(ctx, r.ID); return err }, domain.ErrPreconditionFailed},
		{"called", func() error { _, err := f.repairs.MarkCustomerCalled(ctx, r.ID); return err }, domain.ErrPreconditionFailed},
		{"paid", func() error { _, err := f.repairs.MarkPaid(ctx, r.ID); return err }, domain.ErrPreconditionFailed},
		{"missing", func() error { _, err := f.repairs.CancelRepair(ctx, r.ID+100); return err }, domain.ErrNotFound},
	}
	for _, st := range steps {
		t.Run(st.name, func(t *testing.T) {
			if err := st.call(); !errors.Is(err, st.want) {
				t.Fatalf("got %v, want %v", err, st.want)
			}
			got, err := f.repairs.GetRepair(ctx, r.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != domain.StatusUncompleted || got.CustomerAgreed != nil || got.Called || got.Paid {
				t.Fatalf("repair changed: %+v", got)
			}
		})
	}
}

func TestAssignPartsOutOfStockIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	filter := f.part(t, "Filter", "20", 3)
	bulb := f.part(t, "Bulb", "5", 1)
	r := f.scheduled(t)

	_, err := f.repairs.AssignParts(ctx, r.ID, []int64{filter.ID, bulb.ID, bulb.ID}, decimal.Zero)
	var oos *domain.OutOfStockError
	if !errors.As(err, &oos) || oos.ItemID != bulb.ID {
		t.Fatalf("got %v, want out of stock for %d", err, bulb.ID)
	}
	if got := f.stock(t, filter.ID); got != 3 {
		t.Fatalf("filter stock = %d, want 3", got)
	}
	if got := f.stock(t, bulb.ID); got != 1 {
		t.Fatalf("bulb stock = %d, want 1", got)
	}
	got, _ := f.repairs.GetRepair(ctx, r.ID)
	if got.PartsRecorded() {
		t.Fatalf("parts recorded after failure: %v", got.PartsUsed)
	}
}

func TestAssignPartsErrorOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	empty := f.part(t, "Hose", "8", 0)
	r := f.scheduled(t)

	var nf *domain.NotFoundError
	if _, err := f.repairs.AssignParts(ctx, r.ID, []int64{90, 12, empty.ID}, decimal.Zero); !errors.As(err, &nf) || nf.ID != 90 || nf.Kind != domain.KindCostItem {
		t.Fatalf("got %v, want cost item 90 not found", err)
	}
	var oos *domain.OutOfStockError
	if _, err := f.repairs.AssignParts(ctx, r.ID, []int64{empty.ID, 77}, decimal.Zero); !errors.As(err, &oos) {
		t.Fatalf("got %v, want out of stock before missing id", err)
	}
	if _, err := f.repairs.AssignParts(ctx, r.ID, nil, decimal.Zero); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty request: got %v", err)
	}
	if _, err := f.repairs.AssignParts(ctx, r.ID+1, nil, decimal.NewFromInt(10)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown repair: got %v", err)
	}
}

func TestAssignPartsRequiresSchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bolt := f.part(t, "Bolt", "1", 5)
	r, _ := f.repairs.CreateRepair(ctx, f.customer.ID, examDay)
	_, _ = f.repairs.RecordFoundProblems(ctx, r.ID, "loose")

	var pe *domain.PreconditionError
	if _, err := f.repairs.AssignParts(ctx, r.ID, []int64{bolt.ID}, decimal.Zero); !errors.As(err, &pe) || pe.RequiredStep != domain.StepScheduleRepair {
		t.Fatalf("got %v", err)
	}
	if got := f.stock(t, bolt.ID); got != 5 {
		t.Fatalf("stock consumed by rejected assignment: %d", got)
	}

	_, _ = f.repairs.CancelRepair(ctx, r.ID)
	if _, err := f.repairs.AssignParts(ctx, r.ID, []int64{bolt.ID}, decimal.Zero); !errors.Is(err, domain.ErrCustomerDisagreed) {
		t.Fatalf("assign after cancel: got %v", err)
	}
}

func TestAssignPartsAllowsNegativeStockWhenPolicyOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithPolicy(Policy{}))
	bulb := f.part(t, "Bulb", "5", 1)
	r := f.scheduled(t)

	if _, err := f.repairs.AssignParts(ctx, r.ID, []int64{bulb.ID, bulb.ID, bulb.ID}, decimal.Zero); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got := f.stock(t, bulb.ID); got != -2 {
		t.Fatalf("stock = %d, want -2", got)
	}
}

func TestAssignPartsSucceedsAfterRestock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	belt := f.part(t, "Timing belt", "80", 0)
	r := f.scheduled(t)

	if _, err := f.repairs.AssignParts(ctx, r.ID, []int64{belt.ID}, decimal.Zero); !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("assign with empty stock: got %v", err)
	}
	if _, err := f.inventory.AddStock(ctx, belt.ID, 1); err != nil {
		t.Fatalf("add stock: %v", err)
	}
	got, err := f.repairs.AssignParts(ctx, r.ID, []int64{belt.ID}, decimal.Zero)
	if err != nil {
		t.Fatalf("assign after restock: %v", err)
	}
	if !got.PartsRecorded() || len(got.PartsUsed) != 1 || got.PartsUsed[0] != belt.ID {
		t.Fatalf("parts used = %v", got.PartsUsed)
	}
	if stock := f.stock(t, belt.ID); stock != 0 {
		t.Fatalf("stock = %d, want 0", stock)
	}
}

func TestAssignPartsRejectedAfterCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bolt := f.part(t, "Bolt", "1", 5)
	r := f.scheduled(t)

	if _, err := f.repairs.AssignParts(ctx, r.ID, []int64{bolt.ID}, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.repairs.CompleteRepair(ctx, r.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.repairs.AssignParts(ctx, r.ID, []int64{bolt.ID, bolt.ID}, decimal.Zero); !errors.Is(err, domain.ErrRepairCompleted) {
		t.Fatalf("assign after completion: got %v", err)
	}
	if got := f.stock(t, bolt.ID); got != 4 {
		t.Fatalf("stock = %d, want 4", got)
	}
	got, _ := f.repairs.GetRepair(ctx, r.ID)
	if len(got.PartsUsed) != 1 || !got.OtherActionsPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("completed repair changed: parts=%v price=%s", got.PartsUsed, got.OtherActionsPrice)
	}
}

func TestConcurrentAssignmentsForLastUnit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pump := f.part(t, "Water pump", "150", 1)
	const n = 8
	repairs := make([]*domain.Repair, n)
	for i := range repairs {
		repairs[i] = f.scheduled(t)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for _, r := range repairs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.repairs.AssignParts(ctx, id, []int64{pump.ID}, decimal.Zero)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrOutOfStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(r.ID)
	}
	wg.Wait()

	if succeeded != 1 || rejected != n-1 {
		t.Fatalf("succeeded=%d rejected=%d", succeeded, rejected)
	}
	if got := f.stock(t, pump.ID); got != 0 {
		t.Fatalf("stock = %d, want 0", got)
	}
}

func TestCustomersToCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other, _ := f.customers.CreateCustomer(ctx, "Luis", "", "")

	if got, err := f.repairs.CustomersToCall(ctx); err != nil || len(got) != 0 {
		t.Fatalf("no repairs: got %v %v", got, err)
	}

	r := f.scheduled(t)
	_, _ = f.repairs.AssignParts(ctx, r.ID, nil, decimal.NewFromInt(30))
	_, _ = f.repairs.CompleteRepair(ctx, r.ID)
	open, _ := f.repairs.CreateRepair(ctx, other.ID, examDay)

	got, err := f.repairs.CustomersToCall(ctx)
	if err != nil {
		t.Fatalf("customers to call: %v", err)
	}
	if len(got) != 1 || got[0].ID != f.customer.ID {
		t.Fatalf("got %+v, want only customer %d", got, f.customer.ID)
	}

	_, _ = f.repairs.RecordFoundProblems(ctx, open.ID, "dent")
	_, _ = f.repairs.CancelRepair(ctx, open.ID)
	if got, _ := f.repairs.CustomersToCall(ctx); len(got) != 2 {
		t.Fatalf("after cancel got %d customers, want 2", len(got))
	}
}

func TestDeleteRepairKeepsStockConsumed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	belt := f.part(t, "Belt", "30", 2)
	r := f.scheduled(t)
	_, _ = f.repairs.AssignParts(ctx, r.ID, []int64{belt.ID}, decimal.Zero)

	if err := f.repairs.DeleteRepair(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.repairs.GetRepair(ctx, r.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get deleted: got %v", err)
	}
	if got := f.stock(t, belt.ID); got != 1 {
		t.Fatalf("stock = %d, want 1", got)
	}
	if err := f.repairs.DeleteRepair(ctx, r.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
}

func TestAddStockActionPolicy(t *testing.T) {
	ctx := context.Background()

	lenient := newFixture(t)
	wash := lenient.action(t, "Wash", "15")
	item, err := lenient.inventory.AddStock(ctx, wash.ID, 4)
	if err != nil || item.Stock != domain.NoStock {
		t.Fatalf("lenient add stock: item=%+v err=%v", item, err)
	}

	strict := newFixture(t, WithPolicy(Policy{RejectOutOfStock: true, RejectActionStock: true}))
	wash = strict.action(t, "Wash", "15")
	if _, err := strict.inventory.AddStock(ctx, wash.ID, 4); !errors.Is(err, domain.ErrActionStock) {
		t.Fatalf("strict add stock: got %v", err)
	}
	if _, err := strict.inventory.AddStock(ctx, 999, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown item: got %v", err)
	}
}

func TestUpdateAndDeleteCostItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	oil := f.part(t, "Oil", "12", 6)

	updated, err := f.inventory.UpdateCostItem(ctx, oil.ID, domain.CostItemFields{
		Name: "Oil change", UnitCost: decimal.NewFromInt(35), Category: domain.CategoryAction, Stock: 6,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Stock != domain.NoStock || updated.Category != domain.CategoryAction {
		t.Fatalf("updated = %+v", updated)
	}
	if _, err := f.inventory.UpdateCostItem(ctx, oil.ID, domain.CostItemFields{Category: domain.CategoryPart}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("invalid update: got %v", err)
	}

	if err := f.inventory.DeleteCostItem(ctx, oil.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, _ := f.inventory.FindCostItems(ctx, []int64{oil.ID})
	if len(items) != 0 {
		t.Fatalf("deleted item still found: %+v", items)
	}
}

func TestOutboxEventsFollowMutations(t *testing.T) {
	ctx := context.Background()
	enc := &recordingEncoder{}
	f := newFixture(t, WithEventEncoder(enc))
	r := f.scheduled(t)

	if _, err := f.repairs.CompleteRepair(ctx, r.ID); err == nil {
		t.Fatalf("complete without parts succeeded")
	}
	pending, err := f.store.GetUnprocessedOutboxEvents(ctx, 0)
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	want := []string{domain.EventRepairCreated, domain.EventFoundProblems, domain.EventRepairScheduled}
	if len(pending) != len(want) {
		t.Fatalf("outbox has %d events, want %d", len(pending), len(want))
	}
	for i, e := range pending {
		if e.EventType != want[i] || e.RepairID != r.ID || string(e.Payload) != want[i] {
			t.Errorf("event %d = %+v, want %s", i, e, want[i])
		}
	}
}

func TestCustomerLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.customers.CreateCustomer(ctx, "", "1", "X"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty name: got %v", err)
	}
	got, err := f.customers.GetCustomer(ctx, f.customer.ID)
	if err != nil || got.LicensePlate != "1234ABC" {
		t.Fatalf("get customer: %+v %v", got, err)
	}
	if _, err := f.customers.GetCustomer(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown customer: got %v", err)
	}
}
