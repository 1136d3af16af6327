package mongodb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"fadedreams/garage/domain"
	"fadedreams/garage/service"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDecimalConversion(t *testing.T) {
	for _, in := range []string{"0", "45.00", "65.5", "1234567.891"} {
		d := decimal.RequireFromString(in)
		v, err := toDecimal128(d)
		if err != nil {
			t.Fatalf("toDecimal128(%s): %v", in, err)
		}
		back, err := fromDecimal128(v)
		if err != nil {
			t.Fatalf("fromDecimal128(%s): %v", v, err)
		}
		if !back.Equal(d) {
			t.Errorf("%s came back as %s", in, back)
		}
	}
}

func TestRepairDocKeepsEmptyParts(t *testing.T) {
	r, _ := domain.NewRepair(1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	doc, err := newRepairDoc(r)
	if err != nil {
		t.Fatalf("newRepairDoc: %v", err)
	}
	back, _ := doc.toDomain()
	if back.PartsRecorded() {
		t.Fatalf("unassigned parts decoded as recorded")
	}

	doc.PartsRecorded = true
	doc.PartsUsed = nil
	doc.OtherActionsPrice, _ = primitive.ParseDecimal128("30")
	back, _ = doc.toDomain()
	if !back.PartsRecorded() || len(back.PartsUsed) != 0 || !back.OtherActionsPrice.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("decoded = %+v", back)
	}
}

// openTestStore connects to GARAGE_TEST_MONGO_URI, which must point at a replica set.
func openTestStore(t *testing.T) *MongoRepository {
	t.Helper()
	uri := os.Getenv("GARAGE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("GARAGE_TEST_MONGO_URI not set")
	}
	client, err := Connect(uri, 1, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	db := fmt.Sprintf("garage_test_%d", time.Now().UnixNano())
	repo := NewMongoRepository(client, db)
	if err := repo.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("indexes: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_ = client.Database(db).Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return repo
}

func TestMongoStockAndTransactions(t *testing.T) {
	repo := openTestStore(t)
	ctx := context.Background()

	part, _ := domain.NewCostItem("Clutch kit", decimal.RequireFromString("210.40"), domain.CategoryPart)
	part.Stock = 2
	part, err := repo.CreateCostItem(ctx, part)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	err = repo.WithTransaction(ctx, func(ctx context.Context) error {
		if err := repo.DecrementStock(ctx, part.ID, 2, false); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("transaction error = %v", err)
	}
	got, _ := repo.GetCostItemByID(ctx, part.ID)
	if got.Stock != 2 || !got.UnitCost.Equal(decimal.RequireFromString("210.4")) {
		t.Fatalf("after rollback = %+v", got)
	}

	var oos *domain.OutOfStockError
	if err := repo.DecrementStock(ctx, part.ID, 3, false); !errors.As(err, &oos) {
		t.Fatalf("overdraw: got %v", err)
	}
	if err := repo.DecrementStock(ctx, 424242, 1, false); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown item: got %v", err)
	}
}

func TestMongoRepairRoundTrip(t *testing.T) {
	repo := openTestStore(t)
	ctx := context.Background()

	customer, err := repo.CreateCustomer(ctx, &domain.Customer{Name: "Marta", LicensePlate: "9876XYZ"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	r, _ := domain.NewRepair(customer.ID, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))
	r, err = repo.CreateRepair(ctx, r)
	if err != nil {
		t.Fatalf("create repair: %v", err)
	}
	_ = r.RecordFoundProblems("gearbox")
	_ = r.Schedule(time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC))
	_ = r.AssignParts([]int64{}, decimal.RequireFromString("80"))
	_ = r.Complete()
	if err := repo.UpdateRepair(ctx, r); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.GetRepairForUpdate(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.PartsRecorded() || len(got.PartsUsed) != 0 || got.Status != domain.StatusCompleted || !got.Agreed() {
		t.Fatalf("stored repair = %+v", got)
	}
	ids, err := repo.FindCustomerIDsToCall(ctx)
	if err != nil || len(ids) != 1 || ids[0] != customer.ID {
		t.Fatalf("customers to call = %v, %v", ids, err)
	}
	if err := repo.DeleteRepair(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetRepairByID(ctx, r.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get deleted: %v", err)
	}
}

func TestMongoConcurrentAssignmentsForLastUnit(t *testing.T) {
	repo := openTestStore(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repairs := service.NewRepairService(repo, logger)
	inventory := service.NewInventoryService(repo, logger)
	customers := service.NewCustomerService(repo, logger)

	customer, err := customers.CreateCustomer(ctx, "Ana", "600", "1234ABC")
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	pump, err := inventory.RegisterCostItem(ctx, "Water pump", decimal.NewFromInt(150), domain.CategoryPart)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := inventory.AddStock(ctx, pump.ID, 1); err != nil {
		t.Fatalf("add stock: %v", err)
	}

	const n = 8
	ids := make([]int64, n)
	for i := range ids {
		r, err := repairs.CreateRepair(ctx, customer.ID, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("create repair: %v", err)
		}
		if _, err := repairs.RecordFoundProblems(ctx, r.ID, "leak"); err != nil {
			t.Fatalf("found problems: %v", err)
		}
		if _, err := repairs.ScheduleRepair(ctx, r.ID, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)); err != nil {
			t.Fatalf("schedule: %v", err)
		}
		ids[i] = r.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := repairs.AssignParts(ctx, id, []int64{pump.ID}, decimal.Zero)
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
		}(id)
	}
	wg.Wait()

	if succeeded != 1 || rejected != n-1 {
		t.Fatalf("succeeded=%d rejected=%d", succeeded, rejected)
	}
	got, err := inventory.GetCostItem(ctx, pump.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stock != 0 {
		t.Fatalf("stock = %d, want 0", got.Stock)
	}
}
