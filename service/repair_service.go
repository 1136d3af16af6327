package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"fadedreams/garage/domain"
	"fadedreams/garage/pricing"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RepairService drives the repair lifecycle. Every mutation runs in one store
// transaction that locks the repair, applies the lifecycle rule and writes the
// outbox event.
type RepairService struct {
	base
	store  domain.Store
	policy Policy
	enc    domain.EventEncoder
	nowFn  func() time.Time
}

// NewRepairService creates a repair service over store.
func NewRepairService(store domain.Store, logger *slog.Logger, opts ...Option) *RepairService {
	o := buildOptions(opts)
	return &RepairService{
		base:   newBase(logger, o.metrics),
		store:  store,
		policy: o.policy,
		enc:    o.encoder,
		nowFn:  o.nowFn,
	}
}

// recordEvent writes an outbox event for repair inside the running transaction.
func (s *RepairService) recordEvent(ctx context.Context, eventType string, repair *domain.Repair) error {
	if s.enc == nil {
		return nil
	}
	now := s.nowFn().UTC()
	payload, err := s.enc.EncodeRepairEvent(eventType, repair, now)
	if err != nil {
		return err
	}
	return s.store.SaveOutboxEvent(ctx, &domain.OutboxEvent{
		ID:        newEventID(),
		EventType: eventType,
		RepairID:  repair.ID,
		Payload:   payload,
		CreatedAt: now,
	})
}

// mutate loads repairID for update, applies fn and persists the result with an event.
// On error nothing is written.
func (s *RepairService) mutate(ctx context.Context, span trace.Span, repairID int64, eventType string, fn func(r *domain.Repair) error) (*domain.Repair, error) {
	span.SetAttributes(attribute.Int64("repairID", repairID))
	var updated *domain.Repair
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		r, err := s.store.GetRepairForUpdate(ctx, repairID)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		if err := s.store.UpdateRepair(ctx, r); err != nil {
			return err
		}
		if err := s.recordEvent(ctx, eventType, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CreateRepair opens a repair for an existing customer.
func (s *RepairService) CreateRepair(ctx context.Context, customerID int64, examinationDate time.Time) (*domain.Repair, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceCreateRepair")
	defer span.End()
	span.SetAttributes(attribute.Int64("customerID", customerID))

	var created *domain.Repair
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.store.Exists(ctx, customerID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.CustomerNotFound(customerID)
		}
		repair, err := domain.NewRepair(customerID, examinationDate)
		if err != nil {
			return err
		}
		created, err = s.store.CreateRepair(ctx, repair)
		if err != nil {
			return err
		}
		return s.recordEvent(ctx, domain.EventRepairCreated, created)
	})
	if err := s.finish(ctx, span, "create repair", err, "customerID", customerID); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("repairID", created.ID))
	s.logger.Info("Created repair", "repairID", created.ID, "customerID", customerID)
	return created, nil
}

// GetRepair returns one repair.
func (s *RepairService) GetRepair(ctx context.Context, repairID int64) (*domain.Repair, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceGetRepair")
	defer span.End()
	span.SetAttributes(attribute.Int64("repairID", repairID))

	repair, err := s.store.GetRepairByID(ctx, repairID)
	if err := s.finish(ctx, span, "get repair", err, "repairID", repairID); err != nil {
		return nil, err
	}
	return repair, nil
}

// ListRepairs returns every repair ordered by id.
func (s *RepairService) ListRepairs(ctx context.Context) ([]*domain.Repair, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceListRepairs")
	defer span.End()

	repairs, err := s.store.GetAllRepairs(ctx)
	if err := s.finish(ctx, span, "list repairs", err); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(repairs)))
	return repairs, nil
}

// RecordFoundProblems stores the examination findings.
func (s *RepairService) RecordFoundProblems(ctx context.Context, repairID int64, foundProblems string) (*domain.Repair, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceRecordFoundProblems")
	defer span.End()

	repair, err := s.mutate(ctx, span, repairID, domain.EventFoundProblems, func(r *domain.Repair) error {
		return r.RecordFoundProblems(foundProblems)
	})
	if err := s.finish(ctx, span, "record found problems", err, "repairID", repairID); err != nil {
		return nil, err
	}
	s.logger.Info("Recorded found problems", "repairID", repairID)
	return repair, nil
}

// CancelRepair records that the customer declined the repair.
func (s *RepairService) CancelRepair(ctx context.Context, repairID int64) (*domain.Repair, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceCancelRepair")
	defer span.End()

	repair, err := s.mutate(ctx, span, repairID, domain.EventRepairCanceled, func(r *domain.Repair) error {
		return r.Cancel()
	})
	if err := s.finish(ctx, span, "cancel repair", err, "repairID", repairID); err != nil {
		return nil, err
	}
	s.logger.Info("Canceled repair", "repairID", repairID)
	return repair, nil
}

// ScheduleRepair records the customer's agreement and the repair date.
func (s *RepairService) ScheduleRepair(ctx context.Context, repairID int64, repairDate time.Time) (*domain.Repair, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceScheduleRepair")
	defer span.End()

	repair, err := s.mutate(ctx, span, repairID, domain.EventRepairScheduled, func(r *domain.Repair) error {
		return r.Schedule(repairDate)
	})
	if err := s.finish(ctx, span, "schedule repair", err, "repairID", repairID); err != nil {
		return nil, err
	}
	s.logger.Info("Scheduled repair", "repairID", repairID, "repairDate", repairDate.Format(time.DateOnly))
	return repair, nil
}

// AssignParts records the cost items used and the extra labour price, consuming one
// stock unit of every PART per occurrence in partIDs. Items are locked in ascending
// id order; errors are reported for the first offending id in request order.
func (s *RepairService) AssignParts(ctx context.Context, repairID int64, partIDs []int64, otherActionsPrice decimal.Decimal) (*domain.Repair, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceAssignParts")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("repairID", repairID),
		attribute.Int64Slice("partIDs", partIDs),
		attribute.String("otherActionsPrice", otherActionsPrice.String()),
	)

	if err := domain.ValidatePartsRequest(partIDs, otherActionsPrice); err != nil {
		return nil, s.finish(ctx, span, "assign parts", err, "repairID", repairID)
	}
	usage := domain.CountParts(partIDs)

	var (
		updated  *domain.Repair
		consumed int
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		consumed = 0
		items, err := s.lockItems(ctx, usage.Order)
		if err != nil {
			return err
		}
		for _, id := range usage.Order {
			item, ok := items[id]
			if !ok {
				return domain.CostItemNotFound(id)
			}
			if s.policy.RejectOutOfStock && !item.CanSupply(usage.Counts[id]) {
				return &domain.OutOfStockError{ItemID: id}
			}
		}

		r, err := s.store.GetRepairForUpdate(ctx, repairID)
		if err != nil {
			return err
		}
		if err := r.AssignParts(partIDs, otherActionsPrice); err != nil {
			return err
		}
		for _, id := range usage.Order {
			if !items[id].IsPart() {
				continue
			}
			if err := s.store.DecrementStock(ctx, id, usage.Counts[id], !s.policy.RejectOutOfStock); err != nil {
				return err
			}
			consumed += usage.Counts[id]
		}
		if err := s.store.UpdateRepair(ctx, r); err != nil {
			return err
		}
		if err := s.recordEvent(ctx, domain.EventPartsAssigned, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err := s.finish(ctx, span, "assign parts", err, "repairID", repairID, "partIDs", partIDs); err != nil {
		return nil, err
	}
	s.metrics.AddPartsConsumed(consumed)
	s.logger.Info("Assigned parts", "repairID", repairID, "parts", len(partIDs), "stockConsumed", consumed)
	return updated, nil
}

// lockItems loads the distinct ids in ascending order so that concurrent assignments
// acquire row locks in the same sequence. Unknown ids are absent from the result.
func (s *RepairService) lockItems(ctx context.Context, ids []int64) (map[int64]*domain.CostItem, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	items := make(map[int64]*domain.CostItem, len(sorted))
	for _, id := range sorted {
		item, err := s.store.GetCostItemForUpdate(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		items[id] = item
	}
	return items, nil
}

// CompleteRepair marks the repair as done.
func (s *RepairService) CompleteRepair(ctx context.Context, repairID int64) (*domain.Repair, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceCompleteRepair")
	defer span.End()

	repair, err := s.mutate(ctx, span, repairID, domain.EventRepairCompleted, func(r *domain.Repair) error {
		return r.Complete()
	})
	if err := s.finish(ctx, span, "complete repair", err, "repairID", repairID); err != nil {
		return nil, err
	}
	s.logger.Info("Completed repair", "repairID", repairID)
	return repair, nil
}

// MarkCustomerCalled records that the customer was told the repair is finished.
func (s *RepairService) MarkCustomerCalled(ctx context.Context, repairID int64) (*domain.Repair, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceMarkCustomerCalled")
	defer span.End()

	repair, err := s.mutate(ctx, span, repairID, domain.EventCustomerCalled, func(r *domain.Repair) error {
		return r.MarkCalled()
	})
	if err := s.finish(ctx, span, "mark customer called", err, "repairID", repairID); err != nil {
		return nil, err
	}
	s.logger.Info("Marked customer called", "repairID", repairID)
	return repair, nil
}

// MarkPaid records the payment of the repair.
func (s *RepairService) MarkPaid(ctx context.Context, repairID int64) (*domain.Repair, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceMarkPaid")
	defer span.End()

	repair, err := s.mutate(ctx, span, repairID, domain.EventRepairPaid, func(r *domain.Repair) error {
		return r.MarkPaid()
	})
	if err := s.finish(ctx, span, "mark repair paid", err, "repairID", repairID); err != nil {
		return nil, err
	}
	s.logger.Info("Marked repair paid", "repairID", repairID)
	return repair, nil
}

// DeleteRepair removes a repair. Consumed stock is not returned.
func (s *RepairService) DeleteRepair(ctx context.Context, repairID int64) error {
	ctx, span := s.tracer.Start(ctx, "ServiceDeleteRepair")
	defer span.End()
	span.SetAttributes(attribute.Int64("repairID", repairID))

	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		r, err := s.store.GetRepairForUpdate(ctx, repairID)
		if err != nil {
			return err
		}
		if err := s.store.DeleteRepair(ctx, repairID); err != nil {
			return err
		}
		return s.recordEvent(ctx, domain.EventRepairDeleted, r)
	})
	if err := s.finish(ctx, span, "delete repair", err, "repairID", repairID); err != nil {
		return err
	}
	s.logger.Info("Deleted repair", "repairID", repairID)
	return nil
}

// CustomersToCall returns the customers whose repair is canceled or completed.
func (s *RepairService) CustomersToCall(ctx context.Context) ([]*domain.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceCustomersToCall")
	defer span.End()

	customers := []*domain.Customer{}
	ids, err := s.store.FindCustomerIDsToCall(ctx)
	if err == nil && len(ids) > 0 {
		customers, err = s.store.FindByIDs(ctx, ids)
	}
	if err := s.finish(ctx, span, "find customers to call", err); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(customers)))
	return customers, nil
}

// Receipt prices a repair whose customer has been called. It reads the recorded
// state without changing it.
func (s *RepairService) Receipt(ctx context.Context, repairID int64) (*pricing.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceReceipt")
	defer span.End()
	span.SetAttributes(attribute.Int64("repairID", repairID))

	var receipt *pricing.Receipt
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		r, err := s.store.GetRepairByID(ctx, repairID)
		if err != nil {
			return err
		}
		if !r.Called {
			return &domain.PreconditionError{RequiredStep: domain.StepCallCustomer}
		}
		var items []*domain.CostItem
		if r.Agreed() && len(r.PartsUsed) > 0 {
			items, err = s.store.FindCostItemsByIDs(ctx, r.PartsUsed)
			if err != nil {
				return err
			}
		}
		receipt = pricing.BuildReceipt(r, items)
		return nil
	})
	if err := s.finish(ctx, span, "build receipt", err, "repairID", repairID); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("grandTotal", receipt.GrandTotal.String()))
	return receipt, nil
}
