package service

import (
	"context"
	"log/slog"

	"fadedreams/garage/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// InventoryService manages the catalog of cost items and their stock.
type InventoryService struct {
	base
	store  domain.Store
	policy Policy
}

// NewInventoryService creates an inventory service over store.
func NewInventoryService(store domain.Store, logger *slog.Logger, opts ...Option) *InventoryService {
	o := buildOptions(opts)
	return &InventoryService{base: newBase(logger, o.metrics), store: store, policy: o.policy}
}

// RegisterCostItem adds a catalog entry. PARTs start with no stock, ACTIONs with NoStock.
func (s *InventoryService) RegisterCostItem(ctx context.Context, name string, cost decimal.Decimal, category domain.Category) (*domain.CostItem, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceRegisterCostItem")
	defer span.End()
	span.SetAttributes(attribute.String("name", name), attribute.String("category", string(category)))

	item, err := domain.NewCostItem(name, cost, category)
	if err == nil {
		item, err = s.store.CreateCostItem(ctx, item)
	}
	if err := s.finish(ctx, span, "register cost item", err, "name", name); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("costItemID", item.ID))
	s.logger.Info("Registered cost item", "costItemID", item.ID, "category", item.Category)
	return item, nil
}

// GetCostItem returns one catalog entry.
func (s *InventoryService) GetCostItem(ctx context.Context, id int64) (*domain.CostItem, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceGetCostItem")
	defer span.End()
	span.SetAttributes(attribute.Int64("costItemID", id))

	item, err := s.store.GetCostItemByID(ctx, id)
	if err := s.finish(ctx, span, "get cost item", err, "costItemID", id); err != nil {
		return nil, err
	}
	return item, nil
}

// ListCostItems returns the whole catalog ordered by id.
func (s *InventoryService) ListCostItems(ctx context.Context) ([]*domain.CostItem, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceListCostItems")
	defer span.End()

	items, err := s.store.GetAllCostItems(ctx)
	if err := s.finish(ctx, span, "list cost items", err); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(items)))
	return items, nil
}

// FindCostItems resolves ids in input order, repeating duplicates and skipping unknown ids.
func (s *InventoryService) FindCostItems(ctx context.Context, ids []int64) ([]*domain.CostItem, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceFindCostItems")
	defer span.End()
	span.SetAttributes(attribute.Int64Slice("costItemIDs", ids))

	items, err := s.store.FindCostItemsByIDs(ctx, ids)
	if err := s.finish(ctx, span, "find cost items", err); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateCostItem replaces the editable fields of an item.
func (s *InventoryService) UpdateCostItem(ctx context.Context, id int64, fields domain.CostItemFields) (*domain.CostItem, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceUpdateCostItem")
	defer span.End()
	span.SetAttributes(attribute.Int64("costItemID", id))

	var updated *domain.CostItem
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		item, err := s.store.GetCostItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := item.Apply(fields); err != nil {
			return err
		}
		if err := s.store.UpdateCostItem(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err := s.finish(ctx, span, "update cost item", err, "costItemID", id); err != nil {
		return nil, err
	}
	s.logger.Info("Updated cost item", "costItemID", id)
	return updated, nil
}

// AddStock adds units to a PART. ACTION items fail with ActionStockError when the
// policy rejects them and are left unchanged otherwise.
func (s *InventoryService) AddStock(ctx context.Context, id int64, amount int) (*domain.CostItem, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceAddStock")
	defer span.End()
	span.SetAttributes(attribute.Int64("costItemID", id), attribute.Int("amount", amount))

	var updated *domain.CostItem
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		item, err := s.store.GetCostItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := item.AddStock(amount, s.policy.RejectActionStock); err != nil {
			return err
		}
		if item.IsPart() {
			if err := s.store.UpdateCostItem(ctx, item); err != nil {
				return err
			}
		}
		updated = item
		return nil
	})
	if err := s.finish(ctx, span, "add stock", err, "costItemID", id, "amount", amount); err != nil {
		return nil, err
	}
	s.logger.Info("Added stock", "costItemID", id, "amount", amount, "stock", updated.Stock)
	return updated, nil
}

// DeleteCostItem removes a catalog entry. Repairs that reference it keep the id.
func (s *InventoryService) DeleteCostItem(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "ServiceDeleteCostItem")
	defer span.End()
	span.SetAttributes(attribute.Int64("costItemID", id))

	err := s.store.DeleteCostItem(ctx, id)
	if err := s.finish(ctx, span, "delete cost item", err, "costItemID", id); err != nil {
		return err
	}
	s.logger.Info("Deleted cost item", "costItemID", id)
	return nil
}
