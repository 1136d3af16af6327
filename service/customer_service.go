package service

import (
	"context"
	"log/slog"

	"fadedreams/garage/domain"

	"go.opentelemetry.io/otel/attribute"
)

// CustomerService registers and looks up customers.
type CustomerService struct {
	base
	store domain.CustomerRepository
}

// NewCustomerService creates a customer service.
func NewCustomerService(store domain.CustomerRepository, logger *slog.Logger, opts ...Option) *CustomerService {
	o := buildOptions(opts)
	return &CustomerService{base: newBase(logger, o.metrics), store: store}
}

// CreateCustomer registers a customer.
func (s *CustomerService) CreateCustomer(ctx context.Context, name, telephoneNumber, licensePlate string) (*domain.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceCreateCustomer")
	defer span.End()

	customer, err := domain.NewCustomer(name, telephoneNumber, licensePlate)
	if err == nil {
		customer, err = s.store.CreateCustomer(ctx, customer)
	}
	if err := s.finish(ctx, span, "create customer", err); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("customerID", customer.ID))
	s.logger.Info("Created customer", "customerID", customer.ID)
	return customer, nil
}

// GetCustomer returns one customer.
func (s *CustomerService) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceGetCustomer")
	defer span.End()
	span.SetAttributes(attribute.Int64("customerID", id))

	customer, err := s.store.GetCustomerByID(ctx, id)
	if err := s.finish(ctx, span, "get customer", err, "customerID", id); err != nil {
		return nil, err
	}
	return customer, nil
}
