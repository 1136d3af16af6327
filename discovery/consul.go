// Package discovery registers the service with Consul and resolves its dependencies.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrServiceNotFound is returned when Consul knows no healthy instance of a service.
var ErrServiceNotFound = errors.New("service not found in Consul")

// Registration describes how the service is reachable.
type Registration struct {
	Name     string
	Address  string
	HTTPPort int
	GRPCPort int
}

// ID is the Consul service id, unique per name and port.
func (r Registration) ID() string {
	return r.Name + "-" + strconv.Itoa(r.HTTPPort)
}

// Client wraps the Consul agent API.
type Client struct {
	consul *api.Client
	logger *slog.Logger
}

// NewClient connects to the agent at address.
func NewClient(address string, logger *slog.Logger) (*Client, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = address
	consulClient, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}
	return &Client{consul: consulClient, logger: logger}, nil
}

// Register announces the service with an HTTP check on /health and, when a gRPC
// port is set, a gRPC health check.
func (c *Client) Register(reg Registration) error {
	checks := api.AgentServiceChecks{{
		Name:                           "http-health",
		HTTP:                           fmt.Sprintf("http://%s/health", net.JoinHostPort(reg.Address, strconv.Itoa(reg.HTTPPort))),
		Interval:                       "10s",
		Timeout:                        "5s",
		DeregisterCriticalServiceAfter: "1m",
	}}
	if reg.GRPCPort > 0 {
		checks = append(checks, &api.AgentServiceCheck{
			Name:     "grpc-health",
			GRPC:     net.JoinHostPort(reg.Address, strconv.Itoa(reg.GRPCPort)) + "/" + reg.Name,
			Interval: "10s",
			Timeout:  "5s",
		})
	}
	registration := &api.AgentServiceRegistration{
		ID:      reg.ID(),
		Name:    reg.Name,
		Port:    reg.HTTPPort,
		Address: reg.Address,
		Tags:    []string{"http", "grpc"},
		Meta:    map[string]string{"grpc_port": strconv.Itoa(reg.GRPCPort)},
		Checks:  checks,
	}
	if err := c.consul.Agent().ServiceRegister(registration); err != nil {
		c.logger.Error("Failed to register with Consul", "serviceID", reg.ID(), "error", err)
		return fmt.Errorf("failed to register with Consul: %w", err)
	}
	c.logger.Info("Registered with Consul", "serviceID", reg.ID())
	return nil
}

// Deregister removes the service registration.
func (c *Client) Deregister(reg Registration) error {
	if err := c.consul.Agent().ServiceDeregister(reg.ID()); err != nil {
		return fmt.Errorf("failed to deregister from Consul: %w", err)
	}
	c.logger.Info("Deregistered from Consul", "serviceID", reg.ID())
	return nil
}

// Resolve returns host:port of the first healthy instance of serviceName.
func (c *Client) Resolve(ctx context.Context, serviceName string) (string, error) {
	ctx, span := otel.Tracer("garage-service").Start(ctx, "ConsulResolve")
	defer span.End()
	span.SetAttributes(attribute.String("serviceName", serviceName))

	entries, _, err := c.consul.Health().Service(serviceName, "", true, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query Consul")
		return "", fmt.Errorf("failed to query Consul for %s: %w", serviceName, err)
	}
	if len(entries) == 0 {
		span.SetStatus(codes.Error, ErrServiceNotFound.Error())
		return "", fmt.Errorf("%s: %w", serviceName, ErrServiceNotFound)
	}
	svc := entries[0].Service
	host := svc.Address
	if host == "" {
		host = entries[0].Node.Address
	}
	addr := net.JoinHostPort(host, strconv.Itoa(svc.Port))
	span.SetAttributes(attribute.String("address", addr))
	c.logger.Info("Resolved service from Consul", "serviceName", serviceName, "address", addr)
	return addr, nil
}
