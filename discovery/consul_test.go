package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hashicorp/consul/api"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(strings.TrimPrefix(srv.URL, "http://"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestRegisterSendsChecks(t *testing.T) {
	var got api.AgentServiceRegistration
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agent/service/register" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode registration: %v", err)
		}
	})

	reg := Registration{Name: "garage-service", Address: "garage", HTTPPort: 8083, GRPCPort: 50051}
	if err := c.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got.ID != "garage-service-8083" || got.Port != 8083 {
		t.Fatalf("registration = %+v", got)
	}
	if len(got.Checks) != 2 || got.Checks[0].HTTP != "http://garage:8083/health" || got.Checks[1].GRPC != "garage:50051/garage-service" {
		t.Fatalf("checks = %+v", got.Checks)
	}
}

func TestResolve(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/health/service/kafka":
			_ = json.NewEncoder(w).Encode([]api.ServiceEntry{{
				Node:    &api.Node{Address: "10.0.0.4"},
				Service: &api.AgentService{Service: "kafka", Port: 9094},
			}})
		case "/v1/health/service/zookeeper":
			_, _ = w.Write([]byte("[]"))
		default:
			http.NotFound(w, r)
		}
	})

	addr, err := c.Resolve(context.Background(), "kafka")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if addr != "10.0.0.4:9094" {
		t.Fatalf("addr = %s", addr)
	}
	if _, err := c.Resolve(context.Background(), "zookeeper"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("missing service: got %v", err)
	}
}
