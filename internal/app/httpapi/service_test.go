package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/concord-network/substrate/internal/app"
)

func newTestApplication(t *testing.T) *app.Application {
	t.Helper()
	application, err := app.New(nil, app.NewMemoryStoresForTest(), nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	return application
}

func TestHealthzReportsOK(t *testing.T) {
	svc := NewService(newTestApplication(t), ":0", nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	svc.handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	svc := NewService(newTestApplication(t), ":0", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	svc.handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestSystemDescriptorsListsRegisteredServices(t *testing.T) {
	svc := NewService(newTestApplication(t), ":0", nil)

	req := httptest.NewRequest(http.MethodGet, "/system/descriptors", nil)
	resp := httptest.NewRecorder()
	svc.handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.Len() == 0 {
		t.Fatal("expected a non-empty descriptor payload")
	}
}

func TestServiceStartStop(t *testing.T) {
	svc := NewService(newTestApplication(t), "127.0.0.1:0", nil)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
