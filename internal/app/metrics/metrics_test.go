package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestInstrumentHandlerRecordsMetrics(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dtu/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	if !metricCounterGreaterOrEqual(t, "substrate_http_requests_total", map[string]string{
		"method": "GET",
		"path":   "/dtu",
		"status": "202",
	}, 1) {
		t.Fatalf("expected http request counter to increment")
	}

	if !metricHistogramCountGreaterOrEqual(t, "substrate_http_request_duration_seconds", map[string]string{
		"method": "GET",
		"path":   "/dtu",
	}, 1) {
		t.Fatalf("expected http duration histogram to record samples")
	}
}

func TestRecordBridgeStage(t *testing.T) {
	RecordBridgeStage("received")
	if !metricCounterGreaterOrEqual(t, "substrate_bridge_events_total", map[string]string{"stage": "received"}, 1) {
		t.Fatal("expected bridge events counter to increase")
	}
}

func TestRecordRouterDispatch(t *testing.T) {
	RecordRouterDispatch(false)
	if !metricCounterGreaterOrEqual(t, "substrate_router_dispatch_total", map[string]string{"lens_shape": "single_lens"}, 1) {
		t.Fatal("expected single-lens dispatch counter to increase")
	}
	RecordRouterDispatch(true)
	if !metricCounterGreaterOrEqual(t, "substrate_router_dispatch_total", map[string]string{"lens_shape": "multi_lens"}, 1) {
		t.Fatal("expected multi-lens dispatch counter to increase")
	}
}

func TestRecordComplianceCheck(t *testing.T) {
	RecordComplianceCheck("structure", "passed")
	if !metricCounterGreaterOrEqual(t, "substrate_compliance_audit_checks_total", map[string]string{
		"phase":   "structure",
		"outcome": "passed",
	}, 1) {
		t.Fatal("expected compliance check counter to increase")
	}
}

func TestRecordFederationEscalation(t *testing.T) {
	RecordFederationEscalation("local", "regional")
	if !metricCounterGreaterOrEqual(t, "substrate_federation_escalations_total", map[string]string{
		"from_tier": "local",
		"to_tier":   "regional",
	}, 1) {
		t.Fatal("expected federation escalation counter to increase")
	}
}

func TestRecordNewshubCompaction(t *testing.T) {
	RecordNewshubCompaction("mega")
	if !metricCounterGreaterOrEqual(t, "substrate_newshub_compaction_total", map[string]string{"tier": "mega"}, 1) {
		t.Fatal("expected newshub compaction counter to increase")
	}
}

func metricCounterGreaterOrEqual(t *testing.T, name string, labels map[string]string, min float64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetCounter() != nil {
				return metric.GetCounter().GetValue() >= min
			}
		}
	}
	return false
}

func metricHistogramCountGreaterOrEqual(t *testing.T, name string, labels map[string]string, min uint64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetHistogram() != nil {
				return metric.GetHistogram().GetSampleCount() >= min
			}
		}
	}
	return false
}

func labelsMatch(metric *io_prometheus_client.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	matched := 0
	for _, lbl := range metric.GetLabel() {
		if val, ok := labels[lbl.GetName()]; ok && val == lbl.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/", "/"},
		{"//", "/"},
		{"/dtu", "/dtu"},
		{"/dtu/test", "/dtu"},
		{"/dtu/test/more", "/dtu"},
		{"dtu", "/dtu"},
		{"dtu/", "/dtu"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := canonicalPath(tt.input)
			if result != tt.expected {
				t.Errorf("canonicalPath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
	sr.WriteHeader(http.StatusNotFound)
	if sr.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", sr.status)
	}

	rec2 := httptest.NewRecorder()
	sr2 := &statusRecorder{ResponseWriter: rec2, status: 0}
	n, err := sr2.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 bytes written, got %d", n)
	}
	if sr2.status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", sr2.status)
	}

	rec3 := httptest.NewRecorder()
	sr3 := &statusRecorder{ResponseWriter: rec3, status: http.StatusCreated}
	sr3.Write([]byte("test"))
	if sr3.status != http.StatusCreated {
		t.Errorf("expected status 201 preserved, got %d", sr3.status)
	}
}

func TestMetaLabel(t *testing.T) {
	tests := []struct {
		name     string
		meta     map[string]string
		expected string
	}{
		{name: "nil map", meta: nil, expected: "unknown"},
		{name: "empty map", meta: map[string]string{}, expected: "unknown"},
		{name: "resource key", meta: map[string]string{"resource": "res-1"}, expected: "res-1"},
		{name: "dtu_id key", meta: map[string]string{"dtu_id": "dtu-1"}, expected: "dtu-1"},
		{name: "lens_id key", meta: map[string]string{"lens_id": "lens-1"}, expected: "lens-1"},
		{name: "cri_id key", meta: map[string]string{"cri_id": "cri-1"}, expected: "cri-1"},
		{name: "query key", meta: map[string]string{"query": "q-1"}, expected: "q-1"},
		{
			name:     "resource takes precedence",
			meta:     map[string]string{"resource": "res-1", "dtu_id": "dtu-1"},
			expected: "res-1",
		},
		{
			name:     "empty resource falls through",
			meta:     map[string]string{"resource": "", "dtu_id": "dtu-1"},
			expected: "dtu-1",
		},
		{
			name:     "all empty returns unknown",
			meta:     map[string]string{"resource": "", "dtu_id": ""},
			expected: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := metaLabel(tt.meta)
			if result != tt.expected {
				t.Errorf("metaLabel(%v) = %q, want %q", tt.meta, result, tt.expected)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	h := Handler()
	if h == nil {
		t.Fatal("Handler() should return non-nil handler")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected non-empty metrics response")
	}
}

func TestInstrumentHandler_MetricsPathPassthrough(t *testing.T) {
	called := false
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected /metrics path to pass through to handler")
	}
}

func TestObservationHooks(t *testing.T) {
	hooks := ObservationHooks("test_ns", "test_sub", "test_op")

	if hooks.OnStart == nil {
		t.Fatal("OnStart should not be nil")
	}
	if hooks.OnComplete == nil {
		t.Fatal("OnComplete should not be nil")
	}

	hooks.OnStart(nil, map[string]string{"resource": "test-res"})
	hooks.OnComplete(nil, map[string]string{"resource": "test-res"}, nil, 100*time.Millisecond)
	hooks.OnComplete(nil, map[string]string{"resource": "test-res"}, fmt.Errorf("test error"), 50*time.Millisecond)

	hooks2 := ObservationHooks("test_ns", "test_sub", "test_op")
	if hooks2.OnStart == nil || hooks2.OnComplete == nil {
		t.Fatal("cached hooks should be valid")
	}
}

func TestSpecificHookFactories(t *testing.T) {
	tests := []struct {
		name  string
		hooks func() interface{}
	}{
		{"BridgeIngestHooks", func() interface{} { return BridgeIngestHooks() }},
		{"CanonicalRegistrationHooks", func() interface{} { return CanonicalRegistrationHooks() }},
		{"CompressionHooks", func() interface{} { return CompressionHooks() }},
		{"FederationPromotionHooks", func() interface{} { return FederationPromotionHooks() }},
		{"ResolverQueryHooks", func() interface{} { return ResolverQueryHooks() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.hooks()
			if result == nil {
				t.Errorf("%s() returned nil", tt.name)
			}
		})
	}
}
