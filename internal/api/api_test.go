package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/stacklio/inventory-agent/internal/api"
	"github.com/stacklio/inventory-agent/internal/domain"
	"github.com/stacklio/inventory-agent/internal/reconcile"
	"github.com/stacklio/inventory-agent/internal/secrets"
	"github.com/stacklio/inventory-agent/internal/stackl"
	"github.com/stacklio/inventory-agent/internal/storage/memory"
)

// testServer creates a test server with in-memory storage and a file-shim
// backed Stackl.
type testServer struct {
	handler      http.Handler
	store        *memory.Store
	shim         *stackl.FileShim
	bootstrapKey string
}

func newTestServer(t *testing.T, instances map[string]domain.StackInstance) *testServer {
	t.Helper()

	path := filepath.Join(t.TempDir(), "instances.json")
	data, err := json.Marshal(instances)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	shim := stackl.NewFileShim(path)

	store := memory.New()
	bootstrapKey := "test-bootstrap-key"
	engine := reconcile.NewEngine(shim, &secrets.Base64Resolver{}, store, zap.NewNop())

	// OIDC disabled for tests (nil verifier)
	handler := api.NewRouter(store, engine, bootstrapKey, nil, zap.NewNop())

	return &testServer{
		handler:      handler,
		store:        store,
		shim:         shim,
		bootstrapKey: bootstrapKey,
	}
}

func (ts *testServer) request(method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func testInstances() map[string]domain.StackInstance {
	return map[string]domain.StackInstance{
		"test-vm": {
			Name: "test-vm",
			Services: map[string][]domain.ServiceDefinition{
				"webapp": {{
					Hosts:                []string{"h1", "h2", "h3", "h4"},
					InfrastructureTarget: "t1",
					ProvisioningParameters: map[string]any{
						"stackl_inventory_groups": []any{
							map[string]any{"tags": []any{"web"}, "count": 2},
							map[string]any{"tags": []any{"db"}, "count": 1},
						},
					},
					Secrets: map[string]string{"pw": "cGFzcw"},
				}},
			},
		},
	}
}

func TestHealthNoAuth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.request(http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(http.MethodGet, "/api/v1/runs", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", rec.Code)
	}

	rec = ts.request(http.MethodGet, "/api/v1/runs", nil, "wrong-key")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with bad key, got %d", rec.Code)
	}

	rec = ts.request(http.MethodGet, "/api/v1/runs", nil, ts.bootstrapKey)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with bootstrap key, got %d", rec.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.request(http.MethodPost, "/api/v1/keys", map[string]string{"name": "ci"}, ts.bootstrapKey)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.CreateAPIKeyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Key == "" {
		t.Fatal("Expected key material in create response")
	}

	// Once a real key exists the bootstrap key stops working.
	rec = ts.request(http.MethodGet, "/api/v1/keys", nil, ts.bootstrapKey)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected bootstrap key to be disabled, got %d", rec.Code)
	}

	rec = ts.request(http.MethodGet, "/api/v1/keys", nil, created.Key)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 with new key, got %d", rec.Code)
	}
	var keys []domain.APIKey
	if err := json.Unmarshal(rec.Body.Bytes(), &keys); err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0].Name != "ci" {
		t.Errorf("Expected one key named ci, got %v", keys)
	}

	rec = ts.request(http.MethodDelete, "/api/v1/keys/"+created.ID, nil, created.Key)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	ts := newTestServer(t, testInstances())

	rec := ts.request(http.MethodPost, "/api/v1/instances/test-vm/reconcile", nil, ts.bootstrapKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var run domain.ReconcileRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.Status != domain.RunStatusSuccess || !run.GroupsUpdated {
		t.Errorf("Expected successful first run with group rewrite, got %+v", run)
	}

	rec = ts.request(http.MethodGet, "/api/v1/runs/"+run.ID, nil, ts.bootstrapKey)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected run to be retrievable, got %d", rec.Code)
	}
}

func TestInventoryEndpoint(t *testing.T) {
	ts := newTestServer(t, testInstances())

	rec := ts.request(http.MethodGet, "/api/v1/instances/test-vm/inventory", nil, ts.bootstrapKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	web, ok := doc["web"].(map[string]any)
	if !ok {
		t.Fatalf("Expected web group in inventory, got %v", doc)
	}
	vars, _ := web["vars"].(map[string]any)
	if vars["pw"] != "pass" {
		t.Errorf("Expected resolved secret in group vars, got %v", vars)
	}
}

func TestReconcileUnknownInstance(t *testing.T) {
	ts := newTestServer(t, testInstances())

	rec := ts.request(http.MethodPost, "/api/v1/instances/missing/reconcile", nil, ts.bootstrapKey)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestRunsListing(t *testing.T) {
	ts := newTestServer(t, testInstances())

	for i := 0; i < 3; i++ {
		rec := ts.request(http.MethodPost, "/api/v1/instances/test-vm/reconcile", nil, ts.bootstrapKey)
		if rec.Code != http.StatusOK {
			t.Fatalf("Reconcile %d failed: %d", i, rec.Code)
		}
	}

	rec := ts.request(http.MethodGet, "/api/v1/runs?instance=test-vm&limit=2", nil, ts.bootstrapKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var runs []domain.ReconcileRun
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("Expected limit to apply, got %d runs", len(runs))
	}
}
