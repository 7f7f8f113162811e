package tool

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fundergrid/research-service/internal/eval"
	"github.com/fundergrid/research-service/internal/record"
	"github.com/fundergrid/research-service/internal/store"
	"github.com/fundergrid/research-service/internal/traverse"
)

func newTestRouter(t *testing.T, records []record.Record) http.Handler {
	t.Helper()
	s, err := store.New(records, store.Options{})
	if err != nil {
		t.Fatalf("building store: %v", err)
	}
	coord, err := eval.NewCoordinator(
		traverse.New(s, true, nil),
		map[string]any{"owner": "unknown", "lead": nil},
		4,
	)
	if err != nil {
		t.Fatalf("building coordinator: %v", err)
	}
	h := New(s, coord, Options{
		Name:         "Funder Research Service",
		Instructions: "Search, fetch, and evaluate research records.",
	})
	return NewRouter(h, RouterOptions{})
}

func sampleRecords() []record.Record {
	return []record.Record{
		{
			ID:       "grant-1",
			Title:    "Coral Reef Restoration",
			Text:     "Large-scale reef recovery program in the Pacific.",
			Metadata: map[string]string{"owner": "marine-lab", "region": "pacific"},
		},
		{
			ID:    "grant-2",
			Title: "Urban Air Quality",
			Text:  "Sensor networks for particulate monitoring.",
		},
	}
}

func post(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestSearchReturnsMatchingIDs(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	rec := post(t, router, "/tools/search", `{"query": "reef"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		IDs []string `json:"ids"`
	}
	decode(t, rec, &resp)
	if len(resp.IDs) != 1 || resp.IDs[0] != "grant-1" {
		t.Errorf("ids = %v, want [grant-1]", resp.IDs)
	}
}

func TestSearchEmptyStoreReturnsEmptyList(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(t, router, "/tools/search", `{"query": "anything"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]json.RawMessage
	decode(t, rec, &resp)
	if string(resp["ids"]) != "[]" {
		t.Errorf("ids payload = %s, want []", resp["ids"])
	}
}

func TestSearchRejectsWrongQueryShape(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	tests := []struct {
		name string
		body string
	}{
		{"missing query", `{}`},
		{"null query", `{"query": null}`},
		{"numeric query", `{"query": 7}`},
		{"array query", `{"query": ["reef"]}`},
		{"non-object body", `"reef"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, router, "/tools/search", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			var resp map[string]string
			decode(t, rec, &resp)
			if resp["kind"] != "invalid_type" {
				t.Errorf("kind = %q, want invalid_type", resp["kind"])
			}
		})
	}
}

func TestSearchRejectsBlankQueryAsValidation(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	rec := post(t, router, "/tools/search", `{"query": "   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decode(t, rec, &resp)
	if resp["kind"] != "validation" {
		t.Errorf("kind = %q, want validation", resp["kind"])
	}
}

func TestSearchUnknownMethod(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	rec := post(t, router, "/tools/search", `{"query": "reef", "method": "semantic"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decode(t, rec, &resp)
	if resp["kind"] != "unknown_method" {
		t.Errorf("kind = %q, want unknown_method", resp["kind"])
	}
}

func TestFetchRoundTrip(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	rec := post(t, router, "/tools/fetch", `{"id": "grant-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got record.Record
	decode(t, rec, &got)
	if got.ID != "grant-1" || got.Title != "Coral Reef Restoration" {
		t.Errorf("fetched %+v, want grant-1", got)
	}
	if got.Metadata["owner"] != "marine-lab" {
		t.Errorf("metadata = %v, want owner marine-lab", got.Metadata)
	}
}

func TestFetchUnknownID(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	rec := post(t, router, "/tools/fetch", `{"id": "grant-99"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decode(t, rec, &resp)
	if resp["kind"] != "not_found" {
		t.Errorf("kind = %q, want not_found", resp["kind"])
	}
}

func TestFetchRejectsMalformedID(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	rec := post(t, router, "/tools/fetch", `{"id": "bad id"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decode(t, rec, &resp)
	if resp["kind"] != "validation" {
		t.Errorf("kind = %q, want validation", resp["kind"])
	}
}

func TestEvaluateResolvesVariables(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	rec := post(t, router, "/tools/evaluate", `{"query": "reef"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var vars map[string]any
	decode(t, rec, &vars)
	if vars["owner"] != "marine-lab" {
		t.Errorf("owner = %v, want marine-lab", vars["owner"])
	}
	if got, ok := vars["lead"]; !ok || got != nil {
		t.Errorf("lead = %v (present=%v), want explicit null", got, ok)
	}
}

func TestEvaluateWithoutBodyWalksAllRecords(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	req := httptest.NewRequest(http.MethodPost, "/tools/evaluate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var vars map[string]any
	decode(t, rec, &vars)
	if vars["owner"] != "marine-lab" {
		t.Errorf("owner = %v, want marine-lab", vars["owner"])
	}
}

func TestEvaluateNullQueryWalksAllRecords(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	rec := post(t, router, "/tools/evaluate", `{"query": null}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var vars map[string]any
	decode(t, rec, &vars)
	if vars["owner"] != "marine-lab" {
		t.Errorf("owner = %v, want marine-lab", vars["owner"])
	}
}

func TestHandshakePayload(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	for _, path := range []string{"/handshake", "/mcp/handshake"} {
		rec := get(t, router, path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, rec.Code)
		}
		var resp struct {
			Name         string            `json:"name"`
			Instructions string            `json:"instructions"`
			Endpoints    map[string]string `json:"endpoints"`
			Tools        []ToolInfo        `json:"tools"`
		}
		decode(t, rec, &resp)
		if resp.Name != "Funder Research Service" {
			t.Errorf("%s name = %q", path, resp.Name)
		}
		if resp.Instructions == "" {
			t.Errorf("%s missing instructions", path)
		}
		if resp.Endpoints["tools"] != "/tools" || resp.Endpoints["list"] != "/list" {
			t.Errorf("%s endpoints = %v", path, resp.Endpoints)
		}
		if len(resp.Tools) != 3 {
			t.Errorf("%s lists %d tools, want 3", path, len(resp.Tools))
		}
	}
}

func TestListToolsSorted(t *testing.T) {
	router := newTestRouter(t, sampleRecords())

	rec := get(t, router, "/list")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Tools []ToolInfo `json:"tools"`
	}
	decode(t, rec, &resp)
	want := []string{"evaluate", "fetch", "search"}
	if len(resp.Tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(resp.Tools), len(want))
	}
	for i, name := range want {
		if resp.Tools[i].Name != name {
			t.Errorf("tool[%d] = %q, want %q", i, resp.Tools[i].Name, name)
		}
		if resp.Tools[i].Description == "" {
			t.Errorf("tool %q missing description", name)
		}
	}
}

func TestCacheStatsDisabled(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := get(t, router, "/cache/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Enabled bool `json:"enabled"`
	}
	decode(t, rec, &resp)
	if resp.Enabled {
		t.Error("cache reported enabled without a backing client")
	}
}

func TestRequestIDHeaderPropagated(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := get(t, router, "/list")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("response missing X-Request-Id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/list", nil)
	req.Header.Set("X-Request-Id", "req-fixed-42")
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	if got := out.Header().Get("X-Request-Id"); got != "req-fixed-42" {
		t.Errorf("X-Request-Id = %q, want caller-supplied req-fixed-42", got)
	}
}
