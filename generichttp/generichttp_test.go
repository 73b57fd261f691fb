package generichttp_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"

	"github.com/labctl/wfslab/generichttp"
)

func ExampleSubMuxSanitize() {
	fmt.Println(generichttp.SubMuxSanitize("omc/wfs/*"))
	// Output: /omc/wfs
}

func TestEndpointsSorted(t *testing.T) {
	rt := generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/mla"}: nil,
		{Method: http.MethodGet, Path: "/mla"}:  nil,
		{Method: http.MethodGet, Path: "/lock"}: nil,
	}
	want := []string{"GET /lock", "GET /mla", "POST /mla"}
	if diff := cmp.Diff(want, rt.Endpoints()); diff != "" {
		t.Errorf("endpoints mismatch (-want +got):\n%s", diff)
	}
}

func TestGetFloatEncodesF64(t *testing.T) {
	h := generichttp.GetFloat(func() (float64, error) { return 1.5, nil })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"f64":1.5}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestGetIntPropagatesError(t *testing.T) {
	h := generichttp.GetInt(func() (int, error) { return 0, errors.New("boom") })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestSetIntBadBody(t *testing.T) {
	called := false
	h := generichttp.SetInt(func(int) error { called = true; return nil })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if called {
		t.Error("setter should not run on a malformed body")
	}
}

func TestBindServesRouteList(t *testing.T) {
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/status"}: generichttp.GetString(func() (string, error) { return "ok", nil }),
	}
	r := chi.NewRouter()
	rt.Bind(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `{"str":"ok"}` {
		t.Errorf("unexpected /status body %s", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/route-list", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `["GET /status"]` {
		t.Errorf("unexpected /route-list body %s", got)
	}
}
