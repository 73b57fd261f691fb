package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCheck(t *testing.T) {
	l := New()
	h := l.Check(okHandler())
	l.Lock()

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/wfs/settings", http.StatusLocked},
		{http.MethodGet, "/wfs/settings", http.StatusOK},
		{http.MethodPost, "/wfs/lock", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}

	l.Unlock()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/wfs/settings", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("unlocked POST: expected 200, got %d", rec.Code)
	}
}

func TestHTTPSetGet(t *testing.T) {
	l := New()
	rec := httptest.NewRecorder()
	l.HTTPSet(rec, httptest.NewRequest(http.MethodPost, "/lock", strings.NewReader(`{"bool":true}`)))
	if !l.Locked() {
		t.Fatal("expected locker to be locked")
	}
	rec = httptest.NewRecorder()
	l.HTTPGet(rec, httptest.NewRequest(http.MethodGet, "/lock", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `{"bool":true}` {
		t.Errorf("unexpected body %s", got)
	}
}
