package imgrec

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"

	"github.com/labctl/wfslab/generichttp"
)

func fixedDay() time.Time {
	return time.Date(2021, 3, 14, 15, 9, 26, 0, time.UTC)
}

func TestWriteFITSRoundTrip(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	cards := []fitsio.Card{{Name: "INSTRUME", Value: "WFS20-5C", Comment: "instrument"}}
	buf := &bytes.Buffer{}
	if err := WriteFITS(buf, cards, data, 3, 2); err != nil {
		t.Fatal(err)
	}
	f, err := fitsio.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		t.Fatalf("primary HDU is %T, not an image", f.HDU(0))
	}
	if diff := cmp.Diff([]int{3, 2}, img.Header().Axes()); diff != "" {
		t.Errorf("axes mismatch (-want +got):\n%s", diff)
	}
	card := img.Header().Get("INSTRUME")
	if card == nil || card.Value != "WFS20-5C" {
		t.Errorf("INSTRUME card = %v, want WFS20-5C", card)
	}
	got := make([]float32, len(data))
	if err := img.Read(&got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFITSSizeMismatch(t *testing.T) {
	err := WriteFITS(&bytes.Buffer{}, nil, []float32{1, 2, 3}, 2, 2)
	if err == nil {
		t.Error("expected an error for 3 elements in a 2x2 image")
	}
}

func TestRecorderIncrementsAndSkipsExisting(t *testing.T) {
	root, err := ioutil.TempDir("", "imgrec")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(root)
	r := NewRecorder(root, "wf")
	r.now = fixedDay
	day := filepath.Join(root, "2021-03-14")
	if err := os.MkdirAll(day, 0777); err != nil {
		t.Fatal(err)
	}
	// a file left from an earlier run
	if err := ioutil.WriteFile(filepath.Join(day, "wf000004.fits"), nil, 0666); err != nil {
		t.Fatal(err)
	}
	first, err := r.Record(nil, []float32{0}, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Record(nil, []float32{0}, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(day, "wf000005.fits"), filepath.Join(day, "wf000006.fits")}
	if diff := cmp.Diff(want, []string{first, second}); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorderWithoutRoot(t *testing.T) {
	r := &Recorder{Enabled: true}
	if r.Active() {
		t.Error("a recorder without a root should not be active")
	}
	if _, err := r.Next(); err == nil {
		t.Error("expected an error without a root folder")
	}
}

type table generichttp.RouteTable

func (t table) RT() generichttp.RouteTable {
	return generichttp.RouteTable(t)
}

func TestHTTPWrapperPrefix(t *testing.T) {
	rec := NewRecorder("", "img")
	rt := table{}
	NewHTTPWrapper(rec).Inject(rt)
	if len(rt) != 6 {
		t.Fatalf("injected %d routes, want 6", len(rt))
	}
	mux := chi.NewRouter()
	rt.RT().Bind(mux)

	req := httptest.NewRequest(http.MethodPost, "/autowrite/prefix", strings.NewReader(`{"str":"wf"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("POST prefix status %d", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/autowrite/prefix", nil))
	got := generichttp.StrT{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Str != "wf" {
		t.Errorf("prefix = %q, want wf", got.Str)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/autowrite/enabled", strings.NewReader("nope")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body status %d, want 400", w.Code)
	}
}
