package wfs

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io/ioutil"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"

	"github.com/labctl/wfslab/generichttp"
	"github.com/labctl/wfslab/imgrec"
)

type httpFixture struct {
	mock    *Mock
	sensor  *Sensor
	mux     *chi.Mux
	dir     string
	records *RecordFile
}

func newHTTPFixture(t *testing.T, idlePolls int) *httpFixture {
	t.Helper()
	m, s, _ := openMock(t, idlePolls, DefaultSettings())
	dir, err := ioutil.TempDir("", "wfshttp")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		s.Close()
		os.RemoveAll(dir)
	})
	records := &RecordFile{Path: filepath.Join(dir, DefaultFileName)}
	rec := imgrec.NewRecorder(filepath.Join(dir, "fits"), "wf")
	mux := chi.NewRouter()
	NewHTTPWrapper(s, records, rec).RT().Bind(mux)
	return &httpFixture{mock: m, sensor: s, mux: mux, dir: dir, records: records}
}

func (f *httpFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func TestHTTPRouteList(t *testing.T) {
	f := newHTTPFixture(t, 0)
	w := f.do(http.MethodGet, "/route-list", "")
	routes := []string{}
	if err := json.NewDecoder(w.Body).Decode(&routes); err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(routes, "\n")
	for _, r := range []string{"POST /measure", "GET /wavefront", "POST /front-panel", "GET /autowrite/root"} {
		if !strings.Contains(joined, r) {
			t.Errorf("route %s missing from %v", r, routes)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	f := newHTTPFixture(t, 1)
	w := f.do(http.MethodGet, "/status", "")
	rep := StatusReport{}
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if !rep.Idle || rep.Code != uint32(IdleStatus) || rep.Flags != "SCL|CFG|PUD|SPC" {
		t.Errorf("unexpected status report %+v", rep)
	}
}

func TestHTTPMeasureWritesEverything(t *testing.T) {
	f := newHTTPFixture(t, 2)

	if w := f.do(http.MethodGet, "/wavefront", ""); w.Code != http.StatusNotFound {
		t.Errorf("wavefront before a measurement: status %d", w.Code)
	}

	w := f.do(http.MethodPost, "/measure?timeout=5s", "")
	if w.Code != http.StatusOK {
		t.Fatalf("measure status %d: %s", w.Code, w.Body.String())
	}
	meas := Measurement{}
	if err := json.NewDecoder(w.Body).Decode(&meas); err != nil {
		t.Fatal(err)
	}
	if meas.SpotsX != 35 || meas.Status != TriggeredStatus || meas.Zernike.Order != 4 {
		t.Errorf("unexpected measurement: spots %d status %s order %d", meas.SpotsX, meas.Status, meas.Zernike.Order)
	}

	b, err := ioutil.ReadFile(f.records.Path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(b), "\n") != 1 {
		t.Errorf("record file has %d lines, want 1", strings.Count(string(b), "\n"))
	}
	fits, _ := filepath.Glob(filepath.Join(f.dir, "fits", "*", "wf000000.fits"))
	if len(fits) != 1 {
		t.Errorf("autowrite produced %v", fits)
	}

	if w = f.do(http.MethodGet, "/last", ""); w.Code != http.StatusOK {
		t.Errorf("last status %d", w.Code)
	}
	w = f.do(http.MethodGet, "/records", "")
	if w.Code != http.StatusOK || w.Body.String() != string(b) {
		t.Errorf("records status %d, body matches file: %v", w.Code, w.Body.String() == string(b))
	}
}

func TestHTTPWavefrontFormats(t *testing.T) {
	f := newHTTPFixture(t, 0)
	if w := f.do(http.MethodPost, "/measure", ""); w.Code != http.StatusOK {
		t.Fatalf("measure status %d: %s", w.Code, w.Body.String())
	}

	w := f.do(http.MethodGet, "/wavefront", "")
	grid := [][]*float64{}
	if err := json.NewDecoder(w.Body).Decode(&grid); err != nil {
		t.Fatal(err)
	}
	if len(grid) != 35 || grid[0][0] != nil || grid[17][17] == nil {
		t.Error("json wavefront should be 35x35 with null outside the pupil")
	}

	w = f.do(http.MethodGet, "/wavefront?fmt=png", "")
	im, err := png.Decode(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	if b := im.Bounds(); b.Dx() != 35 || b.Dy() != 35 {
		t.Errorf("png is %v", b)
	}

	w = f.do(http.MethodGet, "/wavefront?fmt=fits", "")
	ff, err := fitsio.Open(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	hdr := ff.HDU(0).Header()
	if card := hdr.Get("INSTRUME"); card == nil || card.Value != "WFS20-5C" {
		t.Errorf("INSTRUME card %v", card)
	}
	if hdr.Get("Z15") == nil {
		t.Error("Zernike mode 15 missing from the header")
	}

	if w = f.do(http.MethodGet, "/wavefront?fmt=bmp", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bmp status %d, want 400", w.Code)
	}
}

func TestHTTPMeasureUnusable(t *testing.T) {
	f := newHTTPFixture(t, 0)
	f.mock.Lock()
	f.mock.Script = []Status{TriggeredStatus | StatHAL}
	f.mock.Unlock()
	if w := f.do(http.MethodPost, "/measure", ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status %d, want 422", w.Code)
	}
}

func TestHTTPMeasureTimeout(t *testing.T) {
	f := newHTTPFixture(t, 1<<30)
	if w := f.do(http.MethodPost, "/measure?timeout=0.02", ""); w.Code != http.StatusGatewayTimeout {
		t.Errorf("status %d, want 504", w.Code)
	}
	if w := f.do(http.MethodPost, "/measure?timeout=soon", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", w.Code)
	}
}

func TestHTTPSettings(t *testing.T) {
	f := newHTTPFixture(t, 0)
	w := f.do(http.MethodPost, "/front-panel", `{"Highest Zernike Order": 6, "Fourier Order": 6, "Pupil Diameter X": "4"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("front panel status %d: %s", w.Code, w.Body.String())
	}
	w = f.do(http.MethodGet, "/settings", "")
	st := Settings{}
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.ZernikeOrder != 6 || st.FourierOrder != 6 || st.Pupil.DiameterX != 4 {
		t.Errorf("settings not applied: %+v", st)
	}

	if w = f.do(http.MethodPost, "/front-panel", `{"Gain": 2}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown key status %d, want 400", w.Code)
	}
	if w = f.do(http.MethodPost, "/settings", `{"pupil": {"diameterX": 0, "diameterY": 3}}`); w.Code != http.StatusBadRequest {
		t.Errorf("zero pupil status %d, want 400", w.Code)
	}
	if w = f.do(http.MethodPost, "/settings", `{"zernikeOrder": 8}`); w.Code != http.StatusOK {
		t.Errorf("partial settings status %d", w.Code)
	}
	if got := f.sensor.Settings(); got.ZernikeOrder != 8 || got.FourierOrder != 6 {
		t.Errorf("partial update gave orders %d, %d", got.ZernikeOrder, got.FourierOrder)
	}
}

func TestHTTPMLA(t *testing.T) {
	f := newHTTPFixture(t, 0)
	if w := f.do(http.MethodPost, "/mla", `{"int": 2}`); w.Code != http.StatusOK {
		t.Fatalf("select MLA status %d: %s", w.Code, w.Body.String())
	}
	w := f.do(http.MethodGet, "/mla", "")
	mla := MLA{}
	if err := json.NewDecoder(w.Body).Decode(&mla); err != nil {
		t.Fatal(err)
	}
	if mla.Index != 2 || mla.Name != "MLA300-14AR" {
		t.Errorf("selected %+v", mla)
	}
	if w = f.do(http.MethodPost, "/mla", `{"int": 7}`); w.Code != http.StatusInternalServerError {
		t.Errorf("out of range MLA status %d", w.Code)
	}

	w = f.do(http.MethodGet, "/mlas", "")
	mlas := []MLA{}
	if err := json.NewDecoder(w.Body).Decode(&mlas); err != nil {
		t.Fatal(err)
	}
	if len(mlas) != 3 || mlas[1].Index != 1 {
		t.Errorf("MLA list %+v", mlas)
	}
}

func TestHTTPTypedRoutes(t *testing.T) {
	f := newHTTPFixture(t, 1)
	get := func(path string, v interface{}) {
		t.Helper()
		w := f.do(http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s status %d: %s", path, w.Code, w.Body.String())
		}
		if err := json.NewDecoder(w.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
	post := func(path, body string, code int) {
		t.Helper()
		if w := f.do(http.MethodPost, path, body); w.Code != code {
			t.Errorf("POST %s %s status %d, want %d: %s", path, body, w.Code, code, w.Body.String())
		}
	}

	b := generichttp.BoolT{}
	get("/idle", &b)
	if !b.Bool {
		t.Error("sensor not idle before the trigger")
	}

	i := generichttp.IntT{}
	get("/resolution", &i)
	if i.Int != FamilyWFS20.DefaultResolution() {
		t.Errorf("resolution %d, want the WFS20 default", i.Int)
	}
	post("/resolution", `{"int": 2}`, http.StatusOK)
	get("/resolution", &i)
	if i.Int != 2 {
		t.Errorf("resolution %d after setting 2", i.Int)
	}
	post("/resolution", `{"int": 99}`, http.StatusInternalServerError)

	post("/limit-to-pupil", `{"bool": true}`, http.StatusOK)
	get("/limit-to-pupil", &b)
	if !b.Bool || !f.sensor.Settings().LimitToPupil {
		t.Error("limit to pupil not applied")
	}

	post("/pupil/diameter", `{"f64": 3.5}`, http.StatusOK)
	fl := generichttp.FloatT{}
	get("/pupil/diameter", &fl)
	if p := f.sensor.Settings().Pupil; fl.F64 != 3.5 || p.DiameterY != 3.5 {
		t.Errorf("pupil diameter %v, settings %+v", fl.F64, p)
	}
	post("/pupil/diameter", `{"f64": 0}`, http.StatusInternalServerError)

	post("/reference-plane", `{"str": "user"}`, http.StatusOK)
	str := generichttp.StrT{}
	get("/reference-plane", &str)
	if str.Str != "user" || f.sensor.Settings().ReferencePlane != RefUser {
		t.Errorf("reference plane %q", str.Str)
	}
	post("/reference-plane", `{"str": "sky"}`, http.StatusInternalServerError)
}

func TestHTTPInstrument(t *testing.T) {
	f := newHTTPFixture(t, 0)
	w := f.do(http.MethodGet, "/instrument", "")
	rep := InstrumentReport{}
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Family != "WFS20" || rep.MLA == nil || rep.SpotsX != 35 || len(rep.Resolutions) != 10 {
		t.Errorf("unexpected instrument report %+v", rep)
	}

	w = f.do(http.MethodGet, "/instruments", "")
	list := []ListEntry{}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || !list[0].InUse {
		t.Errorf("instrument list %+v; the opened sensor should show in use", list)
	}
}

func TestGrayImageScales(t *testing.T) {
	im := GrayImage(Grid{{0, 1}, {0.5, float32(math.NaN())}})
	if im.GrayAt(0, 0).Y != 0 || im.GrayAt(1, 0).Y != 255 || im.GrayAt(0, 1).Y != 128 || im.GrayAt(1, 1).Y != 0 {
		t.Errorf("unexpected pixels %v", im.Pix)
	}
	var _ generichttp.HTTPer = HTTPWrapper{}
}
