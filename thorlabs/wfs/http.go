package wfs

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"math"
	"net/http"

	"github.com/pkg/errors"

	"github.com/labctl/wfslab/generichttp"
	"github.com/labctl/wfslab/imgrec"
	"github.com/labctl/wfslab/server"
	"github.com/labctl/wfslab/util"
)

// HTTPWrapper provides an HTTP interface to a wavefront sensor
type HTTPWrapper struct {
	// Sensor is the opened instrument
	Sensor *Sensor

	// Records, if not nil, receives one record line per measurement
	Records *RecordFile

	// Recorder, if not nil and active, receives the wavefront of each measurement
	Recorder *imgrec.Recorder

	generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured.
// records and rec may be nil.
func NewHTTPWrapper(s *Sensor, records *RecordFile, rec *imgrec.Recorder) HTTPWrapper {
	w := HTTPWrapper{Sensor: s, Records: records, Recorder: rec}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/status"}:       w.GetStatus,
		{Method: http.MethodGet, Path: "/instrument"}:   w.GetInstrument,
		{Method: http.MethodGet, Path: "/instruments"}:  w.GetInstruments,
		{Method: http.MethodGet, Path: "/mla"}:          w.GetMLA,
		{Method: http.MethodPost, Path: "/mla"}:         generichttp.SetInt(s.SelectMLA),
		{Method: http.MethodGet, Path: "/mlas"}:         w.GetMLAs,
		{Method: http.MethodGet, Path: "/settings"}:     w.GetSettings,
		{Method: http.MethodPost, Path: "/settings"}:    w.SetSettings,
		{Method: http.MethodPost, Path: "/front-panel"}: w.SetFrontPanel,
		{Method: http.MethodGet, Path: "/spots"}:        w.GetSpots,
		{Method: http.MethodPost, Path: "/measure"}:     w.Measure,
		{Method: http.MethodGet, Path: "/last"}:         w.GetLast,
		{Method: http.MethodGet, Path: "/records"}:      w.GetRecords,
		{Method: http.MethodGet, Path: "/wavefront"}:    w.GetWavefront,

		{Method: http.MethodGet, Path: "/idle"}:             generichttp.GetBool(w.idle),
		{Method: http.MethodGet, Path: "/resolution"}:       generichttp.GetInt(w.resolution),
		{Method: http.MethodPost, Path: "/resolution"}:      generichttp.SetInt(w.setResolution),
		{Method: http.MethodGet, Path: "/limit-to-pupil"}:   generichttp.GetBool(w.limitToPupil),
		{Method: http.MethodPost, Path: "/limit-to-pupil"}:  generichttp.SetBool(w.setLimitToPupil),
		{Method: http.MethodGet, Path: "/pupil/diameter"}:   generichttp.GetFloat(w.pupilDiameter),
		{Method: http.MethodPost, Path: "/pupil/diameter"}:  generichttp.SetFloat(w.setPupilDiameter),
		{Method: http.MethodGet, Path: "/reference-plane"}:  generichttp.GetString(w.referencePlane),
		{Method: http.MethodPost, Path: "/reference-plane"}: generichttp.SetString(w.setReferencePlane),
	}
	w.RouteTable = rt
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(w)
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// StatusReport is the JSON form of the device status
type StatusReport struct {
	Code     uint32 `json:"code"`
	Flags    string `json:"flags"`
	Idle     bool   `json:"idle"`
	Unusable bool   `json:"unusable"`
}

// GetStatus reads the status word
func (h HTTPWrapper) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Sensor.Status()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	settings := h.Sensor.Settings()
	generichttp.EncodeJSON(w, StatusReport{
		Code:     uint32(st),
		Flags:    st.String(),
		Idle:     settings.Idle(st),
		Unusable: st.Unusable(),
	})
}

func (h HTTPWrapper) idle() (bool, error) {
	st, err := h.Sensor.Status()
	if err != nil {
		return false, err
	}
	return h.Sensor.Settings().Idle(st), nil
}

func (h HTTPWrapper) resolution() (int, error) {
	return h.Sensor.ResolutionIndex(), nil
}

func (h HTTPWrapper) setResolution(i int) error {
	return h.Sensor.Update(func(st *Settings) { st.ResolutionIndex = i })
}

func (h HTTPWrapper) limitToPupil() (bool, error) {
	return h.Sensor.Settings().LimitToPupil, nil
}

func (h HTTPWrapper) setLimitToPupil(b bool) error {
	return h.Sensor.Update(func(st *Settings) { st.LimitToPupil = b })
}

// the pupil routes treat the pupil as a circle of the X diameter
func (h HTTPWrapper) pupilDiameter() (float64, error) {
	return h.Sensor.Settings().Pupil.DiameterX, nil
}

func (h HTTPWrapper) setPupilDiameter(d float64) error {
	return h.Sensor.Update(func(st *Settings) {
		st.Pupil.DiameterX = d
		st.Pupil.DiameterY = d
	})
}

func (h HTTPWrapper) referencePlane() (string, error) {
	return h.Sensor.Settings().ReferencePlane.String(), nil
}

func (h HTTPWrapper) setReferencePlane(s string) error {
	ref, err := ParseReferencePlane(s)
	if err != nil {
		return err
	}
	return h.Sensor.Update(func(st *Settings) { st.ReferencePlane = ref })
}

// InstrumentReport describes the opened instrument
type InstrumentReport struct {
	Entry       ListEntry      `json:"entry"`
	Info        InstrumentInfo `json:"info"`
	Family      string         `json:"family"`
	Revision    Revision       `json:"revision"`
	MLA         *MLA           `json:"mla"`
	SpotsX      int            `json:"spotsX"`
	SpotsY      int            `json:"spotsY"`
	Resolutions []Resolution   `json:"resolutions"`
}

// GetInstrument describes the opened instrument
func (h HTTPWrapper) GetInstrument(w http.ResponseWriter, r *http.Request) {
	s := h.Sensor
	rev, err := s.Revision()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rep := InstrumentReport{
		Entry:       s.Entry(),
		Info:        s.Info(),
		Family:      s.Family().String(),
		Revision:    rev,
		Resolutions: s.Family().Resolutions(),
	}
	if mla, ok := s.MLA(); ok {
		rep.MLA = &mla
	}
	rep.SpotsX, rep.SpotsY = s.Spots()
	generichttp.EncodeJSON(w, rep)
}

// GetInstruments rescans the instrument list
func (h HTTPWrapper) GetInstruments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Sensor.Instruments()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	generichttp.EncodeJSON(w, list)
}

// GetMLA returns the selected microlens array
func (h HTTPWrapper) GetMLA(w http.ResponseWriter, r *http.Request) {
	mla, ok := h.Sensor.MLA()
	if !ok {
		http.Error(w, ErrNoMLA.Error(), http.StatusNotFound)
		return
	}
	generichttp.EncodeJSON(w, mla)
}

// GetMLAs lists the microlens arrays of the instrument
func (h HTTPWrapper) GetMLAs(w http.ResponseWriter, r *http.Request) {
	mlas, err := h.Sensor.MLAs()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	generichttp.EncodeJSON(w, mlas)
}

// GetSettings returns the applied settings
func (h HTTPWrapper) GetSettings(w http.ResponseWriter, r *http.Request) {
	generichttp.EncodeJSON(w, h.Sensor.Settings())
}

// SetSettings applies a JSON settings object.  Fields left out of the body
// keep their current values.
func (h HTTPWrapper) SetSettings(w http.ResponseWriter, r *http.Request) {
	st := h.Sensor.Settings()
	err := json.NewDecoder(r.Body).Decode(&st)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.apply(w, st)
}

// SetFrontPanel applies BLACS front panel values, a JSON object keyed by
// the panel labels
func (h HTTPWrapper) SetFrontPanel(w http.ResponseWriter, r *http.Request) {
	values := map[string]interface{}{}
	err := json.NewDecoder(r.Body).Decode(&values)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	st, err := DecodeFrontPanel(h.Sensor.Settings(), values)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.apply(w, st)
}

func (h HTTPWrapper) apply(w http.ResponseWriter, st Settings) {
	if err := st.Normalize().Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Sensor.Apply(st); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetSpots returns the number of spots of the configured camera as {"x": .., "y": ..}
func (h HTTPWrapper) GetSpots(w http.ResponseWriter, r *http.Request) {
	x, y := h.Sensor.Spots()
	generichttp.EncodeJSON(w, struct {
		X int `json:"x"`
		Y int `json:"y"`
	}{x, y})
}

// Measure waits for the next image and measures it.  The wait ends with the
// request, or after the duration in the timeout query parameter
// (e.g. "10s", "500ms", or a bare number of seconds).
func (h HTTPWrapper) Measure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if tout := r.URL.Query().Get("timeout"); tout != "" {
		d, err := util.ParseDuration(tout)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	m, err := h.Sensor.Capture(ctx, nil)
	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrUnusableImage):
			code = http.StatusUnprocessableEntity
		case errors.Is(err, context.DeadlineExceeded):
			code = http.StatusGatewayTimeout
		case errors.Is(err, ErrNoMLA), errors.Is(err, ErrNotConfigured):
			code = http.StatusConflict
		}
		http.Error(w, err.Error(), code)
		return
	}
	if h.Records != nil {
		if err = h.Records.Append(m); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if h.Recorder != nil && h.Recorder.Active() {
		rows, cols := m.Wavefront.Dims()
		if _, err = h.Recorder.Record(h.Sensor.FITSCards(m), m.Wavefront.Flatten(), cols, rows); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	generichttp.EncodeJSON(w, m)
}

// GetRecords serves the record file
func (h HTTPWrapper) GetRecords(w http.ResponseWriter, r *http.Request) {
	if h.Records == nil {
		http.Error(w, "no record file configured", http.StatusNotFound)
		return
	}
	server.ReplyWithFile(w, r, h.Records.Path)
}

// GetLast returns the most recent measurement
func (h HTTPWrapper) GetLast(w http.ResponseWriter, r *http.Request) {
	m, ok := h.Sensor.Last()
	if !ok {
		http.Error(w, "no measurement taken yet", http.StatusNotFound)
		return
	}
	generichttp.EncodeJSON(w, m)
}

// GetWavefront returns the wavefront of the most recent measurement.
//
// the format is given by the fmt query parameter: json (default), fits, or png.
// The png is scaled from the wavefront min (black) to max (white); points
// outside the pupil are black.
func (h HTTPWrapper) GetWavefront(w http.ResponseWriter, r *http.Request) {
	m, ok := h.Sensor.Last()
	if !ok {
		http.Error(w, "no measurement taken yet", http.StatusNotFound)
		return
	}
	rows, cols := m.Wavefront.Dims()
	switch format := r.URL.Query().Get("fmt"); format {
	case "", "json":
		generichttp.EncodeJSON(w, m.Wavefront)
	case "fits":
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=wavefront.fits")
		err := imgrec.WriteFITS(w, h.Sensor.FITSCards(m), m.Wavefront.Flatten(), cols, rows)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	case "png":
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		png.Encode(w, GrayImage(m.Wavefront))
	default:
		http.Error(w, "format "+format+" not supported, use json, fits, or png", http.StatusBadRequest)
	}
}

// GrayImage scales a grid to an 8-bit image, min to 0 and max to 255.
// Non-finite values are 0.
func GrayImage(g Grid) *image.Gray {
	rows, cols := g.Dims()
	im := image.NewGray(image.Rect(0, 0, cols, rows))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range g {
		for _, v := range row {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			lo, hi = math.Min(lo, f), math.Max(hi, f)
		}
	}
	span := hi - lo
	for y, row := range g {
		for x, v := range row {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) || span <= 0 {
				continue
			}
			im.Pix[y*im.Stride+x] = uint8(math.Round(255 * (f - lo) / span))
		}
	}
	return im
}
