package wfs

import (
	"fmt"
	"math"
	"sync"
)

// status codes the mock driver produces
const (
	MockErrInvalidHandle int32 = -1074001919 // 0xBFFC0801
	MockErrNoMLA         int32 = -1074001918 // 0xBFFC0802
	MockErrRange         int32 = -1074001917 // 0xBFFC0803
	MockErrZernike       int32 = -1074001916 // 0xBFFC0804
	MockErrNotConfigured int32 = -1074001915 // 0xBFFC0805
	MockErrInUse         int32 = -1074001914 // 0xBFFC0806
	MockErrNoReconstruct int32 = -1074001913 // 0xBFFC0807
	MockWarnLowSpots     int32 = 1073481985  // 0x3FFC0901
)

var mockMessages = map[int32]string{
	MockErrInvalidHandle: "Invalid session handle",
	MockErrNoMLA:         "No microlens array selected",
	MockErrRange:         "Parameter out of range",
	MockErrZernike:       "Zernike fit failed, not enough spots detected",
	MockErrNotConfigured: "Camera not configured",
	MockErrInUse:         "Instrument is in use by another session",
	MockErrNoReconstruct: "Reconstructed wavefront requires WFS_CalcReconstrDeviations",
	MockWarnLowSpots:     "Low number of detected spots, reduced Zernike accuracy",
}

// TriggeredStatus is the status the mock reports once a trigger has fired
const TriggeredStatus = StatCFG | StatPUD | StatSPC | StatRDA

type mockSession struct {
	entry    ListEntry
	mla      int
	resIdx   int
	spotsX   int
	spotsY   int
	pupil    Pupil
	trigger  TriggerMode
	idleLeft int
	frame    int
	limit    bool

	// reconstructed is set by CalcReconstrDeviations for the current image
	reconstructed bool
}

// Mock is a simulated WFS20 driver.  It needs no hardware and produces
// deterministic data, changing slightly with every image.
type Mock struct {
	sync.Mutex

	// Instruments is the instrument list
	Instruments []ListEntry

	// MLAData is the microlens array table of every instrument
	MLAData []MLA

	// IdlePolls is the number of idle status reads before a trigger fires
	IdlePolls int

	// Script, if not empty, is consumed by GetStatus before the idle/trigger cycle
	Script []Status

	// FailZernike makes every Zernike fit fail
	FailZernike bool

	// Warn makes CalcSpotsCentrDiaIntens return a warning
	Warn bool

	// Calls records the name of every driver function invoked
	Calls []string

	sessions map[Handle]*mockSession
	next     Handle
}

// NewMock returns a mock with two WFS20 instruments, the second in use,
// and three microlens arrays
func NewMock() *Mock {
	return &Mock{
		Instruments: []ListEntry{
			{DeviceID: OffsetWFS20, Name: "WFS20-5C", Serial: "M00000001", Resource: "USB::0x1313::0x0000::1"},
			{DeviceID: OffsetWFS20 + 1, InUse: true, Name: "WFS20-7AR", Serial: "M00000002", Resource: "USB::0x1313::0x0000::2"},
		},
		MLAData: []MLA{
			{Name: "MLA150-5C", CamPitchUm: 5, LensletPitchUm: 150, SpotOffsetX: 0.25, SpotOffsetY: -0.5, LensletFocalUm: 4100, GridCorr0: 0.001, GridCorr45: -0.002},
			{Name: "MLA150-7AR", CamPitchUm: 5, LensletPitchUm: 150, SpotOffsetX: 0.1, SpotOffsetY: 0.2, LensletFocalUm: 5200, GridCorr0: 0.0005, GridCorr45: 0.0007},
			{Name: "MLA300-14AR", CamPitchUm: 5, LensletPitchUm: 300, LensletFocalUm: 14200},
		},
		IdlePolls: 3,
		sessions:  map[Handle]*mockSession{},
		next:      0x1000,
	}
}

func (m *Mock) record(name string) {
	m.Calls = append(m.Calls, name)
}

func mockErr(fn string, code int32) error {
	return Error{Code: code, Func: fn, Text: mockMessages[code]}
}

func (m *Mock) session(fn string, h Handle) (*mockSession, error) {
	m.record(fn)
	s, ok := m.sessions[h]
	if !ok {
		return nil, mockErr(fn, MockErrInvalidHandle)
	}
	return s, nil
}

// RevisionQuery returns fixed versions
func (m *Mock) RevisionQuery() (Revision, error) {
	m.Lock()
	defer m.Unlock()
	m.record("WFS_revision_query")
	return Revision{Driver: "5.4.0 (mock)", Camera: "1.0 (mock)"}, nil
}

// InstrumentListLen returns len(Instruments)
func (m *Mock) InstrumentListLen() (int, error) {
	m.Lock()
	defer m.Unlock()
	m.record("WFS_GetInstrumentListLen")
	return len(m.Instruments), nil
}

// InstrumentListInfo returns Instruments[idx]
func (m *Mock) InstrumentListInfo(idx int) (ListEntry, error) {
	m.Lock()
	defer m.Unlock()
	m.record("WFS_GetInstrumentListInfo")
	if idx < 0 || idx >= len(m.Instruments) {
		return ListEntry{}, mockErr("WFS_GetInstrumentListInfo", MockErrRange)
	}
	return m.Instruments[idx], nil
}

// Init opens a session to a listed resource
func (m *Mock) Init(resource string, idQuery, reset bool) (Handle, error) {
	m.Lock()
	defer m.Unlock()
	m.record("WFS_init")
	for i, e := range m.Instruments {
		if e.Resource == resource {
			if e.InUse {
				return 0, mockErr("WFS_init", MockErrInUse)
			}
			m.Instruments[i].InUse = true
			m.next++
			m.sessions[m.next] = &mockSession{entry: e, mla: -1, resIdx: -1}
			return m.next, nil
		}
	}
	return 0, mockErr("WFS_init", MockErrRange)
}

// Close ends a session
func (m *Mock) Close(h Handle) error {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_close", h)
	if err != nil {
		return err
	}
	for i := range m.Instruments {
		if m.Instruments[i].Resource == s.entry.Resource {
			m.Instruments[i].InUse = false
		}
	}
	delete(m.sessions, h)
	return nil
}

// ErrorMessage looks up the mock's status text
func (m *Mock) ErrorMessage(h Handle, code int32) string {
	if txt, ok := mockMessages[code]; ok {
		return txt
	}
	return fmt.Sprintf("Unknown status code 0x%08X", uint32(code))
}

// GetInstrumentInfo returns the identity of the session's instrument
func (m *Mock) GetInstrumentInfo(h Handle) (InstrumentInfo, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_GetInstrumentInfo", h)
	if err != nil {
		return InstrumentInfo{}, err
	}
	return InstrumentInfo{
		Manufacturer: "Thorlabs GmbH",
		Name:         s.entry.Name,
		SerialWFS:    s.entry.Serial,
		SerialCamera: "C" + s.entry.Serial[1:],
	}, nil
}

// GetStatus plays Script, then reports IdleStatus IdlePolls times after
// every arm and TriggeredStatus afterwards
func (m *Mock) GetStatus(h Handle) (Status, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_GetStatus", h)
	if err != nil {
		return 0, err
	}
	if len(m.Script) > 0 {
		st := m.Script[0]
		m.Script = m.Script[1:]
		return st, nil
	}
	if s.resIdx < 0 {
		return 0, nil
	}
	if s.trigger == TriggerContinuous {
		return StatCFG | StatPUD | StatRDA, nil
	}
	if s.idleLeft > 0 {
		s.idleLeft--
		return IdleStatus, nil
	}
	return TriggeredStatus, nil
}

// GetMlaCount returns len(MLAData)
func (m *Mock) GetMlaCount(h Handle) (int, error) {
	m.Lock()
	defer m.Unlock()
	if _, err := m.session("WFS_GetMlaCount", h); err != nil {
		return 0, err
	}
	return len(m.MLAData), nil
}

// GetMlaData returns MLAData[idx]
func (m *Mock) GetMlaData(h Handle, idx int) (MLA, error) {
	m.Lock()
	defer m.Unlock()
	if _, err := m.session("WFS_GetMlaData", h); err != nil {
		return MLA{}, err
	}
	if idx < 0 || idx >= len(m.MLAData) {
		return MLA{}, mockErr("WFS_GetMlaData", MockErrRange)
	}
	return m.MLAData[idx], nil
}

// SelectMla activates MLAData[idx]
func (m *Mock) SelectMla(h Handle, idx int) error {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_SelectMla", h)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(m.MLAData) {
		return mockErr("WFS_SelectMla", MockErrRange)
	}
	s.mla = idx
	return nil
}

// ConfigureCam derives the spot counts from the WFS20 resolution table and
// the selected MLA's pitches
func (m *Mock) ConfigureCam(h Handle, pf PixelFormat, resIdx int) (int, int, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_ConfigureCam", h)
	if err != nil {
		return 0, 0, err
	}
	if s.mla < 0 {
		return 0, 0, mockErr("WFS_ConfigureCam", MockErrNoMLA)
	}
	res, rerr := s.entry.Family().Resolution(resIdx)
	if rerr != nil || pf != PixelMono8 {
		return 0, 0, mockErr("WFS_ConfigureCam", MockErrRange)
	}
	mla := m.MLAData[s.mla]
	s.spotsX = int(float64(res.Width)*mla.CamPitchUm/mla.LensletPitchUm) - 1
	s.spotsY = int(float64(res.Height)*mla.CamPitchUm/mla.LensletPitchUm) - 1
	if s.spotsX > MaxSpotsX {
		s.spotsX = MaxSpotsX
	}
	if s.spotsY > MaxSpotsY {
		s.spotsY = MaxSpotsY
	}
	s.resIdx = resIdx
	return s.spotsX, s.spotsY, nil
}

// SetReferencePlane accepts internal and user references
func (m *Mock) SetReferencePlane(h Handle, ref ReferencePlane) error {
	m.Lock()
	defer m.Unlock()
	if _, err := m.session("WFS_SetReferencePlane", h); err != nil {
		return err
	}
	if ref != RefInternal && ref != RefUser {
		return mockErr("WFS_SetReferencePlane", MockErrRange)
	}
	return nil
}

// SetPupil stores the pupil
func (m *Mock) SetPupil(h Handle, p Pupil) error {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_SetPupil", h)
	if err != nil {
		return err
	}
	if p.DiameterX <= 0 || p.DiameterY <= 0 {
		return mockErr("WFS_SetPupil", MockErrRange)
	}
	s.pupil = p
	return nil
}

// SetTriggerMode stores the mode and arms the trigger
func (m *Mock) SetTriggerMode(h Handle, mode TriggerMode) error {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_SetTriggerMode", h)
	if err != nil {
		return err
	}
	if mode < TriggerContinuous || mode > TriggerSoftware {
		return mockErr("WFS_SetTriggerMode", MockErrRange)
	}
	s.trigger = mode
	s.idleLeft = m.IdlePolls
	return nil
}

// TakeSpotfieldImageAutoExpos advances the frame counter
func (m *Mock) TakeSpotfieldImageAutoExpos(h Handle) (float64, float64, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_TakeSpotfieldImageAutoExpos", h)
	if err != nil {
		return 0, 0, err
	}
	if s.resIdx < 0 {
		return 0, 0, mockErr("WFS_TakeSpotfieldImageAutoExpos", MockErrNotConfigured)
	}
	s.frame++
	return 1.5, 1.0, nil
}

// CalcSpotsCentrDiaIntens re-arms the trigger and advances the frame counter
func (m *Mock) CalcSpotsCentrDiaIntens(h Handle, dynamicNoiseCut, calcDiameters bool) error {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_CalcSpotsCentrDiaIntens", h)
	if err != nil {
		return err
	}
	if s.resIdx < 0 {
		return mockErr("WFS_CalcSpotsCentrDiaIntens", MockErrNotConfigured)
	}
	s.idleLeft = m.IdlePolls
	s.frame++
	s.reconstructed = false
	if m.Warn {
		return mockErr("WFS_CalcSpotsCentrDiaIntens", MockWarnLowSpots)
	}
	return nil
}

func (s *mockSession) grid(f func(x, y int) float32) Grid {
	g := NewGrid(s.spotsY, s.spotsX)
	for y := 0; y < s.spotsY; y++ {
		for x := 0; x < s.spotsX; x++ {
			g[y][x] = f(x, y)
		}
	}
	return g
}

// normalized spot coordinates in [-1, 1]
func (s *mockSession) uv(x, y int) (float64, float64) {
	u := 2*float64(x)/math.Max(float64(s.spotsX-1), 1) - 1
	v := 2*float64(y)/math.Max(float64(s.spotsY-1), 1) - 1
	return u, v
}

// defocus is the amplitude of the synthetic wavefront in microns
func (s *mockSession) defocus() float64 {
	return 0.5 + 0.01*float64(s.frame)
}

// GetSpotCentroids returns a regular lattice
func (m *Mock) GetSpotCentroids(h Handle) (Grid, Grid, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_GetSpotCentroids", h)
	if err != nil {
		return nil, nil, err
	}
	pitch := float32(30)
	if s.mla >= 0 {
		mla := m.MLAData[s.mla]
		pitch = float32(mla.LensletPitchUm / mla.CamPitchUm)
	}
	cx := s.grid(func(x, y int) float32 { return pitch * (float32(x) + 0.5) })
	cy := s.grid(func(x, y int) float32 { return pitch * (float32(y) + 0.5) })
	return cx, cy, nil
}

// GetSpotIntensities returns a gaussian beam profile
func (m *Mock) GetSpotIntensities(h Handle) (Grid, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_GetSpotIntensities", h)
	if err != nil {
		return nil, err
	}
	return s.grid(func(x, y int) float32 {
		u, v := s.uv(x, y)
		return float32(255 * math.Exp(-(u*u+v*v)/0.5))
	}), nil
}

// CalcBeamCentroidDia returns a beam slightly smaller than the pupil
func (m *Mock) CalcBeamCentroidDia(h Handle) (Beam, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_CalcBeamCentroidDia", h)
	if err != nil {
		return Beam{}, err
	}
	drift := 0.001 * float64(s.frame)
	return Beam{
		CentroidX: s.pupil.CenterX + drift,
		CentroidY: s.pupil.CenterY - drift,
		DiameterX: 0.9 * s.pupil.DiameterX,
		DiameterY: 0.9 * s.pupil.DiameterY,
	}, nil
}

// CalcSpotToReferenceDeviations needs a configured camera
func (m *Mock) CalcSpotToReferenceDeviations(h Handle, cancelTilt bool) error {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_CalcSpotToReferenceDeviations", h)
	if err != nil {
		return err
	}
	if s.resIdx < 0 {
		return mockErr("WFS_CalcSpotToReferenceDeviations", MockErrNotConfigured)
	}
	return nil
}

// GetSpotDeviations returns the gradient of the synthetic defocus, in pixels
func (m *Mock) GetSpotDeviations(h Handle) (Grid, Grid, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_GetSpotDeviations", h)
	if err != nil {
		return nil, nil, err
	}
	a := s.defocus()
	dx := s.grid(func(x, y int) float32 {
		u, _ := s.uv(x, y)
		return float32(2 * a * u)
	})
	dy := s.grid(func(x, y int) float32 {
		_, v := s.uv(x, y)
		return float32(2 * a * v)
	})
	return dx, dy, nil
}

func (s *mockSession) wavefront() Grid {
	a := s.defocus()
	return s.grid(func(x, y int) float32 {
		u, v := s.uv(x, y)
		r2 := u*u + v*v
		if s.limit && r2 > 1 {
			return float32(math.NaN())
		}
		return float32(a * (2*r2 - 1))
	})
}

// CalcWavefront returns a defocus surface; outside the unit circle is NaN
// when limited to the pupil
func (m *Mock) CalcWavefront(h Handle, typ WavefrontType, limitToPupil bool) (Grid, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_CalcWavefront", h)
	if err != nil {
		return nil, err
	}
	if typ < WavefrontMeasured || typ > WavefrontDiff {
		return nil, mockErr("WFS_CalcWavefront", MockErrRange)
	}
	if typ != WavefrontMeasured && !s.reconstructed {
		return nil, mockErr("WFS_CalcWavefront", MockErrNoReconstruct)
	}
	s.limit = limitToPupil
	wf := s.wavefront()
	if typ == WavefrontDiff {
		for y := range wf {
			for x := range wf[y] {
				wf[y][x] *= 0.01
			}
		}
	}
	return wf, nil
}

// CalcWavefrontStatistics computes the statistics of the synthetic wavefront
func (m *Mock) CalcWavefrontStatistics(h Handle) (WavefrontStats, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_CalcWavefrontStatistics", h)
	if err != nil {
		return WavefrontStats{}, err
	}
	var (
		n, sum, sum2, wsum, wsum2, wtot float64
		min                             = math.Inf(1)
		max                             = math.Inf(-1)
	)
	wf := s.wavefront()
	for y := range wf {
		for x := range wf[y] {
			v := float64(wf[y][x])
			if math.IsNaN(v) {
				continue
			}
			u, vv := s.uv(x, y)
			w := math.Exp(-(u*u + vv*vv) / 0.5)
			n++
			sum += v
			sum2 += v * v
			wsum += w * v
			wsum2 += w * v * v
			wtot += w
			min = math.Min(min, v)
			max = math.Max(max, v)
		}
	}
	if n == 0 {
		return WavefrontStats{}, mockErr("WFS_CalcWavefrontStatistics", MockErrNotConfigured)
	}
	mean := sum / n
	wmean := wsum / wtot
	return WavefrontStats{
		Min:         min,
		Max:         max,
		Diff:        max - min,
		Mean:        mean,
		RMS:         math.Sqrt(math.Max(sum2/n-mean*mean, 0)),
		WeightedRMS: math.Sqrt(math.Max(wsum2/wtot-wmean*wmean, 0)),
	}, nil
}

// ZernikeLsf returns defocus dominated coefficients
func (m *Mock) ZernikeLsf(h Handle, order int) (ZernikeFit, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_ZernikeLsf", h)
	if err != nil {
		return ZernikeFit{}, err
	}
	if order < 2 || order > MaxZernikeOrders {
		return ZernikeFit{}, mockErr("WFS_ZernikeLsf", MockErrRange)
	}
	if m.FailZernike {
		return ZernikeFit{}, mockErr("WFS_ZernikeLsf", MockErrZernike)
	}
	n := ZernikeModes(order)
	fit := ZernikeFit{
		Order:               order,
		Coefficients:        make([]float32, n),
		OrderRMS:            make([]float32, order),
		RadiusOfCurvatureMm: 1000 / s.defocus(),
	}
	for i := range fit.Coefficients {
		fit.Coefficients[i] = float32(0.01 / float64(i+1))
	}
	// mode 5 is defocus
	if n >= 5 {
		fit.Coefficients[4] = float32(s.defocus())
	}
	for o := 1; o <= order; o++ {
		var ss float64
		for i := ZernikeModes(o - 1); i < ZernikeModes(o); i++ {
			c := float64(fit.Coefficients[i])
			ss += c * c
		}
		fit.OrderRMS[o-1] = float32(math.Sqrt(ss))
	}
	return fit, nil
}

// CalcFourierOptometric derives M from the defocus
func (m *Mock) CalcFourierOptometric(h Handle, zernikeOrder, fourierOrder int) (Optometric, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_CalcFourierOptometric", h)
	if err != nil {
		return Optometric{}, err
	}
	if validFourier(fourierOrder, zernikeOrder) == 0 {
		return Optometric{}, mockErr("WFS_CalcFourierOptometric", MockErrRange)
	}
	mm := -s.defocus() * 0.8
	return Optometric{M: mm, J0: 0.01, J45: -0.005, Sphere: mm + 0.011, Cylinder: -0.022, AxisDeg: 76.7}, nil
}

// CalcReconstrDeviations returns a small fit error
func (m *Mock) CalcReconstrDeviations(h Handle, zernikeOrder int, modes []bool, sphericalRef bool) (float64, float64, error) {
	m.Lock()
	defer m.Unlock()
	s, err := m.session("WFS_CalcReconstrDeviations", h)
	if err != nil {
		return 0, 0, err
	}
	if len(modes) != ZernikeModes(zernikeOrder) {
		return 0, 0, mockErr("WFS_CalcReconstrDeviations", MockErrRange)
	}
	s.reconstructed = true
	return 0.001, 0.002, nil
}
