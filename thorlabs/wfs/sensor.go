package wfs

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// MaxImageReadings is how many spotfield images continuous mode takes
// looking for a well exposed one
const MaxImageReadings = 10

// Enumerate scans for instruments and returns the list.  An empty list is
// not an error.
func Enumerate(d Driver) ([]ListEntry, error) {
	n, err := d.InstrumentListLen()
	if err != nil && !IsWarning(err) {
		return nil, err
	}
	out := make([]ListEntry, 0, n)
	for i := 0; i < n; i++ {
		e, err := d.InstrumentListInfo(i)
		if err != nil && !IsWarning(err) {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Lookup finds the entry with the given device ID
func Lookup(entries []ListEntry, deviceID int) (ListEntry, error) {
	for _, e := range entries {
		if e.DeviceID == deviceID {
			return e, nil
		}
	}
	return ListEntry{}, errors.Wrapf(ErrNotListed, "device ID %d", deviceID)
}

// Sensor is an opened wavefront sensor.  It is safe for concurrent use;
// driver calls are serialized.
type Sensor struct {
	mu sync.Mutex

	drv    Driver
	h      Handle
	entry  ListEntry
	info   InstrumentInfo
	family Family
	log    logrus.FieldLogger

	mlaIdx int
	mla    MLA

	// resIdx is the configured resolution index, -1 before ConfigureCamera
	resIdx int
	spotsX int
	spotsY int

	settings Settings
	applied  bool

	last   *Measurement
	closed bool
}

// Open initializes a session to the listed instrument and reads its identity
func Open(d Driver, e ListEntry, log logrus.FieldLogger) (*Sensor, error) {
	if e.InUse {
		return nil, errors.Wrapf(ErrInUse, "%s %s", e.Name, e.Serial)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	h, err := d.Init(e.Resource, false, false)
	if err != nil && !IsWarning(err) {
		return nil, err
	}
	s := &Sensor{
		drv:      d,
		h:        h,
		entry:    e,
		family:   e.Family(),
		mlaIdx:   -1,
		resIdx:   -1,
		settings: DefaultSettings(),
	}
	info, err := d.GetInstrumentInfo(h)
	if err != nil && !IsWarning(err) {
		d.Close(h)
		return nil, err
	}
	s.info = info
	s.log = log.WithFields(logrus.Fields{"instrument": info.Name, "serial": info.SerialWFS})
	s.log.WithField("resource", e.Resource).Info("opened wavefront sensor")
	return s, nil
}

// check passes warnings through the log and returns real errors
func (s *Sensor) check(err error) error {
	if err == nil {
		return nil
	}
	if IsWarning(err) {
		s.log.Warn(err.Error())
		return nil
	}
	return err
}

// Entry returns the instrument list entry the sensor was opened from
func (s *Sensor) Entry() ListEntry {
	return s.entry
}

// Info returns the instrument identity
func (s *Sensor) Info() InstrumentInfo {
	return s.info
}

// Family returns the instrument family
func (s *Sensor) Family() Family {
	return s.family
}

// Settings returns the settings last applied
func (s *Sensor) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Spots returns the number of spots (x, y) of the configured camera
func (s *Sensor) Spots() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spotsX, s.spotsY
}

// Instruments rescans the instrument list.  The sensor's own entry shows as in use.
func (s *Sensor) Instruments() ([]ListEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Enumerate(s.drv)
}

// Revision returns the driver versions
func (s *Sensor) Revision() (Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, err := s.drv.RevisionQuery()
	return rev, s.check(err)
}

// MLAs lists the microlens arrays known to the instrument
func (s *Sensor) MLAs() ([]MLA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	n, err := s.drv.GetMlaCount(s.h)
	if err = s.check(err); err != nil {
		return nil, err
	}
	out := make([]MLA, 0, n)
	for i := 0; i < n; i++ {
		m, err := s.drv.GetMlaData(s.h, i)
		if err = s.check(err); err != nil {
			return nil, err
		}
		m.Index = i
		out = append(out, m)
	}
	return out, nil
}

// SelectMLA activates a microlens array
func (s *Sensor) SelectMLA(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	n, err := s.drv.GetMlaCount(s.h)
	if err = s.check(err); err != nil {
		return err
	}
	if idx < 0 || idx >= n {
		return errors.Errorf("MLA index %d out of range [0,%d]", idx, n-1)
	}
	m, err := s.drv.GetMlaData(s.h, idx)
	if err = s.check(err); err != nil {
		return err
	}
	if err = s.check(s.drv.SelectMla(s.h, idx)); err != nil {
		return err
	}
	m.Index = idx
	s.mlaIdx, s.mla = idx, m
	s.log.WithField("mla", m.Name).Info("selected microlens array")
	return nil
}

// MLA returns the selected microlens array, false if none is selected
func (s *Sensor) MLA() (MLA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mla, s.mlaIdx >= 0
}

// ConfigureCamera sets the camera resolution; -1 picks the family default.
// It returns the number of spots (x, y).
func (s *Sensor) ConfigureCamera(resIdx int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configureCamera(resIdx)
}

func (s *Sensor) configureCamera(resIdx int) (int, int, error) {
	if s.closed {
		return 0, 0, ErrClosed
	}
	if resIdx < 0 {
		resIdx = s.family.DefaultResolution()
	}
	res, err := s.family.Resolution(resIdx)
	if err != nil {
		return 0, 0, err
	}
	x, y, err := s.drv.ConfigureCam(s.h, PixelMono8, resIdx)
	if err = s.check(err); err != nil {
		return 0, 0, err
	}
	s.resIdx, s.spotsX, s.spotsY = resIdx, x, y
	s.log.WithFields(logrus.Fields{
		"resolution": res.String(),
		"index":      resIdx,
		"spotsX":     x,
		"spotsY":     y,
	}).Info("configured camera")
	return x, y, nil
}

// ResolutionIndex returns the configured camera resolution index, -1 before
// the camera is configured
func (s *Sensor) ResolutionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resIdx
}

// Update applies the current settings as changed by fn
func (s *Sensor) Update(fn func(*Settings)) error {
	st := s.Settings()
	fn(&st)
	return s.Apply(st)
}

// Apply normalizes and programs the settings: camera resolution (when it
// changed), reference plane, pupil, and trigger mode
func (s *Sensor) Apply(st Settings) error {
	st = st.Normalize()
	if err := st.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	want := st.ResolutionIndex
	if want < 0 {
		want = s.family.DefaultResolution()
	}
	if want != s.resIdx {
		if _, _, err := s.configureCamera(want); err != nil {
			return err
		}
	}
	if err := s.check(s.drv.SetReferencePlane(s.h, st.ReferencePlane)); err != nil {
		return err
	}
	if err := s.check(s.drv.SetPupil(s.h, st.Pupil)); err != nil {
		return err
	}
	if err := s.check(s.drv.SetTriggerMode(s.h, st.TriggerMode)); err != nil {
		return err
	}
	s.settings = st
	s.applied = true
	s.log.WithFields(logrus.Fields{
		"pupil":        st.Pupil,
		"limitToPupil": st.LimitToPupil,
		"zernike":      st.ZernikeOrder,
		"fourier":      st.FourierOrder,
		"trigger":      st.TriggerMode.String(),
	}).Info("applied settings")
	return nil
}

// Status queries the device status word
func (s *Sensor) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	st, err := s.drv.GetStatus(s.h)
	return st, s.check(err)
}

// WaitForTrigger polls the status word until it leaves the idle state,
// which happens once a hardware trigger has exposed an image.  notify, if
// not nil, is called every AnnounceEvery idle polls with the poll count.
// An image that is saturated, too dark or too bright returns ErrUnusableImage.
func (s *Sensor) WaitForTrigger(ctx context.Context, notify func(polls int)) (Status, error) {
	st := s.Settings()
	lim := rate.NewLimiter(rate.Every(st.PollInterval), 1)
	polls := 0
	for {
		if err := lim.Wait(ctx); err != nil {
			// the deadline falls before the next poll
			<-ctx.Done()
			return 0, ctx.Err()
		}
		status, err := s.Status()
		if err != nil {
			return 0, err
		}
		if st.Idle(status) {
			polls++
			if polls%st.AnnounceEvery == 0 {
				s.log.WithField("polls", polls).Debug("waiting for trigger")
				if notify != nil {
					notify(polls)
				}
			}
			continue
		}
		s.log.WithField("status", status.String()).Debugf("status code: 0x%08X", uint32(status))
		if status.Unusable() {
			return status, errors.Wrapf(ErrUnusableImage, "status %s", status)
		}
		return status, nil
	}
}

// Acquire takes spotfield images with auto exposure until one is usable,
// at most MaxImageReadings times.  It is used in continuous trigger mode.
func (s *Sensor) Acquire(ctx context.Context) (Status, float64, float64, error) {
	var (
		status      Status
		expos, gain float64
	)
	op := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return backoff.Permanent(ErrClosed)
		}
		e, g, err := s.drv.TakeSpotfieldImageAutoExpos(s.h)
		if err = s.check(err); err != nil {
			return backoff.Permanent(err)
		}
		st, err := s.drv.GetStatus(s.h)
		if err = s.check(err); err != nil {
			return backoff.Permanent(err)
		}
		status, expos, gain = st, e, g
		if st.Unusable() {
			s.log.WithField("status", st.String()).Debug("spotfield image not usable, retrying")
			return errors.Wrapf(ErrUnusableImage, "status %s", st)
		}
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     10 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         500 * time.Millisecond,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock}, MaxImageReadings-1), ctx)
	err := backoff.Retry(op, b)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return status, expos, gain, err
}

// Measure evaluates the current spotfield image: centroids, beam, deviations,
// intensities, wavefront and its statistics, then the Fourier optometric
// values and the Zernike fit if enabled.  A failed Zernike fit is recorded
// in ZernikeErr and does not fail the measurement, unless the wavefront
// type is reconstructed from the fit; then the fit runs before the
// wavefront and its failure is an error.
func (s *Sensor) Measure() (Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Measurement{Time: time.Now()}
	if s.closed {
		return m, ErrClosed
	}
	if s.mlaIdx < 0 {
		return m, ErrNoMLA
	}
	if s.resIdx < 0 || !s.applied {
		return m, ErrNotConfigured
	}
	st := s.settings
	h := s.h
	m.SpotsX, m.SpotsY = s.spotsX, s.spotsY

	var err error
	if err = s.check(s.drv.CalcSpotsCentrDiaIntens(h, st.DynamicNoiseCut, st.CalcDiameters)); err != nil {
		return m, err
	}
	m.CentroidX, m.CentroidY, err = s.drv.GetSpotCentroids(h)
	if err = s.check(err); err != nil {
		return m, err
	}
	m.Beam, err = s.drv.CalcBeamCentroidDia(h)
	if err = s.check(err); err != nil {
		return m, err
	}
	if err = s.check(s.drv.CalcSpotToReferenceDeviations(h, st.CancelTilt)); err != nil {
		return m, err
	}
	m.DeviationX, m.DeviationY, err = s.drv.GetSpotDeviations(h)
	if err = s.check(err); err != nil {
		return m, err
	}
	m.Intensity, err = s.drv.GetSpotIntensities(h)
	if err = s.check(err); err != nil {
		return m, err
	}

	// the reconstructed and difference wavefronts need the reconstruction first
	reconstructed := st.WavefrontType != WavefrontMeasured
	if reconstructed {
		fitErr, err := s.zernike(h, st.ZernikeOrder, &m)
		if fitErr != nil {
			return m, errors.Wrapf(fitErr, "Zernike fit for the %s wavefront", st.WavefrontType)
		}
		if err != nil {
			return m, err
		}
	}

	m.Wavefront, err = s.drv.CalcWavefront(h, st.WavefrontType, st.LimitToPupil)
	if err = s.check(err); err != nil {
		return m, err
	}
	m.Stats, err = s.drv.CalcWavefrontStatistics(h)
	if err = s.check(err); err != nil {
		return m, err
	}

	if st.FourierOrder != 0 {
		m.Optometric, err = s.drv.CalcFourierOptometric(h, st.ZernikeOrder, st.FourierOrder)
		if err = s.check(err); err != nil {
			return m, err
		}
		m.FourierOrder = st.FourierOrder
	}

	if st.ZernikeOrder != 0 && !reconstructed {
		fitErr, err := s.zernike(h, st.ZernikeOrder, &m)
		if fitErr != nil {
			m.ZernikeErr = "insufficient: " + fitErr.Error()
			s.log.WithError(fitErr).Warn("Zernike fit failed")
		}
		if err != nil {
			return m, err
		}
	}
	return m, nil
}

// zernike fits the Zernike modes up to order and reconstructs the
// wavefront from all of them.  A failed fit is returned as fitErr and
// skips the reconstruction; a failed reconstruction is err.
func (s *Sensor) zernike(h Handle, order int, m *Measurement) (fitErr, err error) {
	fit, err := s.drv.ZernikeLsf(h, order)
	if err = s.check(err); err != nil {
		return err, nil
	}
	m.Zernike = fit
	modes := make([]bool, ZernikeModes(fit.Order))
	for i := range modes {
		modes[i] = true
	}
	m.FitErrMean, m.FitErrStdev, err = s.drv.CalcReconstrDeviations(h, fit.Order, modes, false)
	return nil, s.check(err)
}

// Capture waits for the next image (hardware trigger, or an auto exposed
// image in continuous mode) and measures it
func (s *Sensor) Capture(ctx context.Context, notify func(polls int)) (Measurement, error) {
	var (
		status      Status
		expos, gain float64
		err         error
	)
	if s.Settings().TriggerMode == TriggerContinuous {
		status, expos, gain, err = s.Acquire(ctx)
	} else {
		status, err = s.WaitForTrigger(ctx, notify)
	}
	if err != nil {
		return Measurement{Status: status}, err
	}
	m, err := s.Measure()
	m.Status, m.ExposureMs, m.MasterGain = status, expos, gain
	if err == nil {
		s.mu.Lock()
		cp := m
		s.last = &cp
		s.mu.Unlock()
	}
	return m, err
}

// Last returns the most recent measurement taken by Capture, false if there is none
func (s *Sensor) Last() (Measurement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Measurement{}, false
	}
	return *s.last, true
}

// Close releases the driver session.  It is safe to call more than once.
func (s *Sensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Info("closing wavefront sensor")
	return s.check(s.drv.Close(s.h))
}
