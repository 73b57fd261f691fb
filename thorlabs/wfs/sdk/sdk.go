// Package sdk implements wfs.Driver on the Thorlabs WFS instrument driver (WFS_64).
//
// The driver and its VISA headers are installed by the Thorlabs WFS software
// under the IVI Foundation folder.  Spot arrays are exchanged with the driver
// as fixed MAX_SPOTS_Y x MAX_SPOTS_X buffers and cropped to the spot counts
// of the last ConfigureCam on the session.
package sdk

/*
#cgo CFLAGS: -I"C:/Program Files/IVI Foundation/VISA/Win64/Include"
#cgo LDFLAGS: -L"C:/Program Files/IVI Foundation/VISA/Win64/Lib_x64/msc" -lWFS_64
#include <stdlib.h>
#include <wfs.h>
*/
import "C"
import (
	"sync"
	"unsafe"

	"github.com/labctl/wfslab/thorlabs/wfs"
)

// buffer sizes come from the driver header
const (
	bufferSize   = C.WFS_BUFFER_SIZE
	errorBufSize = C.WFS_ERR_DESCR_BUFFER_SIZE
	spotsStride  = C.MAX_SPOTS_X
	spotsBuffer  = C.MAX_SPOTS_X * C.MAX_SPOTS_Y
)

// Driver is the instrument driver.  The zero value is not usable; use New.
type Driver struct {
	mu sync.Mutex

	// spots holds the (x, y) spot counts per session
	spots map[wfs.Handle][2]int
}

// New returns a driver.  Nothing is loaded until the first call.
func New() *Driver {
	return &Driver{spots: map[wfs.Handle][2]int{}}
}

func charBuf(n int) []C.ViChar {
	return make([]C.ViChar, n)
}

func goString(b []C.ViChar) string {
	return C.GoString((*C.char)(unsafe.Pointer(&b[0])))
}

func viOption(b bool) C.ViInt32 {
	if b {
		return 1
	}
	return 0
}

func viBool(b bool) C.ViBoolean {
	if b {
		return C.VI_TRUE
	}
	return C.VI_FALSE
}

// status converts a driver status to an error, fetching its description
func (d *Driver) status(fn string, h wfs.Handle, st C.ViStatus) error {
	if st == 0 {
		return nil
	}
	return wfs.Error{Code: int32(st), Func: fn, Text: d.ErrorMessage(h, int32(st))}
}

func (d *Driver) dims(h wfs.Handle) (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	xy := d.spots[h]
	return xy[0], xy[1]
}

// spotBuf is a driver spot array.  ViReal32 is a C float.
type spotBuf []float32

func newSpotBuf() spotBuf { return make(spotBuf, spotsBuffer) }

func (b spotBuf) ptr() *C.ViReal32 { return (*C.ViReal32)(unsafe.Pointer(&b[0])) }

// crop copies the configured spots out of a driver spot buffer
func (d *Driver) crop(h wfs.Handle, buf spotBuf) wfs.Grid {
	x, y := d.dims(h)
	return wfs.CropGrid(buf, spotsStride, y, x)
}

// ErrorMessage returns the driver's text for a status code
func (d *Driver) ErrorMessage(h wfs.Handle, code int32) string {
	buf := charBuf(errorBufSize)
	C.WFS_error_message(C.ViSession(h), C.ViStatus(code), &buf[0])
	return goString(buf)
}

// RevisionQuery returns the instrument driver and camera driver versions
func (d *Driver) RevisionQuery() (wfs.Revision, error) {
	drv, cam := charBuf(bufferSize), charBuf(bufferSize)
	st := C.WFS_revision_query(C.VI_NULL, &drv[0], &cam[0])
	return wfs.Revision{Driver: goString(drv), Camera: goString(cam)}, d.status("WFS_revision_query", 0, st)
}

// InstrumentListLen scans for instruments
func (d *Driver) InstrumentListLen() (int, error) {
	var n C.ViInt32
	st := C.WFS_GetInstrumentListLen(C.VI_NULL, &n)
	return int(n), d.status("WFS_GetInstrumentListLen", 0, st)
}

// InstrumentListInfo returns one entry of the last scan
func (d *Driver) InstrumentListInfo(idx int) (wfs.ListEntry, error) {
	var id, inUse C.ViInt32
	name, sn, rsrc := charBuf(bufferSize), charBuf(bufferSize), charBuf(bufferSize)
	st := C.WFS_GetInstrumentListInfo(C.VI_NULL, C.ViInt32(idx), &id, &inUse, &name[0], &sn[0], &rsrc[0])
	e := wfs.ListEntry{
		DeviceID: int(id),
		InUse:    inUse != 0,
		Name:     goString(name),
		Serial:   goString(sn),
		Resource: goString(rsrc),
	}
	return e, d.status("WFS_GetInstrumentListInfo", 0, st)
}

// Init opens a session
func (d *Driver) Init(resource string, idQuery, reset bool) (wfs.Handle, error) {
	cstr := C.CString(resource)
	defer C.free(unsafe.Pointer(cstr))
	var h C.ViSession
	st := C.WFS_init((*C.ViChar)(unsafe.Pointer(cstr)), viBool(idQuery), viBool(reset), &h)
	if err := d.status("WFS_init", wfs.Handle(h), st); err != nil {
		return wfs.Handle(h), err
	}
	d.mu.Lock()
	d.spots[wfs.Handle(h)] = [2]int{}
	d.mu.Unlock()
	return wfs.Handle(h), nil
}

// Close ends a session
func (d *Driver) Close(h wfs.Handle) error {
	st := C.WFS_close(C.ViSession(h))
	d.mu.Lock()
	delete(d.spots, h)
	d.mu.Unlock()
	return d.status("WFS_close", h, st)
}

// GetInstrumentInfo returns the identity of the opened instrument
func (d *Driver) GetInstrumentInfo(h wfs.Handle) (wfs.InstrumentInfo, error) {
	mfr, name := charBuf(bufferSize), charBuf(bufferSize)
	snWFS, snCam := charBuf(bufferSize), charBuf(bufferSize)
	st := C.WFS_GetInstrumentInfo(C.ViSession(h), &mfr[0], &name[0], &snWFS[0], &snCam[0])
	info := wfs.InstrumentInfo{
		Manufacturer: goString(mfr),
		Name:         goString(name),
		SerialWFS:    goString(snWFS),
		SerialCamera: goString(snCam),
	}
	return info, d.status("WFS_GetInstrumentInfo", h, st)
}

// GetStatus reads the device status word
func (d *Driver) GetStatus(h wfs.Handle) (wfs.Status, error) {
	var s C.ViInt32
	st := C.WFS_GetStatus(C.ViSession(h), &s)
	return wfs.Status(uint32(s)), d.status("WFS_GetStatus", h, st)
}

// GetMlaCount returns the number of microlens arrays
func (d *Driver) GetMlaCount(h wfs.Handle) (int, error) {
	var n C.ViInt32
	st := C.WFS_GetMlaCount(C.ViSession(h), &n)
	return int(n), d.status("WFS_GetMlaCount", h, st)
}

// GetMlaData describes a microlens array
func (d *Driver) GetMlaData(h wfs.Handle, idx int) (wfs.MLA, error) {
	name := charBuf(bufferSize)
	var camPitch, lensPitch, offX, offY, focal, corr0, corr45 C.ViReal64
	st := C.WFS_GetMlaData(C.ViSession(h), C.ViInt32(idx), &name[0],
		&camPitch, &lensPitch, &offX, &offY, &focal, &corr0, &corr45)
	m := wfs.MLA{
		Index:          idx,
		Name:           goString(name),
		CamPitchUm:     float64(camPitch),
		LensletPitchUm: float64(lensPitch),
		SpotOffsetX:    float64(offX),
		SpotOffsetY:    float64(offY),
		LensletFocalUm: float64(focal),
		GridCorr0:      float64(corr0),
		GridCorr45:     float64(corr45),
	}
	return m, d.status("WFS_GetMlaData", h, st)
}

// SelectMla activates a microlens array
func (d *Driver) SelectMla(h wfs.Handle, idx int) error {
	return d.status("WFS_SelectMla", h, C.WFS_SelectMla(C.ViSession(h), C.ViInt32(idx)))
}

// ConfigureCam sets the pixel format and resolution and records the spot counts
func (d *Driver) ConfigureCam(h wfs.Handle, pf wfs.PixelFormat, resIdx int) (int, int, error) {
	var x, y C.ViInt32
	st := C.WFS_ConfigureCam(C.ViSession(h), C.ViInt32(pf), C.ViInt32(resIdx), &x, &y)
	if err := d.status("WFS_ConfigureCam", h, st); err != nil && !wfs.IsWarning(err) {
		return 0, 0, err
	}
	xi, yi := int(x), int(y)
	if xi > C.MAX_SPOTS_X {
		xi = C.MAX_SPOTS_X
	}
	if yi > C.MAX_SPOTS_Y {
		yi = C.MAX_SPOTS_Y
	}
	d.mu.Lock()
	d.spots[h] = [2]int{xi, yi}
	d.mu.Unlock()
	return xi, yi, d.status("WFS_ConfigureCam", h, st)
}

// SetReferencePlane selects the internal or user reference
func (d *Driver) SetReferencePlane(h wfs.Handle, ref wfs.ReferencePlane) error {
	return d.status("WFS_SetReferencePlane", h, C.WFS_SetReferencePlane(C.ViSession(h), C.ViInt32(ref)))
}

// SetPupil defines the pupil in mm
func (d *Driver) SetPupil(h wfs.Handle, p wfs.Pupil) error {
	st := C.WFS_SetPupil(C.ViSession(h),
		C.ViReal64(p.CenterX), C.ViReal64(p.CenterY), C.ViReal64(p.DiameterX), C.ViReal64(p.DiameterY))
	return d.status("WFS_SetPupil", h, st)
}

// SetTriggerMode sets the camera trigger mode
func (d *Driver) SetTriggerMode(h wfs.Handle, mode wfs.TriggerMode) error {
	return d.status("WFS_SetTriggerMode", h, C.WFS_SetTriggerMode(C.ViSession(h), C.ViInt32(mode)))
}

// TakeSpotfieldImageAutoExpos takes an image with automatic exposure
func (d *Driver) TakeSpotfieldImageAutoExpos(h wfs.Handle) (float64, float64, error) {
	var expos, gain C.ViReal64
	st := C.WFS_TakeSpotfieldImageAutoExpos(C.ViSession(h), &expos, &gain)
	return float64(expos), float64(gain), d.status("WFS_TakeSpotfieldImageAutoExpos", h, st)
}

// CalcSpotsCentrDiaIntens finds the spot centroids, diameters and intensities
func (d *Driver) CalcSpotsCentrDiaIntens(h wfs.Handle, dynamicNoiseCut, calcDiameters bool) error {
	st := C.WFS_CalcSpotsCentrDiaIntens(C.ViSession(h), viOption(dynamicNoiseCut), viOption(calcDiameters))
	return d.status("WFS_CalcSpotsCentrDiaIntens", h, st)
}

// GetSpotCentroids returns the spot centroids in pixels
func (d *Driver) GetSpotCentroids(h wfs.Handle) (wfs.Grid, wfs.Grid, error) {
	bx, by := newSpotBuf(), newSpotBuf()
	st := C.WFS_GetSpotCentroids(C.ViSession(h), bx.ptr(), by.ptr())
	if err := d.status("WFS_GetSpotCentroids", h, st); err != nil && !wfs.IsWarning(err) {
		return nil, nil, err
	}
	return d.crop(h, bx), d.crop(h, by), d.status("WFS_GetSpotCentroids", h, st)
}

// GetSpotIntensities returns the spot intensities
func (d *Driver) GetSpotIntensities(h wfs.Handle) (wfs.Grid, error) {
	b := newSpotBuf()
	st := C.WFS_GetSpotIntensities(C.ViSession(h), b.ptr())
	if err := d.status("WFS_GetSpotIntensities", h, st); err != nil && !wfs.IsWarning(err) {
		return nil, err
	}
	return d.crop(h, b), d.status("WFS_GetSpotIntensities", h, st)
}

// CalcBeamCentroidDia returns the beam centroid and diameter in mm
func (d *Driver) CalcBeamCentroidDia(h wfs.Handle) (wfs.Beam, error) {
	var cx, cy, dx, dy C.ViReal64
	st := C.WFS_CalcBeamCentroidDia(C.ViSession(h), &cx, &cy, &dx, &dy)
	b := wfs.Beam{
		CentroidX: float64(cx),
		CentroidY: float64(cy),
		DiameterX: float64(dx),
		DiameterY: float64(dy),
	}
	return b, d.status("WFS_CalcBeamCentroidDia", h, st)
}

// CalcSpotToReferenceDeviations computes the spot deviations
func (d *Driver) CalcSpotToReferenceDeviations(h wfs.Handle, cancelTilt bool) error {
	st := C.WFS_CalcSpotToReferenceDeviations(C.ViSession(h), viOption(cancelTilt))
	return d.status("WFS_CalcSpotToReferenceDeviations", h, st)
}

// GetSpotDeviations returns the spot deviations in pixels
func (d *Driver) GetSpotDeviations(h wfs.Handle) (wfs.Grid, wfs.Grid, error) {
	bx, by := newSpotBuf(), newSpotBuf()
	st := C.WFS_GetSpotDeviations(C.ViSession(h), bx.ptr(), by.ptr())
	if err := d.status("WFS_GetSpotDeviations", h, st); err != nil && !wfs.IsWarning(err) {
		return nil, nil, err
	}
	return d.crop(h, bx), d.crop(h, by), d.status("WFS_GetSpotDeviations", h, st)
}

// CalcWavefront returns the wavefront in microns
func (d *Driver) CalcWavefront(h wfs.Handle, typ wfs.WavefrontType, limitToPupil bool) (wfs.Grid, error) {
	b := newSpotBuf()
	st := C.WFS_CalcWavefront(C.ViSession(h), C.ViInt32(typ), viOption(limitToPupil), b.ptr())
	if err := d.status("WFS_CalcWavefront", h, st); err != nil && !wfs.IsWarning(err) {
		return nil, err
	}
	return d.crop(h, b), d.status("WFS_CalcWavefront", h, st)
}

// CalcWavefrontStatistics returns the statistics of the last wavefront
func (d *Driver) CalcWavefrontStatistics(h wfs.Handle) (wfs.WavefrontStats, error) {
	var min, max, diff, mean, rms, wrms C.ViReal64
	st := C.WFS_CalcWavefrontStatistics(C.ViSession(h), &min, &max, &diff, &mean, &rms, &wrms)
	s := wfs.WavefrontStats{
		Min:         float64(min),
		Max:         float64(max),
		Diff:        float64(diff),
		Mean:        float64(mean),
		RMS:         float64(rms),
		WeightedRMS: float64(wrms),
	}
	return s, d.status("WFS_CalcWavefrontStatistics", h, st)
}

// ZernikeLsf fits Zernike polynomials.  The driver's arrays start at index 1;
// the returned slices start at mode 1 and order 1.
func (d *Driver) ZernikeLsf(h wfs.Handle, order int) (wfs.ZernikeFit, error) {
	zo := C.ViInt32(order)
	var (
		modes [C.MAX_ZERNIKE_MODES + 1]C.ViReal32
		rms   [C.MAX_ZERNIKE_ORDERS + 1]C.ViReal32
		roc   C.ViReal64
	)
	st := C.WFS_ZernikeLsf(C.ViSession(h), &zo, &modes[0], &rms[0], &roc)
	if err := d.status("WFS_ZernikeLsf", h, st); err != nil && !wfs.IsWarning(err) {
		return wfs.ZernikeFit{}, err
	}
	fit := wfs.ZernikeFit{Order: int(zo), RadiusOfCurvatureMm: float64(roc)}
	n := wfs.ZernikeModes(fit.Order)
	fit.Coefficients = make([]float32, n)
	for i := range fit.Coefficients {
		fit.Coefficients[i] = float32(modes[i+1])
	}
	fit.OrderRMS = make([]float32, fit.Order)
	for i := range fit.OrderRMS {
		fit.OrderRMS[i] = float32(rms[i+1])
	}
	return fit, d.status("WFS_ZernikeLsf", h, st)
}

// CalcFourierOptometric computes the Fourier and optometric parameters
func (d *Driver) CalcFourierOptometric(h wfs.Handle, zernikeOrder, fourierOrder int) (wfs.Optometric, error) {
	var m, j0, j45, sph, cyl, axis C.ViReal64
	st := C.WFS_CalcFourierOptometric(C.ViSession(h), C.ViInt32(zernikeOrder), C.ViInt32(fourierOrder),
		&m, &j0, &j45, &sph, &cyl, &axis)
	o := wfs.Optometric{
		M:        float64(m),
		J0:       float64(j0),
		J45:      float64(j45),
		Sphere:   float64(sph),
		Cylinder: float64(cyl),
		AxisDeg:  float64(axis),
	}
	return o, d.status("WFS_CalcFourierOptometric", h, st)
}

// CalcReconstrDeviations reconstructs the wavefront from the selected modes
// (modes[0] is mode 1) and returns the fit error mean and stdev
func (d *Driver) CalcReconstrDeviations(h wfs.Handle, zernikeOrder int, modes []bool, sphericalRef bool) (float64, float64, error) {
	var sel [C.MAX_ZERNIKE_MODES + 1]C.ViInt32
	for i, on := range modes {
		if i+1 > C.MAX_ZERNIKE_MODES {
			break
		}
		sel[i+1] = viOption(on)
	}
	var mean, stdev C.ViReal64
	st := C.WFS_CalcReconstrDeviations(C.ViSession(h), C.ViInt32(zernikeOrder), &sel[0], viOption(sphericalRef), &mean, &stdev)
	return float64(mean), float64(stdev), d.status("WFS_CalcReconstrDeviations", h, st)
}

var _ wfs.Driver = (*Driver)(nil)
