package wfs

// Driver is the instrument driver.  Each method maps onto one driver function;
// methods taking a Handle act on an opened session.
//
// Grids are cropped to the spot counts returned by the last ConfigureCam.
// Non-zero driver statuses are returned as Error.
type Driver interface {
	// RevisionQuery returns the driver versions.  It works without a session.
	RevisionQuery() (Revision, error)

	// InstrumentListLen scans the bus and returns the number of instruments
	InstrumentListLen() (int, error)

	// InstrumentListInfo returns the idx-th entry of the last scan
	InstrumentListInfo(idx int) (ListEntry, error)

	// Init opens a session to the instrument with the given resource name
	Init(resource string, idQuery, reset bool) (Handle, error)

	// Close releases the session and the driver's data for it
	Close(h Handle) error

	// ErrorMessage returns the driver's text for a status code
	ErrorMessage(h Handle, code int32) string

	GetInstrumentInfo(h Handle) (InstrumentInfo, error)
	GetStatus(h Handle) (Status, error)

	GetMlaCount(h Handle) (int, error)
	GetMlaData(h Handle, idx int) (MLA, error)
	SelectMla(h Handle, idx int) error

	// ConfigureCam sets pixel format and resolution and returns the
	// number of spots (x, y) the camera detects
	ConfigureCam(h Handle, pf PixelFormat, resIdx int) (int, int, error)

	SetReferencePlane(h Handle, ref ReferencePlane) error
	SetPupil(h Handle, p Pupil) error
	SetTriggerMode(h Handle, mode TriggerMode) error

	// TakeSpotfieldImageAutoExpos takes an image, adapting exposure and gain.
	// It returns the exposure time (ms) and master gain actually used.
	TakeSpotfieldImageAutoExpos(h Handle) (float64, float64, error)

	CalcSpotsCentrDiaIntens(h Handle, dynamicNoiseCut, calcDiameters bool) error
	GetSpotCentroids(h Handle) (Grid, Grid, error)
	GetSpotIntensities(h Handle) (Grid, error)
	CalcBeamCentroidDia(h Handle) (Beam, error)
	CalcSpotToReferenceDeviations(h Handle, cancelTilt bool) error
	GetSpotDeviations(h Handle) (Grid, Grid, error)
	CalcWavefront(h Handle, typ WavefrontType, limitToPupil bool) (Grid, error)
	CalcWavefrontStatistics(h Handle) (WavefrontStats, error)

	// ZernikeLsf fits Zernike polynomials up to order; the driver may lower the order
	ZernikeLsf(h Handle, order int) (ZernikeFit, error)

	CalcFourierOptometric(h Handle, zernikeOrder, fourierOrder int) (Optometric, error)

	// CalcReconstrDeviations reconstructs the wavefront from the selected
	// modes (modes[0] is mode 1) and returns the fit error mean and stdev
	CalcReconstrDeviations(h Handle, zernikeOrder int, modes []bool, sphericalRef bool) (float64, float64, error)
}
