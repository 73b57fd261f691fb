/*
Package wfs provides control of Thorlabs Shack-Hartmann wavefront sensors
(WFS10, WFS20, WFS30, WFS40, WFS150/300).

The numerical work (spot centroiding, wavefront reconstruction, Zernike
least-squares fitting and Fourier optometric conversion) is done by the
vendor instrument driver.  This package sequences the driver calls through
the Driver interface, which is implemented against the real library in
package sdk and simulated by Mock.

A typical triggered acquisition looks like:

	entries, _ := wfs.Enumerate(drv)
	s, _ := wfs.Open(drv, entries[0], log)
	defer s.Close()
	s.SelectMLA(0)
	s.Apply(wfs.DefaultSettings())
	for {
		st, err := s.WaitForTrigger(ctx, nil)
		...
		m, err := s.Measure()
		...
	}
*/
package wfs

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MaxSpotsX is the largest number of lenslet spots along x the driver reports
	MaxSpotsX = 150

	// MaxSpotsY is the largest number of lenslet spots along y the driver reports
	MaxSpotsY = 150

	// MaxZernikeOrders is the highest Zernike order the driver can fit
	MaxZernikeOrders = 10
)

// Handle is a session handle returned by the driver
type Handle uint32

// Status is the device status word reported by the driver
type Status uint32

// status bits, named as in the driver header
const (
	// StatCON means the USB connection was lost
	StatCON Status = 0x00000001

	// StatPTH means the power is too high, the camera is saturated
	StatPTH Status = 0x00000002

	// StatPTL means the power is too low
	StatPTL Status = 0x00000004

	// StatHAL means high ambient light
	StatHAL Status = 0x00000008

	// StatSCL means the spot contrast is too low
	StatSCL Status = 0x00000010

	// StatZFL means the Zernike fit failed because too few spots were detected
	StatZFL Status = 0x00000020

	// StatZFH means the Zernike fit failed because too many spots were detected
	StatZFH Status = 0x00000040

	// StatATR means the camera is still awaiting a trigger
	StatATR Status = 0x00000080

	// StatCFG means the camera is configured and ready
	StatCFG Status = 0x00000100

	// StatPUD means the pupil is defined
	StatPUD Status = 0x00000200

	// StatSPC means the number of spots, pupil or AOI changed
	StatSPC Status = 0x00000400

	// StatRDA means reference spot data is available
	StatRDA Status = 0x00000800

	// StatURF means user reference data is available
	StatURF Status = 0x00001000

	// StatHSP means the camera is in highspeed mode
	StatHSP Status = 0x00002000

	// StatMIS means centroids mismatched in highspeed mode
	StatMIS Status = 0x00004000

	// StatLOS means a low number of spots was detected
	StatLOS Status = 0x00008000

	// StatFIL means the pupil is badly filled with spots
	StatFIL Status = 0x00010000

	// IdleStatus is the status word the sensor reports while armed and
	// waiting for a hardware trigger (CFG|PUD|SPC|SCL)
	IdleStatus Status = 0x00000710
)

var statusNames = []struct {
	bit  Status
	name string
}{
	{StatCON, "CON"}, {StatPTH, "PTH"}, {StatPTL, "PTL"}, {StatHAL, "HAL"},
	{StatSCL, "SCL"}, {StatZFL, "ZFL"}, {StatZFH, "ZFH"}, {StatATR, "ATR"},
	{StatCFG, "CFG"}, {StatPUD, "PUD"}, {StatSPC, "SPC"}, {StatRDA, "RDA"},
	{StatURF, "URF"}, {StatHSP, "HSP"}, {StatMIS, "MIS"}, {StatLOS, "LOS"},
	{StatFIL, "FIL"},
}

// Has returns true if all bits of b are set in s
func (s Status) Has(b Status) bool {
	return s&b == b
}

// Unusable is true when the spotfield image cannot be evaluated:
// the camera is saturated, the power is too low, or the ambient light is too high
func (s Status) Unusable() bool {
	return s&(StatPTH|StatPTL|StatHAL) != 0
}

// String renders the set flags, e.g. "CFG|PUD|SPC"
func (s Status) String() string {
	if s == 0 {
		return "0"
	}
	parts := []string{}
	for _, n := range statusNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// TriggerMode selects how the camera starts an exposure
type TriggerMode int32

const (
	// TriggerContinuous runs the camera freely
	TriggerContinuous TriggerMode = iota

	// TriggerActiveLow starts an exposure on a falling edge
	TriggerActiveLow

	// TriggerActiveHigh starts an exposure on a rising edge
	TriggerActiveHigh

	// TriggerSoftware starts an exposure on a software command
	TriggerSoftware
)

func (t TriggerMode) String() string {
	switch t {
	case TriggerContinuous:
		return "continuous"
	case TriggerActiveLow:
		return "active-low"
	case TriggerActiveHigh:
		return "active-high"
	case TriggerSoftware:
		return "software"
	}
	return "unknown"
}

// ReferencePlane selects the reference the spot deviations are computed against
type ReferencePlane int32

const (
	// RefInternal is the factory reference
	RefInternal ReferencePlane = iota

	// RefUser is a user recorded reference
	RefUser
)

func (r ReferencePlane) String() string {
	switch r {
	case RefInternal:
		return "internal"
	case RefUser:
		return "user"
	}
	return "unknown"
}

// ParseReferencePlane parses "internal" or "user", or the driver's 0 or 1
func ParseReferencePlane(s string) (ReferencePlane, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "internal", "0":
		return RefInternal, nil
	case "user", "1":
		return RefUser, nil
	}
	return RefInternal, errors.Errorf("reference plane %q is not internal or user", s)
}

// WavefrontType selects which wavefront CalcWavefront returns
type WavefrontType int32

const (
	// WavefrontMeasured is the wavefront integrated from the spot deviations
	WavefrontMeasured WavefrontType = iota

	// WavefrontReconstructed is the wavefront rebuilt from the Zernike coefficients
	WavefrontReconstructed

	// WavefrontDiff is the difference between measured and reconstructed
	WavefrontDiff
)

func (w WavefrontType) String() string {
	switch w {
	case WavefrontMeasured:
		return "measured"
	case WavefrontReconstructed:
		return "reconstructed"
	case WavefrontDiff:
		return "difference"
	}
	return "unknown"
}

// PixelFormat is the camera pixel format.  Only 8-bit is supported by the sensors.
type PixelFormat int32

// PixelMono8 is 8-bit monochrome
const PixelMono8 PixelFormat = 0

// ListEntry is one row of the driver's instrument list
type ListEntry struct {
	DeviceID int    `json:"deviceID"`
	InUse    bool   `json:"inUse"`
	Name     string `json:"name"`
	Serial   string `json:"serial"`
	Resource string `json:"resource"`
}

// Family returns the instrument family encoded in the device ID
func (e ListEntry) Family() Family {
	return FamilyOf(e.DeviceID)
}

// Revision holds the driver versions
type Revision struct {
	Driver string `json:"driver"`
	Camera string `json:"camera"`
}

// InstrumentInfo describes an opened instrument
type InstrumentInfo struct {
	Manufacturer string `json:"manufacturer"`
	Name         string `json:"name"`
	SerialWFS    string `json:"serialWFS"`
	SerialCamera string `json:"serialCamera"`
}

// MLA describes a microlens array known to the instrument
type MLA struct {
	Index          int     `json:"index"`
	Name           string  `json:"name"`
	CamPitchUm     float64 `json:"camPitchUm"`
	LensletPitchUm float64 `json:"lensletPitchUm"`
	SpotOffsetX    float64 `json:"spotOffsetX"`
	SpotOffsetY    float64 `json:"spotOffsetY"`
	LensletFocalUm float64 `json:"lensletFocalUm"`
	GridCorr0      float64 `json:"gridCorr0"`
	GridCorr45     float64 `json:"gridCorr45"`
}

// Pupil is the circular/elliptical region the wavefront is evaluated in, in mm
type Pupil struct {
	CenterX   float64 `json:"centerX" yaml:"CenterX" koanf:"CenterX"`
	CenterY   float64 `json:"centerY" yaml:"CenterY" koanf:"CenterY"`
	DiameterX float64 `json:"diameterX" yaml:"DiameterX" koanf:"DiameterX"`
	DiameterY float64 `json:"diameterY" yaml:"DiameterY" koanf:"DiameterY"`
}

// Grid is a row-major array of per-spot values, indexed [y][x]
type Grid [][]float32

// NewGrid allocates a rows x cols grid
func NewGrid(rows, cols int) Grid {
	g := make(Grid, rows)
	for i := range g {
		g[i] = make([]float32, cols)
	}
	return g
}

// CropGrid copies the leading rows x cols block out of a row-major buffer
// whose rows are stride values apart.  Rows and cols are clamped to what
// the buffer holds.
func CropGrid(buf []float32, stride, rows, cols int) Grid {
	if stride <= 0 {
		return NewGrid(0, 0)
	}
	if cols > stride {
		cols = stride
	}
	if n := len(buf) / stride; rows > n {
		rows = n
	}
	g := NewGrid(rows, cols)
	for row := range g {
		copy(g[row], buf[row*stride:row*stride+cols])
	}
	return g
}

// Dims returns (rows, cols)
func (g Grid) Dims() (int, int) {
	if len(g) == 0 {
		return 0, 0
	}
	return len(g), len(g[0])
}

// Flatten returns the grid as a single row-major slice
func (g Grid) Flatten() []float32 {
	rows, cols := g.Dims()
	out := make([]float32, 0, rows*cols)
	for _, row := range g {
		out = append(out, row...)
	}
	return out
}

// MarshalJSON encodes the grid as nested arrays.  NaN and infinite values,
// which the driver uses outside the pupil, are encoded as null.
func (g Grid) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("null"), nil
	}
	rows, cols := g.Dims()
	b := make([]byte, 0, 2+rows*(2+12*cols))
	b = append(b, '[')
	for i, row := range g {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '[')
		for j, v := range row {
			if j > 0 {
				b = append(b, ',')
			}
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				b = append(b, "null"...)
				continue
			}
			b = strconv.AppendFloat(b, f, 'g', -1, 32)
		}
		b = append(b, ']')
	}
	return append(b, ']'), nil
}

// Beam is the centroid and diameter of the input beam, in mm
type Beam struct {
	CentroidX float64 `json:"centroidX"`
	CentroidY float64 `json:"centroidY"`
	DiameterX float64 `json:"diameterX"`
	DiameterY float64 `json:"diameterY"`
}

// WavefrontStats are the wavefront statistics within the pupil, in microns
type WavefrontStats struct {
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Diff        float64 `json:"diff"`
	Mean        float64 `json:"mean"`
	RMS         float64 `json:"rms"`
	WeightedRMS float64 `json:"weightedRMS"`
}

// ZernikeFit is the result of a Zernike least squares fit
type ZernikeFit struct {
	// Order is the order actually fitted
	Order int `json:"order"`

	// Coefficients are the mode amplitudes in microns, Coefficients[0] is mode 1
	Coefficients []float32 `json:"coefficients"`

	// OrderRMS is the RMS per order in microns, OrderRMS[0] is order 1
	OrderRMS []float32 `json:"orderRMS"`

	// RadiusOfCurvatureMm is the wavefront radius of curvature
	RadiusOfCurvatureMm float64 `json:"radiusOfCurvatureMm"`
}

// Optometric holds the Fourier and optometric parameters of the wavefront
type Optometric struct {
	M        float64 `json:"M"`
	J0       float64 `json:"J0"`
	J45      float64 `json:"J45"`
	Sphere   float64 `json:"sphere"`
	Cylinder float64 `json:"cylinder"`
	AxisDeg  float64 `json:"axisDeg"`
}

// zernikeModes converts a Zernike order to the number of modes up to that order
var zernikeModes = [MaxZernikeOrders + 1]int{1, 3, 6, 10, 15, 21, 28, 36, 45, 55, 66}

// ZernikeModes returns the number of Zernike modes fitted for an order.
// Order 0 (no fit) and out of range orders return 0.
func ZernikeModes(order int) int {
	if order < 1 || order > MaxZernikeOrders {
		return 0
	}
	return zernikeModes[order]
}
