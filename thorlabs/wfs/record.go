package wfs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Measurement is everything retrieved from the driver for one spotfield image
type Measurement struct {
	Time   time.Time `json:"time"`
	Status Status    `json:"status"`

	SpotsX int `json:"spotsX"`
	SpotsY int `json:"spotsY"`

	// ExposureMs and MasterGain are only populated in continuous mode,
	// where the exposure is adapted per image
	ExposureMs float64 `json:"exposureMs,omitempty"`
	MasterGain float64 `json:"masterGain,omitempty"`

	Beam Beam `json:"beam"`

	CentroidX  Grid `json:"centroidX"`
	CentroidY  Grid `json:"centroidY"`
	DeviationX Grid `json:"deviationX"`
	DeviationY Grid `json:"deviationY"`
	Intensity  Grid `json:"intensity"`
	Wavefront  Grid `json:"wavefront"`

	Stats WavefrontStats `json:"stats"`

	// FourierOrder is 0 when the optometric calculation was skipped
	FourierOrder int        `json:"fourierOrder"`
	Optometric   Optometric `json:"optometric"`

	// Zernike.Order is 0 when the fit was skipped or failed
	Zernike ZernikeFit `json:"zernike"`

	// ZernikeErr holds the reason a requested fit did not produce coefficients
	ZernikeErr string `json:"zernikeErr,omitempty"`

	FitErrMean  float64 `json:"fitErrMean"`
	FitErrStdev float64 `json:"fitErrStdev"`
}

// WriteRecord writes m as one line of the record file.  The line is a
// Python-literal style dict; the keys and number formats are fixed because
// downstream analysis parses them.  Spot arrays are written row by row.
func WriteRecord(w io.Writer, m Measurement) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "{")
	fmt.Fprintf(bw, "'Beam Center X': %6.3f, ", m.Beam.CentroidX)
	fmt.Fprintf(bw, "'Beam Center Y': %6.3f, ", m.Beam.CentroidY)
	fmt.Fprintf(bw, "'Beam Diameter X': %6.3f, ", m.Beam.DiameterX)
	fmt.Fprintf(bw, "'Beam Diameter Y': %6.3f, ", m.Beam.DiameterY)
	fmt.Fprintf(bw, "'Wavefront Min': %8.3f, ", m.Stats.Min)
	fmt.Fprintf(bw, "'Wavefront Max': %8.3f, ", m.Stats.Max)
	fmt.Fprintf(bw, "'Wavefront Mean': %8.3f, ", m.Stats.Mean)
	fmt.Fprintf(bw, "'Wavefront Peak-to-valley': %8.3f, ", m.Stats.Diff)
	fmt.Fprintf(bw, "'Wavefront RMS': %8.3f, ", m.Stats.RMS)
	fmt.Fprintf(bw, "'Wavefront Weigthed RMS': %8.3f, ", m.Stats.WeightedRMS)
	fmt.Fprintf(bw, "'FourierM': %8.6f, ", m.Optometric.M)
	fmt.Fprintf(bw, "'FourierJ0': %8.6f, ", m.Optometric.J0)
	fmt.Fprintf(bw, "'FourierJ45': %8.6f, ", m.Optometric.J45)
	fmt.Fprintf(bw, "'Optometric Sphere': %8.6f, ", m.Optometric.Sphere)
	fmt.Fprintf(bw, "'Optometric Cylinder': %8.6f, ", m.Optometric.Cylinder)
	fmt.Fprintf(bw, "'Optometric Axis Angle': %8.6f, ", m.Optometric.AxisDeg)
	fmt.Fprintf(bw, "'Radius of Curvature': %8.6f, ", m.Zernike.RadiusOfCurvatureMm)
	fmt.Fprintf(bw, "'Fit Error Mean': %8.3f, ", m.FitErrMean)
	fmt.Fprintf(bw, "'Fit Error Std': %8.3f, ", m.FitErrStdev)

	fmt.Fprint(bw, "'Zernike Amplitudes Array': [")
	for _, c := range m.Zernike.Coefficients {
		fmt.Fprintf(bw, "%8.6f,", c)
	}
	fmt.Fprint(bw, "], 'Zernike RMS Array': [")
	for _, c := range m.Zernike.OrderRMS {
		fmt.Fprintf(bw, "%8.6f,", c)
	}
	fmt.Fprint(bw, "], 'Spot Deviation Array': [")
	for y := range m.DeviationX {
		for x := range m.DeviationX[y] {
			fmt.Fprintf(bw, "[%8.3f,%8.3f], ", m.DeviationX[y][x], m.DeviationY[y][x])
		}
	}
	fmt.Fprint(bw, "], 'Spot Intensity Array': [")
	for y := range m.Intensity {
		for x := range m.Intensity[y] {
			fmt.Fprintf(bw, "%8.3f, ", m.Intensity[y][x])
		}
	}
	fmt.Fprint(bw, "]};\n")
	return bw.Flush()
}

// RecordFile appends measurements to a text file, one line each.
// The file is opened and closed for every record so it can be read or moved
// between triggers.
type RecordFile struct {
	Path string
}

// Append writes m at the end of the file, creating the file and its folder if needed
func (r RecordFile) Append(m Measurement) error {
	if dir := filepath.Dir(r.Path); dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return errors.Wrapf(err, "file writing error at %s", r.Path)
		}
	}
	f, err := os.OpenFile(r.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return errors.Wrapf(err, "file writing error at %s", r.Path)
	}
	err = WriteRecord(f, m)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return errors.Wrapf(err, "file writing error at %s", r.Path)
}
