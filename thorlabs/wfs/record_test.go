package wfs

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func smallMeasurement() Measurement {
	return Measurement{
		SpotsX:     2,
		SpotsY:     1,
		Beam:       Beam{CentroidX: 1.5, CentroidY: -0.25, DiameterX: 3, DiameterY: 2.75},
		Stats:      WavefrontStats{Min: -0.5, Max: 0.5, Diff: 1, Mean: 0, RMS: 0.25, WeightedRMS: 0.125},
		Optometric: Optometric{M: 0.5, J0: -0.01, J45: 0, Sphere: 1, Cylinder: -0.5, AxisDeg: 90},
		Zernike: ZernikeFit{
			Order:               1,
			Coefficients:        []float32{0.5, 0.25, 0},
			OrderRMS:            []float32{0.125},
			RadiusOfCurvatureMm: 1000,
		},
		FitErrMean:  0.001,
		FitErrStdev: 0.002,
		DeviationX:  Grid{{0.1, -0.2}},
		DeviationY:  Grid{{0.3, 0.4}},
		Intensity:   Grid{{10, 20}},
	}
}

func TestWriteRecordLine(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteRecord(buf, smallMeasurement()); err != nil {
		t.Fatal(err)
	}
	want := "{'Beam Center X':  1.500, 'Beam Center Y': -0.250, " +
		"'Beam Diameter X':  3.000, 'Beam Diameter Y':  2.750, " +
		"'Wavefront Min':   -0.500, 'Wavefront Max':    0.500, " +
		"'Wavefront Mean':    0.000, 'Wavefront Peak-to-valley':    1.000, " +
		"'Wavefront RMS':    0.250, 'Wavefront Weigthed RMS':    0.125, " +
		"'FourierM': 0.500000, 'FourierJ0': -0.010000, 'FourierJ45': 0.000000, " +
		"'Optometric Sphere': 1.000000, 'Optometric Cylinder': -0.500000, " +
		"'Optometric Axis Angle': 90.000000, 'Radius of Curvature': 1000.000000, " +
		"'Fit Error Mean':    0.001, 'Fit Error Std':    0.002, " +
		"'Zernike Amplitudes Array': [0.500000,0.250000,0.000000,], " +
		"'Zernike RMS Array': [0.125000,], " +
		"'Spot Deviation Array': [[   0.100,   0.300], [  -0.200,   0.400], ], " +
		"'Spot Intensity Array': [  10.000,   20.000, ]};\n"
	if got := buf.String(); got != want {
		t.Errorf("record line mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestWriteRecordRowMajor(t *testing.T) {
	m := Measurement{Intensity: Grid{{1, 2}, {3, 4}}}
	buf := &bytes.Buffer{}
	if err := WriteRecord(buf, m); err != nil {
		t.Fatal(err)
	}
	want := "'Spot Intensity Array': [   1.000,    2.000,    3.000,    4.000, ]};\n"
	if !strings.HasSuffix(buf.String(), want) {
		t.Errorf("intensities not row-major: %q", buf.String())
	}
}

func TestRecordFileAppends(t *testing.T) {
	dir, err := ioutil.TempDir("", "wfsrec")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	rf := RecordFile{Path: filepath.Join(dir, "nested", DefaultFileName)}
	for i := 0; i < 2; i++ {
		if err := rf.Append(smallMeasurement()); err != nil {
			t.Fatal(err)
		}
	}
	b, err := ioutil.ReadFile(rf.Path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "{'Beam Center X'") || !strings.HasSuffix(l, "]};") {
			t.Errorf("malformed line %q", l)
		}
	}
}
