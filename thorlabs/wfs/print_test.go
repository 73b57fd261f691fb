package wfs

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestWriteInstrumentList(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteInstrumentList(buf, NewMock().Instruments)
	want := "Available Wavefront Sensor instruments:\n\n" +
		"Device_ID  WFS_name  Serial_num\n" +
		"  512   WFS20-5C    M00000001    \n" +
		"  513   WFS20-7AR    M00000002    (inUse)\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func ExampleWriteResolutions() {
	WriteResolutions(os.Stdout, FamilyWFS20)
	// Output:
	// 0  1440x1080
	// 1  1080x1080
	// 2  768x768
	// 3  512x512
	// 4  360x360
	// 5  720x540
	// 6  540x540
	// 7  384x384
	// 8  256x256
	// 9  180x180
}

func ExampleWriteReferencePlane() {
	WriteReferencePlane(os.Stdout, RefInternal)
	WriteReferencePlane(os.Stdout, RefUser)
	// Output:
	// Set WFS to internal reference plane.
	//
	// Set WFS to user reference plane.
}

func TestWriteMLAList(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteMLAList(buf, []MLA{{Index: 0, Name: "MLA150-5C", CamPitchUm: 5, LensletPitchUm: 150}})
	want := " 0  MLA150-5C   CamPitch= 5.000 LensletPitch= 150.000\n"
	if !strings.HasSuffix(buf.String(), want) {
		t.Errorf("got %q, want suffix %q", buf.String(), want)
	}
}

func TestWriteSummaryZernike(t *testing.T) {
	m := smallMeasurement()
	buf := &bytes.Buffer{}
	WriteSummary(buf, m, 1)
	out := buf.String()
	for _, s := range []string{"Centroid_x =  1.500 mm", "Weigthed RMS :    0.125", "   1             0.500", "   3             0.000"} {
		if !strings.Contains(out, s) {
			t.Errorf("%q missing from\n%s", s, out)
		}
	}

	m.ZernikeErr = "insufficient: fit failed"
	buf.Reset()
	WriteSummary(buf, m, 4)
	if !strings.HasSuffix(buf.String(), "Zernike fit up to order 4:\nInsufficient\n") {
		t.Errorf("failed fit printed as\n%s", buf.String())
	}

	buf.Reset()
	WriteSummary(buf, m, 0)
	if strings.Contains(buf.String(), "Zernike") {
		t.Error("Zernike table printed with the fit disabled")
	}
}
