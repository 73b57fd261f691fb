package wfs

import (
	"fmt"
	"io"
)

// WriteInstrumentList prints the instrument table the console programs show
// before asking for a device ID
func WriteInstrumentList(w io.Writer, entries []ListEntry) {
	fmt.Fprint(w, "Available Wavefront Sensor instruments:\n\n")
	fmt.Fprint(w, "Device_ID  WFS_name  Serial_num\n")
	for _, e := range entries {
		inUse := ""
		if e.InUse {
			inUse = "(inUse)"
		}
		fmt.Fprintf(w, " %4d   %s    %s    %s\n", e.DeviceID, e.Name, e.Serial, inUse)
	}
}

// WriteMLAList prints one line per microlens array
func WriteMLAList(w io.Writer, mlas []MLA) {
	fmt.Fprint(w, "\nAvailable Microlens Arrays:\n\n")
	for _, m := range mlas {
		fmt.Fprintf(w, "%2d  %s   CamPitch=%6.3f LensletPitch=%8.3f\n", m.Index, m.Name, m.CamPitchUm, m.LensletPitchUm)
	}
}

// WriteResolutions prints the resolution index table of the family
func WriteResolutions(w io.Writer, f Family) {
	for i, r := range f.Resolutions() {
		fmt.Fprintf(w, "%d  %dx%d\n", i, r.Width, r.Height)
	}
}

// WriteInstrumentInfo prints the identity of an opened instrument
func WriteInstrumentInfo(w io.Writer, info InstrumentInfo) {
	fmt.Fprint(w, "\nOpened Instrument:\n")
	fmt.Fprintf(w, "Manufacturer           : %s\n", info.Manufacturer)
	fmt.Fprintf(w, "Instrument Name        : %s\n", info.Name)
	fmt.Fprintf(w, "Serial Number WFS      : %s\n", info.SerialWFS)
}

// WriteReferencePlane reports the reference plane the spot deviations are taken against
func WriteReferencePlane(w io.Writer, ref ReferencePlane) {
	fmt.Fprintf(w, "\nSet WFS to %s reference plane.\n", ref)
}

// WriteSummary prints the beam, the wavefront statistics and the Zernike
// table of a measurement
func WriteSummary(w io.Writer, m Measurement, zernikeOrder int) {
	fmt.Fprint(w, "\nInput beam is measured to:\n")
	fmt.Fprintf(w, "Centroid_x = %6.3f mm\n", m.Beam.CentroidX)
	fmt.Fprintf(w, "Centroid_y = %6.3f mm\n", m.Beam.CentroidY)
	fmt.Fprintf(w, "Diameter_x = %6.3f mm\n", m.Beam.DiameterX)
	fmt.Fprintf(w, "Diameter_y = %6.3f mm\n", m.Beam.DiameterY)

	s := m.Stats
	fmt.Fprint(w, "\nWavefront Statistics in microns:\n")
	fmt.Fprintf(w, "Min          : %8.3f\n", s.Min)
	fmt.Fprintf(w, "Max          : %8.3f\n", s.Max)
	fmt.Fprintf(w, "Diff         : %8.3f\n", s.Diff)
	fmt.Fprintf(w, "Mean         : %8.3f\n", s.Mean)
	fmt.Fprintf(w, "RMS          : %8.3f\n", s.RMS)
	fmt.Fprintf(w, "Weigthed RMS : %8.3f\n", s.WeightedRMS)

	if zernikeOrder == 0 {
		return
	}
	fmt.Fprintf(w, "\nZernike fit up to order %d:\n", zernikeOrder)
	if m.ZernikeErr != "" {
		fmt.Fprint(w, "Insufficient\n")
		return
	}
	fmt.Fprint(w, "\nZernike Mode    Coefficient\n")
	for i, c := range m.Zernike.Coefficients {
		fmt.Fprintf(w, "  %2d         %9.3f\n", i+1, c)
	}
}
