package wfs

import (
	"fmt"

	"github.com/astrogo/fitsio"
)

// FITSCards produces the header metadata of a wavefront image.
// Keywords are limited to eight characters.
func (m Measurement) FITSCards() []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "DATE-OBS", Value: m.Time.UTC().Format("2006-01-02T15:04:05.000"), Comment: "time of the measurement, UTC"},
		{Name: "WFSSTAT", Value: int(m.Status), Comment: "device status word"},
		{Name: "SPOTSX", Value: m.SpotsX, Comment: "lenslet spots along x"},
		{Name: "SPOTSY", Value: m.SpotsY, Comment: "lenslet spots along y"},
		{Name: "BUNIT", Value: "um", Comment: "wavefront unit"},
		{Name: "BEAMCX", Value: m.Beam.CentroidX, Comment: "[mm] beam centroid x"},
		{Name: "BEAMCY", Value: m.Beam.CentroidY, Comment: "[mm] beam centroid y"},
		{Name: "BEAMDX", Value: m.Beam.DiameterX, Comment: "[mm] beam diameter x"},
		{Name: "BEAMDY", Value: m.Beam.DiameterY, Comment: "[mm] beam diameter y"},
		{Name: "WFMIN", Value: m.Stats.Min, Comment: "[um] wavefront min"},
		{Name: "WFMAX", Value: m.Stats.Max, Comment: "[um] wavefront max"},
		{Name: "WFPV", Value: m.Stats.Diff, Comment: "[um] wavefront peak to valley"},
		{Name: "WFMEAN", Value: m.Stats.Mean, Comment: "[um] wavefront mean"},
		{Name: "WFRMS", Value: m.Stats.RMS, Comment: "[um] wavefront RMS"},
		{Name: "WFWRMS", Value: m.Stats.WeightedRMS, Comment: "[um] wavefront weighted RMS"},
	}
	if m.ExposureMs != 0 {
		cards = append(cards,
			fitsio.Card{Name: "EXPTIME", Value: m.ExposureMs / 1e3, Comment: "[s] exposure time"},
			fitsio.Card{Name: "GAIN", Value: m.MasterGain, Comment: "camera master gain"})
	}
	if m.FourierOrder != 0 {
		cards = append(cards,
			fitsio.Card{Name: "FOURORD", Value: m.FourierOrder, Comment: "Fourier order"},
			fitsio.Card{Name: "FOURM", Value: m.Optometric.M, Comment: "Fourier M"},
			fitsio.Card{Name: "FOURJ0", Value: m.Optometric.J0, Comment: "Fourier J0"},
			fitsio.Card{Name: "FOURJ45", Value: m.Optometric.J45, Comment: "Fourier J45"},
			fitsio.Card{Name: "SPHERE", Value: m.Optometric.Sphere, Comment: "[D] optometric sphere"},
			fitsio.Card{Name: "CYLINDER", Value: m.Optometric.Cylinder, Comment: "[D] optometric cylinder"},
			fitsio.Card{Name: "AXIS", Value: m.Optometric.AxisDeg, Comment: "[deg] optometric axis"})
	}
	if m.Zernike.Order != 0 {
		cards = append(cards,
			fitsio.Card{Name: "ZORDER", Value: m.Zernike.Order, Comment: "highest Zernike order fitted"},
			fitsio.Card{Name: "ROC", Value: m.Zernike.RadiusOfCurvatureMm, Comment: "[mm] radius of curvature"},
			fitsio.Card{Name: "FITMEAN", Value: m.FitErrMean, Comment: "[um] reconstruction error mean"},
			fitsio.Card{Name: "FITSTD", Value: m.FitErrStdev, Comment: "[um] reconstruction error stdev"})
		for i, c := range m.Zernike.Coefficients {
			cards = append(cards, fitsio.Card{
				Name:    fmt.Sprintf("Z%d", i+1),
				Value:   float64(c),
				Comment: fmt.Sprintf("[um] Zernike mode %d", i+1)})
		}
	}
	return cards
}

// FITSCards is the measurement's header metadata preceded by the instrument identity
func (s *Sensor) FITSCards(m Measurement) []fitsio.Card {
	mla, _ := s.MLA()
	cards := []fitsio.Card{
		{Name: "INSTRUME", Value: s.info.Name, Comment: "wavefront sensor"},
		{Name: "SERIAL", Value: s.info.SerialWFS, Comment: "sensor serial number"},
		{Name: "MLA", Value: mla.Name, Comment: "microlens array"},
	}
	return append(cards, m.FITSCards()...)
}
