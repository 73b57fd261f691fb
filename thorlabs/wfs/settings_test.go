package wfs

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseZernikeOrder(t *testing.T) {
	cases := map[string]int{
		"":     4,
		"2":    2,
		" 6 ":  6,
		"10":   10,
		"11":   0,
		"1":    0,
		"-3":   0,
		"four": 0,
	}
	for in, want := range cases {
		if got := ParseZernikeOrder(in); got != want {
			t.Errorf("ParseZernikeOrder(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseFourierOrder(t *testing.T) {
	cases := []struct {
		in      string
		zernike int
		want    int
	}{
		{"", 4, 4},
		{"", 3, 0},
		{"2", 2, 2},
		{"6", 6, 6},
		{"6", 4, 0},
		{"3", 10, 0},
		{"x", 10, 0},
		{"4", 0, 0},
	}
	for _, c := range cases {
		if got := ParseFourierOrder(c.in, c.zernike); got != c.want {
			t.Errorf("ParseFourierOrder(%q, %d) = %d, want %d", c.in, c.zernike, got, c.want)
		}
	}
}

func TestParseLimitToPupil(t *testing.T) {
	for in, want := range map[string]bool{"": true, "1": true, "0": false, " 0 ": false, "2": true} {
		got, err := ParseLimitToPupil(in)
		if err != nil {
			t.Errorf("ParseLimitToPupil(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLimitToPupil(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLimitToPupil("yes"); err == nil {
		t.Error("expected an error for a non-numeric answer")
	}
}

func TestParseFloatDefault(t *testing.T) {
	f, err := ParseFloatDefault("", 3)
	if err != nil || f != 3 {
		t.Errorf("empty input gave %v, %v", f, err)
	}
	f, err = ParseFloatDefault("-0.25", 3)
	if err != nil || f != -0.25 {
		t.Errorf("-0.25 gave %v, %v", f, err)
	}
	if _, err = ParseFloatDefault("1,5", 3); err == nil {
		t.Error("expected an error for 1,5")
	}
}

func TestParseResolutionIndex(t *testing.T) {
	idx, err := ParseResolutionIndex("", FamilyWFS20)
	if err != nil || idx != 1 {
		t.Errorf("empty input gave %d, %v; want 1", idx, err)
	}
	idx, err = ParseResolutionIndex("9", FamilyWFS20)
	if err != nil || idx != 9 {
		t.Errorf("9 gave %d, %v", idx, err)
	}
	if _, err = ParseResolutionIndex("10", FamilyWFS20); err == nil {
		t.Error("expected an error for index 10 on a WFS20")
	}
	if _, err = ParseResolutionIndex("one", FamilyWFS30); err == nil {
		t.Error("expected an error for a non-integer")
	}
}

func TestResolveOutputPath(t *testing.T) {
	cases := map[string]string{
		"":               DefaultOutputPath(),
		"\n":             DefaultOutputPath(),
		"data/":          "data/" + DefaultFileName,
		"data":           filepath.Join("data", DefaultFileName),
		"runs/today\r\n": filepath.Join("runs/today", DefaultFileName),
	}
	for in, want := range cases {
		if got := ResolveOutputPath(in); got != want {
			t.Errorf("ResolveOutputPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize(t *testing.T) {
	st := Settings{ZernikeOrder: 3, FourierOrder: 4}.Normalize()
	if st.ZernikeOrder != 3 || st.FourierOrder != 0 {
		t.Errorf("orders (%d, %d), want (3, 0)", st.ZernikeOrder, st.FourierOrder)
	}
	if st.PollInterval != time.Millisecond || st.AnnounceEvery != 100 || st.IdleStatus != IdleStatus {
		t.Errorf("poll defaults not filled: %+v", st)
	}
	st = Settings{ZernikeOrder: 12, FourierOrder: 2}.Normalize()
	if st.ZernikeOrder != 0 || st.FourierOrder != 0 {
		t.Errorf("orders (%d, %d), want (0, 0)", st.ZernikeOrder, st.FourierOrder)
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Errorf("default settings invalid: %v", err)
	}
	bad := []func(*Settings){
		func(s *Settings) { s.Pupil.DiameterX = 0 },
		func(s *Settings) { s.TriggerMode = 4 },
		func(s *Settings) { s.WavefrontType = -1 },
		func(s *Settings) { s.WavefrontType, s.ZernikeOrder = WavefrontReconstructed, 0 },
	}
	for i, mutate := range bad {
		st := DefaultSettings()
		mutate(&st)
		if err := st.Validate(); err == nil {
			t.Errorf("case %d: expected a validation error", i)
		}
	}
}

func TestDecodeFrontPanel(t *testing.T) {
	values := map[string]interface{}{
		"Pupil Center X":        "0.5",
		"Pupil Diameter Y":      4.5,
		"Highest Zernike Order": 6.0,
		"Fourier Order":         6,
		"Limited to Pupil?":     0,
	}
	st, err := DecodeFrontPanel(DefaultSettings(), values)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultSettings()
	want.Pupil.CenterX = 0.5
	want.Pupil.DiameterY = 4.5
	want.ZernikeOrder = 6
	want.FourierOrder = 6
	want.LimitToPupil = false
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeFrontPanelRejectsUnknownKeys(t *testing.T) {
	_, err := DecodeFrontPanel(DefaultSettings(), map[string]interface{}{"Exposure": 1})
	if err == nil {
		t.Error("expected an error for an unknown front panel key")
	}
}
