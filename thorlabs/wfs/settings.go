package wfs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DefaultFileName is the name of the record file inside the output folder
const DefaultFileName = "WFSdata.txt"

// Settings holds everything configured on the sensor before acquisition
type Settings struct {
	// ResolutionIndex is the camera resolution index; -1 uses the family default
	ResolutionIndex int `json:"resolutionIndex" yaml:"ResolutionIndex" koanf:"ResolutionIndex"`

	// Pupil is the pupil definition in mm
	Pupil Pupil `json:"pupil" yaml:"Pupil" koanf:"Pupil"`

	// LimitToPupil calculates the wavefront only within the pupil
	LimitToPupil bool `json:"limitToPupil" yaml:"LimitToPupil" koanf:"LimitToPupil"`

	// ZernikeOrder is the highest Zernike order fitted, 2..10, 0 to skip the fit
	ZernikeOrder int `json:"zernikeOrder" yaml:"ZernikeOrder" koanf:"ZernikeOrder"`

	// FourierOrder is the highest Zernike order used for the Fourier constants,
	// 2, 4 or 6 and no more than ZernikeOrder; 0 skips the calculation
	FourierOrder int `json:"fourierOrder" yaml:"FourierOrder" koanf:"FourierOrder"`

	TriggerMode     TriggerMode    `json:"triggerMode" yaml:"TriggerMode" koanf:"TriggerMode"`
	WavefrontType   WavefrontType  `json:"wavefrontType" yaml:"WavefrontType" koanf:"WavefrontType"`
	ReferencePlane  ReferencePlane `json:"referencePlane" yaml:"ReferencePlane" koanf:"ReferencePlane"`
	DynamicNoiseCut bool           `json:"dynamicNoiseCut" yaml:"DynamicNoiseCut" koanf:"DynamicNoiseCut"`
	CalcDiameters   bool           `json:"calcDiameters" yaml:"CalcDiameters" koanf:"CalcDiameters"`
	CancelTilt      bool           `json:"cancelTilt" yaml:"CancelTilt" koanf:"CancelTilt"`

	// IdleStatus is the status word that means "armed, no trigger yet"
	IdleStatus Status `json:"idleStatus" yaml:"IdleStatus" koanf:"IdleStatus"`

	// IdleOnATR also counts any status with the ATR bit as waiting
	IdleOnATR bool `json:"idleOnATR" yaml:"IdleOnATR" koanf:"IdleOnATR"`

	// PollInterval is the period of the status poll while waiting for a trigger
	PollInterval time.Duration `json:"pollInterval" yaml:"PollInterval" koanf:"PollInterval"`

	// AnnounceEvery is the number of idle polls between "waiting for trigger" notices
	AnnounceEvery int `json:"announceEvery" yaml:"AnnounceEvery" koanf:"AnnounceEvery"`

	// OutputPath is the record file
	OutputPath string `json:"outputPath" yaml:"OutputPath" koanf:"OutputPath"`
}

// DefaultSettings returns the settings the console programs default to
func DefaultSettings() Settings {
	return Settings{
		ResolutionIndex: -1,
		Pupil:           Pupil{CenterX: 0, CenterY: 0, DiameterX: 3, DiameterY: 3},
		LimitToPupil:    true,
		ZernikeOrder:    4,
		FourierOrder:    4,
		TriggerMode:     TriggerActiveHigh,
		WavefrontType:   WavefrontMeasured,
		ReferencePlane:  RefInternal,
		DynamicNoiseCut: true,
		CalcDiameters:   false,
		CancelTilt:      true,
		IdleStatus:      IdleStatus,
		PollInterval:    time.Millisecond,
		AnnounceEvery:   100,
		OutputPath:      DefaultOutputPath(),
	}
}

// Normalize applies the order rules: a Zernike order outside 2..10 disables
// the fit, and a Fourier order not in {2,4,6} or above the Zernike order
// disables the optometric calculation.  Zero poll settings get their defaults.
func (s Settings) Normalize() Settings {
	s.ZernikeOrder = validZernike(s.ZernikeOrder)
	s.FourierOrder = validFourier(s.FourierOrder, s.ZernikeOrder)
	if s.PollInterval <= 0 {
		s.PollInterval = time.Millisecond
	}
	if s.AnnounceEvery <= 0 {
		s.AnnounceEvery = 100
	}
	if s.IdleStatus == 0 {
		s.IdleStatus = IdleStatus
	}
	return s
}

// Idle reports whether status means the sensor is still waiting for a trigger
func (s Settings) Idle(status Status) bool {
	return status == s.IdleStatus || (s.IdleOnATR && status.Has(StatATR))
}

// Validate checks the fields Normalize cannot repair
func (s Settings) Validate() error {
	if s.Pupil.DiameterX <= 0 || s.Pupil.DiameterY <= 0 {
		return fmt.Errorf("pupil diameters must be positive, got %g x %g", s.Pupil.DiameterX, s.Pupil.DiameterY)
	}
	if s.TriggerMode < TriggerContinuous || s.TriggerMode > TriggerSoftware {
		return fmt.Errorf("trigger mode %d out of range [0,3]", s.TriggerMode)
	}
	if s.WavefrontType < WavefrontMeasured || s.WavefrontType > WavefrontDiff {
		return fmt.Errorf("wavefront type %d out of range [0,2]", s.WavefrontType)
	}
	if s.WavefrontType != WavefrontMeasured && s.ZernikeOrder == 0 {
		return fmt.Errorf("wavefront type %d needs a Zernike fit", s.WavefrontType)
	}
	return nil
}

func validZernike(order int) int {
	if order >= 2 && order <= MaxZernikeOrders {
		return order
	}
	return 0
}

func validFourier(order, zernike int) int {
	if (order == 2 || order == 4 || order == 6) && order <= zernike {
		return order
	}
	return 0
}

// ParseZernikeOrder parses console input for the highest Zernike order.
// Empty input is the default of 4; anything outside 2..10 is 0 (skip the fit).
func ParseZernikeOrder(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 4
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return validZernike(n)
}

// ParseFourierOrder parses console input for the Fourier order.  Empty input
// is the default of 4.  Values that are not 2, 4 or 6, or exceed the Zernike
// order, are 0 (skip the calculation).
func ParseFourierOrder(s string, zernikeOrder int) int {
	s = strings.TrimSpace(s)
	n := 4
	if s != "" {
		var err error
		n, err = strconv.Atoi(s)
		if err != nil {
			return 0
		}
	}
	return validFourier(n, zernikeOrder)
}

// ParseLimitToPupil parses a 1/0 answer.  Empty input is the default, true.
func ParseLimitToPupil(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return true, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, fmt.Errorf("expected 1 or 0, got %q", s)
	}
	return n != 0, nil
}

// ParseFloatDefault parses a float, returning def for empty input
func ParseFloatDefault(s string, def float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ParseResolutionIndex parses a resolution index for the family.
// Empty input is the family default.
func ParseResolutionIndex(s string, f Family) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return f.DefaultResolution(), nil
	}
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("resolution index %q is not an integer", s)
	}
	if _, err := f.Resolution(idx); err != nil {
		return 0, err
	}
	return idx, nil
}

// DefaultOutputDir is the folder records go to when none is given:
// the public desktop on Windows, the working directory elsewhere
func DefaultOutputDir() string {
	if runtime.GOOS == "windows" {
		return `C:\Users\Public\Desktop`
	}
	return "."
}

// DefaultOutputPath is DefaultFileName inside DefaultOutputDir
func DefaultOutputPath() string {
	return filepath.Join(DefaultOutputDir(), DefaultFileName)
}

// ResolveOutputPath turns a folder typed at the console into the record file path.
// Empty input gives DefaultOutputPath.
func ResolveOutputPath(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if strings.TrimSpace(s) == "" {
		return DefaultOutputPath()
	}
	if strings.HasSuffix(s, string(os.PathSeparator)) || strings.HasSuffix(s, "/") {
		return s + DefaultFileName
	}
	return filepath.Join(s, DefaultFileName)
}

// frontPanel mirrors the BLACS front panel of the labscript device
type frontPanel struct {
	ResolutionIndex *int     `mapstructure:"Resolution Index"`
	PupilCenterX    *float64 `mapstructure:"Pupil Center X"`
	PupilCenterY    *float64 `mapstructure:"Pupil Center Y"`
	PupilDiameterX  *float64 `mapstructure:"Pupil Diameter X"`
	PupilDiameterY  *float64 `mapstructure:"Pupil Diameter Y"`
	ZernikeOrder    *int     `mapstructure:"Highest Zernike Order"`
	FourierOrder    *int     `mapstructure:"Fourier Order"`
	LimitToPupil    *int     `mapstructure:"Limited to Pupil?"`
}

// DecodeFrontPanel applies BLACS front panel values onto s.  Keys that are
// absent leave the field untouched.  Values may be numbers or numeric strings.
func DecodeFrontPanel(s Settings, values map[string]interface{}) (Settings, error) {
	fp := frontPanel{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &fp,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return s, err
	}
	if err := dec.Decode(values); err != nil {
		return s, err
	}
	if fp.ResolutionIndex != nil {
		s.ResolutionIndex = *fp.ResolutionIndex
	}
	if fp.PupilCenterX != nil {
		s.Pupil.CenterX = *fp.PupilCenterX
	}
	if fp.PupilCenterY != nil {
		s.Pupil.CenterY = *fp.PupilCenterY
	}
	if fp.PupilDiameterX != nil {
		s.Pupil.DiameterX = *fp.PupilDiameterX
	}
	if fp.PupilDiameterY != nil {
		s.Pupil.DiameterY = *fp.PupilDiameterY
	}
	if fp.ZernikeOrder != nil {
		s.ZernikeOrder = *fp.ZernikeOrder
	}
	if fp.FourierOrder != nil {
		s.FourierOrder = *fp.FourierOrder
	}
	if fp.LimitToPupil != nil {
		s.LimitToPupil = *fp.LimitToPupil != 0
	}
	return s.Normalize(), nil
}
