package wfs

import "fmt"

// Family is an instrument series.  It is encoded in the device ID by a bit offset.
type Family int

const (
	// FamilyWFS is the WFS150/WFS300 series, which sets none of the offset bits
	FamilyWFS Family = iota

	// FamilyWFS10 device IDs start at 256
	FamilyWFS10

	// FamilyWFS20 device IDs start at 512
	FamilyWFS20

	// FamilyWFS30 device IDs start at 1024
	FamilyWFS30

	// FamilyWFS40 device IDs start at 2048
	FamilyWFS40
)

// device ID offsets
const (
	OffsetWFS10 = 0x00100
	OffsetWFS20 = 0x00200
	OffsetWFS30 = 0x00400
	OffsetWFS40 = 0x00800
)

// Resolution is a camera resolution in pixels
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

var (
	resWFS = []Resolution{
		{1280, 1024}, {1024, 1024}, {768, 768}, {512, 512}, {320, 320},
	}
	resWFS10 = []Resolution{
		{640, 480}, {480, 480}, {360, 360}, {260, 260}, {180, 180},
	}
	resWFS20 = []Resolution{
		{1440, 1080}, {1080, 1080}, {768, 768}, {512, 512}, {360, 360},
		// binned by 2
		{720, 540}, {540, 540}, {384, 384}, {256, 256}, {180, 180},
	}
	resWFS30 = []Resolution{
		{1936, 1216}, {1216, 1216}, {1024, 1024}, {768, 768}, {512, 512}, {360, 360},
		// subsampled by 2
		{968, 608}, {608, 608}, {512, 512}, {384, 384}, {256, 256}, {180, 180},
	}
	resWFS40 = []Resolution{
		{2048, 2048}, {1536, 1536}, {1024, 1024}, {768, 768}, {512, 512}, {360, 360},
		{1024, 1024}, {768, 768}, {512, 512}, {384, 384}, {256, 256}, {180, 180},
	}
)

// FamilyOf decodes the family from a device ID
func FamilyOf(deviceID int) Family {
	switch {
	case deviceID&OffsetWFS10 != 0:
		return FamilyWFS10
	case deviceID&OffsetWFS20 != 0:
		return FamilyWFS20
	case deviceID&OffsetWFS30 != 0:
		return FamilyWFS30
	case deviceID&OffsetWFS40 != 0:
		return FamilyWFS40
	}
	return FamilyWFS
}

func (f Family) String() string {
	switch f {
	case FamilyWFS:
		return "WFS"
	case FamilyWFS10:
		return "WFS10"
	case FamilyWFS20:
		return "WFS20"
	case FamilyWFS30:
		return "WFS30"
	case FamilyWFS40:
		return "WFS40"
	}
	return "unknown"
}

// Resolutions returns the camera resolution table of the family, indexed
// by the driver's resolution index
func (f Family) Resolutions() []Resolution {
	var tbl []Resolution
	switch f {
	case FamilyWFS10:
		tbl = resWFS10
	case FamilyWFS20:
		tbl = resWFS20
	case FamilyWFS30:
		tbl = resWFS30
	case FamilyWFS40:
		tbl = resWFS40
	default:
		tbl = resWFS
	}
	out := make([]Resolution, len(tbl))
	copy(out, tbl)
	return out
}

// DefaultResolution is the resolution index used when none is chosen
func (f Family) DefaultResolution() int {
	switch f {
	case FamilyWFS20:
		return 1 // 1080x1080
	case FamilyWFS30:
		return 0 // 1936x1216
	case FamilyWFS40:
		return 3 // 512x512
	}
	return 2 // 768x768 on WFS150/300, 360x360 on WFS10
}

// SelectableResolution is true for the families whose resolution the user picks.
// The others are always run at DefaultResolution.
func (f Family) SelectableResolution() bool {
	return f == FamilyWFS20 || f == FamilyWFS30
}

// Resolution looks up a resolution index in the family's table
func (f Family) Resolution(idx int) (Resolution, error) {
	tbl := f.Resolutions()
	if idx < 0 || idx >= len(tbl) {
		return Resolution{}, fmt.Errorf("resolution index %d out of range [0,%d] for %s", idx, len(tbl)-1, f)
	}
	return tbl[idx], nil
}
