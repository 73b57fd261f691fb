package usbscan

import (
	"fmt"
	"testing"

	"github.com/google/gousb"
)

func TestIsThorlabs(t *testing.T) {
	if !IsThorlabs(&gousb.DeviceDesc{Vendor: 0x1313, Product: 0x0000}) {
		t.Error("vendor 0x1313 should match")
	}
	if IsThorlabs(&gousb.DeviceDesc{Vendor: 0x1d50}) {
		t.Error("vendor 0x1d50 should not match")
	}
}

func TestDescribe(t *testing.T) {
	d := Describe(&gousb.DeviceDesc{Bus: 1, Address: 7, Vendor: 0x1313, Product: 0x0001, Speed: gousb.SpeedHigh})
	want := fmt.Sprintf("bus 001 device 007: ID 1313:0001 (%s)", gousb.SpeedHigh)
	if got := d.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
