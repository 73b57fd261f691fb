// Package usbscan lists Thorlabs devices on the USB bus.  It tells a sensor
// that is unplugged apart from one the instrument driver does not see.
package usbscan

import (
	"fmt"

	"github.com/google/gousb"
)

// VendorThorlabs is the USB vendor ID of Thorlabs
const VendorThorlabs gousb.ID = 0x1313

// Device describes a device on the bus
type Device struct {
	Bus     int
	Address int
	Vendor  gousb.ID
	Product gousb.ID
	Speed   gousb.Speed
}

func (d Device) String() string {
	return fmt.Sprintf("bus %03d device %03d: ID %s:%s (%s)", d.Bus, d.Address, d.Vendor, d.Product, d.Speed)
}

// IsThorlabs is true for descriptors with the Thorlabs vendor ID
func IsThorlabs(desc *gousb.DeviceDesc) bool {
	return desc.Vendor == VendorThorlabs
}

// Describe reduces a descriptor to a Device
func Describe(desc *gousb.DeviceDesc) Device {
	return Device{
		Bus:     desc.Bus,
		Address: desc.Address,
		Vendor:  desc.Vendor,
		Product: desc.Product,
		Speed:   desc.Speed,
	}
}

// Scan lists the Thorlabs devices on the bus.  No device is opened, so
// devices held by the instrument driver are listed too.
func Scan() ([]Device, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	found := []Device{}
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if IsThorlabs(desc) {
			found = append(found, Describe(desc))
		}
		return false
	})
	return found, err
}
