package disk

import "fmt"

// FaultyDevice wraps a Device and fails sector transfers on demand, for
// exercising error paths.
type FaultyDevice struct {
	Device
	failRead  map[uint64]bool
	writes    uint64
	failAfter uint64 // fail every write after this many; 0 disables
}

func NewFaultyDevice(d Device) *FaultyDevice {
	return &FaultyDevice{Device: d, failRead: make(map[uint64]bool)}
}

func (f *FaultyDevice) FailRead(a uint64) {
	f.failRead[a] = true
}

// FailWritesAfter lets n more writes through, then fails every write.
func (f *FaultyDevice) FailWritesAfter(n uint64) {
	f.writes = 0
	f.failAfter = n + 1
}

func (f *FaultyDevice) Heal() {
	f.failRead = make(map[uint64]bool)
	f.failAfter = 0
}

func (f *FaultyDevice) ReadSector(a uint64, buf Sector) error {
	if f.failRead[a] {
		return fmt.Errorf("%w: injected read failure at %d", ErrIO, a)
	}
	return f.Device.ReadSector(a, buf)
}

func (f *FaultyDevice) WriteSector(a uint64, v Sector) error {
	if f.failAfter != 0 {
		f.writes++
		if f.writes >= f.failAfter {
			return fmt.Errorf("%w: injected write failure at %d", ErrIO, a)
		}
	}
	return f.Device.WriteSector(a, v)
}
