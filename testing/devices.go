// Package testing holds helpers shared by the package tests: RAM-backed
// devices built on bytesextra and an instrumented device wrapper for
// asserting on I/O traffic.

package testing

import (
	"testing"

	"github.com/dargueta/fatcore/blockdev"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// NewRAMDevice returns a device backed by a fresh zero-filled buffer of the
// given size, plus the buffer itself so tests can assert on raw bytes.
func NewRAMDevice(t *testing.T, size uint) (*blockdev.StreamDevice, []byte) {
	require.Greater(t, size, uint(0), "a zero-byte device is useless in a test")

	backing := make([]byte, size)
	return blockdev.New(bytesextra.NewReadWriteSeeker(backing)), backing
}

// WrapImage returns a device over an existing image buffer. Writes through the
// device are visible in `image`.
func WrapImage(t *testing.T, image []byte) *blockdev.StreamDevice {
	require.Greater(t, len(image), 0, "image is empty")
	return blockdev.New(bytesextra.NewReadWriteSeeker(image))
}

// RecordingDevice wraps another device and counts the operations passing
// through it. Tests use it to prove properties like "a no-op write performs
// zero device writes".
type RecordingDevice struct {
	Inner blockdev.Device

	Reads  int
	Writes int
}

func NewRecordingDevice(inner blockdev.Device) *RecordingDevice {
	return &RecordingDevice{Inner: inner}
}

func (dev *RecordingDevice) ReadAt(offset int64, buffer []byte) error {
	dev.Reads++
	return dev.Inner.ReadAt(offset, buffer)
}

func (dev *RecordingDevice) WriteAt(offset int64, buffer []byte) error {
	dev.Writes++
	return dev.Inner.WriteAt(offset, buffer)
}

// Reset zeroes the operation counters without touching the inner device.
func (dev *RecordingDevice) Reset() {
	dev.Reads = 0
	dev.Writes = 0
}

// BrokenDevice fails every operation with the error it was given. It stands in
// for a dying disk when testing error propagation.
type BrokenDevice struct {
	Err error
}

func (dev BrokenDevice) ReadAt(offset int64, buffer []byte) error {
	return dev.Err
}

func (dev BrokenDevice) WriteAt(offset int64, buffer []byte) error {
	return dev.Err
}
