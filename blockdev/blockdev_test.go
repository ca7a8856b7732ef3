package blockdev_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/fatcore/blockdev"
	"github.com/dargueta/fatcore/errors"
)

func newRAMDevice(size int) (*blockdev.StreamDevice, []byte) {
	backing := make([]byte, size)
	return blockdev.New(bytesextra.NewReadWriteSeeker(backing)), backing
}

func TestReadAtReturnsExactBytes(t *testing.T) {
	device, backing := newRAMDevice(64)
	copy(backing[10:], []byte{0xDE, 0xAD, 0xBE, 0xEF})

	buffer := make([]byte, 4)
	require.NoError(t, device.ReadAt(10, buffer))
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, buffer)
}

func TestWriteAtLandsAtAbsoluteOffset(t *testing.T) {
	device, backing := newRAMDevice(64)

	require.NoError(t, device.WriteAt(32, []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, backing[32:35])
	assert.Equal(t, byte(0), backing[31], "write bled backwards")
	assert.Equal(t, byte(0), backing[35], "write bled forwards")
}

func TestWriteThenReadBack(t *testing.T) {
	device, _ := newRAMDevice(64)

	require.NoError(t, device.WriteAt(5, []byte{0x42}))

	buffer := make([]byte, 1)
	require.NoError(t, device.ReadAt(5, buffer))
	assert.Equal(t, byte(0x42), buffer[0])
}

func TestReadPastEndFails(t *testing.T) {
	device, _ := newRAMDevice(16)

	buffer := make([]byte, 8)
	err := device.ReadAt(12, buffer)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrReadFailed)
}

func TestSequentialOffsetsAreIndependent(t *testing.T) {
	// The device must honor each call's absolute offset regardless of where
	// the previous operation left the stream position.
	device, _ := newRAMDevice(64)

	require.NoError(t, device.WriteAt(40, []byte{9}))
	require.NoError(t, device.WriteAt(8, []byte{7}))

	buffer := make([]byte, 1)
	require.NoError(t, device.ReadAt(40, buffer))
	assert.Equal(t, byte(9), buffer[0])
	require.NoError(t, device.ReadAt(8, buffer))
	assert.Equal(t, byte(7), buffer[0])
}
