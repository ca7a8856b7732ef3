// Package blockdev provides the storage-device capability consumed by the FAT
// engine: reads and writes of small buffers addressed by absolute byte offset.
// The engine never seeks on its own.

package blockdev

import (
	"fmt"
	"io"
	"sync"

	"github.com/dargueta/fatcore/errors"
)

// Device is the minimal surface the engine needs from backing storage. Both
// methods either fill/drain the entire buffer or fail; short transfers are
// reported as errors by implementations.
type Device interface {
	ReadAt(offset int64, buffer []byte) error
	WriteAt(offset int64, buffer []byte) error
}

// -----------------------------------------------------------------------------

// StreamDevice adapts any [io.ReadWriteSeeker] (an [os.File], an in-memory
// image, ...) to the [Device] interface. Access is serialized behind a mutex
// held for the duration of a single seek+transfer pair, so a StreamDevice can
// be shared by a reader and the single writer the engine assumes.
type StreamDevice struct {
	mutex  sync.Mutex
	stream io.ReadWriteSeeker
}

func New(stream io.ReadWriteSeeker) *StreamDevice {
	return &StreamDevice{stream: stream}
}

func (dev *StreamDevice) ReadAt(offset int64, buffer []byte) error {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()

	if err := dev.seekTo(offset); err != nil {
		return errors.ErrReadFailed.WrapError(err)
	}

	n, err := io.ReadFull(dev.stream, buffer)
	if err != nil {
		return errors.ErrReadFailed.WrapError(err)
	} else if n < len(buffer) {
		return errors.ErrReadFailed.WithMessage(
			fmt.Sprintf("short read at offset %d: wanted %d bytes, got %d",
				offset, len(buffer), n))
	}
	return nil
}

func (dev *StreamDevice) WriteAt(offset int64, buffer []byte) error {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()

	if err := dev.seekTo(offset); err != nil {
		return errors.ErrWriteFailed.WrapError(err)
	}

	n, err := dev.stream.Write(buffer)
	if err != nil {
		return errors.ErrWriteFailed.WrapError(err)
	} else if n < len(buffer) {
		return errors.ErrWriteFailed.WithMessage(
			fmt.Sprintf("short write at offset %d: wanted %d bytes, wrote %d",
				offset, len(buffer), n))
	}
	return nil
}

func (dev *StreamDevice) seekTo(offset int64) error {
	position, err := dev.stream.Seek(offset, io.SeekStart)
	if err != nil {
		return err
	}
	if position != offset {
		return fmt.Errorf(
			"tried to seek to absolute offset %d, ended up at %d",
			offset,
			position)
	}
	return nil
}
