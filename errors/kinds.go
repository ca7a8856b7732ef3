// Sentinel error kinds for the FAT engine. These deliberately mirror the
// strerror() text for the closest POSIX errno so that messages look familiar
// when they bubble up to a host integration.

package errors

import (
	"fmt"
)

type FatError string

// Device-level failures. The engine never retries; whichever of these the
// storage device produced is returned to the caller unchanged.
const ErrReadFailed = FatError("Input/output error reading device")
const ErrWriteFailed = FatError("Input/output error writing device")

// ErrNotFound is returned when scrolling a directory-entry stream exhausts the
// stream before the requested number of raw slots was produced.
const ErrNotFound = FatError("No such file or directory")

// ErrInvalidCluster is returned when a cluster index falls outside the legal
// range for the volume.
const ErrInvalidCluster = FatError("Numerical argument out of domain")

const ErrInvalidGeometry = FatError("Wrong medium type")
const ErrFileSystemCorrupted = FatError("Structure needs cleaning")
const ErrNoSpaceOnDevice = FatError("No space left on device")
const ErrNotSupported = FatError("Operation not supported")
const ErrUnexpectedEOF = FatError("Unexpected end of file or stream")

func (e FatError) Error() string {
	return string(e)
}

func (e FatError) WithMessage(message string) DriverError {
	return wrappedDriverError{
		message: fmt.Sprintf("%s: %s", e.Error(), message),
		kind:    e,
		cause:   e,
	}
}

func (e FatError) WrapError(err error) DriverError {
	return wrappedDriverError{
		message: fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		kind:    e,
		cause:   err,
	}
}
