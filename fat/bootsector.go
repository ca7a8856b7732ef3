// Boot-sector (BPB) parsing and serialization. The engine itself trusts
// whatever [Geometry] it's handed; this file is the collaborator that produces
// one from a real volume, and builds a fresh boot sector when formatting.

package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dargueta/fatcore/blockdev"
	"github.com/dargueta/fatcore/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/noxer/bytewriter"
)

// BootSectorSize is the size of the boot sector, in bytes. The BPB always
// lives in the first 512 bytes even when the volume uses larger blocks.
const BootSectorSize = 512

// bootSignature is the marker at offset 510 of every valid boot sector.
const bootSignature = 0xAA55

// RawBootSector is the on-disk layout of the DOS 3.31 BPB, common to all three
// FAT versions.
type RawBootSector struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
}

// RawFAT32Extension is the extra BPB region present only on FAT32 volumes,
// immediately following [RawBootSector].
type RawFAT32Extension struct {
	SectorsPerFAT32  uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
	Reserved         [12]byte
	DriveNumber      uint8
	NTReserved       uint8
	ExtBootSignature uint8
	VolumeID         uint32
	VolumeLabel      [11]byte
	FileSystemType   [8]byte
}

// ParseBootSector reads the boot sector at `partitionStart` on the device and
// derives the volume geometry from it. Validation failures are aggregated, so
// a corrupt BPB reports everything wrong with it at once.
func ParseBootSector(
	device blockdev.Device,
	partitionStart int64,
) (Geometry, error) {
	sector := make([]byte, BootSectorSize)
	if err := device.ReadAt(partitionStart, sector); err != nil {
		return Geometry{}, err
	}

	var raw RawBootSector
	reader := bytes.NewReader(sector)
	if err := binary.Read(reader, binary.LittleEndian, &raw); err != nil {
		return Geometry{}, errors.ErrReadFailed.WrapError(err)
	}

	marker := binary.LittleEndian.Uint16(sector[510:512])
	if marker != bootSignature {
		return Geometry{}, errors.ErrInvalidGeometry.WithMessage(
			fmt.Sprintf(
				"invalid boot sector signature: expected 0x%04X, got 0x%04X",
				bootSignature,
				marker))
	}

	var validation *multierror.Error

	switch raw.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		validation = multierror.Append(
			validation,
			errors.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"bad value for BytesPerSector: need 512, 1024, 2048, or 4096, got %d",
					raw.BytesPerSector)))
	}

	switch raw.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		validation = multierror.Append(
			validation,
			errors.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"SectorsPerCluster must be a power of 2 in 1-128, got %d",
					raw.SectorsPerCluster)))
	}

	if raw.NumFATs == 0 {
		validation = multierror.Append(
			validation,
			errors.ErrFileSystemCorrupted.WithMessage("volume declares no FATs"))
	}

	if err := validation.ErrorOrNil(); err != nil {
		return Geometry{}, err
	}

	var ext RawFAT32Extension
	sectorsPerFAT := uint(raw.SectorsPerFAT16)
	if sectorsPerFAT == 0 {
		if err := binary.Read(reader, binary.LittleEndian, &ext); err != nil {
			return Geometry{}, errors.ErrReadFailed.WrapError(err)
		}
		sectorsPerFAT = uint(ext.SectorsPerFAT32)
	}

	totalSectors := uint(raw.TotalSectors16)
	if totalSectors == 0 {
		totalSectors = uint(raw.TotalSectors32)
	}

	// The number of sectors taken up by the fixed root directory. Zero on
	// FAT32 systems.
	rootDirSectors := (uint(raw.RootEntryCount)*DirentSize +
		uint(raw.BytesPerSector) - 1) / uint(raw.BytesPerSector)

	fatSectors := uint(raw.NumFATs) * sectorsPerFAT
	firstRootDirSector := uint(raw.ReservedSectors) + fatSectors
	firstDataSector := firstRootDirSector + rootDirSectors

	if firstDataSector >= totalSectors {
		return Geometry{}, errors.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"metadata occupies %d sectors but the volume only has %d",
				firstDataSector,
				totalSectors))
	}

	dataClusters := (totalSectors - firstDataSector) / uint(raw.SectorsPerCluster)
	version := DetermineFATVersion(uint32(dataClusters))

	if version == FAT32 && rootDirSectors != 0 {
		return Geometry{}, errors.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"RootEntryCount is nonzero for a FAT32 volume: %d",
				raw.RootEntryCount))
	}

	bytesPerSector := uint(raw.BytesPerSector)
	geo := Geometry{
		Version:          version,
		BytesPerBlock:    bytesPerSector,
		BlocksPerFAT:     sectorsPerFAT,
		NumFATs:          uint(raw.NumFATs),
		TotalClusters:    uint32(dataClusters) + uint32(FirstDataCluster),
		PartitionStart:   partitionStart,
		FirstFATByte:     int64(raw.ReservedSectors) * int64(bytesPerSector),
		FirstDataByte:    int64(firstDataSector) * int64(bytesPerSector),
		BlocksPerCluster: uint(raw.SectorsPerCluster),
	}
	if version == FAT32 {
		geo.RootCluster = ClusterID(ext.RootCluster)
	} else {
		geo.FirstRootDirByte = int64(firstRootDirSector) * int64(bytesPerSector)
		geo.RootDirBlocks = rootDirSectors
	}

	if err := geo.Validate(); err != nil {
		return Geometry{}, err
	}
	return geo, nil
}

// BuildBootSector serializes a bootable BPB for the given geometry plus the
// media-specific odds and ends that don't live in a [Geometry]. The result is
// exactly [BootSectorSize] bytes.
func BuildBootSector(
	geo Geometry,
	totalBlocks uint,
	rootEntryCount uint16,
	mediaDescriptor uint8,
	volumeLabel string,
) ([]byte, error) {
	raw := RawBootSector{
		JmpBoot:           [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:    uint16(geo.BytesPerBlock),
		SectorsPerCluster: uint8(geo.BlocksPerCluster),
		ReservedSectors:   uint16(geo.FirstFATByte / int64(geo.BytesPerBlock)),
		NumFATs:           uint8(geo.NumFATs),
		Media:             mediaDescriptor,
	}
	copy(raw.OEMName[:], "FATCORE ")

	if geo.Version == FAT32 {
		raw.RootEntryCount = 0
		raw.TotalSectors32 = uint32(totalBlocks)
	} else {
		raw.RootEntryCount = rootEntryCount
		raw.SectorsPerFAT16 = uint16(geo.BlocksPerFAT)
		if totalBlocks <= 0xFFFF {
			raw.TotalSectors16 = uint16(totalBlocks)
		} else {
			raw.TotalSectors32 = uint32(totalBlocks)
		}
	}

	// A bytewriter over a fixed buffer turns any layout mistake into a write
	// error instead of silently growing the sector.
	sector := make([]byte, BootSectorSize)
	writer := bytewriter.New(sector)

	if err := binary.Write(writer, binary.LittleEndian, &raw); err != nil {
		return nil, errors.ErrWriteFailed.WrapError(err)
	}

	if geo.Version == FAT32 {
		ext := RawFAT32Extension{
			SectorsPerFAT32:  uint32(geo.BlocksPerFAT),
			RootCluster:      uint32(geo.RootCluster),
			FSInfoSector:     1,
			BackupBootSector: 6,
			ExtBootSignature: 0x29,
		}
		copy(ext.VolumeLabel[:], fmt.Sprintf("%-11.11s", volumeLabel))
		copy(ext.FileSystemType[:], "FAT32   ")
		if err := binary.Write(writer, binary.LittleEndian, &ext); err != nil {
			return nil, errors.ErrWriteFailed.WrapError(err)
		}
	}

	binary.LittleEndian.PutUint16(sector[510:512], bootSignature)
	return sector, nil
}
