// Package fat implements the allocation-table engine at the heart of a
// FAT12/FAT16/FAT32 driver: decoding and mutating table cells, walking cluster
// chains, and locating raw directory entries through those chains.

package fat

import (
	"fmt"
	"math"

	"github.com/dargueta/fatcore/errors"
	"github.com/hashicorp/go-multierror"
)

// ClusterID is the index of a cluster on the volume. Indices 0 and 1 are
// reserved by the FAT specification; the first data cluster is 2.
type ClusterID uint32

// InvalidClusterID is a sentinel for "no cluster here".
const InvalidClusterID = ClusterID(math.MaxUint32)

// FirstDataCluster is the lowest cluster index that can hold data.
const FirstDataCluster = ClusterID(2)

// FATVersion identifies which of the three FAT encodings a volume uses. The
// numeric value is the width of a table cell in bits.
type FATVersion int

const (
	FAT12 = FATVersion(12)
	FAT16 = FATVersion(16)
	FAT32 = FATVersion(32)
)

func (version FATVersion) String() string {
	return fmt.Sprintf("FAT%d", int(version))
}

// CellBits gives the width of one table cell, in bits.
func (version FATVersion) CellBits() uint {
	return uint(version)
}

// DetermineFATVersion determines the version of the FAT file system based on
// the number of clusters on the volume. (This is the only proper way to do so.)
func DetermineFATVersion(totalClusters uint32) FATVersion {
	// These cluster counts, while odd-looking, are correct. They're taken
	// directly from Microsoft's FAT documentation, v1.03, page 14.
	if totalClusters < 4085 {
		return FAT12
	}
	if totalClusters < 65525 {
		return FAT16
	}
	return FAT32
}

// Geometry describes everything the engine needs to know about how a volume is
// laid out. It's produced once, by the boot-sector parser or a media profile,
// and treated as immutable from then on. The engine trusts its values.
type Geometry struct {
	Version FATVersion

	// BytesPerBlock is the size of one block (sector), in bytes. Must be a
	// power of two between 512 and 4096.
	BytesPerBlock uint

	// BlocksPerFAT is the size of a single FAT replica, in blocks.
	BlocksPerFAT uint

	// NumFATs is the number of identical FAT replicas on the volume. Every
	// logical cell write is mirrored to all of them.
	NumFATs uint

	// TotalClusters is the number of addressable clusters, including the two
	// reserved indices.
	TotalClusters uint32

	// PartitionStart is the absolute byte offset of the partition on the
	// device. Zero for an unpartitioned image.
	PartitionStart int64

	// FirstFATByte is the byte offset of FAT replica 0 from the start of the
	// partition.
	FirstFATByte int64

	// FirstDataByte is the byte offset of the data region (cluster 2) from the
	// start of the partition.
	FirstDataByte int64

	// FirstRootDirByte is the byte offset of the fixed root directory region
	// from the start of the partition. Only meaningful on FAT12/FAT16; the
	// FAT32 root directory is an ordinary cluster chain.
	FirstRootDirByte int64

	// RootDirBlocks is the size of the fixed root directory region, in blocks.
	// Zero on FAT32.
	RootDirBlocks uint

	// BlocksPerCluster is the number of contiguous blocks in one cluster.
	BlocksPerCluster uint

	// RootCluster is the first cluster of the root directory. Only meaningful
	// on FAT32; zero on FAT12/16, whose root directory is the fixed region.
	RootCluster ClusterID
}

// FATSizeBytes gives the size of a single FAT replica, in bytes.
func (geo *Geometry) FATSizeBytes() int64 {
	return int64(geo.BlocksPerFAT) * int64(geo.BytesPerBlock)
}

// BytesPerClusterTotal gives the size of one cluster, in bytes.
func (geo *Geometry) BytesPerClusterTotal() int64 {
	return int64(geo.BlocksPerCluster) * int64(geo.BytesPerBlock)
}

// Validate checks the geometry's internal consistency and returns every
// violation it finds, not just the first one.
func (geo *Geometry) Validate() error {
	var result *multierror.Error

	switch geo.BytesPerBlock {
	case 512, 1024, 2048, 4096:
	default:
		result = multierror.Append(
			result,
			errors.ErrInvalidGeometry.WithMessage(
				fmt.Sprintf(
					"bad value for BytesPerBlock: need 512, 1024, 2048, or 4096, got %d",
					geo.BytesPerBlock)))
	}

	if geo.NumFATs < 1 {
		result = multierror.Append(
			result,
			errors.ErrInvalidGeometry.WithMessage("volume declares no FATs"))
	}

	switch geo.Version {
	case FAT12, FAT16, FAT32:
		// The FAT must be large enough to hold one cell per addressable
		// cluster.
		bytesNeeded := (uint64(geo.TotalClusters)*uint64(geo.Version.CellBits()) + 7) / 8
		if uint64(geo.FATSizeBytes()) < bytesNeeded {
			result = multierror.Append(
				result,
				errors.ErrInvalidGeometry.WithMessage(
					fmt.Sprintf(
						"FAT is %d bytes but needs at least %d to address %d clusters",
						geo.FATSizeBytes(),
						bytesNeeded,
						geo.TotalClusters)))
		}
	default:
		result = multierror.Append(
			result,
			errors.ErrInvalidGeometry.WithMessage(
				fmt.Sprintf("bad FAT version: %d", int(geo.Version))))
	}

	if geo.BlocksPerCluster != 0 && (geo.BlocksPerCluster&(geo.BlocksPerCluster-1)) != 0 {
		result = multierror.Append(
			result,
			errors.ErrInvalidGeometry.WithMessage(
				fmt.Sprintf(
					"BlocksPerCluster must be a power of 2, got %d",
					geo.BlocksPerCluster)))
	}

	return result.ErrorOrNil()
}

// IsValidCluster reports whether the given index can hold data on this volume.
func (geo *Geometry) IsValidCluster(cluster ClusterID) bool {
	return cluster >= FirstDataCluster && uint32(cluster) < geo.TotalClusters
}
