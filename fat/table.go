package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/dargueta/fatcore/blockdev"
	"github.com/dargueta/fatcore/errors"
)

// Table is the engine proper: a set of operations over one volume's allocation
// table, addressed through a [blockdev.Device]. A Table holds no state of its
// own beyond the geometry and the device handle, and it never caches sectors;
// every cell read and write goes straight to the device.
//
// Reads always come from FAT replica 0. Writes fan out across all replicas the
// geometry declares, in ascending order.
//
// Tables assume a single writer. Concurrent readers are fine, but two actors
// mutating the table at once can corrupt adjacent FAT12 cells because the
// 12-bit read-modify-write spans two lock acquisitions on the device.
type Table struct {
	geo    Geometry
	device blockdev.Device
}

// NewTable validates the geometry and returns a table engine over the device.
func NewTable(geo Geometry, device blockdev.Device) (*Table, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	return &Table{geo: geo, device: device}, nil
}

// Geometry returns a copy of the volume geometry this table operates on.
func (table *Table) Geometry() Geometry {
	return table.geo
}

////////////////////////////////////////////////////////////////////////////////
// Cell addressing

// cellOffset gives the byte offset of a cluster's cell from the start of a FAT
// replica. For FAT12 this is the offset of the 16-bit word the 12-bit cell
// lives in; whether it occupies the low or high 12 bits depends on the
// cluster's nibble phase (index parity).
func (geo *Geometry) cellOffset(cluster ClusterID) int64 {
	bits := uint64(cluster) * uint64(geo.Version.CellBits())
	return int64(bits / 8)
}

// replicaByteOffset converts an in-FAT byte offset into an absolute device
// offset within the given FAT replica.
func (geo *Geometry) replicaByteOffset(replica uint, offsetInFAT int64) int64 {
	return geo.PartitionStart +
		geo.FirstFATByte +
		int64(replica)*geo.FATSizeBytes() +
		offsetInFAT
}

// clusterDataOffset gives the absolute device offset of the first byte of the
// given cluster's data.
func (table *Table) clusterDataOffset(cluster ClusterID) (int64, error) {
	if !table.geo.IsValidCluster(cluster) {
		return 0, errors.ErrInvalidCluster.WithMessage(
			fmt.Sprintf(
				"cluster %d not in range [%d, %d)",
				cluster,
				FirstDataCluster,
				table.geo.TotalClusters))
	}
	offset := int64(cluster-FirstDataCluster) * table.geo.BytesPerClusterTotal()
	return table.geo.PartitionStart + table.geo.FirstDataByte + offset, nil
}

////////////////////////////////////////////////////////////////////////////////
// Cell I/O

// readCell reads one cell from the given FAT replica. Along with the decoded
// cell it returns the cell's byte offset within the FAT, so that a subsequent
// write doesn't need to recompute it.
func (table *Table) readCell(
	cluster ClusterID,
	replica uint,
) (Cell, int64, error) {
	offsetInFAT := table.geo.cellOffset(cluster)
	absolute := table.geo.replicaByteOffset(replica, offsetInFAT)

	switch table.geo.Version {
	case FAT32:
		var word [4]byte
		if err := table.device.ReadAt(absolute, word[:]); err != nil {
			return Cell{}, 0, err
		}
		raw := binary.LittleEndian.Uint32(word[:])
		return DecodeCell(FAT32, raw), offsetInFAT, nil

	case FAT16:
		var word [2]byte
		if err := table.device.ReadAt(absolute, word[:]); err != nil {
			return Cell{}, 0, err
		}
		raw := binary.LittleEndian.Uint16(word[:])
		return DecodeCell(FAT16, uint32(raw)), offsetInFAT, nil

	default: // FAT12
		var word [2]byte
		if err := table.device.ReadAt(absolute, word[:]); err != nil {
			return Cell{}, 0, err
		}

		value := binary.LittleEndian.Uint16(word[:])
		if cluster&1 == 1 {
			value >>= 4
		} else {
			value &= 0x0FFF
		}
		return DecodeCell(FAT12, uint32(value)), offsetInFAT, nil
	}
}

// Get returns the decoded cell for the given cluster, read from FAT replica 0.
func (table *Table) Get(cluster ClusterID) (Cell, error) {
	cell, _, err := table.readCell(cluster, 0)
	return cell, err
}

// writeCellToReplica writes one cell into a single FAT replica. The FAT12 path
// is a read-modify-write on the 16-bit word straddling the cell so the 12 bits
// belonging to the neighboring cluster come through untouched.
func (table *Table) writeCellToReplica(
	cluster ClusterID,
	value Cell,
	replica uint,
	offsetInFAT int64,
) error {
	absolute := table.geo.replicaByteOffset(replica, offsetInFAT)

	switch table.geo.Version {
	case FAT32:
		// The reserved high nibble is written as zero, not preserved.
		var word [4]byte
		binary.LittleEndian.PutUint32(word[:], value.Encode(FAT32))
		return table.device.WriteAt(absolute, word[:])

	case FAT16:
		var word [2]byte
		binary.LittleEndian.PutUint16(word[:], uint16(value.Encode(FAT16)))
		return table.device.WriteAt(absolute, word[:])

	default: // FAT12
		var word [2]byte
		if err := table.device.ReadAt(absolute, word[:]); err != nil {
			return err
		}

		encoded := uint16(value.Encode(FAT12))
		if cluster&1 == 1 {
			word[0] = (word[0] & 0x0F) | byte(encoded<<4)
			word[1] = byte(encoded >> 4)
		} else {
			word[0] = byte(encoded)
			word[1] = (word[1] & 0xF0) | byte(encoded>>8)
		}
		return table.device.WriteAt(absolute, word[:])
	}
}

// Put writes a cell for the given cluster to every FAT replica on the volume.
//
// Put first reads the current cell from replica 0; if it already equals the
// requested value, Put returns immediately without touching the device. When a
// write is needed, replicas are written in ascending order and the first
// failure aborts the rest, so replicas with a higher index may be stale after
// an error. Reconciling divergent replicas is the caller's problem.
func (table *Table) Put(cluster ClusterID, value Cell) error {
	current, offsetInFAT, err := table.readCell(cluster, 0)
	if err != nil {
		return err
	}
	if current == value {
		return nil
	}

	for replica := uint(0); replica < table.geo.NumFATs; replica++ {
		err := table.writeCellToReplica(cluster, value, replica, offsetInFAT)
		if err != nil {
			return err
		}
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// Chain queries

// LastCluster follows the chain from `start` and returns its final cluster.
// A cluster whose cell isn't Data is its own chain of length one.
//
// The walk is not cycle-checked. On a corrupted table with a looped chain this
// never returns; callers that can't trust their input should bound their own
// traversal by the geometry's cluster count.
func (table *Table) LastCluster(start ClusterID) (ClusterID, error) {
	last, _, err := table.LastAndPreviousCluster(start)
	return last, err
}

// LastAndPreviousCluster follows the chain from `start` and returns its final
// cluster along with the cluster visited immediately before it. The previous
// cluster is [InvalidClusterID] when the chain has length one.
func (table *Table) LastAndPreviousCluster(
	start ClusterID,
) (ClusterID, ClusterID, error) {
	previous := InvalidClusterID
	current := start

	for {
		cell, err := table.Get(current)
		if err != nil {
			return InvalidClusterID, InvalidClusterID, err
		}
		if cell.Kind != CellData {
			return current, previous, nil
		}
		previous = current
		current = cell.Next
	}
}

// FreeClusterCount scans the whole table by index and counts the cells decoded
// as Free. It walks indices, not chains, so it's immune to chain corruption.
func (table *Table) FreeClusterCount() (uint32, error) {
	var count uint32

	for cluster := FirstDataCluster; uint32(cluster) < table.geo.TotalClusters; cluster++ {
		cell, err := table.Get(cluster)
		if err != nil {
			return 0, err
		}
		if cell.Kind == CellFree {
			count++
		}
	}
	return count, nil
}

////////////////////////////////////////////////////////////////////////////////
// Initialization

// Initialize writes Free into every cell in [0, TotalClusters), on all
// replicas. Cells 0 and 1 are reserved by the FAT specification; the format
// tool patches them with the media descriptor and terminator marker afterward.
func (table *Table) Initialize() error {
	for i := uint32(0); i < table.geo.TotalClusters; i++ {
		if err := table.Put(ClusterID(i), FreeCell()); err != nil {
			return err
		}
	}
	return nil
}
