package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dargueta/fatcore/errors"
)

// DirentSize is the size of one raw directory entry slot, in bytes.
const DirentSize = 32

const (
	// AttrReadOnly is an attribute flag marking a directory entry as read-only.
	AttrReadOnly = 1

	// AttrHidden is an attribute flag marking a directory entry as "hidden",
	// meaning it wouldn't show up in normal directory listings.
	AttrHidden = 2

	// AttrSystem is an attribute flag marking a directory entry as essential
	// to the operating system and must not be moved.
	AttrSystem = 4

	// AttrVolumeLabel is an attribute flag that marks a file as containing the
	// true volume label of the file system.
	AttrVolumeLabel = 8

	// AttrDirectory is an attribute flag marking a directory entry as being a
	// directory.
	AttrDirectory = 16

	// AttrArchived is an attribute flag used by some systems to mark a
	// directory entry as "dirty" whenever it's created or modified.
	AttrArchived = 32

	// AttrLongName marks a slot as one fragment of a long file name. A logical
	// entry is the run of these fragments plus the 8.3 slot that follows them;
	// an [EntryLocator]'s EntryCount counts the whole run.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

// deletedMarker in Name[0] flags a slot whose entry was deleted.
const deletedMarker = 0xE5

// RawDirent is the on-disk representation of a single directory entry slot,
// broken down into its constituent fields. All multi-byte fields are
// little-endian on disk.
type RawDirent struct {
	Name              [8]byte
	Extension         [3]byte
	AttributeFlags    uint8
	NTReserved        uint8
	CreatedTimeMillis uint8
	CreatedTime       uint16
	CreatedDate       uint16
	LastAccessedDate  uint16
	FirstClusterHigh  uint16
	LastModifiedTime  uint16
	LastModifiedDate  uint16
	FirstClusterLow   uint16
	FileSize          uint32
}

// FirstCluster returns the first cluster of the entry's data. The high half of
// the index is only meaningful on FAT32; FAT12/16 leave it zero.
func (dirent *RawDirent) FirstCluster() ClusterID {
	return ClusterID(uint32(dirent.FirstClusterHigh)<<16 | uint32(dirent.FirstClusterLow))
}

// IsDeleted reports whether the slot held an entry that has been deleted.
func (dirent *RawDirent) IsDeleted() bool {
	return dirent.Name[0] == deletedMarker
}

// IsEndMarker reports whether the slot terminates the directory: nothing at or
// past this slot has ever been used.
func (dirent *RawDirent) IsEndMarker() bool {
	return dirent.Name[0] == 0
}

// IsLongNameFragment reports whether the slot carries a long-file-name
// fragment rather than an 8.3 entry.
func (dirent *RawDirent) IsLongNameFragment() bool {
	return dirent.AttributeFlags&AttrLongName == AttrLongName
}

func direntFromBytes(raw []byte) (RawDirent, error) {
	var dirent RawDirent
	err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &dirent)
	return dirent, err
}

////////////////////////////////////////////////////////////////////////////////
// Raw entry stream

// DirentStream is a finite lazy sequence of raw directory entry slots. It's
// anchored at an arbitrary (cluster, block, byte offset) position inside a
// directory and scrolls forward from there, following the directory's cluster
// chain as it crosses cluster boundaries.
//
// A parent cluster of 0 anchors the stream in the fixed root directory region
// instead, which is how the FAT12/16 root directory — which lives outside the
// data area and has no chain — is read.
type DirentStream struct {
	table *Table

	// rootRegion is true when scrolling the fixed FAT12/16 root directory.
	rootRegion bool

	chain          *ChainIter
	currentCluster ClusterID
	haveCluster    bool

	blockIndex  uint
	block       []byte
	offsetInBlk uint
}

// NewDirentStream opens a raw entry stream at the given position. The byte
// offset must be slot-aligned (a multiple of [DirentSize]).
func NewDirentStream(
	table *Table,
	parentCluster ClusterID,
	blockIndex uint,
	entryOffset uint,
) (*DirentStream, error) {
	if entryOffset%DirentSize != 0 {
		return nil, errors.ErrInvalidCluster.WithMessage(
			fmt.Sprintf("entry offset %d is not slot-aligned", entryOffset))
	}

	stream := &DirentStream{
		table:       table,
		blockIndex:  blockIndex,
		offsetInBlk: entryOffset,
	}

	if parentCluster == 0 {
		if table.geo.Version == FAT32 {
			return nil, errors.ErrNotSupported.WithMessage(
				"FAT32 has no fixed root directory region")
		}
		stream.rootRegion = true
	} else {
		stream.chain = table.Chain(parentCluster)
		stream.currentCluster, stream.haveCluster = stream.chain.Next()

		// An anchor block index past the first cluster just means the entry
		// starts further down the chain.
		for stream.haveCluster && stream.blockIndex >= table.geo.BlocksPerCluster {
			stream.blockIndex -= table.geo.BlocksPerCluster
			stream.currentCluster, stream.haveCluster = stream.chain.Next()
		}
	}
	return stream, nil
}

// Next returns the next raw slot in the stream. The second return value is
// false once the directory is exhausted; the stream doesn't interpret slot
// contents, so deleted slots and end markers are yielded like any other.
func (stream *DirentStream) Next() (RawDirent, bool, error) {
	geo := &stream.table.geo

	for {
		if stream.block == nil {
			ok, err := stream.loadBlock()
			if err != nil {
				return RawDirent{}, false, err
			}
			if !ok {
				return RawDirent{}, false, nil
			}
		}

		if stream.offsetInBlk+DirentSize <= uint(len(stream.block)) {
			raw := stream.block[stream.offsetInBlk : stream.offsetInBlk+DirentSize]
			stream.offsetInBlk += DirentSize

			dirent, err := direntFromBytes(raw)
			if err != nil {
				return RawDirent{}, false, errors.ErrReadFailed.WrapError(err)
			}
			return dirent, true, nil
		}

		// Ran off the end of this block; move to the next one.
		stream.block = nil
		stream.blockIndex++
		stream.offsetInBlk = 0
		if !stream.rootRegion && stream.blockIndex >= geo.BlocksPerCluster {
			stream.blockIndex = 0
			stream.currentCluster, stream.haveCluster = stream.chain.Next()
		}
	}
}

// loadBlock reads the block the stream currently points at. Returns false with
// no error when the stream has run past the end of the directory.
func (stream *DirentStream) loadBlock() (bool, error) {
	geo := &stream.table.geo

	var absolute int64
	if stream.rootRegion {
		if stream.blockIndex >= geo.RootDirBlocks {
			return false, nil
		}
		absolute = geo.PartitionStart +
			geo.FirstRootDirByte +
			int64(stream.blockIndex)*int64(geo.BytesPerBlock)
	} else {
		if !stream.haveCluster {
			return false, nil
		}
		// A slot stream follows Data links only; hitting a free or bad cell in
		// the chain ends the stream the same way a terminator does.
		clusterStart, err := stream.table.clusterDataOffset(stream.currentCluster)
		if err != nil {
			return false, err
		}
		absolute = clusterStart + int64(stream.blockIndex)*int64(geo.BytesPerBlock)
	}

	block := make([]byte, geo.BytesPerBlock)
	if err := stream.table.device.ReadAt(absolute, block); err != nil {
		return false, err
	}
	stream.block = block
	return true, nil
}

////////////////////////////////////////////////////////////////////////////////
// Entry locator

// EntryLocator records where a logical directory entry physically sits, so the
// entry can be re-read later without resolving its path again. A logical entry
// occupies EntryCount consecutive raw slots: zero or more long-file-name
// fragments followed by the 8.3 slot that owns the actual metadata.
type EntryLocator struct {
	// ParentCluster is the first cluster of the directory holding the entry,
	// or 0 for the fixed FAT12/16 root directory region.
	ParentCluster ClusterID

	// FirstBlockIndex is the block within the parent cluster (or root region)
	// where the entry's first slot begins.
	FirstBlockIndex uint

	// FirstEntryOffset is the byte offset of the first slot within that block.
	FirstEntryOffset uint

	// EntryCount is the number of consecutive raw slots making up the logical
	// entry. Always at least 1.
	EntryCount uint
}

// RereadEntry scrolls a raw entry stream forward from the locator's anchor and
// returns the last of its EntryCount slots — the 8.3 entry. Reassembling the
// long name from the preceding fragments is the directory layer's job, not the
// engine's.
func (table *Table) RereadEntry(locator EntryLocator) (RawDirent, error) {
	if locator.EntryCount < 1 {
		return RawDirent{}, errors.ErrNotFound.WithMessage(
			"locator does not span any directory slots")
	}

	stream, err := NewDirentStream(
		table,
		locator.ParentCluster,
		locator.FirstBlockIndex,
		locator.FirstEntryOffset,
	)
	if err != nil {
		return RawDirent{}, err
	}

	var result RawDirent
	for i := uint(0); i < locator.EntryCount; i++ {
		dirent, ok, err := stream.Next()
		if err != nil {
			return RawDirent{}, err
		}
		if !ok {
			return RawDirent{}, errors.ErrNotFound.WithMessage(
				fmt.Sprintf(
					"directory ended after %d of %d slots",
					i,
					locator.EntryCount))
		}
		result = dirent
	}
	return result, nil
}
