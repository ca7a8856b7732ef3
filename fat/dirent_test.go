package fat

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatcore/errors"
	fatcoretesting "github.com/dargueta/fatcore/testing"
)

// direntTestGeometry lays a small FAT16 volume out as: one 512-byte FAT, a
// two-block root directory, then 1 KiB clusters.
func direntTestGeometry() Geometry {
	return Geometry{
		Version:          FAT16,
		BytesPerBlock:    512,
		BlocksPerFAT:     1,
		NumFATs:          1,
		TotalClusters:    16,
		FirstFATByte:     0,
		FirstRootDirByte: 512,
		RootDirBlocks:    2,
		FirstDataByte:    1536,
		BlocksPerCluster: 2,
	}
}

func newDirentTestTable(t *testing.T) (*Table, []byte) {
	geo := direntTestGeometry()
	size := uint(geo.FirstDataByte) +
		uint(geo.TotalClusters-2)*uint(geo.BytesPerClusterTotal())

	device, backing := fatcoretesting.NewRAMDevice(t, size)
	table, err := NewTable(geo, device)
	require.NoError(t, err)
	return table, backing
}

// putSlotAt writes a minimal raw slot into the backing image. The marker is
// stored in the FileSize field so tests can tell slots apart.
func putSlotAt(backing []byte, offset int, firstNameByte byte, marker uint32) {
	slot := make([]byte, DirentSize)
	for i := 0; i < 11; i++ {
		slot[i] = ' '
	}
	slot[0] = firstNameByte
	binary.LittleEndian.PutUint32(slot[28:32], marker)
	copy(backing[offset:], slot)
}

func TestDirentStreamScrollsWithinCluster(t *testing.T) {
	table, backing := newDirentTestTable(t)
	require.NoError(t, table.Put(ClusterID(2), EndOfChainCell()))

	// Three slots at the very start of cluster 2.
	for i := 0; i < 3; i++ {
		putSlotAt(backing, 1536+i*DirentSize, byte('A'+i), uint32(100+i))
	}

	stream, err := NewDirentStream(table, ClusterID(2), 0, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		dirent, ok, err := stream.Next()
		require.NoError(t, err)
		require.True(t, ok)
		assert.EqualValues(t, 100+i, dirent.FileSize, "slot %d out of order", i)
	}
}

func TestDirentStreamCrossesClusterBoundary(t *testing.T) {
	table, backing := newDirentTestTable(t)
	require.NoError(t, table.Put(ClusterID(2), DataCell(5)))
	require.NoError(t, table.Put(ClusterID(5), EndOfChainCell()))

	// Last slot of cluster 2, then the first slot of cluster 5. Cluster 5 is
	// the fourth data cluster, so its bytes start at 1536 + 3*1024.
	putSlotAt(backing, 1536+1024-DirentSize, 'Z', 1)
	putSlotAt(backing, 1536+3*1024, 'A', 2)

	stream, err := NewDirentStream(
		table, ClusterID(2), 1, 512-DirentSize)
	require.NoError(t, err)

	dirent, ok, err := stream.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, dirent.FileSize)

	dirent, ok, err = stream.Next()
	require.NoError(t, err)
	require.True(t, ok, "stream should follow the chain into cluster 5")
	assert.EqualValues(t, 2, dirent.FileSize)
}

func TestDirentStreamEndsWithChain(t *testing.T) {
	table, _ := newDirentTestTable(t)
	require.NoError(t, table.Put(ClusterID(2), EndOfChainCell()))

	// Anchor at the final slot of the only cluster.
	stream, err := NewDirentStream(
		table, ClusterID(2), 1, 512-DirentSize)
	require.NoError(t, err)

	_, ok, err := stream.Next()
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = stream.Next()
	require.NoError(t, err)
	assert.False(t, ok, "stream must end when the chain does")
}

func TestDirentStreamRootRegion(t *testing.T) {
	table, backing := newDirentTestTable(t)

	putSlotAt(backing, 512, 'R', 7)

	stream, err := NewDirentStream(table, ClusterID(0), 0, 0)
	require.NoError(t, err)

	dirent, ok, err := stream.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 7, dirent.FileSize)

	// The fixed region holds 2 blocks of 16 slots each; one was consumed.
	remaining := 0
	for {
		_, ok, err := stream.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		remaining++
	}
	assert.Equal(t, 31, remaining)
}

func TestDirentStreamRejectsMisalignedOffset(t *testing.T) {
	table, _ := newDirentTestTable(t)
	_, err := NewDirentStream(table, ClusterID(2), 0, 5)
	require.Error(t, err)
}

func TestRereadEntryReturnsLastSlot(t *testing.T) {
	table, backing := newDirentTestTable(t)
	require.NoError(t, table.Put(ClusterID(2), EndOfChainCell()))

	// A logical entry of two long-name fragments plus the real 8.3 slot.
	putSlotAt(backing, 1536+0*DirentSize, 0x42, 1)
	putSlotAt(backing, 1536+1*DirentSize, 0x01, 2)
	putSlotAt(backing, 1536+2*DirentSize, 'F', 3)

	locator := EntryLocator{
		ParentCluster:    ClusterID(2),
		FirstBlockIndex:  0,
		FirstEntryOffset: 0,
		EntryCount:       3,
	}

	dirent, err := table.RereadEntry(locator)
	require.NoError(t, err)
	assert.EqualValues(t, 3, dirent.FileSize, "reread must yield the final slot")
	assert.EqualValues(t, 'F', dirent.Name[0])
}

func TestRereadEntryNotFoundWhenStreamEnds(t *testing.T) {
	table, _ := newDirentTestTable(t)
	require.NoError(t, table.Put(ClusterID(2), EndOfChainCell()))

	// The anchor leaves exactly one slot before the chain ends, but the
	// locator claims the entry spans two.
	locator := EntryLocator{
		ParentCluster:    ClusterID(2),
		FirstBlockIndex:  1,
		FirstEntryOffset: 512 - DirentSize,
		EntryCount:       2,
	}

	_, err := table.RereadEntry(locator)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRereadEntryRejectsEmptyLocator(t *testing.T) {
	table, _ := newDirentTestTable(t)

	_, err := table.RereadEntry(EntryLocator{ParentCluster: ClusterID(2)})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRawDirentHelpers(t *testing.T) {
	dirent := RawDirent{
		FirstClusterHigh: 0x0001,
		FirstClusterLow:  0x0002,
	}
	assert.Equal(t, ClusterID(0x10002), dirent.FirstCluster())

	dirent.Name[0] = 0xE5
	assert.True(t, dirent.IsDeleted())

	dirent.Name[0] = 0
	assert.True(t, dirent.IsEndMarker())

	dirent.AttributeFlags = AttrLongName
	assert.True(t, dirent.IsLongNameFragment())

	dirent.AttributeFlags = AttrDirectory
	assert.False(t, dirent.IsLongNameFragment())
}
