// Cluster allocation on top of the table engine. The allocator keeps an
// in-memory bitmap of which clusters are in use so that finding a free cluster
// doesn't re-scan the FAT on every allocation; the FAT itself remains the
// authority and is updated through [Table.Put] on every state change.

package fat

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/fatcore/errors"
)

type Allocator struct {
	table *Table

	// usedMap has one bit per cluster index; 1 means the cluster's cell is
	// anything other than Free.
	usedMap       bitmap.Bitmap
	totalClusters uint32
	lastAllocated ClusterID
}

// NewAllocator scans the whole table once and builds an allocator over it.
// The two reserved clusters are always marked used.
func NewAllocator(table *Table) (*Allocator, error) {
	total := table.geo.TotalClusters
	alloc := &Allocator{
		table:         table,
		usedMap:       bitmap.NewSlice(int(total)),
		totalClusters: total,
		lastAllocated: FirstDataCluster,
	}

	alloc.usedMap.Set(0, true)
	alloc.usedMap.Set(1, true)

	for cluster := FirstDataCluster; uint32(cluster) < total; cluster++ {
		cell, err := table.Get(cluster)
		if err != nil {
			return nil, err
		}
		if cell.Kind != CellFree {
			alloc.usedMap.Set(int(cluster), true)
		}
	}
	return alloc, nil
}

// FreeCount returns the number of clusters the allocator believes are free.
func (alloc *Allocator) FreeCount() uint32 {
	var count uint32
	for i := FirstDataCluster; uint32(i) < alloc.totalClusters; i++ {
		if !alloc.usedMap.Get(int(i)) {
			count++
		}
	}
	return count
}

// AllocateCluster claims the first free cluster at or after the last
// allocation point, wrapping around once, and writes EndOfChain into its cell
// so the cluster immediately reads as a chain of length one.
func (alloc *Allocator) AllocateCluster() (ClusterID, error) {
	candidate, err := alloc.findFree()
	if err != nil {
		return InvalidClusterID, err
	}

	if err := alloc.table.Put(candidate, EndOfChainCell()); err != nil {
		return InvalidClusterID, err
	}

	alloc.usedMap.Set(int(candidate), true)
	alloc.lastAllocated = candidate
	return candidate, nil
}

// ExtendChain allocates a fresh cluster and links it after the current last
// cluster of the chain seeded at `start`. Returns the new cluster.
func (alloc *Allocator) ExtendChain(start ClusterID) (ClusterID, error) {
	last, err := alloc.table.LastCluster(start)
	if err != nil {
		return InvalidClusterID, err
	}

	fresh, err := alloc.AllocateCluster()
	if err != nil {
		return InvalidClusterID, err
	}

	if err := alloc.table.Put(last, DataCell(fresh)); err != nil {
		return InvalidClusterID, err
	}
	return fresh, nil
}

// ReleaseChain frees every cluster in the chain seeded at `start`. The walk is
// bounded by the volume's cluster count, so a looped chain frees each of its
// clusters once rather than spinning forever.
func (alloc *Allocator) ReleaseChain(start ClusterID) error {
	chain := alloc.table.Chain(start).Collect(alloc.totalClusters)

	for _, cluster := range chain {
		if err := alloc.table.Put(cluster, FreeCell()); err != nil {
			return err
		}
		if uint32(cluster) < alloc.totalClusters {
			alloc.usedMap.Set(int(cluster), false)
		}
	}
	return nil
}

// findFree locates the next unused cluster without claiming it.
func (alloc *Allocator) findFree() (ClusterID, error) {
	if alloc.totalClusters <= uint32(FirstDataCluster) {
		return InvalidClusterID, errors.ErrNoSpaceOnDevice.WithMessage(
			"volume has no data clusters at all")
	}

	span := alloc.totalClusters - uint32(FirstDataCluster)
	for i := uint32(0); i < span; i++ {
		candidate := uint32(alloc.lastAllocated) + i
		candidate = uint32(FirstDataCluster) +
			(candidate-uint32(FirstDataCluster))%span

		if !alloc.usedMap.Get(int(candidate)) {
			return ClusterID(candidate), nil
		}
	}

	return InvalidClusterID, errors.ErrNoSpaceOnDevice.WithMessage(
		fmt.Sprintf("all %d data clusters are in use", span))
}
