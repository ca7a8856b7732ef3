package fat

// ChainIter is a lazy cursor over a cluster chain. It yields the seed cluster
// first — even when the seed's cell isn't Data, so every chain has length at
// least one — and then follows Data links until it reaches a terminator, a bad
// cluster, or a free cell.
//
// Read errors are swallowed: a failed cell read simply ends the iteration
// after the cluster already in hand has been yielded. Callers that need to
// distinguish "chain ended" from "device died" should use [Table.Get] or the
// chain queries, which propagate errors.
//
// The iterator does not detect cycles. A corrupted table can make it run
// forever; callers that can't tolerate that should stop after the geometry's
// cluster count.
type ChainIter struct {
	table *Table

	current    ClusterID
	hasCurrent bool

	// nextCell is the already-read cell of `current`, deciding where the
	// iterator goes after yielding it.
	nextCell    Cell
	hasNextCell bool
}

// Chain starts iterating the cluster chain seeded at `start`. The seed's cell
// is read eagerly; if that read fails, the iterator yields the seed and stops.
func (table *Table) Chain(start ClusterID) *ChainIter {
	iter := &ChainIter{
		table:      table,
		current:    start,
		hasCurrent: true,
	}

	cell, _, err := table.readCell(start, 0)
	if err == nil {
		iter.nextCell = cell
		iter.hasNextCell = true
	}
	return iter
}

// Next returns the next cluster in the chain. The second return value is false
// once the chain is exhausted.
func (iter *ChainIter) Next() (ClusterID, bool) {
	if !iter.hasCurrent {
		return InvalidClusterID, false
	}

	result := iter.current

	if iter.hasNextCell && iter.nextCell.Kind == CellData {
		iter.current = iter.nextCell.Next

		cell, _, err := iter.table.readCell(iter.current, 0)
		if err != nil {
			iter.hasNextCell = false
		} else {
			iter.nextCell = cell
		}
	} else {
		iter.hasCurrent = false
	}

	return result, true
}

// Collect drains the iterator into a slice, stopping after `limit` clusters.
// A limit of the volume's cluster count makes the traversal safe against
// cycles in a corrupted table.
func (iter *ChainIter) Collect(limit uint32) []ClusterID {
	var chain []ClusterID

	for uint32(len(chain)) < limit {
		cluster, ok := iter.Next()
		if !ok {
			break
		}
		chain = append(chain, cluster)
	}
	return chain
}
