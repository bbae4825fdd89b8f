package sorter

import (
	"github.com/biogo/store/llrb"
	"github.com/grailbio/readidx/encoding/bam"
	"v.io/x/lib/vlog"
)

// mergeLeaf is one run taking part in a merge.
type mergeLeaf struct {
	// seq is the creation order of the run. It breaks ties between records
	// with the same name, so that they come out in input order.
	seq    int
	reader *runReader
}

func (l *mergeLeaf) Compare(c1 llrb.Comparable) int {
	l1 := c1.(*mergeLeaf)
	k0 := l.reader.record().Name
	k1 := l1.reader.record().Name
	switch {
	case k0 < k1:
		return -1
	case k0 > k1:
		return 1
	}
	return l.seq - l1.seq
}

// mergeRuns merges runs, calling readCallback sequentially for each record in
// name order. If readCallback returns false, mergeRuns exits immediately.
// runs must be listed in creation order.
func mergeRuns(runs []*runReader, readCallback func(rec bam.Record) bool) {
	// Sort all the inputs using a binary tree. The child at the top of the
	// tree tends to stay at the top for many records, so the tree maintains
	// the sorted order in amortized O(1) time per record.
	leafs := llrb.Tree{}
	for i, run := range runs {
		if run.scan() {
			leafs.Insert(&mergeLeaf{seq: i, reader: run})
		}
	}
	vlog.VI(1).Infof("Merging %d runs, %d leafs active", len(runs), leafs.Len())

	for leafs.Len() > 0 {
		nthiter := 0
		// top is the smallest child. We read from top.
		// next is the 2nd smallest child, or nil if top is the only
		// child in the tree.
		var top, next *mergeLeaf
		leafs.Do(func(item llrb.Comparable) bool {
			nthiter++
			switch nthiter {
			case 1:
				top = item.(*mergeLeaf)
				return false
			default:
				next = item.(*mergeLeaf)
				return true
			}
		})
		// Read records from top, until it becomes larger than next.
		done := false
		for {
			if !readCallback(top.reader.record()) {
				return
			}
			if !top.reader.scan() {
				done = true
				break
			}
			if next != nil && next.Compare(top) < 0 {
				break
			}
		}
		// Move top into the proper place in the tree.
		leafs.DeleteMin()
		if !done {
			leafs.Insert(top)
		}
	}
}
