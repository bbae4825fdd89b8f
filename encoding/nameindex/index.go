package nameindex

import (
	"fmt"
	"sort"

	"github.com/biogo/hts/bgzf"
	"github.com/grailbio/readidx/encoding/bam"
)

// Boundary is one sample of the sorted file: the name of the record at a
// chunk start, and the virtual offset where that record begins.
type Boundary struct {
	Key     string
	VOffset uint64
}

// Offset returns the boundary's position as a bgzf.Offset, suitable for
// bam.Reader.Seek.
func (b Boundary) Offset() bgzf.Offset { return bam.ToBGZFOffset(b.VOffset) }

func (b Boundary) String() string {
	return fmt.Sprintf("%s@%v", b.Key, b.Offset())
}

// Identity identifies the sorted file that an index was built from.
type Identity struct {
	// Size is the file size in bytes.
	Size int64
	// Fingerprint is a keyed hash of the leading and trailing bytes of the
	// file. See FileIdentity.
	Fingerprint uint64
}

// ChunkIndex is the in-memory form of a .gbni file.
//
// Boundaries[i] describes record i*ChunkSize of the sorted file, so there
// are exactly ceil(NumRecords/ChunkSize) boundaries. Keys are non-decreasing.
// They repeat when the records of one read straddle a chunk start.
type ChunkIndex struct {
	ChunkSize  int
	NumRecords int64
	Identity   Identity
	Boundaries []Boundary
}

// Search returns the boundary from which a forward scan finds every record
// named id. ok is false if the index proves that no such record exists, in
// which case no I/O is needed.
func (idx *ChunkIndex) Search(id string) (start int, ok bool) {
	n := len(idx.Boundaries)
	if n == 0 {
		return 0, false
	}
	// First boundary whose key is >= id.
	i := sort.Search(n, func(i int) bool { return idx.Boundaries[i].Key >= id })
	if i == 0 {
		if idx.Boundaries[0].Key > id {
			return 0, false
		}
		return 0, true
	}
	// Records named id may finish the chunk before boundary i, even when
	// boundary i itself is named id.
	return i - 1, true
}

// numBoundaries is ceil(nRecs/chunkSize).
func numBoundaries(nRecs int64, chunkSize int) int64 {
	return (nRecs + int64(chunkSize) - 1) / int64(chunkSize)
}
