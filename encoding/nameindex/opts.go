package nameindex

import "math"

// DefaultChunkSize is the default number of records between two index
// boundaries.
const DefaultChunkSize = 512

// Opts controls how an index is built.
type Opts struct {
	// ChunkSize is the number of records between two adjacent boundaries. A
	// smaller value makes the index bigger and lookups faster. If <= 0,
	// DefaultChunkSize is used. Values above MaxChunkSize are lowered to
	// MaxChunkSize, which yields the same single-boundary index for any file
	// that fits in a BAM.
	ChunkSize int
}

// MaxChunkSize is the largest chunk size a .gbni file can store.
const MaxChunkSize = math.MaxUint32

func (o Opts) chunkSize() int {
	switch {
	case o.ChunkSize <= 0:
		return DefaultChunkSize
	case int64(o.ChunkSize) > MaxChunkSize:
		return MaxChunkSize
	}
	return o.ChunkSize
}

// LookupOpts controls a Searcher.
type LookupOpts struct {
	// ShareScans causes Searcher.LookupEach to visit the distinct names in
	// sorted order and to continue a scan where the previous one stopped
	// instead of seeking, whenever the next name can be found from there
	// without skipping a chunk. Results are the same either way; the callback
	// order changes from first appearance to sorted.
	ShareScans bool
}
