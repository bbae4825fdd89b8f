package nameindex

import (
	"sort"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/readidx/encoding/bam"
	"v.io/x/lib/vlog"
)

// Lookup returns every record named id, in file order. r must read the file
// that idx was built from. It returns an empty slice and a nil error if
// there is no such record.
func Lookup(idx *ChunkIndex, r *bam.Reader, id string) ([]bam.Record, error) {
	return NewSearcher(idx, r, LookupOpts{}).Lookup(id)
}

// Searcher answers lookups against one sorted file and its index. A Searcher
// is not thread safe, but several Searchers may read the same files.
type Searcher struct {
	idx  *ChunkIndex
	r    *bam.Reader
	opts LookupOpts
	// owned is true if Close should close r.
	owned bool

	// Scan state. When positioned is true, the reader was last seeked to
	// boundary start, and every record before the reader's position (and
	// before pending, if hasPending) is named at most lastID.
	positioned bool
	start      int
	lastID     string
	pending    bam.Record
	hasPending bool
	eof        bool
}

// NewSearcher creates a Searcher on an index and an open reader of the file
// it describes. The caller remains responsible for closing r.
func NewSearcher(idx *ChunkIndex, r *bam.Reader, opts LookupOpts) *Searcher {
	return &Searcher{idx: idx, r: r, opts: opts}
}

// Open opens the name-sorted BAM file at sortedPath and the index at
// indexPath, or DefaultIndexPath(sortedPath) if indexPath is empty. It fails
// with errors.Integrity if the index was built from a different file.
func Open(sortedPath, indexPath string, opts LookupOpts) (*Searcher, error) {
	if indexPath == "" {
		indexPath = DefaultIndexPath(sortedPath)
	}
	idx, err := ReadFile(indexPath)
	if err != nil {
		return nil, err
	}
	if err := VerifyIdentity(idx, sortedPath); err != nil {
		return nil, errors.E(err, "index", indexPath)
	}
	r, err := bam.Open(sortedPath)
	if err != nil {
		return nil, err
	}
	s := NewSearcher(idx, r, opts)
	s.owned = true
	return s, nil
}

// Header returns the SAM header of the sorted file.
func (s *Searcher) Header() *sam.Header { return s.r.Header() }

// Index returns the index used by the searcher.
func (s *Searcher) Index() *ChunkIndex { return s.idx }

// Lookup returns every record named id, in file order.
func (s *Searcher) Lookup(id string) ([]bam.Record, error) {
	start, ok := s.idx.Search(id)
	if !ok {
		return nil, nil
	}
	if err := s.seek(start); err != nil {
		return nil, err
	}
	return s.collect(id)
}

// LookupEach calls fn once for each distinct name in ids, with the records
// of that name in file order. Names are visited in order of first appearance,
// or in sorted order if LookupOpts.ShareScans is set. fn is called with an
// empty slice for names that have no records. LookupEach stops at the first
// error returned by fn or by the reader.
func (s *Searcher) LookupEach(ids []string, fn func(id string, recs []bam.Record) error) error {
	ids = dedup(ids, s.opts.ShareScans)
	s.positioned = false
	for _, id := range ids {
		var (
			recs []bam.Record
			err  error
		)
		if s.opts.ShareScans {
			recs, err = s.lookupShared(id)
		} else {
			recs, err = s.Lookup(id)
		}
		if err != nil {
			return err
		}
		if err := fn(id, recs); err != nil {
			return err
		}
	}
	return nil
}

// lookupShared is Lookup for ids visited in increasing order. It continues
// from the current position when the record that ended the previous scan
// belongs to the same chunk as id's first candidate, or when that record
// already reaches id.
func (s *Searcher) lookupShared(id string) ([]bam.Record, error) {
	start, ok := s.idx.Search(id)
	if !ok {
		return nil, nil
	}
	if !s.positioned || id <= s.lastID {
		if err := s.seek(start); err != nil {
			return nil, err
		}
		return s.collect(id)
	}
	switch {
	case s.eof:
		// Everything after the previous start sorts at or before lastID.
		return nil, nil
	case s.hasPending && s.pending.Name > id:
		s.lastID = id
		return nil, nil
	case start == s.start || (s.hasPending && s.pending.Name == id):
		vlog.VI(2).Infof("%s: continuing scan from boundary %d", id, s.start)
		return s.collect(id)
	}
	if err := s.seek(start); err != nil {
		return nil, err
	}
	return s.collect(id)
}

func (s *Searcher) seek(start int) error {
	s.positioned = false
	s.hasPending = false
	s.eof = false
	if err := s.r.Seek(s.idx.Boundaries[start].Offset()); err != nil {
		return err
	}
	s.positioned = true
	s.start = start
	return nil
}

// collect reads forward, starting with the pending record if any, skipping
// names below id and stopping at the first name above id.
func (s *Searcher) collect(id string) ([]bam.Record, error) {
	var recs []bam.Record
	for {
		var rec bam.Record
		if s.hasPending {
			rec, s.hasPending = s.pending, false
		} else if s.r.Scan() {
			rec = s.r.Record()
		} else {
			if err := s.r.Err(); err != nil {
				s.positioned = false
				return nil, err
			}
			s.eof = true
			break
		}
		if rec.Name < id {
			continue
		}
		if rec.Name > id {
			s.pending, s.hasPending = rec, true
			break
		}
		recs = append(recs, rec)
	}
	s.lastID = id
	return recs, nil
}

// Close releases the reader if the searcher was created by Open.
func (s *Searcher) Close() error {
	if !s.owned {
		return nil
	}
	s.owned = false
	return s.r.Close()
}

func dedup(ids []string, sorted bool) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if sorted {
		sort.Strings(out)
	}
	return out
}
