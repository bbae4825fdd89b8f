package sorter

import (
	stderrors "errors"
	"fmt"
	"io/ioutil"
	"os"
	"sort"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/readidx/encoding/bam"
	"golang.org/x/sys/unix"
	"v.io/x/lib/vlog"
)

// DefaultSortBatchSize is the default number of records to keep in
// memory before resorting to external sorting.
const DefaultSortBatchSize = 1 << 20

// DefaultParallelism is the default value for SortOptions.Parallelism.
const DefaultParallelism = 2

// maxMergeFanin is the maximum number of runs read at once. When there are
// more runs, consecutive groups of them are first merged into bigger runs.
var maxMergeFanin = 256

// SortOptions controls options passed to the toplevel Sort.
type SortOptions struct {
	// BatchSize is the number of records to keep in memory before spilling a
	// sorted run to TmpDir. If <= 0, DefaultSortBatchSize is used.
	BatchSize int

	// Parallelism is the number of BGZF compression goroutines used for the
	// output. If <= 0, DefaultParallelism is used.
	Parallelism int

	// NoCompressTmpFiles, if false (default), compress runs using snappy.
	// Compression is a big win on an EC2 EBS. It will slow sort down by a minor
	// degree on fast NVMe disks.
	NoCompressTmpFiles bool

	// TmpDir defines the directory to store runs. "" means the system
	// default, usually /tmp.
	TmpDir string

	// Format is the output container, bam.BAM (default) or bam.UBAM.
	Format bam.FileType
}

// Sorter sorts records by read name and produces a BAM file in "outPath".
// Records with the same name keep the order in which they were added.
//
// Records are kept in memory in batches of SortOptions.BatchSize. A full
// batch is sorted and written to a temp file, a "run". Close merges the runs
// and writes the result. Memory use is thus bounded by the batch size, and
// the temp space needed is about the size of the input.
//
// Example:
//   sorter := NewSorter("foo.namesorted.bam", header, SortOptions{})
//   for r.Scan() {
//     sorter.AddRecord(r.Record())
//   }
//   err := sorter.Close()
type Sorter struct {
	options SortOptions
	outPath string
	header  *sam.Header
	recs    []bam.Record
	err     errors.Once
	runs    []string // pathnames of runs, in creation order.
	closed  bool

	// in and out summarize the records added and written. They must match
	// when the sort finishes.
	in, out bam.Digest
}

// NewSorter creates a Sorter object. header is the header of the input; the
// output carries a copy of it with the sort order set to "queryname".
func NewSorter(outPath string, header *sam.Header, options SortOptions) *Sorter {
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultSortBatchSize
	}
	if options.Parallelism <= 0 {
		options.Parallelism = DefaultParallelism
	}
	if options.Format != bam.UBAM {
		options.Format = bam.BAM
	}
	vlog.VI(1).Infof("New Sorter: %v, %+v", outPath, options)
	h := header.Clone()
	h.SortOrder = sam.QueryName
	return &Sorter{
		options: options,
		outPath: outPath,
		header:  h,
	}
}

// AddRecord adds a record to the sorter. The sorter takes ownership of
// rec.Body. The caller shall not modify it after the call. Errors are
// reported by Err and Close.
func (s *Sorter) AddRecord(rec bam.Record) {
	if s.err.Err() != nil {
		return
	}
	s.in.Add(rec)
	s.recs = append(s.recs, bam.Record{Name: rec.Name, Body: rec.Body})
	if len(s.recs) >= s.options.BatchSize {
		s.spill()
	}
}

// Err returns the first error encountered so far.
func (s *Sorter) Err() error { return s.err.Err() }

// spill sorts the current batch and writes it to a new run.
func (s *Sorter) spill() {
	records := s.recs
	s.recs = nil
	vlog.VI(1).Infof("Sorting %d records into run %d", len(records), len(s.runs))
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	path, err := s.newRun(func(w *runWriter) error {
		for _, rec := range records {
			w.add(rec)
		}
		return nil
	})
	if path != "" {
		s.runs = append(s.runs, path)
	}
	if err != nil {
		s.err.Set(classify(err))
	}
}

// newRun creates a run file in TmpDir and fills it using fill. It returns the
// path of the run, even on error, so that the caller can remove it. The path
// is "" only if the file could not be created.
func (s *Sorter) newRun(fill func(w *runWriter) error) (string, error) {
	temp, err := ioutil.TempFile(s.options.TmpDir, "nameindex-run")
	if err != nil {
		return "", err
	}
	var runErr errors.Once
	writer := newRunWriter(temp, !s.options.NoCompressTmpFiles, &runErr)
	runErr.Set(fill(writer))
	writer.finish()
	runErr.Set(temp.Close())
	if err := runErr.Err(); err != nil {
		return temp.Name(), errors.E(err, "write run", temp.Name())
	}
	return temp.Name(), nil
}

// reduceRuns merges consecutive groups of at most maxMergeFanin runs into
// new runs until a single merge can read all of them. Groups are formed in
// creation order, and the new runs replace them in that order, so records
// with equal names stay in input order.
func (s *Sorter) reduceRuns() {
	for pass := 0; len(s.runs) > maxMergeFanin; pass++ {
		vlog.VI(1).Infof("Merge pass %d: reducing %d runs", pass, len(s.runs))
		var next []string
		for len(s.runs) > 0 {
			n := maxMergeFanin
			if n > len(s.runs) {
				n = len(s.runs)
			}
			group := s.runs[:n]
			if n == 1 {
				next = append(next, group[0])
				s.runs = s.runs[1:]
				continue
			}
			path, err := s.mergeGroup(group)
			if path != "" {
				next = append(next, path)
			}
			if err != nil {
				// Keep every remaining file listed so that removeRuns finds it.
				s.runs = append(next, s.runs...)
				s.err.Set(classify(err))
				return
			}
			s.runs = s.runs[n:]
			removePaths(group)
		}
		s.runs = next
	}
}

// mergeGroup merges the given runs into a new run.
func (s *Sorter) mergeGroup(group []string) (string, error) {
	return s.newRun(func(w *runWriter) error {
		var err errors.Once
		readers := make([]*runReader, len(group))
		for i, path := range group {
			readers[i] = newRunReader(path, &err)
		}
		if err.Err() == nil {
			mergeRuns(readers, func(rec bam.Record) bool {
				w.add(rec)
				return true
			})
		}
		for _, r := range readers {
			r.close()
		}
		return err.Err()
	})
}

// Close must be called after adding all the records. It writes any partial
// batch, merges the runs into outPath and removes them. The output is first
// written to outPath+".inprogress" and renamed once complete, so outPath
// never holds a partial result. After Close, Sorter becomes invalid.
func (s *Sorter) Close() error {
	if s.closed {
		return errors.E(errors.Precondition, "sorter already closed")
	}
	s.closed = true
	defer s.removeRuns()
	if len(s.recs) > 0 && s.err.Err() == nil {
		s.spill()
	}
	if s.err.Err() == nil {
		s.reduceRuns()
	}
	if s.err.Err() == nil {
		s.merge()
	}
	return s.err.Err()
}

// Discard abandons the sort. It removes the runs and produces no output. It
// is a no-op after Close.
func (s *Sorter) Discard() {
	if s.closed {
		return
	}
	s.closed = true
	s.recs = nil
	s.removeRuns()
}

func (s *Sorter) removeRuns() {
	removePaths(s.runs)
	s.runs = nil
}

func removePaths(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			vlog.Errorf("sort %v: failed to remove sorter tmp file: %v", path, err)
		}
	}
}

// merge merges all the runs into the output file.
func (s *Sorter) merge() {
	ctx := vcontext.Background()
	tmpPath := s.outPath + ".inprogress"
	out, err := file.Create(ctx, tmpPath)
	if err != nil {
		s.err.Set(errors.E(err, "create", tmpPath))
		return
	}
	var mergeErr errors.Once
	w, err := bam.NewWriter(out.Writer(ctx), s.header, bam.WriterOpts{
		Format:      s.options.Format,
		Parallelism: s.options.Parallelism,
	})
	mergeErr.Set(err)
	if err == nil {
		readers := make([]*runReader, len(s.runs))
		for i, path := range s.runs {
			readers[i] = newRunReader(path, &mergeErr)
		}
		if mergeErr.Err() == nil {
			mergeRuns(readers, func(rec bam.Record) bool {
				s.out.Add(rec)
				if err := w.Write(rec); err != nil {
					mergeErr.Set(err)
					return false
				}
				return true
			})
		}
		for _, r := range readers {
			r.close()
		}
		mergeErr.Set(w.Close())
	}
	mergeErr.Set(out.Close(ctx))
	if mergeErr.Err() == nil && s.in != s.out {
		mergeErr.Set(errors.E(errors.Integrity,
			fmt.Sprintf("sort %s: records added %v do not match records written %v", s.outPath, s.in, s.out)))
	}
	if err := mergeErr.Err(); err != nil {
		if e := os.Remove(tmpPath); e != nil {
			vlog.Errorf("sort %v: failed to remove partial output: %v", tmpPath, e)
		}
		s.err.Set(classify(errors.E(err, "merge", s.outPath)))
		return
	}
	vlog.VI(1).Infof("Sorted %v records into %v", s.out.NRecs, s.outPath)
	s.err.Set(os.Rename(tmpPath, s.outPath))
}

// classify turns an out-of-space condition into an errors.Unavailable error.
func classify(err error) error {
	if isNoSpace(err) {
		return errors.E(errors.Unavailable, "insufficient temporary storage", err)
	}
	return err
}

func isNoSpace(err error) bool {
	for err != nil {
		if stderrors.Is(err, unix.ENOSPC) {
			return true
		}
		e, ok := err.(*errors.Error)
		if !ok {
			return false
		}
		err = e.Err
	}
	return false
}

// SortFile sorts the BAM file at srcPath by read name and writes the result
// to dstPath. On error, dstPath is left untouched and all temp files are
// removed.
func SortFile(srcPath, dstPath string, opts SortOptions) error {
	r, err := bam.Open(srcPath)
	if err != nil {
		return err
	}
	s := NewSorter(dstPath, r.Header(), opts)
	for r.Scan() && s.Err() == nil {
		s.AddRecord(r.Record())
	}
	err = r.Err()
	if e := r.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		s.Discard()
		return errors.E(err, "sort", srcPath)
	}
	return s.Close()
}
