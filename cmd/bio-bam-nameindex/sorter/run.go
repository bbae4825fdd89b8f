package sorter

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/gogo/protobuf/proto"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/readidx/encoding/bam"
	"v.io/x/lib/vlog"
)

// A run is a temp file holding one sorted batch of records. The file is a
// recordio, where each recordio block stores a list of BAM records exactly as
// they appear in a BAM file (block_size followed by the record), with no
// padding between them. Records are sorted by name, and records with equal
// names appear in input order.
//
// Each recordio block is approx. runBlockSize bytes long, pre-compression. A
// record larger than runBlockSize gets a block of its own.
//
// The recordio trailer stores a serialized RunIndex. It tells whether the
// blocks are snappy compressed, and it carries the record count so that the
// merge can check that no record was lost.
const runBlockSize = 1 << 20

// runWriter produces a run file.
//
// Example:
//   err := errors.Once{}
//   w := newRunWriter(out, true, &err)
//   for _, rec := range sorted {
//     w.add(rec)
//   }
//   w.finish()
//   if err.Err() != nil { ... }
type runWriter struct {
	rio   recordio.Writer
	err   *errors.Once
	buf   []byte // records added since the last flush.
	index RunIndex
}

func newRunWriter(out io.Writer, compress bool, errReporter *errors.Once) *runWriter {
	w := &runWriter{
		err:   errReporter,
		index: RunIndex{Snappy: compress},
	}
	w.rio = recordio.NewWriter(out, recordio.WriterOpts{
		Marshal: func(scratch []byte, v interface{}) ([]byte, error) {
			return v.([]byte), nil
		},
	})
	w.rio.AddHeader(recordio.KeyTrailer, true)
	return w
}

// add appends a record. Records must be added in sorted order.
func (w *runWriter) add(rec bam.Record) {
	if w.index.NumRecords > 0 && rec.Name < w.index.LastKey {
		// The batch is sorted right before being written, so this is a bug.
		vlog.Fatalf("key %q decreased, last %q", rec.Name, w.index.LastKey)
	}
	if w.index.NumRecords == 0 {
		w.index.FirstKey = rec.Name
	}
	w.index.LastKey = rec.Name
	w.index.NumRecords++
	if len(w.buf) > 0 && len(w.buf)+len(rec.Body) > runBlockSize {
		w.flush()
	}
	// buf grows on demand, so that runs of a few records stay small.
	w.buf = append(w.buf, rec.Body...)
}

func (w *runWriter) flush() {
	if len(w.buf) == 0 {
		return
	}
	b := w.buf
	w.buf = nil
	if w.index.Snappy {
		b = snappy.Encode(nil, b)
	}
	w.index.NumBlocks++
	w.rio.Append(b)
	w.rio.Flush()
}

// finish flushes pending records and writes the trailer. Errors are reported
// through w.err. w becomes invalid after the call.
func (w *runWriter) finish() {
	w.flush()
	w.rio.Wait()
	indexBytes, err := proto.Marshal(&w.index)
	if err != nil {
		w.err.Set(err)
		return
	}
	w.rio.SetTrailer(indexBytes)
	w.err.Set(w.rio.Finish())
}

// runReader reads the records of a run file in order.
//
// Example:
//   r := newRunReader(path, &err)
//   for r.scan() {
//     use r.record()
//   }
//   r.close()
type runReader struct {
	path  string
	in    file.File
	rio   recordio.Scanner
	index RunIndex
	err   *errors.Once

	block []byte // unread part of the current block.
	rec   bam.Record
	nRecs uint64 // records read so far.
	done  bool
}

func readRunIndex(rio recordio.Scanner) (RunIndex, error) {
	index := RunIndex{}
	header := rio.Header()
	if !header.HasTrailer() {
		return index, fmt.Errorf("no index found in run file (header: %+v)", header)
	}
	if err := proto.Unmarshal(rio.Trailer(), &index); err != nil {
		return index, err
	}
	return index, nil
}

// newRunReader opens a run file. Errors are reported through errReporter, and
// the reader then behaves as an empty run.
func newRunReader(path string, errReporter *errors.Once) *runReader {
	r := &runReader{path: path, err: errReporter}
	ctx := vcontext.Background()
	var err error
	if r.in, err = file.Open(ctx, path); err != nil {
		r.fail(err)
		return r
	}
	r.rio = recordio.NewScanner(r.in.Reader(ctx), recordio.ScannerOpts{})
	if r.index, err = readRunIndex(r.rio); err != nil {
		r.fail(err)
		return r
	}
	vlog.VI(1).Infof("%s: opened run, index %v", path, r.index.String())
	return r
}

func (r *runReader) fail(err error) {
	r.err.Set(errors.E(err, "run", r.path))
	r.done = true
}

// scan reads the next record. It returns false at the end of the run or on
// error.
func (r *runReader) scan() bool {
	if r.done {
		return false
	}
	for len(r.block) == 0 {
		if !r.rio.Scan() {
			r.done = true
			if err := r.rio.Err(); err != nil {
				r.fail(err)
			} else if r.nRecs != r.index.NumRecords {
				r.fail(fmt.Errorf("read %d records, but the index says %d", r.nRecs, r.index.NumRecords))
			}
			return false
		}
		data := r.rio.Get().([]byte)
		if r.index.Snappy {
			var err error
			if r.block, err = snappy.Decode(nil, data); err != nil {
				r.fail(err)
				return false
			}
		} else {
			r.block = append([]byte(nil), data...)
		}
	}
	if len(r.block) < 4 {
		r.fail(fmt.Errorf("truncated record header in block"))
		return false
	}
	n := 4 + int(binary.LittleEndian.Uint32(r.block))
	if n > len(r.block) {
		r.fail(fmt.Errorf("record of %d bytes overruns block (%d bytes left)", n, len(r.block)))
		return false
	}
	rec, err := bam.NewRecord(r.block[:n:n])
	if err != nil {
		r.fail(err)
		return false
	}
	r.block = r.block[n:]
	r.rec = rec
	r.nRecs++
	return true
}

// record returns the current record.
//
// REQUIRES: scan() returned true.
func (r *runReader) record() bam.Record { return r.rec }

func (r *runReader) close() {
	r.done = true
	if r.in != nil {
		r.err.Set(r.in.Close(vcontext.Background()))
		r.in = nil
	}
}
