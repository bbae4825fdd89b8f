package bam

import (
	"bufio"
	"io"

	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/sam"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// WriterOpts defines the output container of a Writer.
type WriterOpts struct {
	// Format is one of BAM, UBAM, or SAM. Unknown is treated as BAM.
	Format FileType

	// IncludeHeader causes the SAM header to be written before the records.
	// BAM and UBAM always carry the header, since the container requires it,
	// so the flag only matters for SAM.
	IncludeHeader bool

	// Level is the BGZF compression level for BAM. 0 means the gzip default.
	// UBAM always uses gzip.NoCompression.
	Level int

	// Parallelism is the number of BGZF compression goroutines. If <= 0, 1
	// is used.
	Parallelism int
}

// Writer writes Records in one of the three supported containers.
type Writer struct {
	format FileType
	header *sam.Header
	bg     *bgzf.Writer
	text   *bufio.Writer // non-nil for SAM
}

// NewWriter creates a writer that emits records to w in the order given.
// Close must be called to finalize the output; it does not close w.
func NewWriter(w io.Writer, header *sam.Header, opts WriterOpts) (*Writer, error) {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	bw := &Writer{format: opts.Format, header: header}
	switch opts.Format {
	case Unknown, BAM, UBAM:
		level := opts.Level
		if opts.Format == UBAM {
			level = gzip.NoCompression
		} else {
			bw.format = BAM
			if level == 0 {
				level = gzip.DefaultCompression
			}
		}
		var err error
		if bw.bg, err = bgzf.NewWriterLevel(w, level, opts.Parallelism); err != nil {
			return nil, errors.Wrapf(err, "bam: create %v writer", bw.format)
		}
		if err := header.EncodeBinary(bw.bg); err != nil {
			return nil, errors.Wrap(err, "bam: write header")
		}
	case SAM:
		bw.text = bufio.NewWriter(w)
		if opts.IncludeHeader {
			h, err := header.MarshalText()
			if err != nil {
				return nil, errors.Wrap(err, "bam: format header")
			}
			if _, err := bw.text.Write(h); err != nil {
				return nil, errors.Wrap(err, "bam: write header")
			}
		}
	default:
		return nil, errors.Errorf("bam: cannot write %v files", opts.Format)
	}
	return bw, nil
}

// Write appends one record.
func (w *Writer) Write(rec Record) error {
	if w.text != nil {
		r, err := rec.Decode(w.header)
		if err != nil {
			return errors.Wrapf(err, "bam: decode %s", rec.Name)
		}
		s, err := r.MarshalText()
		if err != nil {
			return errors.Wrapf(err, "bam: format %s", rec.Name)
		}
		if _, err := w.text.Write(s); err != nil {
			return err
		}
		return w.text.WriteByte('\n')
	}
	_, err := w.bg.Write(rec.Body)
	return err
}

// Close flushes buffered data and, for BAM and UBAM, writes the BGZF EOF
// marker. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.text != nil {
		return w.text.Flush()
	}
	return w.bg.Close()
}
