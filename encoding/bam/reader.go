package bam

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
)

// Reader reads raw records from a BAM file without decoding them. It
// remembers the virtual offset of every record it returns, and it can seek
// back to any such offset.
//
// Example:
//   r, err := bam.Open("foo.bam")
//   ...
//   for r.Scan() {
//     rec := r.Record()
//     ...
//   }
//   err = r.Close()
type Reader struct {
	path   string    // for error messages only; may be empty.
	in     file.File // nil if the reader does not own the underlying file.
	bg     *bgzf.Reader
	header *sam.Header

	// next is the voffset of the record that the next Scan will read.
	next    bgzf.Offset
	rec     Record
	err     error
	sizeBuf [blockSizeBytes]byte
}

// NewReader creates a Reader that reads from r. parallelism is passed to the
// BGZF decompressor. r must implement io.Seeker for Seek to work.
func NewReader(r io.Reader, parallelism int) (*Reader, error) {
	bg, err := bgzf.NewReader(r, parallelism)
	if err != nil {
		return nil, errors.E(errors.Invalid, "not a BGZF file", err)
	}
	header, err := sam.NewHeader(nil, nil)
	if err != nil {
		return nil, err
	}
	if err := header.DecodeBinary(bg); err != nil {
		bg.Close() // nolint: errcheck
		return nil, errors.E(errors.Invalid, "failed to read BAM header", err)
	}
	return &Reader{
		bg:     bg,
		header: header,
		next:   bg.LastChunk().End,
	}, nil
}

// Open opens a BAM file for reading. Files that are not seekable BAM (SAM
// text, CRAM, plain gzip) are rejected with an errors.NotSupported error, and
// files that are not alignment files at all with errors.Invalid.
func Open(path string) (*Reader, error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	r, err := openFile(path, in)
	if err != nil {
		in.Close(ctx) // nolint: errcheck
		return nil, err
	}
	return r, nil
}

func openFile(path string, in file.File) (*Reader, error) {
	ctx := vcontext.Background()
	rs := in.Reader(ctx)
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rs, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.E(err, "read", path)
	}
	switch t := SniffFileType(head[:n]); t {
	case BAM:
	case SAM, CRAM:
		return nil, errors.E(errors.NotSupported,
			fmt.Sprintf("%s: %v input is not supported; only BGZF-compressed BAM can be seeked by virtual offset", path, t))
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: not a BAM file", path))
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, errors.E(err, "seek", path)
	}
	r, err := NewReader(rs, 1)
	if err != nil {
		return nil, errors.E(err, path)
	}
	r.path = path
	r.in = in
	return r, nil
}

// Path returns the path passed to Open, or "" if the reader was created by
// NewReader.
func (r *Reader) Path() string { return r.path }

// Header returns the SAM header of the file.
func (r *Reader) Header() *sam.Header { return r.header }

// Scan reads the next record. It returns false on EOF or error. Use Err to
// tell the two apart.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	off := r.next
	if _, err := io.ReadFull(r.bg, r.sizeBuf[:]); err != nil {
		if err == io.EOF {
			r.err = io.EOF
		} else {
			r.err = errors.E(errors.Invalid, fmt.Sprintf("%s: truncated record at %v", r.path, off), err)
		}
		return false
	}
	size := int(binary.LittleEndian.Uint32(r.sizeBuf[:]))
	if size < bamFixedBytes || size > maxRecordSize {
		r.err = errors.E(errors.Invalid, fmt.Sprintf("%s: bad record size %d at %v", r.path, size, off))
		return false
	}
	body := make([]byte, blockSizeBytes+size)
	copy(body, r.sizeBuf[:])
	if _, err := io.ReadFull(r.bg, body[blockSizeBytes:]); err != nil {
		r.err = errors.E(errors.Invalid, fmt.Sprintf("%s: truncated record at %v", r.path, off), err)
		return false
	}
	r.next = r.bg.LastChunk().End
	name, err := ReadName(body)
	if err != nil {
		r.err = errors.E(errors.Invalid, fmt.Sprintf("%s: record at %v", r.path, off), err)
		return false
	}
	r.rec = Record{Name: name, Body: body, Offset: off}
	return true
}

// Record returns the record read by the last successful Scan. The caller may
// retain the result; Scan never reuses its Body.
//
// REQUIRES: Scan() returned true.
func (r *Reader) Record() Record { return r.rec }

// Err returns the error that stopped Scan, or nil on a clean EOF.
func (r *Reader) Err() error {
	if r.err == io.EOF {
		return nil
	}
	return r.err
}

// Seek positions the reader so that the next Scan reads the record that
// starts at off. off must be a value reported as Record.Offset by a Reader on
// the same file.
func (r *Reader) Seek(off bgzf.Offset) error {
	if r.err != nil && r.err != io.EOF {
		return r.err
	}
	if err := r.bg.Seek(off); err != nil {
		r.err = errors.E(fmt.Sprintf("%s: seek to %v", r.path, off), err)
		return r.err
	}
	r.err = nil
	r.next = off
	return nil
}

// Close releases the decompressor and, if the reader was created by Open, the
// underlying file. Subsequent Scans fail.
func (r *Reader) Close() error {
	err := r.bg.Close()
	if r.in != nil {
		if e := r.in.Close(vcontext.Background()); e != nil && err == nil {
			err = e
		}
		r.in = nil
	}
	if r.err == nil || r.err == io.EOF {
		r.err = errors.E(errors.Precondition, "reader closed")
	}
	return err
}
