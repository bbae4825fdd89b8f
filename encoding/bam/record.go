package bam

import (
	"encoding/binary"

	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"
)

const (
	// bamFixedBytes is the size of the fixed-width part of a BAM record,
	// excluding the leading block_size field.
	bamFixedBytes = 32

	// blockSizeBytes is the size of the block_size field that precedes each
	// BAM record.
	blockSizeBytes = 4

	// maxRecordSize bounds the block_size of a single record.
	maxRecordSize = 0xffffff
)

// Record is one alignment record as stored in a BAM file. The index code
// treats it as an opaque payload keyed by its read name.
type Record struct {
	// Name is the read name (QNAME). It is the sort and lookup key.
	Name string

	// Body is the record in BAM binary form, including the leading 4-byte
	// block_size. Concatenating Bodies after a BAM header produces a valid BAM
	// stream.
	Body []byte

	// Offset is the virtual offset at which the record starts in the file it
	// was read from. It is meaningful only for that file.
	Offset bgzf.Offset
}

// NewRecord creates a Record from a serialized BAM record. body must include
// the leading block_size.
func NewRecord(body []byte) (Record, error) {
	name, err := ReadName(body)
	if err != nil {
		return Record{}, err
	}
	return Record{Name: name, Body: body}, nil
}

// Decode parses the record into a sam.Record. header resolves reference IDs.
func (r Record) Decode(header *sam.Header) (*sam.Record, error) {
	if len(r.Body) < blockSizeBytes {
		return nil, errRecordTooShort
	}
	return Unmarshal(r.Body[blockSizeBytes:], header)
}

// ReadName extracts the read name from a serialized BAM record. body must
// include the leading block_size.
func ReadName(body []byte) (string, error) {
	if len(body) < blockSizeBytes+bamFixedBytes {
		return "", errors.Errorf("bam: record too short (%d bytes)", len(body))
	}
	size := int(binary.LittleEndian.Uint32(body))
	if size != len(body)-blockSizeBytes {
		return "", errors.Errorf("bam: block_size %d does not match record length %d", size, len(body)-blockSizeBytes)
	}
	nameLen := int(body[blockSizeBytes+8])
	start := blockSizeBytes + bamFixedBytes
	if nameLen < 1 || start+nameLen > len(body) {
		return "", errors.Errorf("bam: corrupt read name length %d", nameLen)
	}
	// Drop the trailing NUL.
	return string(body[start : start+nameLen-1]), nil
}
