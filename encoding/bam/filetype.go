package bam

import (
	"bytes"
	"strings"
)

// FileType represents the container format of an alignment file.
type FileType int

const (
	// Unknown is a sentinel.
	Unknown FileType = iota
	// BAM is a BGZF-compressed BAM file.
	BAM
	// UBAM is a BAM file whose BGZF blocks are stored uncompressed (level 0).
	UBAM
	// SAM is a plain-text SAM file. It can only be produced, never used as an
	// input, since it has no virtual offsets to seek to.
	SAM
	// CRAM is recognized only so that it can be rejected with a clear error.
	CRAM
)

// String returns the canonical lowercase name, e.g. "bam".
func (t FileType) String() string {
	switch t {
	case BAM:
		return "bam"
	case UBAM:
		return "ubam"
	case SAM:
		return "sam"
	case CRAM:
		return "cram"
	default:
		return "unknown"
	}
}

// Seekable reports whether records in files of this type can be addressed by
// virtual offsets. Only seekable types are accepted as sort, index or lookup
// inputs.
func (t FileType) Seekable() bool {
	return t == BAM || t == UBAM
}

// Writable reports whether NewWriter can produce files of this type.
func (t FileType) Writable() bool {
	return t == BAM || t == UBAM || t == SAM
}

// ParseFileType parses the file type string. "bam" returns BAM, for example.
// On error, it returns Unknown.
func ParseFileType(name string) FileType {
	switch strings.ToLower(name) {
	case "bam":
		return BAM
	case "ubam", "bamu":
		return UBAM
	case "sam":
		return SAM
	case "cram":
		return CRAM
	default:
		return Unknown
	}
}

// GuessFileType returns the file type from the pathname. Returns Unknown if
// the extension is not recognized.
func GuessFileType(path string) FileType {
	switch {
	case strings.HasSuffix(path, ".ubam"):
		return UBAM
	case strings.HasSuffix(path, ".bam"):
		return BAM
	case strings.HasSuffix(path, ".sam"):
		return SAM
	case strings.HasSuffix(path, ".cram"):
		return CRAM
	default:
		return Unknown
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	cramMagic = []byte("CRAM")
)

// sniffLen is the number of leading bytes SniffFileType needs.
const sniffLen = 16

// SniffFileType guesses the container from the leading bytes of a file. It
// distinguishes BGZF (reported as BAM; BAM and UBAM look the same on disk),
// CRAM, and text that looks like SAM. Anything else is Unknown.
func SniffFileType(head []byte) FileType {
	switch {
	case isBGZF(head):
		return BAM
	case bytes.HasPrefix(head, cramMagic):
		return CRAM
	case len(head) > 0 && looksLikeSAM(head):
		return SAM
	default:
		return Unknown
	}
}

// isBGZF checks for a gzip member with the "BC" extra subfield required by
// BGZF.
func isBGZF(head []byte) bool {
	const fextra = 1 << 2
	if len(head) < 14 || !bytes.HasPrefix(head, gzipMagic) || head[3]&fextra == 0 {
		return false
	}
	return head[12] == 'B' && head[13] == 'C'
}

func looksLikeSAM(head []byte) bool {
	if head[0] == '@' {
		return true
	}
	// Headerless SAM: a tab-separated line of printable text.
	for _, c := range head {
		if c == '\t' {
			return true
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return false
}
