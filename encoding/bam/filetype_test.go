package bam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFileType(t *testing.T) {
	assert.Equal(t, BAM, ParseFileType("BAM"))
	assert.Equal(t, UBAM, ParseFileType("ubam"))
	assert.Equal(t, SAM, ParseFileType("sam"))
	assert.Equal(t, CRAM, ParseFileType("cram"))
	assert.Equal(t, Unknown, ParseFileType("pam"))
	for _, ft := range []FileType{BAM, UBAM, SAM, CRAM} {
		assert.Equal(t, ft, ParseFileType(ft.String()))
	}
}

func TestGuessFileType(t *testing.T) {
	assert.Equal(t, BAM, GuessFileType("/tmp/x.bam"))
	assert.Equal(t, UBAM, GuessFileType("x.ubam"))
	assert.Equal(t, SAM, GuessFileType("x.sam"))
	assert.Equal(t, CRAM, GuessFileType("s3://b/x.cram"))
	assert.Equal(t, Unknown, GuessFileType("x.bam.gbni"))
}

func TestSniffFileType(t *testing.T) {
	bgzfHead := []byte{0x1f, 0x8b, 8, 4, 0, 0, 0, 0, 0, 0xff, 6, 0, 'B', 'C', 2, 0}
	assert.Equal(t, BAM, SniffFileType(bgzfHead))
	plainGzip := []byte{0x1f, 0x8b, 8, 0, 0, 0, 0, 0, 0, 0xff, 0, 0, 0, 0, 0, 0}
	assert.Equal(t, Unknown, SniffFileType(plainGzip))
	assert.Equal(t, CRAM, SniffFileType([]byte("CRAM\x03\x00")))
	assert.Equal(t, SAM, SniffFileType([]byte("@HD\tVN:1.3")))
	assert.Equal(t, SAM, SniffFileType([]byte("r1\t0\tchr1\t1")))
	assert.Equal(t, Unknown, SniffFileType([]byte("hello world")))
	assert.Equal(t, Unknown, SniffFileType(nil))

	assert.True(t, UBAM.Seekable())
	assert.False(t, SAM.Seekable())
	assert.True(t, SAM.Writable())
	assert.False(t, CRAM.Writable())
}
