package bam

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawRecord builds the smallest valid BAM record with the given name.
func rawRecord(name string) []byte {
	size := bamFixedBytes + len(name) + 1
	b := make([]byte, blockSizeBytes+size)
	binary.LittleEndian.PutUint32(b, uint32(size))
	binary.LittleEndian.PutUint32(b[4:], 0xffffffff)  // refID -1
	binary.LittleEndian.PutUint32(b[8:], 0xffffffff)  // pos -1
	b[12] = byte(len(name) + 1)                       // l_read_name
	binary.LittleEndian.PutUint32(b[24:], 0xffffffff) // next refID
	binary.LittleEndian.PutUint32(b[28:], 0xffffffff) // next pos
	copy(b[blockSizeBytes+bamFixedBytes:], name)
	return b
}

func TestReadName(t *testing.T) {
	rec, err := NewRecord(rawRecord("ABC:1:2"))
	require.NoError(t, err)
	assert.Equal(t, "ABC:1:2", rec.Name)

	_, err = ReadName(rawRecord("x")[:20])
	assert.Error(t, err)

	b := rawRecord("xyz")
	b[12] = 0
	_, err = ReadName(b)
	assert.Error(t, err)

	b = rawRecord("xyz")
	b[12] = 200
	_, err = ReadName(b)
	assert.Error(t, err)

	b = rawRecord("xyz")
	binary.LittleEndian.PutUint32(b, 1000)
	_, err = ReadName(b)
	assert.Error(t, err)
}

func TestUnmarshalUnmapped(t *testing.T) {
	b := rawRecord("q1")
	rec, err := Unmarshal(b[blockSizeBytes:], nil)
	require.NoError(t, err)
	assert.Equal(t, "q1", rec.Name)
	assert.Nil(t, rec.Ref)
	assert.Equal(t, -1, rec.Pos)

	_, err = Unmarshal(b[blockSizeBytes:20], nil)
	assert.Error(t, err)

	bad := append([]byte(nil), b...)
	bad = append(bad, 'X', 'Y', '?')
	_, err = Unmarshal(bad[blockSizeBytes:], nil)
	assert.Error(t, err)
}
