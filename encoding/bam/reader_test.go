package bam

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/readidx/encoding/bam/bamtest"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		// Coordinate order is unrelated to name order.
		names[i] = fmt.Sprintf("read%03d", (i*37)%n)
	}
	return names
}

func readAll(t *testing.T, r *Reader) []Record {
	var recs []Record
	for r.Scan() {
		recs = append(recs, r.Record())
	}
	require.NoError(t, r.Err())
	return recs
}

func TestReaderScan(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	names := testNames(200)
	path := filepath.Join(tempDir, "in.bam")
	bamtest.WriteBAM(t, path, bamtest.GenerateSAM(names))
	_, want := bamtest.ReadBAM(t, path)

	r, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, r.Path())
	assert.Equal(t, 2, len(r.Header().Refs()))
	recs := readAll(t, r)
	require.NoError(t, r.Close())

	require.Equal(t, len(names), len(recs))
	for i, rec := range recs {
		assert.Equal(t, names[i], rec.Name)
		got, err := Unmarshal(rec.Body[blockSizeBytes:], r.Header())
		require.NoError(t, err)
		assert.Equal(t, want[i].String(), got.String())
	}
	for i := 1; i < len(recs); i++ {
		assert.True(t, recs[i-1].Offset.File < recs[i].Offset.File ||
			(recs[i-1].Offset.File == recs[i].Offset.File && recs[i-1].Offset.Block < recs[i].Offset.Block),
			"offsets must increase: %v %v", recs[i-1].Offset, recs[i].Offset)
	}
	assert.False(t, r.Scan(), "scan after close")
}

func TestReaderSeek(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	path := filepath.Join(tempDir, "in.bam")
	bamtest.WriteBAM(t, path, bamtest.GenerateSAM(testNames(150)))
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close() // nolint: errcheck
	recs := readAll(t, r)

	// Seek backwards through the file; every offset lands on its record.
	for i := len(recs) - 1; i >= 0; i -= 7 {
		require.NoError(t, r.Seek(recs[i].Offset))
		require.True(t, r.Scan())
		assert.Equal(t, recs[i].Name, r.Record().Name)
		assert.Equal(t, recs[i].Body, r.Record().Body)
		assert.Equal(t, recs[i].Offset, r.Record().Offset)
		if i+1 < len(recs) {
			require.True(t, r.Scan())
			assert.Equal(t, recs[i+1].Offset, r.Record().Offset)
		}
	}
	// The packed form survives a round trip.
	for _, rec := range recs {
		assert.Equal(t, rec.Offset, ToBGZFOffset(ToVOffset(rec.Offset)))
	}
}

func TestReaderEmpty(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	path := filepath.Join(tempDir, "empty.bam")
	bamtest.WriteBAM(t, path, bamtest.Header)
	r, err := Open(path)
	require.NoError(t, err)
	assert.False(t, r.Scan())
	assert.NoError(t, r.Err())
	assert.NoError(t, r.Close())
}

func TestReaderRejectsOtherFormats(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	for _, test := range []struct {
		name string
		data string
		kind errors.Kind
	}{
		{"in.sam", bamtest.GenerateSAM([]string{"a", "b"}), errors.NotSupported},
		{"headerless.sam", "a\t4\t*\t0\t0\t*\t*\t0\t0\tA\tI\n", errors.NotSupported},
		{"in.cram", "CRAM\x03\x00aaaaaaaaaaaaaaaaaaaaa", errors.NotSupported},
		{"junk.bin", "\x00\x01\x02\x03", errors.Invalid},
		{"empty.bam", "", errors.Invalid},
	} {
		path := filepath.Join(tempDir, test.name)
		require.NoError(t, ioutil.WriteFile(path, []byte(test.data), 0644))
		_, err := Open(path)
		require.Error(t, err, test.name)
		assert.True(t, errors.Is(test.kind, err), "%s: %v", test.name, err)
	}

	_, err := Open(filepath.Join(tempDir, "missing.bam"))
	assert.Error(t, err)
}
