// Package bamtest contains helpers for tests that need small BAM files.
package bamtest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/require"
)

// Header is a SAM header with two references, used by GenerateSAM.
const Header = `@HD	VN:1.3	SO:coordinate
@SQ	SN:chr1	LN:100000
@SQ	SN:chr2	LN:90000
`

// GenerateSAM produces SAM text with one record per element of names, in
// increasing coordinate order. Record i carries the tag "XI:i:<i>" so that
// records with equal names stay distinguishable. Every third record is
// unmapped to exercise refid -1.
func GenerateSAM(names []string) string {
	var b strings.Builder
	b.WriteString(Header)
	for i, name := range names {
		if i%3 == 2 {
			fmt.Fprintf(&b, "%s\t4\t*\t0\t0\t*\t*\t0\t0\tACGTACGTAC\tABCDEFGHIJ\tXI:i:%d\n", name, i)
			continue
		}
		ref := "chr1"
		if i%2 == 1 {
			ref = "chr2"
		}
		fmt.Fprintf(&b, "%s\t0\t%s\t%d\t60\t10M\t=\t%d\t20\tACGTACGTAC\tABCDEFGHIJ\tXI:i:%d\tRG:Z:NA12878\n",
			name, ref, 100+i*10, 400+i*10, i)
	}
	return b.String()
}

// ParseSAM parses SAM text.
func ParseSAM(t testing.TB, text string) (*sam.Header, []*sam.Record) {
	r, err := sam.NewReader(bytes.NewReader([]byte(text)))
	require.NoError(t, err)
	var recs []*sam.Record
	for {
		rec, err := r.Read()
		if rec == nil {
			require.Truef(t, err == io.EOF, "err: %v", err)
			break
		}
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	return r.Header(), recs
}

// WriteBAM converts SAM text into a BAM file at path.
func WriteBAM(t testing.TB, path, text string) {
	header, recs := ParseSAM(t, text)
	out, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(out, header, 1)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())
}

// ReadBAM reads every record of a BAM file with the biogo reader.
func ReadBAM(t testing.TB, path string) (*sam.Header, []*sam.Record) {
	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close() // nolint: errcheck
	r, err := bam.NewReader(in, 1)
	require.NoError(t, err)
	var recs []*sam.Record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	require.NoError(t, r.Close())
	return r.Header(), recs
}

// Names returns the read names of recs.
func Names(recs []*sam.Record) []string {
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Name
	}
	return names
}

// Seq returns the value of the XI tag that GenerateSAM attaches to each
// record, or -1 if there is none.
func Seq(rec *sam.Record) int {
	aux := rec.AuxFields.Get(sam.NewTag("XI"))
	if aux == nil {
		return -1
	}
	switch v := aux.Value().(type) {
	case int8:
		return int(v)
	case uint8:
		return int(v)
	case int16:
		return int(v)
	case uint16:
		return int(v)
	case int32:
		return int(v)
	case uint32:
		return int(v)
	}
	return -1
}
