package bam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigestOrderIndependent(t *testing.T) {
	recs := []Record{}
	for _, name := range []string{"C", "A", "B", "A", "D"} {
		rec, err := NewRecord(rawRecord(name))
		assert.NoError(t, err)
		recs = append(recs, rec)
	}
	var fwd, rev Digest
	for i := range recs {
		fwd.Add(recs[i])
		rev.Add(recs[len(recs)-1-i])
	}
	assert.Equal(t, fwd, rev)
	assert.Equal(t, int64(5), fwd.NRecs)

	var merged, half Digest
	merged.Add(recs[0])
	merged.Add(recs[1])
	half.Add(recs[2])
	half.Add(recs[3])
	half.Add(recs[4])
	merged.Merge(half)
	assert.Equal(t, fwd, merged)

	var missing Digest
	for _, rec := range recs[1:] {
		missing.Add(rec)
	}
	assert.NotEqual(t, fwd, missing)
}
