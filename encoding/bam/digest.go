package bam

import (
	"fmt"

	"blainsmith.com/go/seahash"
)

// Digest is an order-independent summary of a multiset of records. Two
// streams that contain the same record bodies, in any order, have equal
// Digests. The sum of hashes is a quick commutative hash; it catches lost,
// duplicated and corrupted records, not adversarial collisions.
type Digest struct {
	// NRecs is the number of records added.
	NRecs int64
	// SumBody is the sum of seahash values of the record bodies.
	SumBody uint64
}

// Add folds one record into the digest.
func (d *Digest) Add(rec Record) {
	d.NRecs++
	d.SumBody += seahash.Sum64(rec.Body)
}

// Merge folds another digest into d.
func (d *Digest) Merge(other Digest) {
	d.NRecs += other.NRecs
	d.SumBody += other.SumBody
}

func (d Digest) String() string {
	return fmt.Sprintf("{nrecs:%d, sum:%016x}", d.NRecs, d.SumBody)
}

// DigestFile computes the Digest of every record in a BAM file.
func DigestFile(path string) (Digest, error) {
	var d Digest
	r, err := Open(path)
	if err != nil {
		return d, err
	}
	for r.Scan() {
		d.Add(r.Record())
	}
	err = r.Err()
	if e := r.Close(); e != nil && err == nil {
		err = e
	}
	return d, err
}
