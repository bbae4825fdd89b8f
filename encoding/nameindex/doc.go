// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package nameindex implements a sparse index from read name (QNAME) to the
// virtual offset of records in a BAM file sorted by read name.
//
// The index, stored in a file with the .gbni extension, samples every k-th
// record of the sorted file: for record 0, k, 2k, ..., it stores the record's
// name and its BGZF virtual offset. To find the records of a read, a reader
// binary-searches the samples for the chunk where the name may start, seeks
// there, and scans forward until the names pass the target. Lookup cost is
// one seek plus at most a couple of chunks of sequential reading.
//
// Each index also records the size and a fingerprint of the sorted file it
// was built from, so that an index is never used against a different file.
//
// Example:
//   // Produce foo.namesorted.bam with the sorter first.
//   idx, err := nameindex.IndexFile("foo.namesorted.bam", "", nameindex.Opts{})
//   ...
//   s, err := nameindex.Open("foo.namesorted.bam", "", nameindex.LookupOpts{})
//   recs, err := s.Lookup("HWI-1:2:3")
//   err = s.Close()
package nameindex
