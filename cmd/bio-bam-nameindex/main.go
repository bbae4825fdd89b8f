package main

// bio-bam-nameindex sorts BAM files by read name, indexes the sorted copy,
// and extracts the records of given reads.
//
// Usage:
//   bio-bam-nameindex sort foo.bam
//   bio-bam-nameindex index foo.namesorted.bam
//   bio-bam-nameindex lookup -out reads.sam foo.namesorted.bam ids.txt

import "github.com/grailbio/readidx/cmd/bio-bam-nameindex/cmd"

func main() {
	cmd.Run()
}
