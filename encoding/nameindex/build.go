package nameindex

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/readidx/encoding/bam"
	"v.io/x/lib/vlog"
)

// Build scans r from its current position to the end and samples every
// opts.ChunkSize-th record. The records must be sorted by name; Build fails
// with an errors.Invalid error otherwise. The returned index has a zero
// Identity; BuildFile fills it in.
func Build(r *bam.Reader, opts Opts) (*ChunkIndex, error) {
	k := opts.chunkSize()
	idx := &ChunkIndex{ChunkSize: k}
	var prev string
	for r.Scan() {
		rec := r.Record()
		if idx.NumRecords > 0 && rec.Name < prev {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("%s: records are not sorted by name: %q (record %d) follows %q",
					r.Path(), rec.Name, idx.NumRecords, prev))
		}
		if idx.NumRecords%int64(k) == 0 {
			idx.Boundaries = append(idx.Boundaries, Boundary{
				Key:     rec.Name,
				VOffset: bam.ToVOffset(rec.Offset),
			})
		}
		prev = rec.Name
		idx.NumRecords++
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	vlog.VI(1).Infof("%s: indexed %d records, %d boundaries (chunk size %d)",
		r.Path(), idx.NumRecords, len(idx.Boundaries), k)
	return idx, nil
}

// BuildFile builds an index of the name-sorted BAM file at sortedPath and
// binds it to the file's identity.
func BuildFile(sortedPath string, opts Opts) (*ChunkIndex, error) {
	id, err := FileIdentity(sortedPath)
	if err != nil {
		return nil, err
	}
	r, err := bam.Open(sortedPath)
	if err != nil {
		return nil, err
	}
	idx, err := Build(r, opts)
	if e := r.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return nil, err
	}
	idx.Identity = id
	return idx, nil
}

// IndexFile builds an index of sortedPath and writes it to indexPath. If
// indexPath is empty, DefaultIndexPath(sortedPath) is used.
func IndexFile(sortedPath, indexPath string, opts Opts) (*ChunkIndex, error) {
	if indexPath == "" {
		indexPath = DefaultIndexPath(sortedPath)
	}
	idx, err := BuildFile(sortedPath, opts)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(indexPath, idx); err != nil {
		return nil, err
	}
	return idx, nil
}
