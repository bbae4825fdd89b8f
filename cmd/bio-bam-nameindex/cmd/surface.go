package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/readidx/cmd/bio-bam-nameindex/sorter"
	"github.com/grailbio/readidx/encoding/bam"
	"github.com/grailbio/readidx/encoding/nameindex"
)

// Config controls OpenOrBuild.
type Config struct {
	// SortedPath is where the name-sorted copy of the input lives. If empty,
	// DefaultSortedPath(input) is used.
	SortedPath string
	// IndexPath is the index of SortedPath. If empty,
	// nameindex.DefaultIndexPath(SortedPath) is used.
	IndexPath string
	// Rebuild forces the sorted file and the index to be regenerated even if
	// they exist.
	Rebuild bool

	Sort   sorter.SortOptions
	Index  nameindex.Opts
	Lookup nameindex.LookupOpts
}

// LookupConfig controls LookupPath.
type LookupConfig struct {
	// Format is the output container. If Unknown, it is guessed from the
	// output path, and SAM is used if that fails.
	Format bam.FileType
	// IncludeHeader writes the SAM header before the records. BAM and UBAM
	// outputs always have a header.
	IncludeHeader bool
	// ShareScans is passed to nameindex.LookupOpts.
	ShareScans bool

	// Build makes LookupPath treat its first argument as an unsorted BAM
	// file and go through OpenOrBuild, sorting and indexing it first if
	// needed. Sort and Index are used only then.
	Build bool
	Sort  sorter.SortOptions
	Index nameindex.Opts
}

// DefaultSortedPath returns the default location of the name-sorted copy of
// a BAM file: "foo.bam" becomes "foo.namesorted.bam".
func DefaultSortedPath(path string) string {
	return strings.TrimSuffix(path, ".bam") + ".namesorted.bam"
}

// SortPath sorts the BAM file src by read name into dst, or
// DefaultSortedPath(src) if dst is empty. It returns the output path.
func SortPath(src, dst string, opts sorter.SortOptions) (string, error) {
	if dst == "" {
		dst = DefaultSortedPath(src)
	}
	log.Printf("sorting %s into %s", src, dst)
	if err := sorter.SortFile(src, dst, opts); err != nil {
		return "", err
	}
	return dst, nil
}

// IndexPath indexes the name-sorted BAM file sorted and writes the index to
// index, or nameindex.DefaultIndexPath(sorted) if index is empty. It returns
// the index path.
func IndexPath(sorted, index string, opts nameindex.Opts) (string, error) {
	if index == "" {
		index = nameindex.DefaultIndexPath(sorted)
	}
	idx, err := nameindex.IndexFile(sorted, index, opts)
	if err != nil {
		return "", err
	}
	log.Printf("%s: wrote %d boundaries for %d records", index, len(idx.Boundaries), idx.NumRecords)
	return index, nil
}

// OpenOrBuild returns a Searcher for the BAM file at path. It sorts and
// indexes the file first unless the sorted file and its index already exist.
// An existing index that does not match the sorted file is an error; use
// Config.Rebuild to regenerate both.
func OpenOrBuild(path string, cfg Config) (*nameindex.Searcher, error) {
	sorted := cfg.SortedPath
	if sorted == "" {
		sorted = DefaultSortedPath(path)
	}
	index := cfg.IndexPath
	if index == "" {
		index = nameindex.DefaultIndexPath(sorted)
	}
	sortedExists, err := exists(sorted)
	if err != nil {
		return nil, err
	}
	if cfg.Rebuild || !sortedExists {
		if _, err := SortPath(path, sorted, cfg.Sort); err != nil {
			return nil, err
		}
	}
	indexExists, err := exists(index)
	if err != nil {
		return nil, err
	}
	if cfg.Rebuild || !sortedExists || !indexExists {
		if _, err := IndexPath(sorted, index, cfg.Index); err != nil {
			return nil, err
		}
	} else {
		log.Debug.Printf("reusing %s and %s", sorted, index)
	}
	return nameindex.Open(sorted, index, cfg.Lookup)
}

func exists(path string) (bool, error) {
	_, err := file.Stat(vcontext.Background(), path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) || errors.Is(errors.NotExist, err) {
		return false, nil
	}
	return false, err
}

// maxIDLen is the longest read name BAM can store.
const maxIDLen = 254

func checkID(id string) error {
	if id == "" || len(id) > maxIDLen || strings.ContainsAny(id, " \t") {
		return errors.E(errors.Invalid, fmt.Sprintf("invalid read name %.40q", id))
	}
	return nil
}

// ReadIDFile reads read names, one per line. Blank lines are skipped and
// surrounding whitespace is trimmed. It fails with errors.NotExist if the
// file is missing and errors.Invalid if a line cannot be a read name.
func ReadIDFile(path string) ([]string, error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(errors.NotExist, err) {
			return nil, errors.E(errors.NotExist, "read id file", path, err)
		}
		return nil, errors.E(err, "read id file", path)
	}
	defer in.Close(ctx) // nolint: errcheck

	var ids []string
	sc := bufio.NewScanner(in.Reader(ctx))
	for lineno := 1; sc.Scan(); lineno++ {
		id := strings.TrimSpace(sc.Text())
		if id == "" {
			continue
		}
		if err := checkID(id); err != nil {
			return nil, errors.E(err, fmt.Sprintf("%s:%d", path, lineno))
		}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(errors.Invalid, "read id file", path, err)
	}
	return ids, nil
}

// ParseIDList splits a comma-separated list of read names. Empty elements
// are skipped. It fails with errors.Invalid if an element cannot be a read
// name.
func ParseIDList(list string) ([]string, error) {
	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if err := checkID(id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LookupPath writes every record of sorted whose name is in ids to out. The
// index defaults to nameindex.DefaultIndexPath(sorted); out "-" or "" means
// stdout. The ids are checked before anything is written, so a malformed id
// leaves no output behind. If cfg.Build is set, sorted names the unsorted
// input instead, and the sorted copy and its index are located or built by
// OpenOrBuild.
func LookupPath(sorted, index string, ids []string, out string, cfg LookupConfig) error {
	for _, id := range ids {
		if err := checkID(id); err != nil {
			return err
		}
	}
	lookupOpts := nameindex.LookupOpts{ShareScans: cfg.ShareScans}
	var (
		s   *nameindex.Searcher
		err error
	)
	if cfg.Build {
		s, err = OpenOrBuild(sorted, Config{
			IndexPath: index,
			Sort:      cfg.Sort,
			Index:     cfg.Index,
			Lookup:    lookupOpts,
		})
	} else {
		s, err = nameindex.Open(sorted, index, lookupOpts)
	}
	if err != nil {
		return err
	}
	err = writeLookups(s, ids, out, cfg)
	if e := s.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

func writeLookups(s *nameindex.Searcher, ids []string, outPath string, cfg LookupConfig) error {
	format := cfg.Format
	if format == bam.Unknown && outPath != "" && outPath != "-" {
		format = bam.GuessFileType(outPath)
	}
	if format == bam.Unknown {
		format = bam.SAM
	}
	if !format.Writable() {
		return errors.E(errors.NotSupported, fmt.Sprintf("cannot write %v output", format))
	}

	ctx := vcontext.Background()
	var (
		out  file.File
		dest io.Writer = os.Stdout
	)
	if outPath != "" && outPath != "-" {
		var err error
		if out, err = file.Create(ctx, outPath); err != nil {
			return errors.E(err, "create", outPath)
		}
		dest = out.Writer(ctx)
	}
	w, err := bam.NewWriter(dest, s.Header(), bam.WriterOpts{Format: format, IncludeHeader: cfg.IncludeHeader})
	if err != nil {
		if out != nil {
			discard(out, outPath)
		}
		return err
	}

	var nNames, nFound, nRecs int
	err = s.LookupEach(ids, func(id string, recs []bam.Record) error {
		nNames++
		if len(recs) == 0 {
			log.Debug.Printf("%s: not found", id)
			return nil
		}
		nFound++
		for _, rec := range recs {
			if err := w.Write(rec); err != nil {
				return err
			}
			nRecs++
		}
		return nil
	})
	if e := w.Close(); e != nil && err == nil {
		err = e
	}
	if out != nil {
		if err != nil {
			discard(out, outPath)
		} else {
			err = out.Close(ctx)
		}
	}
	if err == nil {
		log.Printf("found %d of %d names, %d records", nFound, nNames, nRecs)
	}
	return err
}

// discard closes and removes a partially written output.
func discard(out file.File, path string) {
	ctx := vcontext.Background()
	if err := out.Close(ctx); err != nil {
		log.Error.Printf("close %s: %v", path, err)
	}
	if err := file.Remove(ctx, path); err != nil {
		log.Error.Printf("remove %s: %v", path, err)
	}
}
