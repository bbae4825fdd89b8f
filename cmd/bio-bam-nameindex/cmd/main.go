package cmd

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/readidx/cmd/bio-bam-nameindex/sorter"
	"github.com/grailbio/readidx/encoding/bam"
	"github.com/grailbio/readidx/encoding/nameindex"
	"v.io/x/lib/cmdline"
)

func newCmdSort() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "sort",
		Short: "Sort a BAM file by read name",
		Long: `
Sort reads a coordinate-sorted (or unsorted) BAM file and writes a copy sorted
by read name. Records with the same name keep their input order. If destpath is
omitted, "foo.bam" is sorted into "foo.namesorted.bam".`,
		ArgsName: "srcpath [destpath]",
	}
	opts := sorter.SortOptions{}
	cmd.Flags.IntVar(&opts.BatchSize, "batch-size", sorter.DefaultSortBatchSize,
		"Number of records to sort in memory before spilling to a temp file")
	cmd.Flags.StringVar(&opts.TmpDir, "tmpdir", "", "Directory for temp files. Defaults to the system temp dir")
	cmd.Flags.BoolVar(&opts.NoCompressTmpFiles, "no-compress-tmp", false, "Do not snappy-compress temp files")
	cmd.Flags.IntVar(&opts.Parallelism, "parallelism", sorter.DefaultParallelism, "Number of BGZF compression threads")
	formatFlag := cmd.Flags.String("format", "bam", `Output format, either "bam" or "ubam"`)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) < 1 || len(argv) > 2 {
			return fmt.Errorf("sort takes srcpath [destpath], but found %v", argv)
		}
		opts.Format = bam.ParseFileType(*formatFlag)
		if !opts.Format.Seekable() {
			return fmt.Errorf("sort: unsupported output format %q", *formatFlag)
		}
		dst := ""
		if len(argv) == 2 {
			dst = argv[1]
		}
		_, err := SortPath(argv[0], dst, opts)
		return err
	})
	return cmd
}

func newCmdIndex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "index",
		Short:    "Build a read-name index of a name-sorted BAM file",
		ArgsName: "sortedpath",
	}
	indexFlag := cmd.Flags.String("index", "", "Output index filename. By default, set to sortedpath + .gbni")
	opts := nameindex.Opts{}
	cmd.Flags.IntVar(&opts.ChunkSize, "chunk-size", nameindex.DefaultChunkSize,
		"Number of records between index entries")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("index takes one pathname argument, but got %v", argv)
		}
		_, err := IndexPath(argv[0], *indexFlag, opts)
		return err
	})
	return cmd
}

func newCmdLookup() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "lookup",
		Short: "Extract the records of the given read names",
		Long: `
Lookup writes every record of sortedpath that carries one of the given read
names. The names are listed in idfile, one per line, or given with -id, or
both. sortedpath must have been produced by "sort" and indexed by "index",
unless -build is set. With -build, the first argument is the original BAM
file; its sorted copy and index are created next to it unless they already
exist.`,
		ArgsName: "sortedpath [idfile]",
	}
	indexFlag := cmd.Flags.String("index", "", "Index filename. By default, set to sortedpath + .gbni")
	outFlag := cmd.Flags.String("out", "-", "Output filename. '-' means stdout")
	idFlag := cmd.Flags.String("id", "", "Comma-separated list of read names to look up")
	formatFlag := cmd.Flags.String("format", "", `Output format: "sam", "bam" or "ubam".
If empty, the format is guessed from the output filename, and SAM is used if
that fails.`)
	cfg := LookupConfig{}
	cmd.Flags.BoolVar(&cfg.IncludeHeader, "with-header", false, "Print the header before the records (SAM only)")
	cmd.Flags.BoolVar(&cfg.ShareScans, "share-scans", true,
		"Visit the names in sorted order and share file reads between adjacent names")
	cmd.Flags.BoolVar(&cfg.Build, "build", false,
		"Treat the first argument as an unsorted BAM file, and sort and index it if needed")
	cmd.Flags.StringVar(&cfg.Sort.TmpDir, "tmpdir", "", "Directory for sort temp files, with -build")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) < 1 || len(argv) > 2 || (len(argv) == 1 && *idFlag == "") {
			return fmt.Errorf("lookup takes sortedpath and an idfile or -id, but found %v", argv)
		}
		if *formatFlag != "" {
			if cfg.Format = bam.ParseFileType(*formatFlag); !cfg.Format.Writable() {
				return fmt.Errorf("lookup: unsupported output format %q", *formatFlag)
			}
		}
		ids, err := ParseIDList(*idFlag)
		if err != nil {
			return err
		}
		if len(argv) == 2 {
			fileIDs, err := ReadIDFile(argv[1])
			if err != nil {
				return err
			}
			ids = append(ids, fileIDs...)
		}
		return LookupPath(argv[0], *indexFlag, ids, *outFlag, cfg)
	})
	return cmd
}

func newCmdView() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "view",
		Short:    "Print the records of a BAM file in SAM format",
		ArgsName: "path",
	}
	flags := viewFlags{
		headerOnly: cmd.Flags.Bool("header", false, "Print only the header in SAM format"),
		withHeader: cmd.Flags.Bool("with-header", false, "Print header before body"),
		offsets:    cmd.Flags.Bool("offsets", false, "Prefix each record with its virtual offset"),
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("view takes one pathname argument, but got %v", argv)
		}
		return view(env.Stdout, flags, argv[0])
	})
	return cmd
}

func newCmdChecksum() *cmdline.Command {
	cmd := &cmdline.Command{
		Name: "checksum",
		Short: `Compute an order-independent checksum of a BAM file.
A BAM file and its name-sorted copy have the same checksum.`,
		ArgsName: "path...",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) < 1 {
			return fmt.Errorf("checksum takes at least one path, but found %v", argv)
		}
		return checksum(env.Stdout, argv)
	})
	return cmd
}

// Run is the entry point of bio-bam-nameindex.
func Run() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-bam-nameindex",
			Short:    "Tools for retrieving BAM records by read name",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdSort(),
				newCmdIndex(),
				newCmdLookup(),
				newCmdView(),
				newCmdChecksum(),
			},
		})
}
