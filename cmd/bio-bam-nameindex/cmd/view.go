package cmd

import (
	"bufio"
	"fmt"
	"io"

	"github.com/grailbio/readidx/encoding/bam"
)

type viewFlags struct {
	headerOnly *bool
	withHeader *bool
	offsets    *bool
}

func view(out io.Writer, flags viewFlags, path string) (err error) {
	r, err := bam.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if *flags.headerOnly || *flags.withHeader {
		h, err := r.Header().MarshalText()
		if err != nil {
			return err
		}
		if _, err := out.Write(h); err != nil {
			return err
		}
		if *flags.headerOnly {
			return nil
		}
	}
	w := bufio.NewWriter(out)
	for r.Scan() {
		rec := r.Record()
		s, err := rec.Decode(r.Header())
		if err != nil {
			return fmt.Errorf("%s: record at %v: %v", path, rec.Offset, err)
		}
		text, err := s.MarshalText()
		if err != nil {
			return err
		}
		if *flags.offsets {
			fmt.Fprintf(w, "%d:%d\t", rec.Offset.File, rec.Offset.Block)
		}
		w.Write(text) // nolint: errcheck
		w.WriteByte('\n') // nolint: errcheck
	}
	if err := r.Err(); err != nil {
		return err
	}
	return w.Flush()
}
