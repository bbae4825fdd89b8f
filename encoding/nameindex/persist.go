package nameindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
	"v.io/x/lib/vlog"
)

// The on-disk .gbni format is a gzip stream holding, in order:
//
//   - the magic byte sequence
//     {0x47, 0x42, 0x4e, 0x49, 0x01, 0x6c, 0x2d, 0x93,
//      0xe8, 0x05, 0xaf, 0x4b, 0x71, 0xc6, 0x1e, 0xd0},
//     which is "GBNI1" followed by 11 random bytes;
//   - a fileHeader, little endian;
//   - NumBoundaries entries, each a uint8 key length, the key bytes, and a
//     little-endian uint64 voffset.
//
// Read names are at most 254 bytes in BAM, so the key length always fits in a
// byte.
var gbniMagic = []byte{
	'G', 'B', 'N', 'I', 0x01, 0x6c, 0x2d, 0x93,
	0xe8, 0x05, 0xaf, 0x4b, 0x71, 0xc6, 0x1e, 0xd0,
}

type fileHeader struct {
	ChunkSize     uint32
	NumRecords    uint64
	FileSize      int64
	Fingerprint   uint64
	NumBoundaries uint64
}

const maxKeyLen = 255

// DefaultIndexPath returns the index path used when none is given.
func DefaultIndexPath(sortedPath string) string {
	return sortedPath + ".gbni"
}

// WriteIndex serializes idx to w.
func WriteIndex(w io.Writer, idx *ChunkIndex) error {
	if idx.ChunkSize <= 0 || int64(idx.ChunkSize) > MaxChunkSize {
		return errors.E(errors.Invalid, fmt.Sprintf("gbni: chunk size %d out of range [1, %d]", idx.ChunkSize, uint64(MaxChunkSize)))
	}
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(gbniMagic); err != nil {
		return err
	}
	h := fileHeader{
		ChunkSize:     uint32(idx.ChunkSize),
		NumRecords:    uint64(idx.NumRecords),
		FileSize:      idx.Identity.Size,
		Fingerprint:   idx.Identity.Fingerprint,
		NumBoundaries: uint64(len(idx.Boundaries)),
	}
	if err := binary.Write(gz, binary.LittleEndian, &h); err != nil {
		return err
	}
	var buf [9]byte
	for _, b := range idx.Boundaries {
		if len(b.Key) > maxKeyLen {
			return fmt.Errorf("key too long (%d bytes): %.32s...", len(b.Key), b.Key)
		}
		buf[0] = byte(len(b.Key))
		if _, err := gz.Write(buf[:1]); err != nil {
			return err
		}
		if _, err := io.WriteString(gz, b.Key); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(buf[1:], b.VOffset)
		if _, err := gz.Write(buf[1:]); err != nil {
			return err
		}
	}
	return gz.Close()
}

// ReadIndex parses a .gbni stream. It rejects streams whose boundaries are
// out of order or inconsistent with the record count.
func ReadIndex(r io.Reader) (idx *ChunkIndex, err error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.E(errors.Invalid, "gbni: not a gzip stream", err)
	}
	defer func() {
		if cerr := gz.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	magic := make([]byte, len(gbniMagic))
	if _, err = io.ReadFull(gz, magic); err != nil {
		return nil, errors.E(errors.Invalid, "gbni: read magic", err)
	}
	if !bytes.Equal(gbniMagic, magic) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("gbni: unexpected magic: %v should be %v", magic, gbniMagic))
	}
	var h fileHeader
	if err = binary.Read(gz, binary.LittleEndian, &h); err != nil {
		return nil, errors.E(errors.Invalid, "gbni: read header", err)
	}
	if h.ChunkSize == 0 {
		return nil, errors.E(errors.Invalid, "gbni: zero chunk size")
	}
	if want := numBoundaries(int64(h.NumRecords), int(h.ChunkSize)); int64(h.NumBoundaries) != want {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("gbni: %d boundaries for %d records of chunk size %d, expect %d",
				h.NumBoundaries, h.NumRecords, h.ChunkSize, want))
	}
	idx = &ChunkIndex{
		ChunkSize:  int(h.ChunkSize),
		NumRecords: int64(h.NumRecords),
		Identity:   Identity{Size: h.FileSize, Fingerprint: h.Fingerprint},
		Boundaries: make([]Boundary, 0, h.NumBoundaries),
	}
	var (
		lenBuf [1]byte
		keyBuf [maxKeyLen]byte
		offBuf [8]byte
	)
	for i := uint64(0); i < h.NumBoundaries; i++ {
		if _, err = io.ReadFull(gz, lenBuf[:]); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("gbni: read boundary %d", i), err)
		}
		key := keyBuf[:lenBuf[0]]
		if _, err = io.ReadFull(gz, key); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("gbni: read boundary %d", i), err)
		}
		if _, err = io.ReadFull(gz, offBuf[:]); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("gbni: read boundary %d", i), err)
		}
		b := Boundary{Key: string(key), VOffset: binary.LittleEndian.Uint64(offBuf[:])}
		if i > 0 {
			prev := idx.Boundaries[i-1]
			if b.Key < prev.Key {
				return nil, errors.E(errors.Invalid,
					fmt.Sprintf("gbni: keys are out of order: %v must not precede %v", prev, b))
			}
			if b.VOffset <= prev.VOffset {
				return nil, errors.E(errors.Invalid,
					fmt.Sprintf("gbni: voffsets are out of order: %v must precede %v", prev, b))
			}
		}
		idx.Boundaries = append(idx.Boundaries, b)
	}
	return idx, nil
}

// WriteFile writes idx to path. The data goes to path+".inprogress" first,
// which is renamed to path once complete, so readers never see a partial
// index.
func WriteFile(path string, idx *ChunkIndex) error {
	ctx := vcontext.Background()
	tmpPath := path + ".inprogress"
	out, err := file.Create(ctx, tmpPath)
	if err != nil {
		return errors.E(err, "create", tmpPath)
	}
	err = WriteIndex(out.Writer(ctx), idx)
	if e := out.Close(ctx); e != nil && err == nil {
		err = e
	}
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		if e := file.Remove(ctx, tmpPath); e != nil {
			vlog.Errorf("%s: failed to remove: %v", tmpPath, e)
		}
		return errors.E(err, "write index", path)
	}
	return nil
}

// ReadFile reads the index stored at path.
func ReadFile(path string) (*ChunkIndex, error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open index", path)
	}
	idx, err := ReadIndex(in.Reader(ctx))
	if e := in.Close(ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return nil, errors.E(err, path)
	}
	return idx, nil
}
