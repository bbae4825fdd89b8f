package nameindex

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/minio/highwayhash"
)

// fingerprintSpan is the number of bytes hashed at each end of the file.
const fingerprintSpan = 64 << 10

// "GBNI fingerprint" padded with random bytes. Changing it invalidates every
// existing index.
var fingerprintKey = []byte{
	'G', 'B', 'N', 'I', ' ', 'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't',
	0x3d, 0x9a, 0x51, 0xe0, 0x77, 0x0c, 0xb4, 0x28, 0xf2, 0x6e, 0x15, 0xa3, 0x8b, 0x40, 0xd9, 0x66,
}

// FileIdentity computes the Identity of the file at path. It reads at most
// 128KiB regardless of the file size. A BGZF file ends with its last data
// blocks and an EOF marker, so any rewrite of the file is very likely to
// change the trailing bytes even if the size stays the same.
func FileIdentity(path string) (Identity, error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	if err != nil {
		return Identity{}, errors.E(err, "fingerprint", path)
	}
	defer in.Close(ctx) // nolint: errcheck
	info, err := in.Stat(ctx)
	if err != nil {
		return Identity{}, errors.E(err, "stat", path)
	}
	size := info.Size()

	buf := make([]byte, 8, 8+2*fingerprintSpan)
	binary.LittleEndian.PutUint64(buf, uint64(size))
	r := in.Reader(ctx)
	readAt := func(off, n int64) error {
		if _, err := r.Seek(off, io.SeekStart); err != nil {
			return err
		}
		start := len(buf)
		buf = buf[:start+int(n)]
		_, err := io.ReadFull(r, buf[start:])
		return err
	}
	head := int64(fingerprintSpan)
	if size < head {
		head = size
	}
	if err := readAt(0, head); err != nil {
		return Identity{}, errors.E(err, "fingerprint", path)
	}
	if tail := size - fingerprintSpan; tail > head {
		err = readAt(tail, fingerprintSpan)
	} else if size > head {
		err = readAt(head, size-head)
	}
	if err != nil {
		return Identity{}, errors.E(err, "fingerprint", path)
	}
	return Identity{Size: size, Fingerprint: highwayhash.Sum64(buf, fingerprintKey)}, nil
}

// VerifyIdentity checks that idx was built from the file at sortedPath. It
// returns an errors.Integrity error if not.
func VerifyIdentity(idx *ChunkIndex, sortedPath string) error {
	id, err := FileIdentity(sortedPath)
	if err != nil {
		return err
	}
	if id != idx.Identity {
		return errors.E(errors.Integrity,
			fmt.Sprintf("index does not match %s: index was built for size %d, fingerprint %016x; file has size %d, fingerprint %016x",
				sortedPath, idx.Identity.Size, idx.Identity.Fingerprint, id.Size, id.Fingerprint))
	}
	return nil
}
