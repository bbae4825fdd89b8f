package bam

import (
	"encoding/binary"
	"unsafe"

	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"
)

var jumps = [256]int{
	'A': 1,
	'c': 1, 'C': 1,
	's': 2, 'S': 2,
	'i': 4, 'I': 4,
	'f': 4,
	'Z': -1,
	'H': -1,
	'B': -1,
}

var (
	errCorruptAuxField = errors.New("bam: corrupt aux field")
	errRecordTooShort  = errors.New("bam: record too short")
)

// parseAux splits the OPT fields of a BAM record into sam.Aux values. The
// results share storage with aux.
func parseAux(aux []byte) ([]sam.Aux, error) {
	var aa []sam.Aux
	for i := 0; i+2 < len(aux); {
		t := aux[i+2]
		switch j := jumps[t]; {
		case j > 0:
			j += 3
			if i+j > len(aux) {
				return nil, errCorruptAuxField
			}
			aa = append(aa, sam.Aux(aux[i:i+j:i+j]))
			i += j
		case j < 0:
			switch t {
			case 'Z', 'H':
				var (
					j int
					v byte
				)
				for j, v = range aux[i:] {
					if v == 0 { // C string termination
						break // Truncate terminal zero.
					}
				}
				aa = append(aa, sam.Aux(aux[i:i+j:i+j]))
				i += j + 1
			case 'B':
				if len(aux) < i+8 {
					return nil, errCorruptAuxField
				}
				length := binary.LittleEndian.Uint32(aux[i+4 : i+8])
				j = int(length)*jumps[aux[i+3]] + int(unsafe.Sizeof(length)) + 4
				if j < 8 || i+j > len(aux) {
					return nil, errCorruptAuxField
				}
				aa = append(aa, sam.Aux(aux[i:i+j:i+j]))
				i += j
			}
		default:
			return nil, errCorruptAuxField
		}
	}
	return aa, nil
}

// Unmarshal decodes a serialized BAM record, without the leading block_size,
// into a sam.Record. The result does not share memory with b. header may be
// nil if the record is unmapped.
func Unmarshal(b []byte, header *sam.Header) (*sam.Record, error) {
	if len(b) < bamFixedBytes {
		return nil, errRecordTooShort
	}
	b = append([]byte(nil), b...)
	rec := &sam.Record{}
	// Need to use int(int32(uint32)) to ensure 2's complement extension of -1.
	refID := int(int32(binary.LittleEndian.Uint32(b)))
	rec.Pos = int(int32(binary.LittleEndian.Uint32(b[4:])))
	nLen := int(b[8])
	rec.MapQ = b[9]
	nCigar := int(binary.LittleEndian.Uint16(b[12:]))
	rec.Flags = sam.Flags(binary.LittleEndian.Uint16(b[14:]))
	lSeq := int(binary.LittleEndian.Uint32(b[16:]))
	nextRefID := int(int32(binary.LittleEndian.Uint32(b[20:])))
	rec.MatePos = int(int32(binary.LittleEndian.Uint32(b[24:])))
	rec.TempLen = int(int32(binary.LittleEndian.Uint32(b[28:])))

	nDoubletBytes := (lSeq + 1) >> 1
	auxOffset := bamFixedBytes + nLen + nCigar*4 + nDoubletBytes + lSeq
	if nLen < 1 || len(b) < auxOffset {
		return nil, errors.Errorf("bam: corrupt record: len(b)=%d, auxoffset=%d", len(b), auxOffset)
	}
	off := bamFixedBytes
	rec.Name = string(b[off : off+nLen-1]) // drop trailing '\0'
	off += nLen

	if nCigar > 0 {
		rec.Cigar = make(sam.Cigar, nCigar)
		for i := range rec.Cigar {
			rec.Cigar[i] = sam.CigarOp(binary.LittleEndian.Uint32(b[off+i*4:]))
		}
		off += nCigar * 4
	}

	rec.Seq.Length = lSeq
	rec.Seq.Seq = make([]sam.Doublet, nDoubletBytes)
	for i := range rec.Seq.Seq {
		rec.Seq.Seq[i] = sam.Doublet(b[off+i])
	}
	off += nDoubletBytes

	rec.Qual = b[off : off+lSeq : off+lSeq]
	off += lSeq

	var err error
	if rec.AuxFields, err = parseAux(b[off:]); err != nil {
		return nil, err
	}

	var refs []*sam.Reference
	if header != nil {
		refs = header.Refs()
	}
	if refID != -1 {
		if refID < -1 || refID >= len(refs) {
			return nil, errors.Errorf("bam: reference id %v out of range", refID)
		}
		rec.Ref = refs[refID]
	}
	if nextRefID != -1 {
		if nextRefID < -1 || nextRefID >= len(refs) {
			return nil, errors.Errorf("bam: mate reference id %v out of range", nextRefID)
		}
		rec.MateRef = refs[nextRefID]
	}
	return rec, nil
}
