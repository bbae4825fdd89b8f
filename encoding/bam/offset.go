package bam

import "github.com/biogo/hts/bgzf"

// ToBGZFOffset takes a uint64 voffset and returns a bgzf.Offset.
func ToBGZFOffset(voffset uint64) bgzf.Offset {
	return bgzf.Offset{File: int64(voffset >> 16), Block: uint16(voffset & 0xffff)}
}

// ToVOffset takes a bgzf.Offset and returns the packed uint64 voffset used in
// on-disk indexes.
func ToVOffset(offset bgzf.Offset) uint64 {
	return uint64(offset.File)<<16 | uint64(offset.Block)
}
