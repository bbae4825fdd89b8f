package sorter

import (
	"github.com/gogo/protobuf/proto"
)

// RunIndex is stored in the recordio trailer of each run file. It mirrors the
// following message:
//
//   message RunIndex {
//     uint64 num_records = 1;
//     bool snappy = 2;       // blocks are snappy compressed.
//     string first_key = 3;  // name of the first record.
//     string last_key = 4;   // name of the last record.
//     uint64 num_blocks = 5;
//   }
type RunIndex struct {
	NumRecords uint64 `protobuf:"varint,1,opt,name=num_records,json=numRecords,proto3" json:"num_records,omitempty"`
	Snappy     bool   `protobuf:"varint,2,opt,name=snappy,proto3" json:"snappy,omitempty"`
	FirstKey   string `protobuf:"bytes,3,opt,name=first_key,json=firstKey,proto3" json:"first_key,omitempty"`
	LastKey    string `protobuf:"bytes,4,opt,name=last_key,json=lastKey,proto3" json:"last_key,omitempty"`
	NumBlocks  uint64 `protobuf:"varint,5,opt,name=num_blocks,json=numBlocks,proto3" json:"num_blocks,omitempty"`
}

func (m *RunIndex) Reset()         { *m = RunIndex{} }
func (m *RunIndex) String() string { return proto.CompactTextString(m) }
func (*RunIndex) ProtoMessage()    {}
