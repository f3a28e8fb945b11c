package ledgercache

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/unkn0wn-root/ledgercache/account"
	c "github.com/unkn0wn-root/ledgercache/codec"
)

// Snapshot field numbers on the protobuf wire.
const (
	fieldInitialized protowire.Number = 1
	fieldCount       protowire.Number = 2
	fieldBump        protowire.Number = 3
	fieldTag         protowire.Number = 4
	fieldFetchedAt   protowire.Number = 5 // unix nanos
)

var errProtoSnapshot = errors.New("ledgercache: malformed protobuf snapshot")

// ProtoCodec encodes a Snapshot as a protobuf message without generated code:
//
//	message Snapshot {
//	  bool   initialized = 1;
//	  uint64 count       = 2;
//	  uint32 bump        = 3;
//	  uint32 tag         = 4;
//	  int64  fetched_at  = 5;
//	}
//
// Unknown fields are rejected. The zero value is ready to use.
type ProtoCodec struct{}

var _ c.Codec[Snapshot] = ProtoCodec{}

func (ProtoCodec) Encode(s Snapshot) ([]byte, error) {
	var b []byte
	if s.Initialized {
		b = protowire.AppendTag(b, fieldInitialized, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if s.Count != 0 {
		b = protowire.AppendTag(b, fieldCount, protowire.VarintType)
		b = protowire.AppendVarint(b, s.Count)
	}
	if s.Bump != 0 {
		b = protowire.AppendTag(b, fieldBump, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Bump))
	}
	if s.Tag != 0 {
		b = protowire.AppendTag(b, fieldTag, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Tag))
	}
	if !s.FetchedAt.IsZero() {
		b = protowire.AppendTag(b, fieldFetchedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.FetchedAt.UnixNano()))
	}
	return b, nil
}

func (ProtoCodec) Decode(b []byte) (Snapshot, error) {
	var s Snapshot
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Snapshot{}, fmt.Errorf("%w: %v", errProtoSnapshot, protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.VarintType {
			return Snapshot{}, fmt.Errorf("%w: field %d has wire type %d", errProtoSnapshot, num, typ)
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return Snapshot{}, fmt.Errorf("%w: %v", errProtoSnapshot, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldInitialized:
			s.Initialized = protowire.DecodeBool(v)
		case fieldCount:
			s.Count = v
		case fieldBump:
			if v > 0xFF {
				return Snapshot{}, fmt.Errorf("%w: bump %d overflows u8", errProtoSnapshot, v)
			}
			s.Bump = uint8(v)
		case fieldTag:
			if v > uint64(account.TagDefaultFilled) {
				return Snapshot{}, fmt.Errorf("%w: unknown tag %d", errProtoSnapshot, v)
			}
			s.Tag = account.Tag(v)
		case fieldFetchedAt:
			s.FetchedAt = time.Unix(0, int64(v))
		default:
			return Snapshot{}, fmt.Errorf("%w: unknown field %d", errProtoSnapshot, num)
		}
	}
	return s, nil
}

// SnapshotCodec resolves a codec name, adding "proto" to the generic codecs.
func SnapshotCodec(name string) (c.Codec[Snapshot], error) {
	if name == "proto" || name == "protobuf" {
		return ProtoCodec{}, nil
	}
	return c.ByName[Snapshot](name)
}
