package codec

import (
	"testing"
	"time"
)

type sample struct {
	Count uint64    `json:"count" cbor:"1,keyasint" msgpack:"count"`
	Bump  uint8     `json:"bump" cbor:"2,keyasint" msgpack:"bump"`
	At    time.Time `json:"at" cbor:"3,keyasint" msgpack:"at"`
}

type wider struct {
	Count uint64 `json:"count" cbor:"1,keyasint" msgpack:"count"`
	Extra string `json:"extra" cbor:"9,keyasint" msgpack:"extra"`
}

func TestCodecsRoundTrip(t *testing.T) {
	in := sample{Count: 15, Bump: 254, At: time.Unix(1_700_000_000, 123).UTC()}
	for _, name := range Names {
		t.Run(name, func(t *testing.T) {
			c, err := ByName[sample](name)
			if err != nil {
				t.Fatal(err)
			}
			b, err := c.Encode(in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			out, err := c.Decode(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.Count != in.Count || out.Bump != in.Bump || !out.At.Equal(in.At) {
				t.Fatalf("roundtrip mismatch: got %+v want %+v", out, in)
			}
		})
	}
}

func TestCodecsRejectUnknownFields(t *testing.T) {
	for _, name := range Names {
		t.Run(name, func(t *testing.T) {
			w, _ := ByName[wider](name)
			b, err := w.Encode(wider{Count: 1, Extra: "x"})
			if err != nil {
				t.Fatal(err)
			}
			c, _ := ByName[sample](name)
			if _, err := c.Decode(b); err == nil {
				t.Fatalf("expected unknown field error")
			}
		})
	}
}

func TestCodecsRejectTrailingData(t *testing.T) {
	for _, name := range Names {
		t.Run(name, func(t *testing.T) {
			c, _ := ByName[sample](name)
			b, err := c.Encode(sample{Count: 1})
			if err != nil {
				t.Fatal(err)
			}
			b = append(b, b...)
			if _, err := c.Decode(b); err == nil {
				t.Fatalf("expected trailing data error")
			}
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName[sample]("yaml"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[sample]{Inner: JSON[sample]{}, MaxDecode: 8}
	b, _ := c.Encode(sample{Count: 123456789})
	if _, err := c.Decode(b); err == nil {
		t.Fatalf("expected size error for %d bytes", len(b))
	}
	unlimited := Limit[sample]{Inner: JSON[sample]{}}
	if _, err := unlimited.Decode(b); err != nil {
		t.Fatalf("unexpected error without limit: %v", err)
	}
}
