package wire

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	specs := []TensorSpec{
		{Name: "obs", Shape: []int{2, 3}},
		{Name: "mask", Shape: []int{4}},
	}
	values := []float32{
		0.25, -1.5, 3.75, 0, 1e-20, float32(math.Inf(1)),
		1, 0.5, -0.5, 100,
	}

	for _, f := range []Format{FormatByteLength, FormatElementCount} {
		buf, err := EncodeRequest(f, 3, specs, func(i int) float32 {
			return values[i%len(values)]
		})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}

		batch, err := DecodeResponse(f, buf)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(batch) != 3 {
			t.Fatalf("expected 3 items, got %d", len(batch))
		}

		elem := 0
		for _, item := range batch {
			if len(item) != len(specs) {
				t.Fatalf("expected %d outputs, got %d", len(specs), len(item))
			}
			for j, out := range item {
				if out.Name != specs[j].Name {
					t.Errorf("expected name %q, got %q", specs[j].Name, out.Name)
				}
				if len(out.Values) != specs[j].Elements() {
					t.Fatalf("expected %d values, got %d", specs[j].Elements(), len(out.Values))
				}
				for _, v := range out.Values {
					want := values[elem%len(values)]
					if math.Float32bits(v) != math.Float32bits(want) {
						t.Errorf("value %d: expected bits %x, got %x", elem, math.Float32bits(want), math.Float32bits(v))
					}
					elem++
				}
			}
		}
	}
}

func TestEncodeBounds(t *testing.T) {
	specs := []TensorSpec{{Name: "in", Shape: []int{1}}}

	if _, err := EncodeRequest(FormatByteLength, 256, specs, one); err != ErrOverflow {
		t.Errorf("batch size 256: expected ErrOverflow, got %v", err)
	}
	if _, err := EncodeRequest(FormatByteLength, -1, specs, one); err != ErrOverflow {
		t.Errorf("negative batch size: expected ErrOverflow, got %v", err)
	}

	longName := make([]byte, 256)
	for i := range longName {
		longName[i] = 'a'
	}
	long := []TensorSpec{{Name: string(longName), Shape: []int{1}}}
	if _, err := EncodeRequest(FormatByteLength, 1, long, one); err != ErrOverflow {
		t.Errorf("256-byte name: expected ErrOverflow, got %v", err)
	}

	many := make([]TensorSpec, 256)
	for i := range many {
		many[i] = TensorSpec{Name: "t", Shape: []int{1}}
	}
	if _, err := EncodeRequest(FormatByteLength, 1, many, one); err != ErrOverflow {
		t.Errorf("256 tensors: expected ErrOverflow, got %v", err)
	}

	if buf, err := EncodeRequest(FormatByteLength, 255, specs, one); err != nil || buf[0] != 255 {
		t.Errorf("batch size 255 should encode, got %v", err)
	}

	// The u32 length field must be rejected up front, before any buffer is
	// allocated: byte-length saturates at (2^32-1)/4 elements, element-count
	// at 2^32-1.
	huge := []TensorSpec{{Name: "x", Shape: []int{1 << 15, 1 << 15}}}
	if _, err := EncodeRequest(FormatByteLength, 1, huge, one); err != ErrOverflow {
		t.Errorf("2^30 elements under byte-length: expected ErrOverflow, got %v", err)
	}
	vast := []TensorSpec{{Name: "x", Shape: []int{1 << 16, 1 << 16}}}
	if _, err := EncodeRequest(FormatElementCount, 1, vast, one); err != ErrOverflow {
		t.Errorf("2^32 elements under element-count: expected ErrOverflow, got %v", err)
	}
}

func TestMaxElements(t *testing.T) {
	if got := FormatByteLength.MaxElements(); got != (1<<32-1)/4 {
		t.Errorf("byte-length cap: expected %d, got %d", (1<<32-1)/4, got)
	}
	if got := FormatElementCount.MaxElements(); got != 1<<32-1 {
		t.Errorf("element-count cap: expected %d, got %d", uint64(1<<32-1), got)
	}
}

func TestDecodeTruncated(t *testing.T) {
	specs := []TensorSpec{{Name: "out", Shape: []int{8}}}
	buf, err := EncodeRequest(FormatByteLength, 2, specs, one)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := map[string][]byte{
		"empty":           {},
		"missing item":    buf[:1],
		"cut name":        buf[:3],
		"cut length":      buf[:7],
		"cut values":      buf[:len(buf)-5],
		"length past end": overstateLength(buf),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeResponse(FormatByteLength, b); err != ErrTruncated {
				t.Errorf("expected ErrTruncated, got %v", err)
			}
		})
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	// [batch 1][1 output][key len 2][0xff 0xfe]...
	buf := []byte{1, 1, 2, 0xff, 0xfe, 0, 0, 0, 0}
	if _, err := DecodeResponse(FormatByteLength, buf); err != ErrInvalidUTF8 {
		t.Errorf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestFormatsDiffer(t *testing.T) {
	specs := []TensorSpec{{Name: "x", Shape: []int{2}}}
	byteLen, err := EncodeRequest(FormatByteLength, 1, specs, one)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	elemCount, err := EncodeRequest(FormatElementCount, 1, specs, one)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// [1][1][1]['x'] then the length field.
	if got := binary.LittleEndian.Uint32(byteLen[4:]); got != 8 {
		t.Errorf("byte-length field: expected 8, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(elemCount[4:]); got != 2 {
		t.Errorf("element-count field: expected 2, got %d", got)
	}

	// A byte-length decoder fed an element-count message must not guess.
	if _, err := DecodeResponse(FormatByteLength, elemCount); err != ErrTruncated {
		t.Errorf("expected ErrTruncated on mismatched format, got %v", err)
	}
}

func TestElements(t *testing.T) {
	if n := (TensorSpec{Name: "a", Shape: []int{2, 3, 4}}).Elements(); n != 24 {
		t.Errorf("expected 24, got %d", n)
	}
	if n := (TensorSpec{Name: "b", Shape: nil}).Elements(); n != 1 {
		t.Errorf("expected 1 for empty shape, got %d", n)
	}
}

func one(int) float32 { return 1.0 }

func overstateLength(buf []byte) []byte {
	b := make([]byte, len(buf))
	copy(b, buf)
	// First length field sits after [batch][ntensors][namelen]["out"].
	binary.LittleEndian.PutUint32(b[6:], uint32(len(b))*4)
	return b
}
