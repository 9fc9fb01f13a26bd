package wire

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// Format selects how the 4-byte length field of a tensor value block is
// interpreted. The two conventions both exist in deployed clients, so the
// format is always chosen explicitly; nothing in this package guesses.
type Format int

const (
	// FormatByteLength writes element_count*4 into the length field.
	FormatByteLength Format = iota
	// FormatElementCount writes the raw element count.
	FormatElementCount
)

const (
	maxBatchSize  = 255
	maxNameLen    = 255
	maxTensorsPer = 255
)

// MaxElements is the largest per-tensor element count whose length field
// still fits the wire's 4-byte field under this format. The byte-length
// convention multiplies by four before writing, so it saturates earlier.
func (f Format) MaxElements() uint64 {
	if f == FormatElementCount {
		return math.MaxUint32
	}
	return math.MaxUint32 / 4
}

type TensorSpec struct {
	Name  string
	Shape []int
}

// Elements is the product of the shape dimensions.
func (s TensorSpec) Elements() int {
	n := 1
	for _, d := range s.Shape {
		n *= d
	}
	return n
}

type Output struct {
	Name   string
	Values []float32
}

// ResponseItem holds one batch member's outputs in wire order.
// Names are unique within an item.
type ResponseItem []Output

func (ri ResponseItem) Get(name string) ([]float32, bool) {
	for _, o := range ri {
		if o.Name == name {
			return o.Values, true
		}
	}
	return nil, false
}

type ResponseBatch []ResponseItem

// EncodeRequest builds one request message: a single batch-size byte, then
// for each batch item a tensor-count byte followed by each tensor's
// length-prefixed name, length field, and little-endian float32 values.
// fill supplies the value for the i-th element written, counted across the
// whole message. All bound checks happen before any byte is produced.
func EncodeRequest(f Format, batchSize int, specs []TensorSpec, fill func(i int) float32) ([]byte, error) {
	if batchSize < 0 || batchSize > maxBatchSize {
		return nil, ErrOverflow
	}
	if len(specs) > maxTensorsPer {
		return nil, ErrOverflow
	}
	itemSize := 1
	for _, s := range specs {
		if len(s.Name) > maxNameLen {
			return nil, ErrOverflow
		}
		n := s.Elements()
		if n < 0 || uint64(n) > f.MaxElements() {
			return nil, ErrOverflow
		}
		itemSize += 1 + len(s.Name) + 4 + n*4
	}

	buf := make([]byte, 1+batchSize*itemSize)
	buf[0] = byte(batchSize)
	off := 1
	elem := 0
	for i := 0; i < batchSize; i++ {
		buf[off] = byte(len(specs))
		off++
		for _, s := range specs {
			buf[off] = byte(len(s.Name))
			off++
			off += copy(buf[off:], s.Name)
			n := s.Elements()
			switch f {
			case FormatElementCount:
				binary.LittleEndian.PutUint32(buf[off:], uint32(n))
			default:
				binary.LittleEndian.PutUint32(buf[off:], uint32(n*4))
			}
			off += 4
			for j := 0; j < n; j++ {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(fill(elem)))
				off += 4
				elem++
			}
		}
	}
	return buf, nil
}

// DecodeResponse parses a response message under the given format. It is
// pure: no I/O, no shared state, only the returned allocations.
func DecodeResponse(f Format, buf []byte) (ResponseBatch, error) {
	if len(buf) < 1 {
		return nil, ErrTruncated
	}
	batchSize := int(buf[0])
	off := 1

	batch := make(ResponseBatch, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		if off >= len(buf) {
			return nil, ErrTruncated
		}
		numOutputs := int(buf[off])
		off++

		item := make(ResponseItem, 0, numOutputs)
		for j := 0; j < numOutputs; j++ {
			if off >= len(buf) {
				return nil, ErrTruncated
			}
			keyLen := int(buf[off])
			off++
			if off+keyLen > len(buf) {
				return nil, ErrTruncated
			}
			key := buf[off : off+keyLen]
			if !utf8.Valid(key) {
				return nil, ErrInvalidUTF8
			}
			off += keyLen

			if off+4 > len(buf) {
				return nil, ErrTruncated
			}
			field := binary.LittleEndian.Uint32(buf[off:])
			off += 4

			var n int
			switch f {
			case FormatElementCount:
				n = int(field)
			default:
				if field%4 != 0 {
					return nil, ErrTruncated
				}
				n = int(field / 4)
			}
			if off+n*4 > len(buf) {
				return nil, ErrTruncated
			}
			values := make([]float32, n)
			for k := 0; k < n; k++ {
				values[k] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
				off += 4
			}
			item = append(item, Output{Name: string(key), Values: values})
		}
		batch = append(batch, item)
	}
	return batch, nil
}

var ErrOverflow = &CodecError{Message: "encoding overflow: size exceeds wire field width"}
var ErrTruncated = &CodecError{Message: "truncated buffer: declared length runs past end"}
var ErrInvalidUTF8 = &CodecError{Message: "invalid utf-8 in tensor key"}

type CodecError struct {
	Message string
}

func (e *CodecError) Error() string {
	return e.Message
}
