package synth

import (
	"math/rand"

	"github.com/inferload/pkg/wire"
)

// Fill chooses how synthesized tensor values are generated.
type Fill int

const (
	// FillRandom draws uniform values in [0, 1), a representative payload.
	FillRandom Fill = iota
	// FillConstant writes 1.0 everywhere, for deterministic tests.
	FillConstant
)

// Build encodes one request where every batch item carries the same tensors.
func Build(f wire.Format, batchSize int, specs []wire.TensorSpec, fill Fill) ([]byte, error) {
	return wire.EncodeRequest(f, batchSize, specs, filler(fill))
}

// BuildPool encodes one request per batch size 1..maxBatch. Senders cycle
// through the pool so every batch size appears in the load mix. Pools are
// built before the timed window opens; nothing here may run inside it.
func BuildPool(f wire.Format, maxBatch int, specs []wire.TensorSpec, fill Fill) ([][]byte, error) {
	pool := make([][]byte, 0, maxBatch)
	for n := 1; n <= maxBatch; n++ {
		buf, err := wire.EncodeRequest(f, n, specs, filler(fill))
		if err != nil {
			return nil, err
		}
		pool = append(pool, buf)
	}
	return pool, nil
}

func filler(fill Fill) func(int) float32 {
	if fill == FillConstant {
		return func(int) float32 { return 1.0 }
	}
	return func(int) float32 { return rand.Float32() }
}
