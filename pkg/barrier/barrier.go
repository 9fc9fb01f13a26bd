package barrier

import (
	"context"
	"sync"
)

// Barrier is a one-shot counting rendezvous: Wait blocks until the declared
// number of participants have all arrived, then every waiter is released at
// once. It is the only synchronization point between load workers, so that
// the measured window reflects all senders firing together rather than a
// staggered ramp-up.
type Barrier struct {
	mu       sync.Mutex
	total    int
	arrived  int
	released chan struct{}
}

func New(participants int) *Barrier {
	return &Barrier{
		total:    participants,
		released: make(chan struct{}),
	}
}

// Wait registers the caller and blocks until all participants have arrived
// or ctx ends. A context expiry returns ErrTimeout; the barrier stays usable
// for participants still waiting, but a run whose barrier timed out is
// structurally failed and must not report.
func (b *Barrier) Wait(ctx context.Context) error {
	b.mu.Lock()
	b.arrived++
	if b.arrived >= b.total {
		select {
		case <-b.released:
		default:
			close(b.released)
		}
	}
	b.mu.Unlock()

	select {
	case <-b.released:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// Arrived reports how many participants are parked at the barrier. The
// orchestrator polls this before joining as the final participant.
func (b *Barrier) Arrived() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrived
}

var ErrTimeout = &BarrierError{Message: "barrier timeout: not all workers arrived"}

type BarrierError struct {
	Message string
}

func (e *BarrierError) Error() string {
	return e.Message
}
