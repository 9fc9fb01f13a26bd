package bench

import (
	"fmt"
	"time"

	"github.com/inferload/pkg/synth"
	"github.com/inferload/pkg/wire"
)

// pacingSafetyMargin is shaved off the per-request interval so a sleep that
// overshoots by a scheduler tick does not push the sender past its deadline.
const pacingSafetyMargin = time.Millisecond

// Config is the immutable record describing one run. It is built once from
// flags and environment, validated, and shared read-only by every worker.
type Config struct {
	Host      string
	Port      int
	Listeners int

	BatchSize int
	Inputs    []wire.TensorSpec
	Format    wire.Format
	Fill      synth.Fill

	// Count is the total number of batch elements to aim for across the
	// whole run; per-worker iterations are derived from it.
	Count           int
	Workers         int
	Scale           int
	ModelsPerWorker int

	// FrameHz is the simulated frame rate each emulated server sends at.
	FrameHz float64

	// BarrierWait bounds how long the orchestrator waits for all workers
	// to park at the start barrier before failing the run.
	BarrierWait time.Duration

	Label          string
	BreakerEnabled bool

	// Optional sinks; empty means disabled.
	MetricsAddr string
	NATSURL     string
	RedisAddr   string
	DatabaseURL string
}

func (c Config) withDefaults() Config {
	if c.Listeners == 0 {
		c.Listeners = 4
	}
	if c.Workers == 0 {
		c.Workers = 240
	}
	if c.Scale == 0 {
		c.Scale = 1
	}
	if c.ModelsPerWorker == 0 {
		c.ModelsPerWorker = 1
	}
	if c.FrameHz == 0 {
		c.FrameHz = 15
	}
	if c.BarrierWait == 0 {
		c.BarrierWait = 10 * time.Second
	}
	return c
}

// Validate catches everything that would otherwise fail inside a worker,
// wire bounds included, so encoding overflows surface before the timed
// region rather than during it.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.BatchSize < 1 || c.BatchSize > 255 {
		return fmt.Errorf("batch size %d outside 1..255: %w", c.BatchSize, wire.ErrOverflow)
	}
	if len(c.Inputs) == 0 {
		return fmt.Errorf("at least one input tensor required")
	}
	if len(c.Inputs) > 255 {
		return fmt.Errorf("%d input tensors exceed wire bound: %w", len(c.Inputs), wire.ErrOverflow)
	}
	for _, in := range c.Inputs {
		if len(in.Name) == 0 || len(in.Name) > 255 {
			return fmt.Errorf("input name %q length outside 1..255: %w", in.Name, wire.ErrOverflow)
		}
		for _, d := range in.Shape {
			if d <= 0 {
				return fmt.Errorf("input %q has non-positive dimension %d", in.Name, d)
			}
		}
		if n := in.Elements(); n < 0 || uint64(n) > c.Format.MaxElements() {
			return fmt.Errorf("input %q element count exceeds the wire length field: %w", in.Name, wire.ErrOverflow)
		}
	}
	if c.Count < 1 {
		return fmt.Errorf("count must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	if c.FrameHz <= 0 {
		return fmt.Errorf("frame rate must be positive")
	}
	return nil
}

// interval is the pacing target between request starts for one worker. A
// worker emulates ModelsPerWorker models each ticking at FrameHz.
func (c Config) interval() time.Duration {
	d := time.Duration(float64(time.Second)/(c.FrameHz*float64(c.ModelsPerWorker))) - pacingSafetyMargin
	if d < 0 {
		d = 0
	}
	return d
}

// iterationsPerWorker splits Count across all emulated senders, floored at
// one full cycle so a small count still produces a run.
func (c Config) iterationsPerWorker() int {
	per := c.Count / (c.BatchSize * c.Workers * c.Scale * c.ModelsPerWorker)
	if per < 1 {
		per = 1
	}
	return per * c.ModelsPerWorker
}
