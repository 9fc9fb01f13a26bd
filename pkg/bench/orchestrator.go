package bench

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/inferload/pkg/barrier"
	"github.com/inferload/pkg/circuitbreaker"
	"github.com/inferload/pkg/stats"
	"github.com/inferload/pkg/synth"
	"github.com/inferload/pkg/target"
	"github.com/inferload/pkg/transport"
)

// barrierPollInterval is how often the orchestrator checks the barrier
// while waiting for workers to park.
const barrierPollInterval = 100 * time.Millisecond

// Result pairs the aggregate report with the instant the barrier released,
// which anchors the global measurement window.
type Result struct {
	Report     stats.Report
	ReleasedAt time.Time
}

// Run drives one complete measurement: spawn Config.Workers senders with
// round-robin target addresses, hold them at the start barrier, release
// them together, join them, and reduce their results. A structural failure
// (barrier timeout, worker fatal) returns an error and no report.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	addrs := target.Addresses(cfg.Host, cfg.Port, cfg.Listeners)
	return run(ctx, cfg, addrs)
}

// run is the address-injected core, split out so tests can point workers at
// local listeners without going through host/port expansion.
func run(ctx context.Context, cfg Config, addrs []string) (Result, error) {
	start := barrier.New(cfg.Workers + 1)
	iterations := cfg.iterationsPerWorker()
	interval := cfg.interval()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	results := make([]stats.WorkerResult, cfg.Workers)
	errs := make([]error, cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			// Synthesis happens here, before the barrier, so construction
			// cost can never leak into the measured window.
			pool, err := synth.BuildPool(cfg.Format, cfg.BatchSize, cfg.Inputs, cfg.Fill)
			if err != nil {
				// Fatal for the run, but still park at the barrier so the
				// remaining workers can be released and joined cleanly. The
				// build failure is what the run reports; a barrier error
				// here is only worth a log line.
				errs[id] = fmt.Errorf("worker %d: build pool: %w", id, err)
				if werr := start.Wait(workerCtx); werr != nil {
					log.Printf("worker %d: barrier after build failure: %v", id, werr)
				}
				return
			}

			client := newClient(cfg, addrs[id%len(addrs)])
			s := newSender(id, client, pool, iterations, interval, cfg.Format, start)
			res, err := s.run(workerCtx)
			if err != nil {
				errs[id] = fmt.Errorf("worker %d: %w", id, err)
				return
			}
			results[id] = res
		}(i)
	}

	if err := awaitRelease(ctx, start, cfg.Workers, cfg.BarrierWait); err != nil {
		stopWorkers()
		wg.Wait()
		return Result{}, err
	}
	releasedAt := time.Now()
	log.Printf("released %d workers against %d listeners", cfg.Workers, len(addrs))

	wg.Wait()
	globalElapsed := time.Since(releasedAt)

	// Per-request errors were swallowed inside the senders; anything left
	// here is fatal and voids the whole measurement.
	for _, err := range errs {
		if err != nil {
			return Result{}, err
		}
	}

	return Result{
		Report:     stats.Aggregate(results, globalElapsed),
		ReleasedAt: releasedAt,
	}, nil
}

// awaitRelease polls until all expected workers are parked at the start
// barrier, then joins as the final participant, releasing everyone at once.
// Releasing from this side guards the degenerate case where some worker
// never arrives: the run fails with a timeout instead of hanging.
func awaitRelease(ctx context.Context, start *barrier.Barrier, expected int, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for start.Arrived() < expected {
		if time.Now().After(deadline) {
			return fmt.Errorf("%d of %d workers reached the start barrier: %w",
				start.Arrived(), expected, barrier.ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(barrierPollInterval):
		}
	}
	return start.Wait(ctx)
}

func newClient(cfg Config, addr string) *transport.Client {
	if cfg.BreakerEnabled {
		return transport.NewWithBreaker(addr, circuitbreaker.New(5, time.Second))
	}
	return transport.New(addr)
}
