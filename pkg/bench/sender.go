package bench

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/inferload/pkg/barrier"
	"github.com/inferload/pkg/metrics"
	"github.com/inferload/pkg/stats"
	"github.com/inferload/pkg/transport"
	"github.com/inferload/pkg/wire"
)

type senderState int32

const (
	stateCreated senderState = iota
	stateWaitingAtBarrier
	stateRunning
	stateDraining
	stateDone
)

// sender is one rate-paced worker. It owns its request pool and latency
// buffer exclusively; the only thing it shares with anyone is the start
// barrier. Its WorkerResult is handed over once at completion and never
// written again.
type sender struct {
	id         int
	client     *transport.Client
	pool       [][]byte
	iterations int
	interval   time.Duration
	format     wire.Format
	start      *barrier.Barrier

	state     atomic.Int32
	runningAt time.Time
}

func newSender(id int, client *transport.Client, pool [][]byte, iterations int, interval time.Duration, format wire.Format, start *barrier.Barrier) *sender {
	return &sender{
		id:         id,
		client:     client,
		pool:       pool,
		iterations: iterations,
		interval:   interval,
		format:     format,
		start:      start,
	}
}

func (s *sender) currentState() senderState {
	return senderState(s.state.Load())
}

func (s *sender) setState(st senderState) {
	s.state.Store(int32(st))
}

// run executes the full sender lifecycle. Per-request failures are counted
// and swallowed so one bad send never aborts the measurement; only a
// barrier failure surfaces as an error.
func (s *sender) run(ctx context.Context) (stats.WorkerResult, error) {
	s.setState(stateWaitingAtBarrier)
	if err := s.start.Wait(ctx); err != nil {
		return stats.WorkerResult{}, err
	}
	s.setState(stateRunning)
	s.runningAt = time.Now()

	lats := make([]float64, 0, s.iterations)
	var elements uint64
	var okSends, sendErrs, decodeErrs int

	begin := time.Now()
	for it := 0; it < s.iterations; it++ {
		buf := s.pool[it%len(s.pool)]

		t0 := time.Now()
		resp, err := s.client.Send(buf)
		lat := time.Since(t0)

		// The sample covers the send only; decoding below is deliberately
		// outside the measured span.
		lats = append(lats, float64(lat)/float64(time.Millisecond))
		metrics.RequestDuration.Observe(lat.Seconds())

		if err != nil {
			sendErrs++
			metrics.RequestsTotal.WithLabelValues("error").Inc()
			if sendErrs <= 3 || sendErrs%1000 == 0 {
				log.Printf("worker %d: send: %v", s.id, err)
			}
		} else {
			okSends++
			elements += uint64(buf[0])
			metrics.RequestsTotal.WithLabelValues("ok").Inc()
			metrics.ElementsSent.Add(float64(buf[0]))
			if _, derr := wire.DecodeResponse(s.format, resp); derr != nil {
				// Malformed payload: keep the latency sample, drop the body.
				decodeErrs++
				if decodeErrs <= 3 || decodeErrs%1000 == 0 {
					log.Printf("worker %d: decode: %v", s.id, derr)
				}
			}
		}

		// Additive residual pacing: sleep whatever remains of the target
		// interval after the send, never a negative amount. An overrunning
		// send eats its own slack instead of compounding drift.
		if sleep := s.interval - time.Since(t0); sleep > 0 {
			time.Sleep(sleep)
		}
	}

	s.setState(stateDraining)
	elapsed := time.Since(begin)

	rps := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rps = float64(okSends) / secs
	}
	res := stats.WorkerResult{
		Elapsed:        elapsed,
		Elements:       elements,
		LatenciesMS:    lats,
		RequestsPerSec: rps,
		SendErrs:       sendErrs,
		DecodeErrs:     decodeErrs,
	}
	s.setState(stateDone)
	return res, nil
}
