package integration

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/inferload/pkg/bench"
	"github.com/inferload/pkg/synth"
	"github.com/inferload/pkg/target"
	"github.com/inferload/pkg/wire"
)

// inferenceHandler behaves like the real serve side: it decodes each
// request batch and answers with one "action" output per batch member.
func inferenceHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read", http.StatusBadRequest)
			return
		}
		// Requests and responses share the framing, so the request
		// decoder doubles as the server-side parser here.
		batch, err := wire.DecodeResponse(wire.FormatByteLength, body)
		if err != nil {
			http.Error(w, "decode", http.StatusBadRequest)
			return
		}

		out := []wire.TensorSpec{{Name: "action", Shape: []int{2}}}
		resp, err := wire.EncodeRequest(wire.FormatByteLength, len(batch), out, func(int) float32 { return 0.5 })
		if err != nil {
			http.Error(w, "encode", http.StatusInternalServerError)
			return
		}
		w.Write(resp)
	})
}

func startServer(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: inferenceHandler(t)}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestFullRun(t *testing.T) {
	host, port := startServer(t)

	cfg := bench.Config{
		Host:            host,
		Port:            port,
		Listeners:       1,
		BatchSize:       3,
		Inputs:          []wire.TensorSpec{{Name: "obs", Shape: []int{8}}},
		Format:          wire.FormatByteLength,
		Fill:            synth.FillRandom,
		Count:           180,
		Workers:         6,
		Scale:           1,
		ModelsPerWorker: 2,
		FrameHz:         500,
		BarrierWait:     5 * time.Second,
	}

	addrs := target.Addresses(cfg.Host, cfg.Port, cfg.Listeners)
	if err := target.Preflight(context.Background(), addrs); err != nil {
		t.Fatalf("preflight: %v", err)
	}

	res, err := bench.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	r := res.Report

	// 180/(3*6*1*2)=5 cycles * 2 models = 10 iterations per worker over a
	// pool cycling batch sizes 1,2,3.
	if r.Samples != 60 {
		t.Errorf("expected 60 samples, got %d", r.Samples)
	}
	// Ten iterations cycle the pool as 1,2,3,1,2,3,1,2,3,1 = 19 elements.
	const perWorker = 19
	if r.TotalElements != perWorker*6 {
		t.Errorf("expected %d elements, got %d", perWorker*6, r.TotalElements)
	}
	if r.SendErrs != 0 || r.DecodeErrs != 0 {
		t.Errorf("expected a clean run, got %d send / %d decode errors", r.SendErrs, r.DecodeErrs)
	}
	if r.OverallRate <= 0 {
		t.Errorf("expected positive rate, got %v", r.OverallRate)
	}
	if r.WorkerRPS.Min <= 0 {
		t.Errorf("every worker should have sent successfully: %+v", r.WorkerRPS)
	}
	if r.TotalElapsed <= 0 || res.ReleasedAt.IsZero() {
		t.Errorf("invalid window: elapsed %v, released %v", r.TotalElapsed, res.ReleasedAt)
	}
}

func TestFullRunMultiListener(t *testing.T) {
	// Two adjacent ports, exercising the round-robin fan-out.
	ln0, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln0.Addr().(*net.TCPAddr).Port
	ln1, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port+1)))
	if err != nil {
		ln0.Close()
		t.Skipf("adjacent port %d unavailable: %v", port+1, err)
	}
	for _, ln := range []net.Listener{ln0, ln1} {
		srv := &http.Server{Handler: inferenceHandler(t)}
		go srv.Serve(ln)
		t.Cleanup(func() { srv.Close() })
	}

	cfg := bench.Config{
		Host:        "127.0.0.1",
		Port:        port,
		Listeners:   2,
		BatchSize:   1,
		Inputs:      []wire.TensorSpec{{Name: "obs", Shape: []int{4}}},
		Fill:        synth.FillConstant,
		Count:       16,
		Workers:     4,
		FrameHz:     500,
		BarrierWait: 5 * time.Second,
	}

	res, err := bench.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Report.SendErrs != 0 {
		t.Errorf("expected both listeners reachable, got %d send errors", res.Report.SendErrs)
	}
	if res.Report.TotalElements == 0 {
		t.Error("expected elements sent")
	}
}
