package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/inferload/pkg/stats"
)

// agentsPerModel is the workload's average batch occupancy per emulated
// server, used only for the expected-throughput commentary line.
const agentsPerModel = 1.5

// Params carries the run shape the summary commentary needs.
type Params struct {
	Label           string
	Workers         int
	Scale           int
	ModelsPerWorker int
	FrameHz         float64
	// RequestBytes is the representative encoded request size used for the
	// bandwidth estimate.
	RequestBytes float64
}

// Write prints the human-readable run summary.
func Write(w io.Writer, p Params, r stats.Report) {
	elapsed := r.TotalElapsed.Seconds()

	fmt.Fprintf(w, "Total time: %.3fs\n", elapsed)
	fmt.Fprintf(w, "Total count: %d\n", r.TotalElements)
	if r.TotalElements > 0 {
		fmt.Fprintf(w, "Average time: %.6fs\n", elapsed/float64(r.TotalElements))
	}
	fmt.Fprintf(w, "Average rate: %.1f elements/s\n", r.OverallRate)

	d := r.Latency
	fmt.Fprintf(w, "Distribution: mean=%.1f ms, mode=%.1f ms, stdev=%.1f ms\n", d.Mean, d.Mode, d.Stddev)
	fmt.Fprintf(w, "              median=%.1f ms, max=%.1f ms, min=%.1f ms\n", d.Median, d.Max, d.Min)

	servers := p.Workers * p.Scale
	expected := float64(p.ModelsPerWorker) * agentsPerModel * float64(servers) * p.FrameHz
	fmt.Fprintf(w, "Emulated %d servers sending data every frame.\n", servers)
	fmt.Fprintf(w, "At %.1f agents per server, %.0f Hz, with %d different brains, expected %.0f samples/s.\n",
		float64(p.ModelsPerWorker)*agentsPerModel, p.FrameHz, p.ModelsPerWorker, expected)
	fmt.Fprintf(w, "Each message was %.0f bytes, which means we sent %.1f MBit/s\n",
		p.RequestBytes, r.OverallRate*p.RequestBytes*8/1_000_000)

	fmt.Fprintf(w, "Average rps: %.1f, max=%.1f, min=%.1f\n", r.WorkerRPS.Mean, r.WorkerRPS.Max, r.WorkerRPS.Min)
	fmt.Fprintf(w, "Average es: %.3f, max=%.3f, min=%.3f\n", r.WorkerElapsed.Mean, r.WorkerElapsed.Max, r.WorkerElapsed.Min)

	if r.SendErrs > 0 || r.DecodeErrs > 0 {
		fmt.Fprintf(w, "Errors: %d send, %d decode\n", r.SendErrs, r.DecodeErrs)
	}
}

// Record renders one comma-delimited numeric line per run for the plotting
// pipeline that consumes these results downstream.
func Record(p Params, r stats.Report) string {
	label := p.Label
	if label == "" {
		label = "run"
	}
	d := r.Latency
	fields := []string{
		label,
		fmt.Sprintf("%.6f", r.TotalElapsed.Seconds()),
		fmt.Sprintf("%d", r.TotalElements),
		fmt.Sprintf("%.3f", r.OverallRate),
		fmt.Sprintf("%.3f", d.Mean),
		fmt.Sprintf("%.3f", d.Mode),
		fmt.Sprintf("%.3f", d.Median),
		fmt.Sprintf("%.3f", d.Stddev),
		fmt.Sprintf("%.3f", d.Min),
		fmt.Sprintf("%.3f", d.Max),
		fmt.Sprintf("%.3f", r.WorkerRPS.Mean),
		fmt.Sprintf("%.3f", r.WorkerRPS.Max),
		fmt.Sprintf("%.3f", r.WorkerRPS.Min),
	}
	return strings.Join(fields, ",")
}
