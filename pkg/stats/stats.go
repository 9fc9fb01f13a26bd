package stats

import (
	"math"
	"sort"
	"time"
)

// WorkerResult is produced exactly once by a worker at the end of its run
// and is read-only from then on.
type WorkerResult struct {
	Elapsed        time.Duration
	Elements       uint64
	LatenciesMS    []float64
	RequestsPerSec float64
	SendErrs       int
	DecodeErrs     int
}

// Distribution holds the fitted latency figures in milliseconds: a normal
// fit (mean, stddev) plus empirical mode/median/min/max over the samples.
type Distribution struct {
	Mean   float64
	Mode   float64
	Median float64
	Stddev float64
	Min    float64
	Max    float64
}

type Summary struct {
	Mean float64
	Max  float64
	Min  float64
}

type Report struct {
	TotalElapsed  time.Duration
	TotalElements uint64
	// OverallRate is elements per second over the global window, measured
	// from the barrier release instant to the last worker's completion.
	// Workers run concurrently, so this is a max-window division, never a
	// sum of per-worker rates.
	OverallRate   float64
	Latency       Distribution
	WorkerRPS     Summary
	WorkerElapsed Summary
	Workers       int
	Samples       int
	SendErrs      int
	DecodeErrs    int
}

// Aggregate reduces all worker results into one report. Pure function: the
// inputs are not modified and no state survives the call.
func Aggregate(results []WorkerResult, globalElapsed time.Duration) Report {
	r := Report{
		TotalElapsed: globalElapsed,
		Workers:      len(results),
	}

	var all []float64
	rps := make([]float64, 0, len(results))
	elapsed := make([]float64, 0, len(results))
	for _, wr := range results {
		r.TotalElements += wr.Elements
		r.SendErrs += wr.SendErrs
		r.DecodeErrs += wr.DecodeErrs
		all = append(all, wr.LatenciesMS...)
		rps = append(rps, wr.RequestsPerSec)
		elapsed = append(elapsed, wr.Elapsed.Seconds())
	}
	r.Samples = len(all)

	if secs := globalElapsed.Seconds(); secs > 0 {
		r.OverallRate = float64(r.TotalElements) / secs
	}
	r.Latency = fit(all)
	r.WorkerRPS = summarize(rps)
	r.WorkerElapsed = summarize(elapsed)
	return r
}

func fit(samples []float64) Distribution {
	if len(samples) == 0 {
		return Distribution{}
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var sq float64
	for _, v := range sorted {
		d := v - mean
		sq += d * d
	}
	stddev := 0.0
	if len(sorted) > 1 {
		stddev = math.Sqrt(sq / float64(len(sorted)-1))
	}

	return Distribution{
		Mean:   mean,
		Mode:   mode(sorted),
		Median: median(sorted),
		Stddev: stddev,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

// mode is the most frequent sample after rounding to 0.1 ms; ties go to the
// smallest value. Input must be sorted, which makes the tie break free.
func mode(sorted []float64) float64 {
	counts := make(map[float64]int, len(sorted))
	best := sorted[0]
	bestCount := 0
	for _, v := range sorted {
		key := math.Round(v*10) / 10
		counts[key]++
		if counts[key] > bestCount {
			bestCount = counts[key]
			best = key
		}
	}
	return best
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		if v > s.Max {
			s.Max = v
		}
		if v < s.Min {
			s.Min = v
		}
	}
	s.Mean = sum / float64(len(values))
	return s
}
