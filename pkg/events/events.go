package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/inferload/pkg/stats"
)

type Publisher struct {
	nc *nats.Conn
}

// RunEvent is the completion record published after a successful run.
// Structurally failed runs publish nothing.
type RunEvent struct {
	EventType     string    `json:"event_type"`
	RunID         string    `json:"run_id"`
	Label         string    `json:"label,omitempty"`
	Workers       int       `json:"workers"`
	TotalElapsed  float64   `json:"total_elapsed_seconds"`
	TotalElements uint64    `json:"total_elements"`
	OverallRate   float64   `json:"overall_rate"`
	MeanLatencyMS float64   `json:"mean_latency_ms"`
	P50LatencyMS  float64   `json:"p50_latency_ms"`
	MaxLatencyMS  float64   `json:"max_latency_ms"`
	SendErrs      int       `json:"send_errs"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewPublisher(natsURL string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

func (p *Publisher) PublishRun(runID, label string, r stats.Report) error {
	event := RunEvent{
		EventType:     "run_completed",
		RunID:         runID,
		Label:         label,
		Workers:       r.Workers,
		TotalElapsed:  r.TotalElapsed.Seconds(),
		TotalElements: r.TotalElements,
		OverallRate:   r.OverallRate,
		MeanLatencyMS: r.Latency.Mean,
		P50LatencyMS:  r.Latency.Median,
		MaxLatencyMS:  r.Latency.Max,
		SendErrs:      r.SendErrs,
		Timestamp:     time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	subject := "bench.runs"
	if label != "" {
		subject = "bench.runs." + label
	}

	if err := p.nc.Publish(subject, data); err != nil {
		log.Printf("failed to publish run event: %v", err)
		return err
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
