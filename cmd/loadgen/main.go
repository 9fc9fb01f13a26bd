package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/inferload/pkg/bench"
	"github.com/inferload/pkg/events"
	"github.com/inferload/pkg/history"
	"github.com/inferload/pkg/metrics"
	"github.com/inferload/pkg/observability"
	"github.com/inferload/pkg/report"
	"github.com/inferload/pkg/runstore"
	"github.com/inferload/pkg/synth"
	"github.com/inferload/pkg/target"
	"github.com/inferload/pkg/wire"
)

// inputList collects repeated -input name:d1,d2,... flags.
type inputList []wire.TensorSpec

func (il *inputList) String() string {
	parts := make([]string, 0, len(*il))
	for _, spec := range *il {
		dims := make([]string, len(spec.Shape))
		for i, d := range spec.Shape {
			dims[i] = strconv.Itoa(d)
		}
		parts = append(parts, spec.Name+":"+strings.Join(dims, ","))
	}
	return strings.Join(parts, " ")
}

func (il *inputList) Set(value string) error {
	name, dims, ok := strings.Cut(value, ":")
	if !ok || name == "" {
		return fmt.Errorf("expected name:dim1,dim2,..., got %q", value)
	}
	var shape []int
	for _, tok := range strings.Split(dims, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			return fmt.Errorf("bad dimension %q in %q", tok, value)
		}
		shape = append(shape, d)
	}
	*il = append(*il, wire.TensorSpec{Name: name, Shape: shape})
	return nil
}

func main() {
	host := flag.String("host", "127.0.0.1", "target host")
	port := flag.Int("port", 11223, "first target port")
	listeners := flag.Int("listeners", 4, "number of consecutive listener ports")
	batchSize := flag.Int("batch-size", 1, "maximum request batch size")
	count := flag.Int("count", 1, "total batch elements to send across the run")
	workers := flag.Int("workers", 240, "number of concurrent senders")
	scale := flag.Int("scale", 1, "emulated-server scale factor")
	modelsPerProc := flag.Int("models-per-proc", 1, "models each worker emulates")
	frameHz := flag.Float64("frame-hz", 15, "simulated frame rate per model")
	formatName := flag.String("format", "bytes", "length-field convention: bytes or elements")
	fillName := flag.String("fill", "random", "tensor fill: random or constant")
	label := flag.String("label", "", "run label for events and history")
	breaker := flag.Bool("breaker", false, "fast-fail sends through a circuit breaker on a dead target")
	record := flag.Bool("record", false, "also print the delimited record line")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics on this address during the run")

	var inputs inputList
	flag.Var(&inputs, "input", "input tensor as name:dim1,dim2,... (repeatable)")
	flag.Parse()

	format := wire.FormatByteLength
	switch *formatName {
	case "bytes":
	case "elements":
		format = wire.FormatElementCount
	default:
		fmt.Fprintf(os.Stderr, "invalid -format %q (expected bytes or elements)\n", *formatName)
		os.Exit(2)
	}

	fill := synth.FillRandom
	switch *fillName {
	case "random":
	case "constant":
		fill = synth.FillConstant
	default:
		fmt.Fprintf(os.Stderr, "invalid -fill %q (expected random or constant)\n", *fillName)
		os.Exit(2)
	}

	cfg := bench.Config{
		Host:            *host,
		Port:            *port,
		Listeners:       *listeners,
		BatchSize:       *batchSize,
		Inputs:          inputs,
		Format:          format,
		Fill:            fill,
		Count:           *count,
		Workers:         *workers,
		Scale:           *scale,
		ModelsPerWorker: *modelsPerProc,
		FrameHz:         *frameHz,
		Label:           *label,
		BreakerEnabled:  *breaker,
		MetricsAddr:     *metricsAddr,
		NATSURL:         os.Getenv("LOADGEN_NATS_URL"),
		RedisAddr:       os.Getenv("LOADGEN_REDIS_ADDR"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Inference load generator\n")
	fmt.Printf("  target:     %s:%d (+%d listeners)\n", cfg.Host, cfg.Port, cfg.Listeners)
	fmt.Printf("  batch size: %d\n", cfg.BatchSize)
	fmt.Printf("  inputs:     %s\n", inputs.String())
	fmt.Printf("  count:      %d\n", cfg.Count)
	fmt.Printf("  workers:    %d x%d scale, %d models/worker @ %.0f Hz\n\n",
		cfg.Workers, cfg.Scale, cfg.ModelsPerWorker, cfg.FrameHz)

	shutdown := observability.Init("loadgen")
	defer shutdown()

	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr)
	}

	ctx := context.Background()
	addrs := target.Addresses(cfg.Host, cfg.Port, cfg.Listeners)
	if err := target.Preflight(ctx, addrs); err != nil {
		fmt.Fprintf(os.Stderr, "preflight failed: %v\n", err)
		os.Exit(1)
	}

	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	startedAt := time.Now()

	runCtx := ctx
	var endSpan func()
	if observability.Tracer != nil {
		sctx, span := observability.Tracer.Start(ctx, "bench.run")
		span.SetAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.workers", cfg.Workers),
			attribute.Int("run.batch_size", cfg.BatchSize),
		)
		runCtx = sctx
		endSpan = func() { span.End() }
	}

	res, err := bench.Run(runCtx, cfg)
	if endSpan != nil {
		endSpan()
	}
	if err != nil {
		// Structural failure: no partial statistics are ever printed.
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	params := report.Params{
		Label:           cfg.Label,
		Workers:         cfg.Workers,
		Scale:           cfg.Scale,
		ModelsPerWorker: cfg.ModelsPerWorker,
		FrameHz:         cfg.FrameHz,
		RequestBytes:    representativeRequestBytes(cfg),
	}
	report.Write(os.Stdout, params, res.Report)
	if *record {
		fmt.Println(report.Record(params, res.Report))
	}

	publish(ctx, cfg, runID, startedAt, res)
}

// representativeRequestBytes mirrors the historical bandwidth estimate: the
// mean encoded size of a batch-1 and a batch-2 request.
func representativeRequestBytes(cfg bench.Config) float64 {
	b1, err := synth.Build(cfg.Format, 1, cfg.Inputs, cfg.Fill)
	if err != nil {
		return 0
	}
	b2, err := synth.Build(cfg.Format, 2, cfg.Inputs, cfg.Fill)
	if err != nil {
		return 0
	}
	return float64(len(b1)+len(b2)) / 2
}

// publish fans the finished report out to whichever optional sinks are
// configured. Sink failures are logged, never fatal: the run already
// succeeded and its summary is on stdout.
func publish(ctx context.Context, cfg bench.Config, runID string, startedAt time.Time, res bench.Result) {
	if cfg.NATSURL != "" {
		pub, err := events.NewPublisher(cfg.NATSURL)
		if err != nil {
			log.Printf("nats connect: %v", err)
		} else {
			defer pub.Close()
			if err := pub.PublishRun(runID, cfg.Label, res.Report); err != nil {
				log.Printf("publish run event: %v", err)
			}
		}
	}

	if cfg.RedisAddr != "" {
		store := runstore.New(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), 24*time.Hour)
		if err := store.Put(ctx, runID, res.Report); err != nil {
			log.Printf("store run report: %v", err)
		}
	}

	if cfg.DatabaseURL != "" {
		sink, err := history.Open(cfg.DatabaseURL)
		if err != nil {
			log.Printf("history open: %v", err)
		} else {
			defer sink.Close()
			if err := sink.Insert(runID, cfg.Label, startedAt, res.Report); err != nil {
				log.Printf("history insert: %v", err)
			}
		}
	}
}
