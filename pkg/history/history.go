package history

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/inferload/pkg/stats"
)

// Schema is the table the sink writes into; one flat numeric row per run so
// downstream plotting can select straight into CSV.
const Schema = `
CREATE TABLE IF NOT EXISTS bench_runs (
	run_id          TEXT PRIMARY KEY,
	label           TEXT,
	started_at      TIMESTAMPTZ NOT NULL,
	workers         INT NOT NULL,
	total_elapsed_s DOUBLE PRECISION NOT NULL,
	total_elements  BIGINT NOT NULL,
	overall_rate    DOUBLE PRECISION NOT NULL,
	lat_mean_ms     DOUBLE PRECISION NOT NULL,
	lat_mode_ms     DOUBLE PRECISION NOT NULL,
	lat_median_ms   DOUBLE PRECISION NOT NULL,
	lat_stddev_ms   DOUBLE PRECISION NOT NULL,
	lat_min_ms      DOUBLE PRECISION NOT NULL,
	lat_max_ms      DOUBLE PRECISION NOT NULL,
	rps_mean        DOUBLE PRECISION NOT NULL,
	rps_max         DOUBLE PRECISION NOT NULL,
	rps_min         DOUBLE PRECISION NOT NULL,
	send_errs       INT NOT NULL,
	decode_errs     INT NOT NULL
)`

type Sink struct {
	db *sql.DB
}

func Open(databaseURL string) (*Sink, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Sink{db: db}, nil
}

func (s *Sink) Insert(runID, label string, startedAt time.Time, r stats.Report) error {
	_, err := s.db.Exec(`
		INSERT INTO bench_runs (
			run_id, label, started_at, workers, total_elapsed_s,
			total_elements, overall_rate,
			lat_mean_ms, lat_mode_ms, lat_median_ms, lat_stddev_ms,
			lat_min_ms, lat_max_ms,
			rps_mean, rps_max, rps_min,
			send_errs, decode_errs
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		runID, label, startedAt, r.Workers, r.TotalElapsed.Seconds(),
		int64(r.TotalElements), r.OverallRate,
		r.Latency.Mean, r.Latency.Mode, r.Latency.Median, r.Latency.Stddev,
		r.Latency.Min, r.Latency.Max,
		r.WorkerRPS.Mean, r.WorkerRPS.Max, r.WorkerRPS.Min,
		r.SendErrs, r.DecodeErrs,
	)
	return err
}

func (s *Sink) Close() error {
	return s.db.Close()
}
