package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	JobPendingSweep    = "pending_update_sweep"
	JobLegacyMigration = "legacy_migration"
)

// Sweeper discards expired pending updates.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// RunRecorder is told about each finished run, typically a metrics collector.
type RunRecorder interface {
	JobRun(jobType, status string)
}

// Service runs background jobs from a bounded queue. When DB is set every
// run is bookkept in job_runs.
type Service struct {
	DB       *pgxpool.Pool
	Recorder RunRecorder
	queue    chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(db *pgxpool.Pool, recorder RunRecorder) *Service {
	return &Service{
		DB:       db,
		Recorder: recorder,
		queue:    make(chan job, 128),
	}
}

// Start launches the worker and, when interval is positive, the periodic
// sweep of expired pending updates.
func (s *Service) Start(ctx context.Context, sweeper Sweeper, interval time.Duration) {
	go s.worker(ctx)
	if sweeper != nil && interval > 0 {
		go s.scheduleSweeps(ctx, sweeper, interval)
	}
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.DB != nil {
		if err := s.DB.QueryRow(ctx, `
      INSERT INTO job_runs (job_type, status)
      VALUES ($1,$2)
      RETURNING id::text
    `, j.Type, "running").Scan(&runID); err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	if s.Recorder != nil {
		s.Recorder.JobRun(j.Type, status)
	}

	if runID != "" {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			slog.Warn("job details marshal failed", "err", marshalErr)
			detailsJSON = []byte("{}")
		}
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) scheduleSweeps(ctx context.Context, sweeper Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(JobPendingSweep, SweepJob(sweeper))
		}
	}
}

// SweepJob adapts a Sweeper to the job runner.
func SweepJob(sweeper Sweeper) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		removed, err := sweeper.SweepExpired(ctx)
		return map[string]any{"expired": removed}, err
	}
}
