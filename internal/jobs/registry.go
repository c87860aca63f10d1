package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
	"CoinCast/pkg/logger"
)

// Task is the unit of background work. It returns a point count for
// the job result.
type Task func(ctx context.Context) (int, error)

// Registry is an in-memory single-flight job runner. At most one job
// runs at a time across all keys; starting the same key again while
// it runs is idempotent, starting a different key reports busy. State
// lives for the process lifetime only.
type Registry struct {
	mu      sync.Mutex
	jobs    map[string]*models.Job
	metrics repository.Metrics
	log     *logger.Logger
}

func NewRegistry(metrics repository.Metrics) *Registry {
	return &Registry{jobs: make(map[string]*models.Job), metrics: metrics}
}

func (r *Registry) SetLogger(l *logger.Logger) { r.log = l }

// Start admits a job under key. The returned snapshot reflects the
// admission outcome: the running job (new or already in flight), or a
// busy marker when another key holds the runner.
func (r *Registry) Start(key, jobType, label string, task Task) models.Job {
	r.mu.Lock()

	if j, ok := r.jobs[key]; ok && j.State == models.JobRunning {
		snap := *j
		r.mu.Unlock()
		return snap
	}
	for k, j := range r.jobs {
		if k != key && j.State == models.JobRunning {
			busyLabel := j.Label
			r.mu.Unlock()
			if r.metrics != nil {
				r.metrics.RecordJob(string(models.JobBusy))
			}
			return models.Job{
				Key:     key,
				Type:    jobType,
				Label:   label,
				State:   models.JobBusy,
				Message: fmt.Sprintf("Busy: %s is still running.", busyLabel),
			}
		}
	}

	j := &models.Job{
		Key:       key,
		Type:      jobType,
		Label:     label,
		State:     models.JobRunning,
		Message:   fmt.Sprintf("%s update running.", label),
		StartedAt: time.Now().UTC(),
	}
	r.jobs[key] = j
	snap := *j
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordJob(string(models.JobRunning))
	}
	if r.log != nil {
		r.log.Info("job started", logger.String("key", key), logger.String("type", jobType))
	}
	go r.run(key, label, task)
	return snap
}

func (r *Registry) run(key, label string, task Task) {
	result, err := task(context.Background())

	r.mu.Lock()
	j, ok := r.jobs[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	j.FinishedAt = time.Now().UTC()
	if err != nil {
		j.State = models.JobError
		j.Message = err.Error()
	} else {
		j.State = models.JobDone
		j.Result = result
		j.Message = fmt.Sprintf("%s updated: %d points.", label, result)
	}
	state := j.State
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordJob(string(state))
	}
	if r.log != nil {
		if err != nil {
			r.log.Error("job failed", logger.String("key", key), logger.Error(err))
		} else {
			r.log.Info("job finished", logger.String("key", key), logger.Int("result", result))
		}
	}
}

// Status returns a snapshot for key; unknown keys report idle.
func (r *Registry) Status(key, jobType, label string) models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[key]; ok {
		return *j
	}
	return models.Job{Key: key, Type: jobType, Label: label, State: models.JobIdle}
}

// Running reports whether any job is currently in flight.
func (r *Registry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.State == models.JobRunning {
			return true
		}
	}
	return false
}
