package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"CoinCast/internal/domain/models"
)

func blockingTask(release <-chan struct{}, result int, err error) Task {
	return func(ctx context.Context) (int, error) {
		<-release
		return result, err
	}
}

func waitForState(t *testing.T, r *Registry, key string, want models.JobState) models.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j := r.Status(key, "", "")
		if j.State == want {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %s", key, want)
	return models.Job{}
}

func TestStartRunsTask(t *testing.T) {
	r := NewRegistry(nil)
	release := make(chan struct{})

	j := r.Start("prices", "refresh", "Prices", blockingTask(release, 42, nil))
	if j.State != models.JobRunning {
		t.Fatalf("expected running, got %s", j.State)
	}
	if j.Message != "Prices update running." {
		t.Fatalf("unexpected message %q", j.Message)
	}

	close(release)
	done := waitForState(t, r, "prices", models.JobDone)
	if done.Result != 42 {
		t.Fatalf("expected result 42, got %d", done.Result)
	}
	if done.Message != "Prices updated: 42 points." {
		t.Fatalf("unexpected message %q", done.Message)
	}
}

func TestStartSameKeyIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	release := make(chan struct{})

	r.Start("prices", "refresh", "Prices", blockingTask(release, 1, nil))
	again := r.Start("prices", "refresh", "Prices", blockingTask(release, 2, nil))
	if again.State != models.JobRunning {
		t.Fatalf("expected running snapshot, got %s", again.State)
	}

	close(release)
	done := waitForState(t, r, "prices", models.JobDone)
	if done.Result != 1 {
		t.Fatalf("second task must not have run, got result %d", done.Result)
	}
}

func TestStartOtherKeyReportsBusy(t *testing.T) {
	r := NewRegistry(nil)
	release := make(chan struct{})
	defer close(release)

	r.Start("train", "train", "Global model", blockingTask(release, 0, nil))
	j := r.Start("forecast_1", "forecast", "BTC", blockingTask(release, 0, nil))

	if j.State != models.JobBusy {
		t.Fatalf("expected busy, got %s", j.State)
	}
	if j.Message != "Busy: Global model is still running." {
		t.Fatalf("unexpected busy message %q", j.Message)
	}
	// The rejected job leaves no state behind.
	if got := r.Status("forecast_1", "", ""); got.State != models.JobIdle {
		t.Fatalf("rejected job left state %s", got.State)
	}
}

func TestFailedJobKeepsError(t *testing.T) {
	r := NewRegistry(nil)
	release := make(chan struct{})

	r.Start("train", "train", "Global model", blockingTask(release, 0, errors.New("no trainable assets")))
	close(release)

	j := waitForState(t, r, "train", models.JobError)
	if !strings.Contains(j.Message, "no trainable assets") {
		t.Fatalf("unexpected error message %q", j.Message)
	}
	if j.FinishedAt.IsZero() {
		t.Fatalf("finished timestamp not set")
	}
}

func TestStatusUnknownKeyIsIdle(t *testing.T) {
	r := NewRegistry(nil)
	j := r.Status("nope", "refresh", "Nope")
	if j.State != models.JobIdle {
		t.Fatalf("expected idle, got %s", j.State)
	}
	if j.Key != "nope" || j.Label != "Nope" {
		t.Fatalf("unexpected snapshot %+v", j)
	}
}

func TestRestartAfterCompletion(t *testing.T) {
	r := NewRegistry(nil)

	release := make(chan struct{})
	r.Start("prices", "refresh", "Prices", blockingTask(release, 1, nil))
	close(release)
	waitForState(t, r, "prices", models.JobDone)

	release2 := make(chan struct{})
	j := r.Start("prices", "refresh", "Prices", blockingTask(release2, 2, nil))
	if j.State != models.JobRunning {
		t.Fatalf("expected fresh run, got %s", j.State)
	}
	if !r.Running() {
		t.Fatalf("expected registry to report running")
	}
	close(release2)
	done := waitForState(t, r, "prices", models.JobDone)
	if done.Result != 2 {
		t.Fatalf("expected result 2, got %d", done.Result)
	}
}
