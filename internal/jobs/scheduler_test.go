package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/akshitverma317/diagnoai/internal/config"
)

type fakeQueue struct {
	mu   sync.Mutex
	args []*redis.XAddArgs
	err  error
}

func (f *fakeQueue) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func TestEnqueueTask(t *testing.T) {
	queue := &fakeQueue{}
	s := NewScheduler(queue, "diagnoai:jobs", config.JobsConfig{}, zerolog.Nop())

	s.enqueueSweep()
	s.enqueueCleanup()

	if len(queue.args) != 2 {
		t.Fatalf("XAdd calls = %d, want 2", len(queue.args))
	}
	for i, want := range []string{TaskSubscriptionSweep, TaskRetentionCleanup} {
		args := queue.args[i]
		if args.Stream != "diagnoai:jobs" {
			t.Errorf("stream = %q", args.Stream)
		}
		values, _ := args.Values.(map[string]any)
		if values["type"] != want {
			t.Errorf("task %d type = %v, want %s", i, values["type"], want)
		}
	}
}

func TestEnqueueFailureIsLogged(t *testing.T) {
	queue := &fakeQueue{err: errors.New("redis down")}
	s := NewScheduler(queue, "diagnoai:jobs", config.JobsConfig{}, zerolog.Nop())

	if err := s.enqueueTask(TaskSubscriptionSweep); err == nil {
		t.Fatal("enqueueTask() error = nil, want error")
	}
	s.enqueueSweep()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&fakeQueue{}, "diagnoai:jobs", config.JobsConfig{SweepSchedule: "every hour"}, zerolog.Nop())
	if err := s.Start(); err == nil {
		t.Fatal("Start() error = nil, want parse error")
	}
}

func TestStartAndStop(t *testing.T) {
	s := NewScheduler(&fakeQueue{}, "diagnoai:jobs", config.JobsConfig{
		SweepSchedule:   "0 0 * * * *",
		CleanupSchedule: "0 30 3 * * *",
	}, zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
	s.Stop(time.Second)
}
