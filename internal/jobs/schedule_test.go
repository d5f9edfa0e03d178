package jobs

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []*SyncJob
}

func (p *recordingPublisher) PublishSync(ctx context.Context, job *SyncJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	job.JobID = "job"
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

type staticStore struct {
	JobStore
	jobs []*SyncJob
}

func (s staticStore) ListJobs(ctx context.Context, filter JobFilter) ([]*SyncJob, error) {
	return s.jobs, nil
}

func TestSchedule_RunNowWithoutInterval(t *testing.T) {
	pub := &recordingPublisher{}
	Schedule(context.Background(), pub, nil, 0, true)

	if pub.count() != 1 {
		t.Fatalf("published %d jobs, want 1", pub.count())
	}
	if pub.jobs[0].Trigger != TriggerScheduled {
		t.Errorf("trigger = %q, want %q", pub.jobs[0].Trigger, TriggerScheduled)
	}
}

func TestSchedule_TicksUntilCancelled(t *testing.T) {
	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Schedule(ctx, pub, nil, 5*time.Millisecond, false)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for pub.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("only %d jobs published", pub.count())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Schedule did not return after cancellation")
	}
}

func TestSchedule_SkipsWhileJobActive(t *testing.T) {
	pub := &recordingPublisher{}
	store := staticStore{jobs: []*SyncJob{{JobID: "running", Status: JobStatusRunning}}}

	Schedule(context.Background(), pub, store, 0, true)

	if pub.count() != 0 {
		t.Errorf("published %d jobs while one was active", pub.count())
	}
}

func TestActiveJob(t *testing.T) {
	store := staticStore{jobs: []*SyncJob{
		{JobID: "done", Status: JobStatusCompleted},
		{JobID: "retry", Status: JobStatusRetrying},
	}}

	job, err := ActiveJob(context.Background(), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job == nil || job.JobID != "retry" {
		t.Errorf("ActiveJob = %+v, want retry", job)
	}

	job, _ = ActiveJob(context.Background(), staticStore{})
	if job != nil {
		t.Errorf("ActiveJob on empty store = %+v, want nil", job)
	}
}
