package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueScheduler is an in-memory scheduler of the shape the runtime is
// invoked by: jobs are enqueued with an id and drained elsewhere.
type queueScheduler struct {
	nextID int
	jobs   map[string][]JobDescriptor
}

var _ JobScheduler = (*queueScheduler)(nil)

func newQueueScheduler() *queueScheduler {
	return &queueScheduler{jobs: make(map[string][]JobDescriptor)}
}

func (s *queueScheduler) enqueue(kind string, job JobDescriptor) (string, error) {
	if job.Provider == "" {
		return "", fmt.Errorf("job descriptor requires a provider")
	}
	s.nextID++
	s.jobs[kind] = append(s.jobs[kind], job)
	return fmt.Sprintf("job-%d", s.nextID), nil
}

func (s *queueScheduler) ScheduleBackfillJob(ctx context.Context, job JobDescriptor) (string, error) {
	return s.enqueue("backfill", job)
}

func (s *queueScheduler) ScheduleDeltaJob(ctx context.Context, job JobDescriptor) (string, error) {
	return s.enqueue("delta", job)
}

func (s *queueScheduler) ScheduleWebhookJob(ctx context.Context, job JobDescriptor) (string, error) {
	return s.enqueue("webhook", job)
}

func (s *queueScheduler) ScheduleHealthJob(ctx context.Context, job JobDescriptor) (string, error) {
	return s.enqueue("health", job)
}

func (s *queueScheduler) QueueStats(ctx context.Context) (QueueStats, error) {
	pending := 0
	for _, jobs := range s.jobs {
		pending += len(jobs)
	}
	return QueueStats{Pending: pending}, nil
}

func TestJobSchedulerContract(t *testing.T) {
	ctx := context.Background()
	var scheduler JobScheduler = newQueueScheduler()

	job := JobDescriptor{Provider: "hubspot", TenantID: "t1", InstallID: "i1", Cursor: "51"}

	backfillID, err := scheduler.ScheduleBackfillJob(ctx, job)
	require.NoError(t, err)
	deltaID, err := scheduler.ScheduleDeltaJob(ctx, job)
	require.NoError(t, err)
	webhookID, err := scheduler.ScheduleWebhookJob(ctx, job)
	require.NoError(t, err)
	healthID, err := scheduler.ScheduleHealthJob(ctx, job)
	require.NoError(t, err)

	ids := map[string]bool{backfillID: true, deltaID: true, webhookID: true, healthID: true}
	assert.Len(t, ids, 4, "every scheduled job gets a distinct id")

	stats, err := scheduler.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Pending)
}

func TestJobSchedulerRejectsIncompleteDescriptor(t *testing.T) {
	scheduler := newQueueScheduler()

	_, err := scheduler.ScheduleBackfillJob(context.Background(), JobDescriptor{TenantID: "t1"})
	assert.Error(t, err)
}
