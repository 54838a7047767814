package enrich

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"shelf/internal/tagging"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("tag queue closed")

// TagRunner runs AI tagging for one item. *Enricher implements it.
type TagRunner interface {
	RunAITagging(ctx context.Context, itemID string, in tagging.Input)
}

type tagJob struct {
	itemID string
	input  tagging.Input
}

// TagQueue runs AI tagging on a fixed pool of workers, off the path that
// answers the user.
type TagQueue struct {
	runner TagRunner
	ctx    context.Context
	jobs   chan tagJob
	wg     sync.WaitGroup
	log    logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
}

// NewTagQueue starts workers that run jobs with ctx. Cancelling ctx does not
// stop the workers; Close does.
func NewTagQueue(ctx context.Context, runner TagRunner, workers int, logger logrus.FieldLogger) *TagQueue {
	if workers < 1 {
		workers = 1
	}
	q := &TagQueue{
		runner: runner,
		ctx:    context.WithoutCancel(ctx),
		jobs:   make(chan tagJob, workers*16),
		log:    logger.WithField("component", "tag_queue"),
	}
	for w := 0; w < workers; w++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				q.run(job)
			}
		}()
	}
	return q
}

// run is the error boundary for one job.
func (q *TagQueue) run(job tagJob) {
	defer func() {
		if r := recover(); r != nil {
			q.log.WithFields(logrus.Fields{"item_id": job.itemID, "panic": r}).Error("Background AI tagging panicked")
		}
	}()
	q.runner.RunAITagging(q.ctx, job.itemID, job.input)
}

// Submit enqueues tagging for an item. It blocks while the queue is full
// until ctx is done.
func (q *TagQueue) Submit(ctx context.Context, itemID string, in tagging.Input) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- tagJob{itemID: itemID, input: in}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *TagQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	q.log.Info("Tag queue drained")
}
