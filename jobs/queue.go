// Package jobs applies decoded imports in the background.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/robertmeta/tpxa/store"
	"github.com/robertmeta/tpxa/tpxa"
)

// Status is the lifecycle state of an import job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrQueueFull is returned when no more imports can be queued.
var ErrQueueFull = errors.New("import queue is full")

// ErrClosed is returned when submitting to a stopped queue.
var ErrClosed = errors.New("import queue is closed")

// Applier writes a decoded blog somewhere.
type Applier interface {
	Apply(ctx context.Context, blog *tpxa.Blog) (*store.ApplyResult, error)
}

// Snapshot is a point-in-time copy of a job.
type Snapshot struct {
	ID        string             `json:"id"`
	Status    Status             `json:"status"`
	Source    string             `json:"source,omitempty"`
	Title     string             `json:"title,omitempty"`
	Submitted time.Time          `json:"submitted"`
	Started   *time.Time         `json:"started,omitempty"`
	Finished  *time.Time         `json:"finished,omitempty"`
	Result    *store.ApplyResult `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
}

type job struct {
	snap Snapshot
	blog *tpxa.Blog
}

// Queue holds pending imports and the state of finished ones.
type Queue struct {
	applier Applier
	logger  *slog.Logger
	now     func() time.Time

	pending chan *job

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
}

// NewQueue creates a queue holding at most size pending jobs.
func NewQueue(applier Applier, size int, logger *slog.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		applier: applier,
		logger:  logger,
		now:     time.Now,
		pending: make(chan *job, size),
		jobs:    make(map[string]*job),
	}
}

// Enqueue schedules blog for application and returns the job id.
func (q *Queue) Enqueue(blog *tpxa.Blog, source string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	j := &job{
		blog: blog,
		snap: Snapshot{
			ID:        "imp-" + id,
			Status:    StatusQueued,
			Source:    source,
			Title:     blog.Title,
			Submitted: q.now().UTC(),
		},
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}
	select {
	case q.pending <- j:
	default:
		return "", ErrQueueFull
	}
	q.jobs[j.snap.ID] = j
	q.logger.Info("import queued", "job", j.snap.ID, "source", source, "posts", len(blog.Posts))
	return j.snap.ID, nil
}

// Get returns a snapshot of the job with the given id.
func (q *Queue) Get(id string) (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return j.snap, true
}

// Run applies queued jobs one at a time until ctx is done. Jobs still
// pending at that point are marked failed.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.shutdown(ctx.Err())
			return nil
		case j := <-q.pending:
			if err := ctx.Err(); err != nil {
				q.mu.Lock()
				q.cancelJob(j, err)
				q.mu.Unlock()
				continue
			}
			q.process(ctx, j)
		}
	}
}

func (q *Queue) process(ctx context.Context, j *job) {
	started := q.now().UTC()
	q.update(j, func(s *Snapshot) {
		s.Status = StatusRunning
		s.Started = &started
	})

	result, err := q.applier.Apply(ctx, j.blog)

	finished := q.now().UTC()
	q.update(j, func(s *Snapshot) {
		s.Finished = &finished
		if err != nil {
			s.Status = StatusFailed
			s.Error = err.Error()
			return
		}
		s.Status = StatusCompleted
		s.Result = result
	})
	j.blog = nil

	if err != nil {
		q.logger.Error("import failed", "job", j.snap.ID, "error", err)
		return
	}
	q.logger.Info("import completed", "job", j.snap.ID,
		"posts", result.Posts, "pages", result.Pages, "comments", result.Comments,
		"skipped", result.Skipped, "duration", finished.Sub(started))
}

func (q *Queue) update(j *job, fn func(*Snapshot)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn(&j.snap)
}

func (q *Queue) shutdown(cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for {
		select {
		case j := <-q.pending:
			q.cancelJob(j, cause)
		default:
			return
		}
	}
}

// cancelJob marks a job that never ran as failed. q.mu must be held.
func (q *Queue) cancelJob(j *job, cause error) {
	finished := q.now().UTC()
	j.snap.Status = StatusFailed
	j.snap.Error = fmt.Sprintf("import cancelled: %v", cause)
	j.snap.Finished = &finished
	j.blog = nil
}
