package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/tpxa/logger"
	"github.com/robertmeta/tpxa/store"
	"github.com/robertmeta/tpxa/tpxa"
)

type fakeApplier struct {
	mu      sync.Mutex
	applied []*tpxa.Blog
	err     error
	block   chan struct{}
}

func (f *fakeApplier) Apply(ctx context.Context, blog *tpxa.Blog) (*store.ApplyResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.applied = append(f.applied, blog)
	return &store.ApplyResult{Posts: len(blog.Posts)}, nil
}

func waitFor(t *testing.T, q *Queue, id string, want Status) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		var ok bool
		snap, ok = q.Get(id)
		return ok && snap.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func TestQueue_Completes(t *testing.T) {
	applier := &fakeApplier{}
	q := NewQueue(applier, 4, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	blog := &tpxa.Blog{Title: "Example", Posts: []*tpxa.Post{{UID: "a"}, {UID: "b"}}}
	id, err := q.Enqueue(blog, "upload")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "imp-"))

	snap := waitFor(t, q, id, StatusCompleted)
	assert.Equal(t, "Example", snap.Title)
	assert.Equal(t, "upload", snap.Source)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 2, snap.Result.Posts)
	assert.NotNil(t, snap.Started)
	assert.NotNil(t, snap.Finished)
	assert.Empty(t, snap.Error)
}

func TestQueue_Fails(t *testing.T) {
	q := NewQueue(&fakeApplier{err: errors.New("disk full")}, 1, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	id, err := q.Enqueue(&tpxa.Blog{}, "http://example.com/blog.tpxa")
	require.NoError(t, err)

	snap := waitFor(t, q, id, StatusFailed)
	assert.Equal(t, "disk full", snap.Error)
	assert.Nil(t, snap.Result)
}

func TestQueue_Full(t *testing.T) {
	q := NewQueue(&fakeApplier{}, 1, logger.Discard())

	_, err := q.Enqueue(&tpxa.Blog{}, "first")
	require.NoError(t, err)
	_, err = q.Enqueue(&tpxa.Blog{}, "second")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueue_ShutdownFailsPending(t *testing.T) {
	applier := &fakeApplier{block: make(chan struct{})}
	q := NewQueue(applier, 4, logger.Discard())

	running, err := q.Enqueue(&tpxa.Blog{}, "running")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()
	waitFor(t, q, running, StatusRunning)

	pending, err := q.Enqueue(&tpxa.Blog{}, "pending")
	require.NoError(t, err)

	cancel()
	<-done

	snap, ok := q.Get(pending)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "import cancelled")

	snap, _ = q.Get(running)
	assert.Equal(t, StatusFailed, snap.Status)

	_, err = q.Enqueue(&tpxa.Blog{}, "late")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_GetUnknown(t *testing.T) {
	q := NewQueue(&fakeApplier{}, 1, nil)
	_, ok := q.Get("imp-missing")
	assert.False(t, ok)
}
