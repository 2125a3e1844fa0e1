package memq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
)

type memStore struct {
	mu     sync.Mutex
	states map[string]domain.JobState
}

func newMemStore() *memStore {
	return &memStore{states: map[string]domain.JobState{}}
}

func (m *memStore) Create(_ context.Context, in domain.JobInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[in.JobID] = domain.JobState{Status: domain.JobQueued}
	return nil
}

func (m *memStore) Get(_ context.Context, jobID string) (domain.JobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[jobID]
	if !ok {
		return domain.JobState{}, domain.ErrNotFound
	}
	return st, nil
}

func (m *memStore) GetInput(_ context.Context, jobID string) (domain.JobInput, error) {
	return domain.JobInput{JobID: jobID}, nil
}

func (m *memStore) Update(_ context.Context, jobID string, mutate func(*domain.JobState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[jobID]
	mutate(&st)
	m.states[jobID] = st
	return nil
}

func (m *memStore) SaveHTML(context.Context, string, string) (string, error) { return "", nil }
func (m *memStore) SavePreviewPNG(context.Context, string, []byte) (string, error) {
	return "", nil
}
func (m *memStore) PreviewPNGPath(string) (string, bool) { return "", false }
func (m *memStore) ResultHTMLPath(string) (string, bool) { return "", false }

type runnerFunc func(ctx context.Context, jobID string) error

func (f runnerFunc) Run(ctx context.Context, jobID string) error { return f(ctx, jobID) }

func TestWorkerMarksFailedJobsAndContinues(t *testing.T) {
	q := New()
	store := newMemStore()
	require.NoError(t, store.Create(context.Background(), domain.JobInput{JobID: "bad"}))
	require.NoError(t, store.Create(context.Background(), domain.JobInput{JobID: "good"}))

	done := make(chan struct{})
	runner := runnerFunc(func(_ context.Context, jobID string) error {
		if jobID == "bad" {
			return errors.New("pipeline failed: boom")
		}
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWorker(q, store, runner)
	go func() { _ = w.Run(ctx) }()

	q.Enqueue("bad")
	q.Enqueue("good")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not reach the second job")
	}

	st, err := store.Get(context.Background(), "bad")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, st.Status)
	assert.Equal(t, "", st.Step)
	assert.Contains(t, st.Error, "boom")
}

func TestWorkerStopsCleanlyOnCancel(t *testing.T) {
	q := New()
	w := NewWorker(q, newMemStore(), runnerFunc(func(context.Context, string) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerLeavesRecordNonTerminalOnShutdown(t *testing.T) {
	q := New()
	store := newMemStore()
	require.NoError(t, store.Create(context.Background(), domain.JobInput{JobID: "j1"}))

	ctx, cancel := context.WithCancel(context.Background())
	runner := runnerFunc(func(runCtx context.Context, _ string) error {
		cancel()
		<-runCtx.Done()
		return runCtx.Err()
	})

	w := NewWorker(q, store, runner)
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	q.Enqueue("j1")

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	st, err := store.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.False(t, st.Status.Terminal())
}
