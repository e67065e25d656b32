package runner

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchsuite/api/benchdriverapi"
	"benchsuite/internal/worker"
	"benchsuite/pkg/suitedb"
)

type fakeFactory struct {
	task func(context.Context) (any, error)
}

func (f fakeFactory) Prepare(string) (worker.Task, error) {
	return worker.Task{Name: "fake/prepare", Task: f.task}, nil
}

func (f fakeFactory) Cleanup(string) (worker.Task, error) {
	return worker.Task{Name: "fake/cleanup", Task: f.task}, nil
}

func (f fakeFactory) Run(cfg string) (worker.Task, error) {
	if cfg == "" {
		return worker.Task{}, benchdriverapi.ErrorBadRequest(errors.New("missing config"))
	}
	return worker.Task{Name: "fake/run", Task: f.task}, nil
}

func startRunner(t *testing.T, cfg worker.Config) *Runner {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := New(cfg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func sqliteConfig() worker.Config {
	return worker.Config{Target: suitedb.Config{Driver: "sqlite3", DSN: "file::memory:"}}
}

func waitIdle(t *testing.T, r *Runner) benchdriverapi.APIWorkerStatus {
	t.Helper()
	var status benchdriverapi.APIWorkerStatus
	require.Eventually(t, func() bool {
		status = r.Status(context.Background())
		return status.Code == benchdriverapi.StatusIdle && status.Last != nil
	}, 5*time.Second, 10*time.Millisecond)
	return status
}

func TestIdleStatus(t *testing.T) {
	r := startRunner(t, sqliteConfig())

	status := r.Status(context.Background())
	assert.Equal(t, benchdriverapi.StatusIdle, status.Code)
	assert.Empty(t, status.Task)
	assert.Nil(t, status.Last)
}

func TestTaskResult(t *testing.T) {
	r := startRunner(t, sqliteConfig())
	w := NewBenchmarkWorker[string](r, fakeFactory{task: func(context.Context) (any, error) {
		return "done", nil
	}})

	ctx := context.Background()
	require.NoError(t, w.Run(ctx, "cfg"))

	status := waitIdle(t, r)
	assert.Equal(t, benchdriverapi.TaskName("fake/run"), status.Task)
	assert.NoError(t, status.Last.Error)
	assert.Equal(t, "done", status.Last.Value)
}

func TestRejectsTaskWhileBusy(t *testing.T) {
	r := startRunner(t, sqliteConfig())
	release := make(chan struct{})
	w := NewBenchmarkWorker[string](r, fakeFactory{task: func(ctx context.Context) (any, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}})

	ctx := context.Background()
	require.NoError(t, w.Prepare(ctx, "cfg"))

	status := r.Status(ctx)
	assert.Equal(t, benchdriverapi.StatusBusy, status.Code)
	assert.Equal(t, benchdriverapi.TaskName("fake/prepare"), status.Task)

	err := w.Run(ctx, "cfg")
	var statusErr *benchdriverapi.StatusError
	require.True(t, errors.As(err, &statusErr), "unexpected error %v", err)
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode())

	code, err := r.Healthcheck(ctx)
	assert.NoError(t, err)
	assert.Equal(t, benchdriverapi.StatusBusy, code)

	// the rejected task must not replace the active one
	assert.Equal(t, benchdriverapi.TaskName("fake/prepare"), r.Status(ctx).Task)

	close(release)
	status = waitIdle(t, r)
	assert.Equal(t, benchdriverapi.TaskName("fake/prepare"), status.Task)
	assert.NoError(t, status.Last.Error)
}

func TestCancelActive(t *testing.T) {
	r := startRunner(t, sqliteConfig())
	w := NewBenchmarkWorker[string](r, fakeFactory{task: func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	ctx := context.Background()
	require.NoError(t, w.Cleanup(ctx, "cfg"))
	require.NoError(t, r.CancelActive(ctx))

	status := waitIdle(t, r)
	assert.ErrorIs(t, status.Last.Error, context.Canceled)
}

func TestCancelWhenIdle(t *testing.T) {
	r := startRunner(t, sqliteConfig())
	assert.NoError(t, r.CancelActive(context.Background()))
}

func TestTaskPanicIsRecovered(t *testing.T) {
	r := startRunner(t, sqliteConfig())
	w := NewBenchmarkWorker[string](r, fakeFactory{task: func(context.Context) (any, error) {
		panic("boom")
	}})

	require.NoError(t, w.Run(context.Background(), "cfg"))
	status := waitIdle(t, r)
	require.Error(t, status.Last.Error)
	assert.Equal(t, "boom", status.Last.Error.Error())
}

func TestFactoryErrorIsReturned(t *testing.T) {
	r := startRunner(t, sqliteConfig())
	w := NewBenchmarkWorker[string](r, fakeFactory{})

	err := w.Run(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, benchdriverapi.StatusIdle, r.Status(context.Background()).Code)
}

func TestHealthcheck(t *testing.T) {
	code, err := startRunner(t, sqliteConfig()).Healthcheck(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, benchdriverapi.StatusIdle, code)

	code, err = startRunner(t, worker.Config{}).Healthcheck(context.Background())
	assert.Error(t, err)
	assert.Equal(t, benchdriverapi.StatusDisconnected, code)
}
