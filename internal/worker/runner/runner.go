// Package runner executes worker tasks one at a time.
//
// A single goroutine started by Run owns the task state. Callers talk to it
// through requests, each answered on its own reply channel.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"

	"benchsuite/api/benchdriverapi"
	"benchsuite/internal/worker"
)

type Runner struct {
	Config   worker.Config
	requests chan request
}

func New(cfg worker.Config) *Runner {
	return &Runner{
		Config:   cfg,
		requests: make(chan request),
	}
}

type requestKind int

const (
	requestStatus requestKind = iota
	requestHealth
	requestStop
	requestSubmit
)

type request struct {
	kind  requestKind
	task  worker.Task
	reply chan reply
}

type reply struct {
	status benchdriverapi.APIWorkerStatus
	code   benchdriverapi.StatusCode
	err    error
}

// taskState is only touched by the Run goroutine.
type taskState struct {
	name   benchdriverapi.TaskName
	last   *benchdriverapi.Result[any]
	cancel context.CancelFunc
	done   chan benchdriverapi.Result[any] // nil when idle
}

func (s *taskState) busy() bool {
	return s.done != nil
}

func (s *taskState) status() benchdriverapi.APIWorkerStatus {
	code := benchdriverapi.StatusIdle
	if s.busy() {
		code = benchdriverapi.StatusBusy
	}
	return benchdriverapi.APIWorkerStatus{Code: code, Task: s.name, Last: s.last}
}

func (s *taskState) start(ctx context.Context, wg *sync.WaitGroup, task worker.Task) {
	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan benchdriverapi.Result[any], 1)

	s.name = task.Name
	s.last = nil
	s.cancel = cancel
	s.done = done

	log.Info().Str("task", string(task.Name)).Msg("starting task, worker is now busy")

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		v, err := runTask(taskCtx, task)
		if err != nil {
			log.Error().Err(err).Str("task", string(task.Name)).Msg("task failed")
		}
		done <- benchdriverapi.Result[any]{Value: v, Error: err}
	}()
}

func (s *taskState) finish(result benchdriverapi.Result[any]) {
	s.last = &result
	s.cancel = nil
	s.done = nil

	ev := log.Info()
	if result.Error != nil {
		ev = log.Warn().Err(result.Error)
	}
	ev.Str("task", string(s.name)).Msg("task finished, worker is now idle")
}

// Run serves requests until ctx is canceled. The active task is canceled and
// awaited before Run returns.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	var state taskState

	defer func() {
		if state.cancel != nil {
			state.cancel()
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case result := <-state.done:
			state.finish(result)
		case req := <-r.requests:
			req.reply <- r.handle(ctx, &state, &wg, req)
		}
	}
}

func (r *Runner) handle(ctx context.Context, state *taskState, wg *sync.WaitGroup, req request) reply {
	switch req.kind {
	case requestStatus:
		return reply{status: state.status()}

	case requestStop:
		if state.cancel != nil {
			state.cancel()
		}
		return reply{}

	case requestHealth:
		// active tasks report their own connection errors
		if state.busy() {
			return reply{code: benchdriverapi.StatusBusy}
		}
		if err := r.ping(ctx); err != nil {
			return reply{code: benchdriverapi.StatusDisconnected, err: err}
		}
		return reply{code: benchdriverapi.StatusIdle}

	case requestSubmit:
		if state.busy() {
			return reply{err: benchdriverapi.ErrorBusy(fmt.Errorf("worker is busy with %q", state.name))}
		}
		state.start(ctx, wg, req.task)
		return reply{}
	}
	panic(fmt.Sprintf("unknown runner request %d", req.kind))
}

func (r *Runner) ping(ctx context.Context) error {
	db, _, err := worker.OpenDB(r.Config)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

func (r *Runner) call(ctx context.Context, req request) (reply, error) {
	req.reply = make(chan reply, 1)
	select {
	case r.requests <- req:
		return <-req.reply, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

func (r *Runner) Healthcheck(ctx context.Context) (benchdriverapi.StatusCode, error) {
	resp, err := r.call(ctx, request{kind: requestHealth})
	if err != nil {
		return benchdriverapi.StatusDisconnected, err
	}
	return resp.code, resp.err
}

// Status returns the current task state. A canceled ctx yields the zero
// status.
func (r *Runner) Status(ctx context.Context) benchdriverapi.APIWorkerStatus {
	resp, _ := r.call(ctx, request{kind: requestStatus})
	return resp.status
}

func (r *Runner) CancelActive(ctx context.Context) error {
	_, err := r.call(ctx, request{kind: requestStop})
	return err
}

func (r *Runner) submit(ctx context.Context, task worker.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := r.call(ctx, request{kind: requestSubmit, task: task})
	if err != nil {
		return err
	}
	return resp.err
}

// BenchmarkWorker submits the tasks built by a factory to a runner.
type BenchmarkWorker[Config any] struct {
	*Runner
	factory worker.TaskFactory[Config]
}

func NewBenchmarkWorker[Config any](r *Runner, f worker.TaskFactory[Config]) *BenchmarkWorker[Config] {
	return &BenchmarkWorker[Config]{Runner: r, factory: f}
}

func (w *BenchmarkWorker[Config]) Prepare(ctx context.Context, cfg Config) error {
	return w.submitFrom(ctx, cfg, w.factory.Prepare)
}

func (w *BenchmarkWorker[Config]) Cleanup(ctx context.Context, cfg Config) error {
	return w.submitFrom(ctx, cfg, w.factory.Cleanup)
}

func (w *BenchmarkWorker[Config]) Run(ctx context.Context, cfg Config) error {
	return w.submitFrom(ctx, cfg, w.factory.Run)
}

func (w *BenchmarkWorker[Config]) submitFrom(ctx context.Context, cfg Config, build func(Config) (worker.Task, error)) error {
	task, err := build(cfg)
	if err != nil {
		return err
	}
	return w.submit(ctx, task)
}

func runTask(ctx context.Context, task worker.Task) (v any, err error) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("runner recovered from panic")
		if e, ok := p.(error); ok {
			err = e
		} else {
			err = fmt.Errorf("%v", p)
		}
	}()
	return task.Task(ctx)
}
