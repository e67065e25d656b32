package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	dto "github.com/prometheus/client_model/go"

	"benchsuite/api/benchdriverapi"
)

const DefaultBenchmark = "suite"

type Benchmarks struct {
	parent *Client
}

type ExecConfig struct {
	Name      string         `json:"name" yaml:"name"`
	Groups    []WorkerGroup  `json:"groups" yaml:"groups"`
	Benchmark string         `json:"benchmark" yaml:"benchmark"`
	Config    map[string]any `json:"config" yaml:"config"`
}

// WorkerGroup is a set of workers sharing one suite store. Prepare and
// cleanup are sent to the first worker of a group only.
type WorkerGroup struct {
	Name string   `json:"name" yaml:"name"`
	URLs []string `json:"urls" yaml:"urls"`
}

type workerGroup struct {
	name string
	urls []*url.URL
}

type BenchmarkInstance struct {
	parent   *Client
	config   ExecConfig
	groups   []workerGroup
	interval time.Duration
}

func (b *Benchmarks) Access(cfg ExecConfig) (*BenchmarkInstance, error) {
	if cfg.Benchmark == "" {
		cfg.Benchmark = DefaultBenchmark
	}

	groups := make([]workerGroup, 0, len(cfg.Groups))
	for _, g := range cfg.Groups {
		grp := workerGroup{name: g.Name}
		for _, raw := range g.URLs {
			u, err := url.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("worker %s: %w", raw, err)
			}
			if u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("worker %s: absolute URL required", raw)
			}
			grp.urls = append(grp.urls, u)
		}
		if len(grp.urls) > 0 {
			groups = append(groups, grp)
		}
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("benchmark %s: no workers configured", cfg.Name)
	}

	return &BenchmarkInstance{
		parent: b.parent,
		config: cfg,
		groups: groups,
	}, nil
}

func (inst *BenchmarkInstance) NumGroups() int {
	return len(inst.groups)
}

func (inst *BenchmarkInstance) NumWorkers() int {
	n := 0
	for i := range inst.groups {
		n += len(inst.groups[i].urls)
	}
	return n
}

func (inst *BenchmarkInstance) Config() ExecConfig {
	return inst.config
}

// WithPollInterval sets how often busy workers are polled while waiting for
// results.
func (inst *BenchmarkInstance) WithPollInterval(d time.Duration) *BenchmarkInstance {
	inst.interval = d
	return inst
}

// Healthcheck reports whether every worker is reachable and idle.
func (inst *BenchmarkInstance) Healthcheck(ctx context.Context) (idle bool, err error) {
	hc := collector[benchdriverapi.StatusCode]{
		client: inst.parent.http,
		path:   "healthz",
	}
	codes, err := hc.collect(ctx, inst.WorkerURLs(), false)
	if err != nil {
		return false, err
	}
	for _, code := range codes {
		if code != benchdriverapi.StatusIdle {
			return false, nil
		}
	}
	return true, nil
}

func (inst *BenchmarkInstance) Metrics(ctx context.Context) ([]map[string]*dto.MetricFamily, error) {
	mc := collector[map[string]*dto.MetricFamily]{
		client: inst.parent.http,
		path:   "metrics",
		decode: decodeMetrics,
	}
	return mc.collect(ctx, inst.WorkerURLs(), false)
}

func (inst *BenchmarkInstance) Status(ctx context.Context) ([]benchdriverapi.APIWorkerStatus, error) {
	sc := collector[benchdriverapi.APIWorkerStatus]{
		client: inst.parent.http,
		path:   "status",
	}
	return sc.collect(ctx, inst.WorkerURLs(), false)
}

func (inst *BenchmarkInstance) Prepare(ctx context.Context) error {
	return inst.postWork(ctx, inst.GroupURLs(), "prepare")
}

func (inst *BenchmarkInstance) Run(ctx context.Context) error {
	return inst.postWork(ctx, inst.WorkerURLs(), "run")
}

func (inst *BenchmarkInstance) Cleanup(ctx context.Context) error {
	return inst.postWork(ctx, inst.GroupURLs(), "cleanup")
}

// Stop cancels the active task on every worker.
func (inst *BenchmarkInstance) Stop(ctx context.Context) error {
	return postAll(ctx, inst.parent.http, inst.WorkerURLs(), "work/stop", nil)
}

// WaitIdle polls all workers until none of them is busy.
func (inst *BenchmarkInstance) WaitIdle(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		idle, err := inst.Healthcheck(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if !idle {
			return struct{}{}, ErrBusy
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(0),
	)
	if errors.Is(err, ErrBusy) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (inst *BenchmarkInstance) postWork(ctx context.Context, urls []*url.URL, task string) error {
	path := fmt.Sprintf("work/%s/%s", inst.config.Benchmark, task)
	return postAll(ctx, inst.parent.http, urls, path, inst.config.Config)
}

// WorkerURLs returns the base URLs of all workers.
func (inst *BenchmarkInstance) WorkerURLs() []*url.URL {
	urls := make([]*url.URL, 0, inst.NumWorkers())
	for _, g := range inst.groups {
		urls = append(urls, g.urls...)
	}
	return urls
}

// GroupURLs returns the first worker of every group.
func (inst *BenchmarkInstance) GroupURLs() []*url.URL {
	urls := make([]*url.URL, 0, len(inst.groups))
	for _, g := range inst.groups {
		urls = append(urls, g.urls[0])
	}
	return urls
}
