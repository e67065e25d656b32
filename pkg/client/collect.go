package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"benchsuite/api/benchdriverapi"
)

const defaultPollInterval = 10 * time.Second

// collector reads one document from every worker.
type collector[T any] struct {
	client *http.Client
	path   string
	query  url.Values
	decode func(io.Reader) (T, error)

	// validate rejects a decoded document. Documents rejected with ErrBusy
	// are fetched again every interval when waiting.
	validate func(T) error
	interval time.Duration
}

func decodeJSON[T any](r io.Reader) (v T, err error) {
	err = json.NewDecoder(r).Decode(&v)
	return v, err
}

func decodeMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	return parser.TextToMetricFamilies(r)
}

func (c *collector[T]) fetch(ctx context.Context, u *url.URL) (v T, err error) {
	target := u.JoinPath(c.path)
	target.RawQuery = c.query.Encode()
	resp, err := call(ctx, c.client, http.MethodGet, target, nil)
	if err != nil {
		return v, err
	}
	defer resp.Body.Close()

	decode := c.decode
	if decode == nil {
		decode = decodeJSON[T]
	}
	if v, err = decode(resp.Body); err != nil {
		return v, fmt.Errorf("decode %s: %w", u, err)
	}
	if c.validate != nil {
		if err := c.validate(v); err != nil {
			return v, err
		}
	}
	return v, nil
}

// collect returns the documents of all workers in worker order.
func (c *collector[T]) collect(ctx context.Context, urls []*url.URL, wait bool) ([]T, error) {
	docs := make([]T, len(urls))
	err := fanOut(ctx, urls, func(ctx context.Context, i int, u *url.URL) (err error) {
		if !wait {
			docs[i], err = c.fetch(ctx, u)
			return err
		}
		docs[i], err = c.await(ctx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *collector[T]) await(ctx context.Context, u *url.URL) (T, error) {
	interval := c.interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := c.fetch(ctx, u)
		if err != nil && !errors.Is(err, ErrBusy) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(0),
	)
	if errors.Is(err, ErrBusy) && ctx.Err() != nil {
		return v, ctx.Err()
	}
	return v, err
}

// ValidateStatus accepts the status of a worker whose last task was opName
// and finished. Busy workers are rejected with ErrBusy.
func ValidateStatus[T any](opName benchdriverapi.TaskName, allowError bool) func(benchdriverapi.WorkerStatus[benchdriverapi.Result[T]]) error {
	return func(status benchdriverapi.WorkerStatus[benchdriverapi.Result[T]]) error {
		switch {
		case status.Code == benchdriverapi.StatusBusy:
			return ErrBusy
		case status.Task == "":
			return errors.New("no benchmark task results found")
		case status.Task != opName:
			return fmt.Errorf("no %s status found, last task is %s", opName, status.Task)
		case status.Last == nil:
			return fmt.Errorf("%s task finished without results", opName)
		case status.Last.Error != nil && !allowError:
			return fmt.Errorf("%s: last task failed: %w", opName, status.Last.Error)
		}
		return nil
	}
}
