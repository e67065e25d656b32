package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"
)

// ErrBusy is reported when a worker is still running a task.
var ErrBusy = errors.New("worker is busy")

// fanOut calls fn for every item in parallel. All items are attempted; the
// errors of failed calls are joined in item order.
func fanOut[T any](ctx context.Context, items []T, fn func(context.Context, int, T) error) error {
	errs := make([]error, len(items))

	var eg errgroup.Group
	for i, item := range items {
		eg.Go(func() error {
			errs[i] = fn(ctx, i, item)
			return nil
		})
	}
	eg.Wait()
	return errors.Join(errs...)
}

// call sends a request to a worker. The response is returned only for 200
// answers; a 409 answer wraps ErrBusy.
func call(ctx context.Context, client *http.Client, method string, u *url.URL, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = fmt.Errorf("%s %s failed (%s): %s", method, u, resp.Status, bytes.TrimSpace(msg))
	if resp.StatusCode == http.StatusConflict {
		err = fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return nil, err
}

// postAll posts body as JSON to path on every worker.
func postAll(ctx context.Context, client *http.Client, urls []*url.URL, path string, body any) error {
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	return fanOut(ctx, urls, func(ctx context.Context, _ int, u *url.URL) error {
		resp, err := call(ctx, client, http.MethodPost, u.JoinPath(path), raw)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	})
}
