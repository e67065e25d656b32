// Package client drives benchdriver workers over HTTP.
package client

import (
	"net/http"
	"time"
)

type Client struct {
	http *http.Client
}

// New creates a client. A nil httpClient uses a client with a 30s timeout.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient}
}

func (b *Client) HTTPClient() *http.Client {
	return b.http
}

func (b *Client) Close() {
	b.http.CloseIdleConnections()
}

func (b *Client) BenchmarkExec() *Benchmarks {
	return &Benchmarks{parent: b}
}
