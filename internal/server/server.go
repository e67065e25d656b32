// Package server exposes a task runner over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"benchsuite/api/benchdriverapi"
	"benchsuite/internal/worker"
	"benchsuite/internal/worker/runner"
	"benchsuite/internal/worker/suiterun"
)

type Handler struct {
	runner *runner.Runner

	// Metrics receives the task metrics. Metrics are not collected when nil.
	Metrics *prometheus.Registry

	suiteFactory *suiterun.Factory
}

type okResponse struct {
	Status string
}

var ok = okResponse{Status: "ok"}

func NewHandler(w *runner.Runner) *Handler {
	return &Handler{runner: w}
}

// WithSuiteFactory replaces the factory creating suite tasks.
func (h *Handler) WithSuiteFactory(f *suiterun.Factory) *Handler {
	h.suiteFactory = f
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", listRoutes(r))
	r.Get("/status", query(func(ctx context.Context) (benchdriverapi.APIWorkerStatus, error) {
		return h.runner.Status(ctx), nil
	}))
	r.Get("/healthz", query(h.runner.Healthcheck))

	suites := h.suiteTasks()
	r.Get("/suites/{suite}", describeSuite(suites))

	r.Route("/work", func(work chi.Router) {
		work.Post("/stop", query(func(ctx context.Context) (okResponse, error) {
			return ok, h.runner.CancelActive(ctx)
		}))
		work.Mount("/suite", taskRoutes[benchdriverapi.BenchmarkSuiteConfig](h.runner, suites))
	})
}

// describeSuite reads a suite from the worker's store. The suites_table and
// queries_table query parameters select non-default tables.
func describeSuite(f *suiterun.Factory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := benchdriverapi.BenchmarkSuiteConfig{Suite: chi.URLParam(r, "suite")}
		params := r.URL.Query()
		if t := params.Get("suites_table"); t != "" {
			req.SuitesTable = &t
		}
		if t := params.Get("queries_table"); t != "" {
			req.QueriesTable = &t
		}

		desc, err := f.Describe(r.Context(), req)
		respond(w, desc, err)
	}
}

func (h *Handler) suiteTasks() *suiterun.Factory {
	f := h.suiteFactory
	if f == nil {
		f = suiterun.NewFactory(h.runner.Config)
	}
	if h.Metrics != nil {
		f = f.WithMetrics(h.Metrics)
	}
	return f
}

// taskRoutes serves the prepare, run and cleanup tasks of a factory. Each
// route decodes the task configuration from the request body.
func taskRoutes[T any](r *runner.Runner, factory worker.TaskFactory[T]) chi.Router {
	w := runner.NewBenchmarkWorker(r, factory)
	submit := func(fn func(context.Context, T) error) http.HandlerFunc {
		return command(func(ctx context.Context, cfg T) (okResponse, error) {
			return ok, fn(ctx, cfg)
		})
	}

	router := chi.NewRouter()
	router.Get("/", listRoutes(router))
	router.Post("/prepare", submit(w.Prepare))
	router.Post("/run", submit(w.Run))
	router.Post("/cleanup", submit(w.Cleanup))
	return router
}

func listRoutes(router chi.Routes) http.HandlerFunc {
	type route struct {
		Method string `json:"method"`
		Path   string `json:"path"`
	}
	type response struct {
		Routes []route `json:"routes"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var resp response
		err := chi.Walk(router, func(method, path string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			resp.Routes = append(resp.Routes, route{Method: method, Path: path})
			return nil
		})
		respond(w, resp, err)
	}
}

func query[O any](fn func(context.Context) (O, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		resp, err := fn(r.Context())
		respond(w, resp, err)
	}
}

// command decodes an optional JSON body into I before calling fn. An empty
// body passes the zero value.
func command[I, O any](fn func(context.Context, I) (O, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var in I
		if r.ContentLength > 0 {
			contentType := r.Header.Get("Content-Type")
			if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != "application/json" {
				writeError(w, benchdriverapi.ErrorBadRequest(fmt.Errorf("invalid content type: %s", contentType)))
				return
			}
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				writeError(w, benchdriverapi.ErrorBadRequest(fmt.Errorf("failed to decode request: %w", err)))
				return
			}
		}

		resp, err := fn(r.Context(), in)
		respond(w, resp, err)
	}
}

func respond[T any](w http.ResponseWriter, resp T, err error) {
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		writeError(w, fmt.Errorf("failed to marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func writeError(w http.ResponseWriter, err error) {
	code := statusCodeOf(err)
	log.Warn().Err(err).Int("status", code).Msg("request failed")

	body, _ := json.Marshal(map[string]string{"error": displayErrorOf(err).Error()})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}
