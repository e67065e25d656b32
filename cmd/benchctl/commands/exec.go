package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"benchsuite/pkg/client"
)

var pollInterval = 10 * time.Second

func execCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute benchmark worker tasks",
	}
	cmd.PersistentFlags().DurationVar(&pollInterval, "interval", 10*time.Second, "Polling interval while waiting for workers")

	cmd.AddCommand(execCheckWorkers())
	cmd.AddCommand(execStatus())
	cmd.AddCommand(execDescribe())
	cmd.AddCommand(execPrepare())
	cmd.AddCommand(execRun())
	cmd.AddCommand(execStop())
	cmd.AddCommand(execCleanup())
	cmd.AddCommand(execResult())
	cmd.AddCommand(execMetrics())

	return cmd
}

func execCheckWorkers() *cobra.Command {
	return &cobra.Command{
		Use:   "check [BENCHMARK]",
		Short: "Check benchmark workers being reachable and idle",
		RunE: benchExecCommand(func(ctx context.Context, cmd *cobra.Command, inst *client.BenchmarkInstance) error {
			idle, err := inst.Healthcheck(ctx)
			if err != nil {
				return err
			}

			if idle {
				fmt.Fprintf(cmd.OutOrStdout(), "Workers are healthy and ready (%d)\n", inst.NumWorkers())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Workers are healthy, but not ready (%d)\n", inst.NumWorkers())
			}
			return nil
		}),
	}
}

func execStatus() *cobra.Command {
	return &cobra.Command{
		Use:   "status [BENCHMARK]",
		Short: "Show the last task of every worker",
		RunE: benchExecCommand(func(ctx context.Context, cmd *cobra.Command, inst *client.BenchmarkInstance) error {
			statuses, err := inst.Status(ctx)
			if err != nil {
				return err
			}
			for _, status := range statuses {
				line := fmt.Sprintf("%s: task=%s", status.Code, status.Task)
				if status.Last != nil && status.Last.Error != nil {
					line += fmt.Sprintf(" error=%q", status.Last.Error)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		}),
	}
}

func execDescribe() *cobra.Command {
	return &cobra.Command{
		Use:   "describe [BENCHMARK]",
		Short: "Show the configured suite as stored for every worker group",
		RunE: benchExecCommand(func(ctx context.Context, cmd *cobra.Command, inst *client.BenchmarkInstance) error {
			descs, err := inst.Suite().Describe(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, d := range descs {
				fmt.Fprintf(out, "Group %d: suite %s, query set %s, %d queries\n", i, d.Suite, d.QuerySet, len(d.Queries))
				for _, p := range d.Phases {
					fmt.Fprintf(out, "    %s (%s): %s\n", p.Name, p.Strategy, strings.Join(p.Queries, ", "))
				}
			}
			return nil
		}),
	}
}

func execPrepare() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "prepare [BENCHMARK]",
		Short: "Prepare the suite store of every worker group",
		RunE: benchExecCommand(func(ctx context.Context, cmd *cobra.Command, inst *client.BenchmarkInstance) error {
			if err := inst.Prepare(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Started prepare task")

			if wait {
				fmt.Fprintln(cmd.OutOrStdout(), "Waiting for prepare task to finish")
				return inst.WaitIdle(ctx, pollInterval)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the task to finish")
	return cmd
}

func execRun() *cobra.Command {
	var wait bool
	var output string
	cmd := &cobra.Command{
		Use:   "run [BENCHMARK]",
		Short: "Run the benchmark suite on all workers",
		RunE: benchExecCommand(func(ctx context.Context, cmd *cobra.Command, inst *client.BenchmarkInstance) error {
			if err := inst.Run(ctx); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Benchmark started")
			if wait {
				return execGetAndReportResults(ctx, cmd.OutOrStdout(), inst, true, false, output)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the benchmark to finish and print the report")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to this file")
	return cmd
}

func execStop() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [BENCHMARK]",
		Short: "Cancel the active task on all workers",
		RunE: benchExecCommand(func(ctx context.Context, cmd *cobra.Command, inst *client.BenchmarkInstance) error {
			return inst.Stop(ctx)
		}),
	}
}

func execCleanup() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "cleanup [BENCHMARK]",
		Short: "Drop the suite store tables of every worker group",
		RunE: benchExecCommand(func(ctx context.Context, cmd *cobra.Command, inst *client.BenchmarkInstance) error {
			if err := inst.Cleanup(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Started cleanup task")

			if wait {
				fmt.Fprintln(cmd.OutOrStdout(), "Waiting for cleanup task to finish")
				return inst.WaitIdle(ctx, pollInterval)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the task to finish")
	return cmd
}

func execResult() *cobra.Command {
	var wait bool
	var allowErr bool
	var output string

	cmd := &cobra.Command{
		Use:   "results [BENCHMARK]",
		Short: "Get benchmark results",
		RunE: benchExecCommand(func(ctx context.Context, cmd *cobra.Command, inst *client.BenchmarkInstance) error {
			return execGetAndReportResults(ctx, cmd.OutOrStdout(), inst, wait, allowErr, output)
		}),
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the benchmark to finish")
	cmd.Flags().BoolVar(&allowErr, "allow-error", false, "Allow failed runs in the benchmark result")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to this file")
	return cmd
}

func execMetrics() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics [BENCHMARK]",
		Short: "Get active benchmark metrics",
		RunE: benchExecCommand(func(ctx context.Context, cmd *cobra.Command, inst *client.BenchmarkInstance) error {
			result, err := inst.Metrics(ctx)
			if err != nil {
				return fmt.Errorf("get metrics: %w", err)
			}

			out := cmd.OutOrStdout()
			for i, workerMetrics := range result {
				fmt.Fprintf(out, "Worker %d\n", i)
				for _, key := range slices.Sorted(maps.Keys(workerMetrics)) {
					if !strings.HasPrefix(key, "suite_") {
						continue
					}
					reportMetric(out, workerMetrics[key], "    ")
				}
			}
			return nil
		}),
	}
}

func execGetAndReportResults(ctx context.Context, out io.Writer, inst *client.BenchmarkInstance, wait bool, allowErr bool, output string) error {
	var result any
	var err error

	switch name := strings.ToLower(inst.Config().Benchmark); name {
	case client.DefaultBenchmark:
		result, err = inst.Suite().Result(ctx, wait, allowErr)
	default:
		return fmt.Errorf("unknown benchmark: %s", name)
	}
	if err != nil {
		return err
	}

	tmp, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	if output != "" {
		return os.WriteFile(output, append(tmp, '\n'), 0o644)
	}
	_, err = fmt.Fprintf(out, "%s\n", tmp)
	return err
}

type runE func(*cobra.Command, []string) error

func benchExecCommand(fn func(context.Context, *cobra.Command, *client.BenchmarkInstance) error) runE {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := readExecConfig(args)
		if err != nil {
			return err
		}

		br := newClient()
		defer br.Close()

		inst, err := br.BenchmarkExec().Access(cfg)
		if err != nil {
			return err
		}

		return fn(cmd.Context(), cmd, inst.WithPollInterval(pollInterval))
	}
}

func readExecConfig(args []string) (cfg client.ExecConfig, err error) {
	benchmark := "default"
	if len(args) > 0 {
		benchmark = args[0]
	}

	cfg, err = readConfig[client.ExecConfig](&source, "benchmarks."+benchmark)
	if err != nil {
		return cfg, fmt.Errorf("read benchmark config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = benchmark
	}
	return cfg, nil
}
