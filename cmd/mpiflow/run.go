package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/drblury/mpiflow/internal/runtime"
	"github.com/drblury/mpiflow/internal/runtime/metrics"
)

type runOptions struct {
	ranks       int
	demo        string
	timeout     time.Duration
	metricsAddr string
}

// newRunCommand creates the `mpiflow run` command.
func newRunCommand(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a demo job with every rank in this process",
		Long: `Run a demo job with every rank in this process.

The ranks talk over in-memory Go channels, so no broker is needed.
Available demos: ` + strings.Join(demoNames(), ", "),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, a, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.ranks, "ranks", "n", 4, "number of ranks in the world communicator")
	cmd.Flags().StringVar(&opts.demo, "demo", "allreduce", "demo program to run on every rank")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "abort the job after this long")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the job runs")
	return cmd
}

func runLocal(cmd *cobra.Command, a *app, opts *runOptions) error {
	d, err := lookupDemo(opts.demo)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	rtOpts := []runtime.Option{runtime.WithLogger(a.logger)}
	if opts.metricsAddr != "" {
		m := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)
		if err := m.Register(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		srv := runtime.ServeMetrics(opts.metricsAddr, a.logger)
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				a.logger.Error("stopping metrics server", err, nil)
			}
		}()
		rtOpts = append(rtOpts, runtime.WithMetrics(m))
	}

	out := cmd.OutOrStdout()
	return runtime.RunLocal(ctx, opts.ranks, func(rt *runtime.Runtime) error {
		return d(rt, out)
	}, rtOpts...)
}
