package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/mpiflow/internal/runtime"
	"github.com/drblury/mpiflow/internal/runtime/config"
	"github.com/drblury/mpiflow/internal/runtime/logging"
)

type joinOptions struct {
	configPath string
	demo       string
}

// newJoinCommand creates the `mpiflow join` command.
func newJoinCommand(a *app) *cobra.Command {
	opts := &joinOptions{}
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a distributed job as one rank",
		Long: `Join a distributed job as one rank.

The config file is JSON; MPIFLOW_* environment variables override it, so
one file can be shared by every rank with MPIFLOW_RANK set per process.
Every rank of a job must run the same demo.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return join(cmd, a, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a JSON config file")
	cmd.Flags().StringVar(&opts.demo, "demo", "allreduce", "demo program to run")
	return cmd
}

func loadJoinConfig(path string, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg := &config.Config{}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.FromEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, config.ValidateConfig(cfg)
}

func join(cmd *cobra.Command, a *app, opts *joinOptions) error {
	d, err := lookupDemo(opts.demo)
	if err != nil {
		return err
	}
	cfg, err := loadJoinConfig(opts.configPath, nil)
	if err != nil {
		return err
	}
	log := a.logger
	if cfg.LogLevel != "" {
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		log = logging.NewTextServiceLogger(cmd.ErrOrStderr(), level)
	}

	if cfg.MetricsEnabled {
		srv := runtime.ServeMetrics(fmt.Sprintf(":%d", cfg.MetricsPort), log)
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				log.Error("stopping metrics server", err, nil)
			}
		}()
	}

	rt, err := runtime.Connect(cmd.Context(), cfg, runtime.WithLogger(log))
	if err != nil {
		return err
	}
	if err := d(rt, cmd.OutOrStdout()); err != nil {
		_ = rt.World().Abort(1)
		return err
	}
	return rt.Finalize()
}
