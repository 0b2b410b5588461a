package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/engine/fabric"
	"github.com/drblury/mpiflow/internal/runtime/clock"
	"github.com/drblury/mpiflow/internal/runtime/comm"
	configpkg "github.com/drblury/mpiflow/internal/runtime/config"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/mpiflow/internal/runtime/logging"
	"github.com/drblury/mpiflow/internal/runtime/metrics"
	"github.com/drblury/mpiflow/transport"
	_ "github.com/drblury/mpiflow/transport/transports"
)

// Runtime is one rank's handle on an initialized engine.
type Runtime struct {
	eng    engine.Engine
	log    loggingpkg.ServiceLogger
	closer func() error

	mu        sync.Mutex
	finalized bool
}

type options struct {
	logger       loggingpkg.ServiceLogger
	metrics      *metrics.EngineMetrics
	jobID        string
	outputBuffer int
	closer       func() error
}

// Option configures Init, RunLocal and Connect.
type Option func(*options)

// WithLogger sets the logger used by the runtime and the fabric.
func WithLogger(log loggingpkg.ServiceLogger) Option {
	return func(o *options) { o.logger = log }
}

// WithMetrics records engine activity in m.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithJobID fixes the job id of an in-process job.
func WithJobID(id string) Option {
	return func(o *options) { o.jobID = id }
}

// WithOutputBuffer sizes the in-memory transport's subscriber buffer.
func WithOutputBuffer(n int) Option {
	return func(o *options) { o.outputBuffer = n }
}

// withCloser runs fn after a successful Finalize.
func withCloser(fn func() error) Option {
	return func(o *options) { o.closer = fn }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = loggingpkg.Default()
	}
	return o
}

// Init initializes eng unless it already is and returns the runtime for it.
func Init(eng engine.Engine, opts ...Option) (*Runtime, error) {
	if eng == nil {
		return nil, errspkg.ErrEngineRequired
	}
	o := buildOptions(opts)

	var initialized, finalized bool
	if err := errspkg.Check("initialized", eng.Initialized(&initialized), eng.ErrorString); err != nil {
		return nil, err
	}
	if err := errspkg.Check("finalized", eng.Finalized(&finalized), eng.ErrorString); err != nil {
		return nil, err
	}
	if finalized {
		return nil, errspkg.ErrAlreadyFinalized
	}
	if !initialized {
		if err := errspkg.Check("init", eng.Init(), eng.ErrorString); err != nil {
			return nil, err
		}
	}
	return &Runtime{eng: eng, log: o.logger, closer: o.closer}, nil
}

// Engine returns the underlying engine.
func (r *Runtime) Engine() engine.Engine { return r.eng }

// World is the communicator of every rank in the job.
func (r *Runtime) World() comm.Comm { return comm.World(r.eng) }

// Self is the communicator holding only this rank.
func (r *Runtime) Self() comm.Comm { return comm.Self(r.eng) }

func (r *Runtime) Clock() clock.Clock { return clock.New(r.eng) }

func (r *Runtime) Initialized() bool {
	var flag bool
	_ = r.eng.Initialized(&flag)
	return flag
}

func (r *Runtime) Finalized() bool {
	var flag bool
	_ = r.eng.Finalized(&flag)
	return flag
}

// Finalize shuts the engine down. It is collective over the world
// communicator. Finalizing with requests still active is a contract
// violation.
func (r *Runtime) Finalize() error {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return errspkg.ErrAlreadyFinalized
	}
	r.finalized = true
	r.mu.Unlock()

	code := r.eng.Finalize()
	if code == engine.ErrPending {
		rank, _ := r.World().Rank()
		errspkg.Violatef("finalize", rank, "requests are still active")
	}
	if err := errspkg.Check("finalize", code, r.eng.ErrorString); err != nil {
		return err
	}
	if r.closer != nil {
		if err := r.closer(); err != nil {
			return fmt.Errorf("close transport: %w", err)
		}
	}
	r.log.Debug("runtime finalized", nil)
	return nil
}

// RunLocal runs fn on size ranks inside this process. Each rank gets its own
// Runtime; Finalize runs after fn returns successfully.
func RunLocal(ctx context.Context, size int, fn func(rt *Runtime) error, opts ...Option) error {
	n, err := errspkg.CheckCount("run local", size)
	if err != nil {
		return err
	}
	o := buildOptions(opts)

	cluster, err := fabric.NewCluster(ctx, fabric.ClusterOptions{
		Size:         n,
		JobID:        o.jobID,
		Logger:       o.logger,
		Metrics:      o.metrics,
		OutputBuffer: o.outputBuffer,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := cluster.Close(); err != nil {
			o.logger.Error("closing local cluster", err, nil)
		}
	}()

	return cluster.Run(func(p *fabric.Proc) error {
		rt, err := Init(p, opts...)
		if err != nil {
			return err
		}
		if err := fn(rt); err != nil {
			return err
		}
		return rt.Finalize()
	})
}

// Connect joins a distributed job as the rank named in cfg, over the
// transport cfg selects.
func Connect(ctx context.Context, cfg *configpkg.Config, opts ...Option) (*Runtime, error) {
	if err := configpkg.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	if o.metrics == nil && cfg.MetricsEnabled {
		o.metrics = metrics.NewEngineMetrics(prometheus.DefaultRegisterer)
		if err := o.metrics.Register(); err != nil {
			return nil, err
		}
	}

	o.logger.Info("Joining job", loggingpkg.LogFields{"config": cfg.String()})
	tr, err := transport.Build(ctx, cfg, loggingpkg.NewWatermillAdapter(o.logger))
	if err != nil {
		return nil, fmt.Errorf("build transport %q: %w", cfg.Transport, err)
	}

	p, err := fabric.New(fabric.Options{
		JobID:      cfg.JobID,
		Rank:       int32(cfg.Rank),
		Size:       int32(cfg.Size),
		Publisher:  tr.Publisher,
		Subscriber: tr.Subscriber,
		Logger:     o.logger,
		Metrics:    o.metrics,
	})
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	if err := p.Start(ctx); err != nil {
		_ = tr.Close()
		return nil, err
	}
	return Init(p, append(opts, WithMetrics(o.metrics), withCloser(tr.Close))...)
}
