package fabric

import (
	"context"
	"errors"
	"fmt"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/ids"
	"github.com/drblury/mpiflow/internal/runtime/logging"
	"github.com/drblury/mpiflow/internal/runtime/metrics"
	"github.com/drblury/mpiflow/transport"
	"github.com/drblury/mpiflow/transport/channel"
)

// ClusterOptions configures an in-process job.
type ClusterOptions struct {
	Size         int32
	JobID        string
	Logger       logging.ServiceLogger
	Metrics      *metrics.EngineMetrics
	OutputBuffer int
}

// Cluster runs every rank of a job inside the current process, sharing one
// in-memory pub/sub.
type Cluster struct {
	procs []*Proc
	tr    transport.Transport
	log   logging.ServiceLogger
}

// RankError is the error a rank's function returned or panicked with.
type RankError struct {
	Rank int32
	Err  error
}

func (e *RankError) Error() string {
	return fmt.Sprintf("rank %d: %v", e.Rank, e.Err)
}

func (e *RankError) Unwrap() error { return e.Err }

// NewCluster creates, starts and initializes every rank.
func NewCluster(ctx context.Context, opts ClusterOptions) (*Cluster, error) {
	if opts.Size < 1 {
		return nil, fmt.Errorf("fabric: cluster size must be positive, got %d", opts.Size)
	}
	if opts.JobID == "" {
		opts.JobID = ids.NewJobID()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}

	tr := channel.New(opts.OutputBuffer, logging.NewWatermillAdapter(log))
	c := &Cluster{tr: tr, log: log.With(logging.LogFields{"job": opts.JobID})}
	for r := int32(0); r < opts.Size; r++ {
		p, err := New(Options{
			JobID:      opts.JobID,
			Rank:       r,
			Size:       opts.Size,
			Publisher:  tr.Publisher,
			Subscriber: tr.Subscriber,
			Logger:     log,
			Metrics:    opts.Metrics,
		})
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.procs = append(c.procs, p)
	}

	// All ranks must be subscribed before any of them publishes.
	for _, p := range c.procs {
		if err := p.Start(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	for _, p := range c.procs {
		if code := p.Init(); code != engine.Success {
			_ = c.Close()
			return nil, fmt.Errorf("fabric: init rank %d: %s", p.rank, code)
		}
	}
	return c, nil
}

// Procs returns the ranks in rank order.
func (c *Cluster) Procs() []*Proc { return c.procs }

// Run calls fn on every rank concurrently and waits for all of them. A rank
// that fails aborts the job so its peers do not block forever.
func (c *Cluster) Run(fn func(p *Proc) error) error {
	errs := make([]error, len(c.procs))
	done := make(chan struct{})
	for i, p := range c.procs {
		go func() {
			defer func() { done <- struct{}{} }()
			defer func() {
				if r := recover(); r != nil {
					err, ok := r.(error)
					if !ok {
						err = fmt.Errorf("panic: %v", r)
					}
					errs[i] = &RankError{Rank: p.rank, Err: err}
					p.Abort(engine.CommWorld, int32(engine.ErrOther))
				}
			}()
			if err := fn(p); err != nil {
				errs[i] = &RankError{Rank: p.rank, Err: err}
				c.log.Error("rank failed", err, logging.LogFields{"rank": p.rank})
				p.Abort(engine.CommWorld, int32(engine.ErrOther))
			}
		}()
	}
	for range c.procs {
		<-done
	}
	return errors.Join(errs...)
}

// Close stops every rank and the shared transport.
func (c *Cluster) Close() error {
	for _, p := range c.procs {
		p.mu.Lock()
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
	return c.tr.Close()
}
