/*
Package runtime ties the typed handle packages to a running engine.

# Architecture Overview

A Runtime is one rank's view of a job. It owns the engine's lifecycle:
Init brings the engine up, Finalize tears it down, and both refuse to run
twice. Every other package in this tree talks to the engine through the
handles a Runtime hands out.

# Package Structure

## Lifecycle (runtime.go)

Init wraps an engine that something else constructed. RunLocal starts a
whole job inside the process on the fabric engine over Go channels, and
Connect joins one rank of a distributed job over a broker chosen by
config.Config.

## Metrics (metrics_server.go)

ServeMetrics exposes the Prometheus default registry over HTTP.

# Sub-packages

  - comm: communicators, point to point and collective operations
  - group: rank groups and set operations
  - request: non-blocking requests and the WaitAll family
  - win: one-sided windows with passive target locking
  - op: reduction operators typed by element
  - attrs: attribute keys cached on communicators and windows
  - buffer, datatype: typed element buffers and their engine datatypes
  - handle: owned and borrowed handle bookkeeping
  - errors: engine errors, range errors and contract violations
  - config, logging, metrics, metadata, ids, jsoncodec, clock: ambient support

# Usage Example

	err := runtime.RunLocal(ctx, 4, func(rt *runtime.Runtime) error {
		rank, err := rt.World().Rank()
		if err != nil {
			return err
		}
		sum, err := comm.AllReduceValue(rt.World(), op.Sum[int32](), rank)
		if err != nil {
			return err
		}
		fmt.Println(rank, sum)
		return nil
	})
*/
package runtime
