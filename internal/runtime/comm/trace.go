package comm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/drblury/mpiflow/comm"

// traced resolves the caller's rank and the communicator size, then runs fn
// inside a span named after the operation.
func (c Comm) traced(name string, count int, fn func(rank, size int32) error) error {
	rank, err := c.Rank()
	if err != nil {
		return err
	}
	size, err := c.Size()
	if err != nil {
		return err
	}

	_, span := otel.Tracer(tracerName).Start(
		context.Background(),
		"mpiflow."+name,
		trace.WithAttributes(
			attribute.Int("mpiflow.rank", int(rank)),
			attribute.Int("mpiflow.size", int(size)),
			attribute.Int("mpiflow.count", count),
		),
	)
	defer span.End()

	if err := fn(rank, size); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
