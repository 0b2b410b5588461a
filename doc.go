// Package mpiflow is a typed safety layer over an MPI-style message passing
// engine, together with an engine of its own built on Watermill transports.
//
// Programs run as a set of ranks. Each rank calls Init (or is handed a
// Runtime by RunLocal or Connect), talks to its peers through communicators,
// and calls Finalize exactly once. Handles owned by the program (UniqueComm,
// UniqueGroup, UniqueRequest, UniqueWin, UniqueKeyVal) release their engine
// resources on Close; borrowed handles never do.
//
// # Point to point and collectives
//
// Send, Recv and their immediate variants move typed slices between ranks.
// Collectives (Bcast, Gather, AllGather, AllToAll, Reduce, AllReduce) check
// root arguments and buffer shapes before the engine is touched, so misuse is
// reported as a ContractViolation instead of undefined behaviour.
//
// # Errors
//
// Recoverable engine failures come back as *EngineError and can be matched
// with errors.Is against a code. Programming mistakes are contract
// violations: the installed ViolationHandler logs and aborts the job by
// default. Tests usually install PanicOnViolation.
//
// # Transports
//
// The distributed engine moves envelopes over any registered transport:
//   - channel: in-process Go channels, used by RunLocal
//   - kafka: partitioned topics with a consumer group per rank
//   - rabbitmq: durable AMQP queues
//   - nats: core NATS subjects
//   - nats-jetstream: durable JetStream consumers
//
// Import transport/transports to register all of them, or a single
// transport package for a smaller binary.
package mpiflow
