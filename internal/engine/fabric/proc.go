// Package fabric is a message-passing engine built on watermill. Each rank
// is a Proc that subscribes to its own topic and talks to its peers by
// publishing envelopes to theirs, so the same engine runs in memory over a
// gochannel or across processes over NATS, Kafka or RabbitMQ.
package fabric

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
	"unsafe"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/ids"
	"github.com/drblury/mpiflow/internal/runtime/logging"
	"github.com/drblury/mpiflow/internal/runtime/metadata"
	"github.com/drblury/mpiflow/internal/runtime/metrics"
)

// Topic is the topic rank subscribes to within job.
func Topic(job string, rank int32) string {
	return fmt.Sprintf("%s.rank.%d", job, rank)
}

// Options configures one rank.
type Options struct {
	JobID      string
	Rank       int32
	Size       int32
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Logger     logging.ServiceLogger
	Metrics    *metrics.EngineMetrics
}

func (o Options) validate() error {
	switch {
	case o.JobID == "":
		return fmt.Errorf("fabric: job id is required")
	case o.Size < 1:
		return fmt.Errorf("fabric: size must be positive, got %d", o.Size)
	case o.Rank < 0 || o.Rank >= o.Size:
		return fmt.Errorf("fabric: rank %d out of range for size %d", o.Rank, o.Size)
	case o.Publisher == nil || o.Subscriber == nil:
		return fmt.Errorf("fabric: publisher and subscriber are required")
	}
	return nil
}

type outgoing struct {
	dst int32
	env *envelope
}

// Proc is one rank of a job. It implements engine.Engine.
type Proc struct {
	job     string
	rank    int32
	size    int32
	pub     message.Publisher
	sub     message.Subscriber
	log     logging.ServiceLogger
	metrics *metrics.EngineMetrics
	start   time.Time
	tagUB   int32

	mu   sync.Mutex
	cond *sync.Cond

	started     bool
	initialized bool
	finalized   bool
	aborted     bool
	closed      bool
	cancel      context.CancelFunc

	comms      map[engine.Comm]*commState
	nextComm   engine.Comm
	groups     map[engine.Group]*groupState
	nextGroup  engine.Group
	keyvals    map[engine.Keyval]*keyvalState
	nextKeyval engine.Keyval
	requests   map[engine.Request]*requestState
	nextReq    engine.Request
	wins       map[engine.Win]*winState
	winsByID   map[string]*winState
	nextWin    engine.Win

	sendSeq  map[int32]uint64
	recvSeq  map[int32]uint64
	holdback map[int32]map[uint64]*envelope

	posted     []*recvOp
	unexpected []*envelope

	nextOpID uint64
	pending  map[uint64]*rmaWait
}

var _ engine.Engine = (*Proc)(nil)

// New creates a rank. It does not touch the transport until Start.
func New(opts Options) (*Proc, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	p := &Proc{
		job:     opts.JobID,
		rank:    opts.Rank,
		size:    opts.Size,
		pub:     opts.Publisher,
		sub:     opts.Subscriber,
		log:     log.With(logging.LogFields{"job": opts.JobID, "rank": opts.Rank}),
		metrics: opts.Metrics,
		start:   time.Now(),
		tagUB:   math.MaxInt32,

		comms:      map[engine.Comm]*commState{},
		nextComm:   engine.CommSelf,
		groups:     map[engine.Group]*groupState{engine.GroupEmpty: {}},
		nextGroup:  engine.GroupEmpty,
		keyvals:    map[engine.Keyval]*keyvalState{},
		nextKeyval: engine.KeyWinDispUnit + 100,
		requests:   map[engine.Request]*requestState{},
		wins:       map[engine.Win]*winState{},
		winsByID:   map[string]*winState{},
		sendSeq:    map[int32]uint64{},
		recvSeq:    map[int32]uint64{},
		holdback:   map[int32]map[uint64]*envelope{},
		pending:    map[uint64]*rmaWait{},
	}
	p.cond = sync.NewCond(&p.mu)

	world := make([]int32, opts.Size)
	for i := range world {
		world[i] = int32(i)
	}
	p.comms[engine.CommWorld] = newCommState("w", world, p.rank)
	p.comms[engine.CommSelf] = newCommState(fmt.Sprintf("s.%d", p.rank), []int32{p.rank}, p.rank)
	return p, nil
}

func (p *Proc) Rank() int32 { return p.rank }
func (p *Proc) Size() int32 { return p.size }

// Start subscribes to the rank's topic and begins dispatching envelopes.
// Every rank of a job must be started before any rank sends.
func (p *Proc) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("fabric: rank %d already started", p.rank)
	}
	p.started = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	msgs, err := p.sub.Subscribe(ctx, Topic(p.job, p.rank))
	if err != nil {
		cancel()
		return fmt.Errorf("fabric: subscribe rank %d: %w", p.rank, err)
	}
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go p.dispatch(msgs)
	p.log.Debug("rank subscribed", logging.LogFields{"topic": Topic(p.job, p.rank)})
	return nil
}

func (p *Proc) dispatch(msgs <-chan *message.Message) {
	for msg := range msgs {
		md := metadata.FromWatermill(msg.Metadata)
		if job, ok := md[metadata.KeyJob]; ok && job != p.job {
			msg.Ack()
			p.log.Info("dropping envelope from another job", logging.LogFields{"uuid": msg.UUID, "job": job})
			continue
		}
		env, err := unmarshalEnvelope(msg.Payload)
		msg.Ack()
		if err != nil {
			p.log.Error("dropping malformed envelope", err, logging.LogFields{"uuid": msg.UUID, "kind": md[metadata.KeyKind]})
			continue
		}
		p.mu.Lock()
		out := p.receiveLocked(env)
		p.cond.Broadcast()
		p.mu.Unlock()
		p.publish(out...)
	}

	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// receiveLocked restores per-sender FIFO order before handling env.
func (p *Proc) receiveLocked(env *envelope) []outgoing {
	p.metrics.MessageReceived(p.rank, env.Kind.String())
	if env.Seq == 0 {
		return p.handleLocked(env)
	}

	src := env.Src
	next := p.recvSeq[src] + 1
	switch {
	case env.Seq < next:
		return nil
	case env.Seq > next:
		if p.holdback[src] == nil {
			p.holdback[src] = map[uint64]*envelope{}
		}
		p.holdback[src][env.Seq] = env
		return nil
	}

	out := p.handleLocked(env)
	p.recvSeq[src] = env.Seq
	for {
		held, ok := p.holdback[src][p.recvSeq[src]+1]
		if !ok {
			break
		}
		delete(p.holdback[src], p.recvSeq[src]+1)
		out = append(out, p.handleLocked(held)...)
		p.recvSeq[src]++
	}
	return out
}

func (p *Proc) handleLocked(env *envelope) []outgoing {
	switch env.Kind {
	case kindP2P:
		p.matchLocked(env)
	case kindAbort:
		if !p.aborted {
			p.aborted = true
			p.metrics.Aborted(p.rank)
			p.log.Info("job aborted by peer", logging.LogFields{"from": env.Src, "code": env.Code})
		}
	case kindPut:
		return p.handlePutLocked(env)
	case kindGet:
		return p.handleGetLocked(env)
	case kindLock:
		return p.handleLockLocked(env)
	case kindUnlock:
		return p.handleUnlockLocked(env)
	case kindRMAReply, kindLockGrant, kindUnlockAck:
		if w, ok := p.pending[env.OpID]; ok {
			w.done, w.code, w.data = true, env.Code, env.Data
		}
	}
	return nil
}

// stampLocked assigns the sender and the next sequence number towards dst.
func (p *Proc) stampLocked(dst int32, env *envelope) outgoing {
	env.Src = p.rank
	p.sendSeq[dst]++
	env.Seq = p.sendSeq[dst]
	return outgoing{dst: dst, env: env}
}

func (p *Proc) publish(out ...outgoing) engine.Code {
	code := engine.Success
	for _, o := range out {
		payload := o.env.marshal()
		msg := message.NewMessage(ids.NewMessageID(), payload)
		msg.Metadata = metadata.ToWatermill(metadata.ForEnvelope(p.job, o.env.Kind.String(), p.rank, o.dst))
		if err := p.pub.Publish(Topic(p.job, o.dst), msg); err != nil {
			p.log.Error("publish failed", err, logging.LogFields{"to": o.dst, "kind": o.env.Kind.String()})
			code = engine.ErrTransport
			continue
		}
		p.metrics.MessageSent(p.rank, o.env.Kind.String(), len(payload))
	}
	return code
}

// post sends env to the world rank dst.
func (p *Proc) post(dst int32, env *envelope) engine.Code {
	p.mu.Lock()
	out := p.stampLocked(dst, env)
	p.mu.Unlock()
	return p.publish(out)
}

// brokenLocked reports why no further progress is possible, if so.
func (p *Proc) brokenLocked() engine.Code {
	switch {
	case p.aborted:
		return engine.ErrAborted
	case p.closed:
		return engine.ErrTransport
	}
	return engine.Success
}

// usableLocked is checked on entry to every engine call.
func (p *Proc) usableLocked() engine.Code {
	switch {
	case !p.initialized:
		return engine.ErrNotInitialized
	case p.finalized:
		return engine.ErrFinalized
	}
	return p.brokenLocked()
}

// waitLocked blocks on the condition variable until done reports true.
func (p *Proc) waitLocked(done func() bool) engine.Code {
	for !done() {
		if code := p.brokenLocked(); code != engine.Success {
			return code
		}
		p.cond.Wait()
	}
	return engine.Success
}

func (p *Proc) Init() engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case !p.started:
		return engine.ErrTransport
	case p.finalized:
		return engine.ErrFinalized
	case p.initialized:
		return engine.ErrOther
	}
	p.initialized = true
	p.log.Debug("engine initialized", logging.LogFields{"size": p.size})
	return engine.Success
}

// Finalize synchronizes every rank and stops dispatching. Requests that
// were never completed or freed make it fail with ErrPending.
func (p *Proc) Finalize() engine.Code {
	p.mu.Lock()
	if code := p.usableLocked(); code != engine.Success && code != engine.ErrAborted {
		p.mu.Unlock()
		return code
	}
	if n := len(p.requests); n > 0 {
		p.mu.Unlock()
		p.log.Info("finalize with active requests", logging.LogFields{"requests": n})
		return engine.ErrPending
	}
	p.mu.Unlock()

	code := p.Barrier(engine.CommWorld)

	p.mu.Lock()
	p.finalized = true
	cancel := p.cancel
	p.cond.Broadcast()
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.log.Debug("engine finalized", logging.LogFields{"code": code.String()})
	return code
}

func (p *Proc) Initialized(flag *bool) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	*flag = p.initialized
	return engine.Success
}

func (p *Proc) Finalized(flag *bool) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	*flag = p.finalized
	return engine.Success
}

// Abort marks the job aborted and tells every other rank. Blocked calls on
// every rank return ErrAborted.
func (p *Proc) Abort(_ engine.Comm, errorCode int32) engine.Code {
	p.mu.Lock()
	if p.aborted {
		p.mu.Unlock()
		return engine.Success
	}
	p.aborted = true
	p.cond.Broadcast()
	out := make([]outgoing, 0, p.size)
	for r := int32(0); r < p.size; r++ {
		if r == p.rank {
			continue
		}
		out = append(out, outgoing{dst: r, env: &envelope{Kind: kindAbort, Src: p.rank, Code: engine.Code(errorCode)}})
	}
	p.mu.Unlock()

	p.metrics.Aborted(p.rank)
	p.log.Info("aborting job", logging.LogFields{"code": errorCode})
	p.publish(out...)
	return engine.Success
}

func (p *Proc) ErrorString(code engine.Code) string { return engine.DescribeCode(code) }

func (p *Proc) Wtime() float64 { return time.Since(p.start).Seconds() }
func (p *Proc) Wtick() float64 { return 1e-9 }

func bytesAt(ptr unsafe.Pointer, n int) []byte {
	if ptr == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), n)
}

// aligned allocates n bytes on an 8-byte boundary so any element type can
// be viewed in place.
func aligned(n int) []byte {
	if n <= 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n)
}
