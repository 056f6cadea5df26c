package network

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RoboSDK/flow/cancellation"
	"github.com/RoboSDK/flow/channel"
	"github.com/RoboSDK/flow/errors"
	"github.com/RoboSDK/flow/logging"
	"github.com/RoboSDK/flow/metric"
	"github.com/RoboSDK/flow/routine"
	"github.com/RoboSDK/flow/scheduler"
)

// routineSpec is one materialized routine awaiting launch.
type routineSpec struct {
	name        string
	kind        routine.Kind
	run         func(context.Context) error
	invocations func() uint64
}

// Network is the materialized set of routines, channels, handles, and
// scheduler for one chain. The network exclusively owns routines and
// channels; handles hold cancellation authority only.
type Network struct {
	id       string
	logger   *slog.Logger
	registry *channel.Registry
	pool     *scheduler.Pool
	metrics  *metric.MetricsRegistry

	capacity  int
	batchSize int

	routines []routineSpec
	handles  []*CallbackHandle
	// tails holds the cancellation handles of every consumer and spinner
	// routine. For a chain that is the terminal consumer plus any spinners;
	// for raw registrations every subscriber counts as a tail, and the last
	// one cancelled drives the handshake.
	tails []cancellation.Handle

	mu   sync.Mutex
	spun atomic.Bool
}

// New materializes routines and channels for the chain. All build-time
// failures (broken chain, invalid head or tail, channel creation) surface
// here, before any task starts.
func New(c *Chain, opts ...Option) (*Network, error) {
	net := &Network{
		id:        uuid.NewString(),
		capacity:  channel.DefaultCapacity,
		batchSize: channel.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(net)
	}
	net.logger = logging.Default(net.logger).With(slog.String("network", net.id))
	if net.registry == nil {
		net.registry = channel.NewRegistry(net.logger)
	}
	if net.pool == nil {
		poolOpts := []scheduler.Option{scheduler.WithLogger(net.logger)}
		if net.metrics != nil {
			poolOpts = append(poolOpts, scheduler.WithMetrics(net.metrics, "flow_scheduler"))
		}
		net.pool = scheduler.NewPool(poolOpts...)
	}

	// A nil chain is allowed: the network then starts empty and is populated
	// through the low-level SubscribeTo/PublishTo entry points.
	if c == nil {
		net.logger.Debug("network materialized without a chain")
		return net, nil
	}

	if err := validate(c); err != nil {
		return nil, err
	}

	// Wire each node to its channels. prevOut carries the upstream channel
	// for the next typed node; prevEdge its resolved name for handle
	// issuance.
	var prevOut any
	var prevEdge string
	for i := range c.nodes {
		nd := &c.nodes[i]
		inEdge := prevEdge

		var in, out any
		var err error
		switch nd.kind {
		case routine.KindPublisher, routine.KindTransformer:
			if nd.kind == routine.KindTransformer {
				in = prevOut
			}
			out, err = nd.makeOut(net)
			if err != nil {
				return nil, errors.Wrap(err, "Network", "New", "edge channel creation")
			}
			prevOut = out
			prevEdge = nd.edgeName
		case routine.KindConsumer:
			in = prevOut
		}

		// Publisher handles reference their out edge; subscription handles
		// (transformer, consumer) the edge they consume from.
		handleChannel := nd.edgeName
		messageType := nd.outType
		if nd.handleKind == HandleSubscription {
			handleChannel = inEdge
			messageType = nd.inType
		}

		run, err := nd.bind(in, out)
		if err != nil {
			return nil, errors.Wrap(err, "Network", "New", "routine registration")
		}
		net.routines = append(net.routines, routineSpec{
			name:        nd.callableName,
			kind:        nd.kind,
			run:         run,
			invocations: nd.invocations,
		})
		net.handles = append(net.handles,
			newCallbackHandle(nd.callableID, nd.handleKind, handleChannel, messageType, nd.handle, nd.detach))
		if nd.kind == routine.KindConsumer || nd.kind == routine.KindSpinner {
			net.tails = append(net.tails, nd.handle)
		}
	}

	net.logger.Debug("network materialized",
		slog.Int("routines", len(net.routines)),
		slog.Int("channels", net.registry.Len()))
	return net, nil
}

func validate(c *Chain) error {
	if c.err != nil {
		return c.err
	}
	if len(c.nodes) == 0 {
		return errors.WrapInvalid(errors.ErrEmptyChain, "Network", "New", "chain validation")
	}

	var firstTyped, lastTyped *node
	for i := range c.nodes {
		if c.nodes[i].kind == routine.KindSpinner {
			continue
		}
		if firstTyped == nil {
			firstTyped = &c.nodes[i]
		}
		lastTyped = &c.nodes[i]
	}

	// A chain of spinners alone is valid; it has no edges.
	if firstTyped == nil {
		return nil
	}
	if firstTyped.kind != routine.KindPublisher {
		return errors.WrapInvalid(errors.ErrChainHead, "Network", "New", "chain validation")
	}
	if lastTyped.kind != routine.KindConsumer {
		return errors.WrapInvalid(errors.ErrChainTail, "Network", "New", "chain validation")
	}
	return nil
}

// ID returns the network's unique identifier.
func (n *Network) ID() string { return n.id }

// Handles returns the callback handles issued for every routine, in chain
// order.
func (n *Network) Handles() []*CallbackHandle {
	return n.handles
}

// Registry returns the channel registry backing this network.
func (n *Network) Registry() *channel.Registry { return n.registry }

// Pool returns the scheduler the routines run on.
func (n *Network) Pool() *scheduler.Pool { return n.pool }

// CancelAfter arms a one-shot timer that requests cancellation on the
// terminal consumer's token once d elapses. Only the tail is a valid
// shutdown initiator: the termination handshake flows from tail upward, so
// cancelling mid-chain is undefined. When several subscribers share the
// tail (raw registrations), all of them are cancelled and the last one to
// withdraw drives the handshake.
//
// Cancellation timing is non-deterministic; d bounds when shutdown begins,
// not when it completes.
func (n *Network) CancelAfter(d time.Duration) {
	n.mu.Lock()
	tails := make([]cancellation.Handle, len(n.tails))
	copy(tails, n.tails)
	n.mu.Unlock()

	n.pool.AfterFunc(d, func() {
		n.logger.Debug("cancellation deadline elapsed", slog.Duration("after", d))
		for _, tail := range tails {
			tail.RequestCancellation()
		}
	})
}

// Spin launches every routine on the pool and blocks until all have
// returned, i.e. until the termination handshake has completed on every
// channel. It returns the joined errors of failed routines, nil when the
// run shut down cleanly. A network spins at most once.
func (n *Network) Spin(ctx context.Context) error {
	if !n.spun.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadySpun, "Network", "Spin", "launch")
	}
	defer n.pool.Stop()

	n.logger.Info("network spinning", slog.Int("routines", len(n.routines)))

	var mu sync.Mutex
	var errs []error

	for _, rt := range n.routines {
		rt := rt
		if n.metrics != nil {
			n.metrics.CoreMetrics().RoutinesActive.Inc()
		}
		n.pool.Submit(ctx, rt.name, func(ctx context.Context) error {
			err := rt.run(ctx)
			if n.metrics != nil {
				core := n.metrics.CoreMetrics()
				core.RoutineInvocations.WithLabelValues(rt.kind.String()).
					Add(float64(rt.invocations()))
				if err != nil {
					core.RoutineFailures.WithLabelValues(rt.kind.String()).Inc()
				}
				core.RoutinesActive.Dec()
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return err
		})
	}

	n.pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(errs) > 0 {
		n.logger.Error("network stopped with failures", slog.Int("failed", len(errs)))
		return stderrors.Join(errs...)
	}
	n.logger.Info("network stopped")
	return nil
}
