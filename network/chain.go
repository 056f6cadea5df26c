package network

import (
	"context"
	"fmt"
	"reflect"

	"github.com/RoboSDK/flow/cancellation"
	"github.com/RoboSDK/flow/channel"
	"github.com/RoboSDK/flow/errors"
	"github.com/RoboSDK/flow/routine"
)

// Chain is the user-declared linear sequence of nodes describing a pipeline:
// a publisher at the head, zero or more transformers, and a consumer at the
// tail. Spinners carry no edges and may appear anywhere.
//
// Appends record the edge message types; a type mismatch between adjacent
// nodes marks the chain broken and surfaces from New before any task starts.
// A Chain is immutable once handed to New.
type Chain struct {
	nodes []node
	err   error
}

// node is one chain entry with its type information erased behind closures
// created while the concrete types were still known.
type node struct {
	kind         routine.Kind
	handleKind   HandleKind
	callableName string
	callableID   uint64
	edgeName     string // resolved out-edge channel name ("" for tail nodes)
	inType       reflect.Type
	outType      reflect.Type
	handle       cancellation.Handle
	detach       func()
	invocations  func() uint64

	// makeOut creates or resolves the out-edge channel; nil for consumers
	// and spinners.
	makeOut func(net *Network) (any, error)
	// bind registers the routine's tokens on its channels and returns the
	// driver. in/out are *channel.Channel of the node's concrete types.
	// Registration happens at build time so the termination handshake
	// accounts for every routine before any of them is scheduled.
	bind func(in, out any) (func(context.Context) error, error)
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Err returns the first append error, if any.
func (c *Chain) Err() error {
	return c.err
}

// lastTyped returns the most recent node that carries edge types.
func (c *Chain) lastTyped() *node {
	for i := len(c.nodes) - 1; i >= 0; i-- {
		if c.nodes[i].kind != routine.KindSpinner {
			return &c.nodes[i]
		}
	}
	return nil
}

func (c *Chain) fail(err error, operation, action string) *Chain {
	if c.err == nil {
		c.err = errors.WrapInvalid(err, "Chain", operation, action)
	}
	return c
}

// AddSpinner appends a node that re-invokes fn until cancelled. Spinners
// hold no channels and do not take part in edge type checking.
func AddSpinner(c *Chain, fn func()) *Chain {
	if c.err != nil {
		return c
	}

	sp := routine.NewSpinner("", fn)
	c.nodes = append(c.nodes, node{
		kind:         routine.KindSpinner,
		handleKind:   HandleSubscription,
		callableName: sp.Name(),
		callableID:   sp.ID(),
		handle:       sp.Handle(),
		detach:       sp.Detach,
		invocations:  sp.Invocations,
		bind: func(_, _ any) (func(context.Context) error, error) {
			return func(context.Context) error {
				return routine.SpinSpinner(sp)
			}, nil
		},
	})
	return c
}

// Publish appends the head publisher. The optional name overrides the
// out-edge channel name, which otherwise defaults to the stringified
// message type.
func Publish[R any](c *Chain, fn func() R, name ...string) *Chain {
	if c.err != nil {
		return c
	}
	if c.lastTyped() != nil {
		return c.fail(errors.ErrChainHead, "Publish", "head placement check")
	}

	edge := ""
	if len(name) > 0 {
		edge = name[0]
	}
	if edge == "" {
		edge = channel.TypeName[R]()
	}

	pub := routine.NewPublisher[R]("", fn)
	c.nodes = append(c.nodes, node{
		kind:         routine.KindPublisher,
		handleKind:   HandlePublisher,
		callableName: pub.Name(),
		callableID:   pub.ID(),
		edgeName:     edge,
		outType:      reflect.TypeFor[R](),
		handle:       pub.Handle(),
		detach:       pub.Detach,
		invocations:  pub.Invocations,
		makeOut: func(net *Network) (any, error) {
			return getOrCreateEdge[R](net, edge)
		},
		bind: func(_, out any) (func(context.Context) error, error) {
			ch := out.(*channel.Channel[R])
			tok, err := ch.RegisterProducer()
			if err != nil {
				return nil, err
			}
			return func(context.Context) error {
				return routine.SpinPublisher(ch, pub, tok)
			}, nil
		},
	})
	return c
}

// Transform appends a middle transformer mapping A to R. The optional name
// overrides the out-edge channel name.
func Transform[A, R any](c *Chain, fn func(A) R, name ...string) *Chain {
	if c.err != nil {
		return c
	}
	prev := c.lastTyped()
	if prev == nil || prev.kind == routine.KindConsumer {
		return c.fail(errors.ErrChainHead, "Transform", "upstream placement check")
	}
	if prev.outType != reflect.TypeFor[A]() {
		return c.fail(
			fmt.Errorf("%w: upstream produces %s, transformer consumes %s",
				errors.ErrTypeMismatch, prev.outType, reflect.TypeFor[A]()),
			"Transform", "edge type check")
	}

	edge := ""
	if len(name) > 0 {
		edge = name[0]
	}
	if edge == "" {
		edge = channel.TypeName[R]()
	}

	tr := routine.NewTransformer[A, R]("", fn)
	c.nodes = append(c.nodes, node{
		kind:         routine.KindTransformer,
		handleKind:   HandleSubscription,
		callableName: tr.Name(),
		callableID:   tr.ID(),
		edgeName:     edge,
		inType:       reflect.TypeFor[A](),
		outType:      reflect.TypeFor[R](),
		handle:       tr.Handle(),
		detach:       tr.Detach,
		invocations:  tr.Invocations,
		makeOut: func(net *Network) (any, error) {
			return getOrCreateEdge[R](net, edge)
		},
		bind: func(in, out any) (func(context.Context) error, error) {
			inCh := in.(*channel.Channel[A])
			outCh := out.(*channel.Channel[R])
			ptok, err := outCh.RegisterProducer()
			if err != nil {
				return nil, err
			}
			stok, err := inCh.Subscribe()
			if err != nil {
				return nil, err
			}
			return func(context.Context) error {
				return routine.SpinTransformer(inCh, outCh, tr, ptok, stok)
			}, nil
		},
	})
	return c
}

// Consume appends the tail consumer.
func Consume[A any](c *Chain, fn func(A)) *Chain {
	if c.err != nil {
		return c
	}
	prev := c.lastTyped()
	if prev == nil || prev.kind == routine.KindConsumer {
		return c.fail(errors.ErrChainHead, "Consume", "upstream placement check")
	}
	if prev.outType != reflect.TypeFor[A]() {
		return c.fail(
			fmt.Errorf("%w: upstream produces %s, consumer expects %s",
				errors.ErrTypeMismatch, prev.outType, reflect.TypeFor[A]()),
			"Consume", "edge type check")
	}

	con := routine.NewConsumer[A]("", fn)
	c.nodes = append(c.nodes, node{
		kind:         routine.KindConsumer,
		handleKind:   HandleSubscription,
		callableName: con.Name(),
		callableID:   con.ID(),
		inType:       reflect.TypeFor[A](),
		handle:       con.Handle(),
		detach:       con.Detach,
		invocations:  con.Invocations,
		bind: func(in, _ any) (func(context.Context) error, error) {
			inCh := in.(*channel.Channel[A])
			tok, err := inCh.Subscribe()
			if err != nil {
				return nil, err
			}
			return func(context.Context) error {
				return routine.SpinConsumer(inCh, con, tok)
			}, nil
		},
	})
	return c
}

// getOrCreateEdge resolves a chain edge against the network's registry with
// the network's channel defaults.
func getOrCreateEdge[T any](net *Network, name string) (*channel.Channel[T], error) {
	opts := []channel.Option[T]{
		channel.WithCapacity[T](net.capacity),
		channel.WithBatchSize[T](net.batchSize),
		channel.WithLogger[T](net.logger),
	}
	if net.metrics != nil {
		opts = append(opts, channel.WithMetrics[T](net.metrics))
	}
	return channel.GetOrCreate(net.registry, name, opts...)
}
