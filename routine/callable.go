package routine

import (
	"fmt"
	"sync/atomic"

	"github.com/RoboSDK/flow/cancellation"
)

// Kind classifies a user callable by its signature.
type Kind int

const (
	// KindSpinner is a callable with no arguments and no result.
	KindSpinner Kind = iota
	// KindPublisher produces one message per invocation.
	KindPublisher
	// KindTransformer maps one incoming message to one outgoing message.
	KindTransformer
	// KindConsumer receives one message per invocation.
	KindConsumer
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindSpinner:
		return "spinner"
	case KindPublisher:
		return "publisher"
	case KindTransformer:
		return "transformer"
	case KindConsumer:
		return "consumer"
	default:
		return "unknown"
	}
}

var nextCallableID atomic.Uint64

// base carries the identity and cancellation state shared by every
// cancellable callable. Cancellation is not injected per call; it is
// observed at loop boundaries by the driver.
type base struct {
	id          uint64
	name        string
	kind        Kind
	token       *cancellation.Token
	detached    atomic.Bool
	invocations atomic.Uint64
}

func newBase(name string, kind Kind) base {
	id := nextCallableID.Add(1)
	if name == "" {
		name = fmt.Sprintf("%s-%d", kind, id)
	}
	return base{
		id:    id,
		name:  name,
		kind:  kind,
		token: cancellation.NewToken(),
	}
}

// ID returns the callable's stable identifier.
func (b *base) ID() uint64 { return b.id }

// Name returns the callable's name, used for logging and handles.
func (b *base) Name() string { return b.name }

// Kind returns the callable's classification.
func (b *base) Kind() Kind { return b.kind }

// Token returns the cancellation source owned by this callable's routine.
func (b *base) Token() *cancellation.Token { return b.token }

// Handle returns the external cancellation view.
func (b *base) Handle() cancellation.Handle { return b.token.Handle() }

// CancellationRequested forwards to the token.
func (b *base) CancellationRequested() bool { return b.token.CancellationRequested() }

// Detach marks the callable as withdrawn by its handle, as opposed to
// cancelled by the network deadline. A detached consumer with live peers
// leaves its channel without initiating the termination handshake.
func (b *base) Detach() { b.detached.Store(true) }

// Detached reports whether the callable was withdrawn by its handle.
func (b *base) Detached() bool { return b.detached.Load() }

// Invocations returns how often the wrapped function has been invoked.
func (b *base) Invocations() uint64 { return b.invocations.Load() }

// Spinner wraps a func() driven until cancelled.
type Spinner struct {
	base
	fn func()
}

// NewSpinner wraps fn as a spinner callable.
func NewSpinner(name string, fn func()) *Spinner {
	return &Spinner{base: newBase(name, KindSpinner), fn: fn}
}

// Invoke calls the wrapped function.
func (s *Spinner) Invoke() {
	s.invocations.Add(1)
	s.fn()
}

// Publisher wraps a func() R producing one message per invocation.
type Publisher[R any] struct {
	base
	fn func() R
}

// NewPublisher wraps fn as a publisher callable.
func NewPublisher[R any](name string, fn func() R) *Publisher[R] {
	return &Publisher[R]{base: newBase(name, KindPublisher), fn: fn}
}

// Invoke calls the wrapped function.
func (p *Publisher[R]) Invoke() R {
	p.invocations.Add(1)
	return p.fn()
}

// Transformer wraps a func(A) R mapping each incoming message to one
// outgoing message.
type Transformer[A, R any] struct {
	base
	fn func(A) R
}

// NewTransformer wraps fn as a transformer callable.
func NewTransformer[A, R any](name string, fn func(A) R) *Transformer[A, R] {
	return &Transformer[A, R]{base: newBase(name, KindTransformer), fn: fn}
}

// Invoke calls the wrapped function.
func (t *Transformer[A, R]) Invoke(msg A) R {
	t.invocations.Add(1)
	return t.fn(msg)
}

// Consumer wraps a func(A) receiving one message per invocation.
type Consumer[A any] struct {
	base
	fn func(A)
}

// NewConsumer wraps fn as a consumer callable.
func NewConsumer[A any](name string, fn func(A)) *Consumer[A] {
	return &Consumer[A]{base: newBase(name, KindConsumer), fn: fn}
}

// Invoke calls the wrapped function.
func (c *Consumer[A]) Invoke(msg A) {
	c.invocations.Add(1)
	c.fn(msg)
}
