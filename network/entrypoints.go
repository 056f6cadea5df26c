package network

import (
	"context"
	"reflect"

	"github.com/RoboSDK/flow/errors"
	"github.com/RoboSDK/flow/routine"
)

// SubscribeTo attaches a consumer routine to the named registry channel,
// bypassing the chain sugar. The returned handle bears cancellation
// authority over the routine; Disable requests it to exit.
//
// Registrations must happen before Spin launches the network.
func SubscribeTo[T any](net *Network, channelName string, fn func(T)) (*CallbackHandle, error) {
	net.mu.Lock()
	defer net.mu.Unlock()

	if net.spun.Load() {
		return nil, errors.WrapInvalid(errors.ErrAlreadySpun, "Network", "SubscribeTo", "registration")
	}

	ch, err := getOrCreateEdge[T](net, channelName)
	if err != nil {
		return nil, errors.Wrap(err, "Network", "SubscribeTo", "channel resolution")
	}

	tok, err := ch.Subscribe()
	if err != nil {
		return nil, errors.Wrap(err, "Network", "SubscribeTo", "cursor allocation")
	}

	con := routine.NewConsumer[T]("", fn)
	net.routines = append(net.routines, routineSpec{
		name:        con.Name(),
		kind:        routine.KindConsumer,
		invocations: con.Invocations,
		run: func(context.Context) error {
			return routine.SpinConsumer(ch, con, tok)
		},
	})

	handle := newCallbackHandle(con.ID(), HandleSubscription, ch.Name(),
		reflect.TypeFor[T](), con.Handle(), con.Detach)
	net.handles = append(net.handles, handle)
	net.tails = append(net.tails, con.Handle())
	return handle, nil
}

// PublishTo attaches a publisher routine to the named registry channel,
// bypassing the chain sugar.
//
// Registrations must happen before Spin launches the network.
func PublishTo[T any](net *Network, channelName string, fn func() T) (*CallbackHandle, error) {
	net.mu.Lock()
	defer net.mu.Unlock()

	if net.spun.Load() {
		return nil, errors.WrapInvalid(errors.ErrAlreadySpun, "Network", "PublishTo", "registration")
	}

	ch, err := getOrCreateEdge[T](net, channelName)
	if err != nil {
		return nil, errors.Wrap(err, "Network", "PublishTo", "channel resolution")
	}

	tok, err := ch.RegisterProducer()
	if err != nil {
		return nil, errors.Wrap(err, "Network", "PublishTo", "producer registration")
	}

	pub := routine.NewPublisher[T]("", fn)
	net.routines = append(net.routines, routineSpec{
		name:        pub.Name(),
		kind:        routine.KindPublisher,
		invocations: pub.Invocations,
		run: func(context.Context) error {
			return routine.SpinPublisher(ch, pub, tok)
		},
	})

	handle := newCallbackHandle(pub.ID(), HandlePublisher, ch.Name(),
		reflect.TypeFor[T](), pub.Handle(), pub.Detach)
	net.handles = append(net.handles, handle)
	return handle, nil
}
