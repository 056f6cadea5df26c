// Package routine provides the cooperative drivers that keep user callables
// spinning until cancellation, plus the drain helpers that flush in-flight
// messages during the termination handshake.
package routine

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/RoboSDK/flow/channel"
	"github.com/RoboSDK/flow/errors"
	"github.com/RoboSDK/flow/logging"
)

// Process-wide drain mutexes. Shutdown handshakes of transformers and
// consumers are serialized across every network sharing the runtime so two
// pipelines never interleave their handshakes.
var (
	transformerMu sync.Mutex
	consumerMu    sync.Mutex
)

// yield gives up the worker between polls so peer routines progress.
func yield() { runtime.Gosched() }

// recovered converts a user-callable panic into a fatal-class error.
func recovered(kind Kind, name string, r any) error {
	if ce, ok := r.(*logging.CriticalError); ok {
		return errors.WrapFatal(ce, kind.String(), name, "user callable invocation")
	}
	return errors.WrapFatal(fmt.Errorf("panic: %v", r), kind.String(), name, "user callable invocation")
}

// SpinSpinner keeps invoking the spinner until it is cancelled. Spinners
// hold no channels; they yield between invocations instead of suspending.
func SpinSpinner(sp *Spinner) error {
	for !sp.CancellationRequested() {
		if err := invokeSpinner(sp); err != nil {
			return err
		}
		yield()
	}
	return nil
}

func invokeSpinner(sp *Spinner) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(KindSpinner, sp.Name(), r)
		}
	}()
	sp.Invoke()
	return nil
}

// SpinPublisher keeps the publisher producing batches into out until the
// downstream side initializes termination. The producer token must come
// from out.RegisterProducer; registration happens at build time so the
// handshake accounts for this producer even if cancellation fires before
// the routine is scheduled.
//
// The publisher has no upstream, so its only drain obligation is confirming
// termination.
func SpinPublisher[R any](out *channel.Channel[R], pub *Publisher[R], tok *channel.ProducerToken[R]) error {
	tok.SetCancelled(pub.CancellationRequested)
	pub.Token().OnCancel(out.Wake)

	var callErr error
	for out.State() < channel.ConsumerInitialized && !pub.CancellationRequested() {
		if !out.RequestPermissionToPublish(tok) {
			break
		}

		reserved := tok.Reserved()
		for i := 0; i < reserved; i++ {
			msg, err := invokePublisher(pub)
			if err != nil {
				callErr = err
				break
			}
			tok.Push(msg)
		}

		if callErr != nil {
			// A failed invocation leaves the batch short: return the
			// unfilled sequences so the commit cursor can pass them, then
			// hand over what was produced.
			out.ReleaseReservation(tok)
			out.PublishMessages(tok)
			break
		}

		out.PublishMessages(tok)
	}

	out.ConfirmTermination()
	return callErr
}

func invokePublisher[R any](pub *Publisher[R]) (msg R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(KindPublisher, pub.Name(), r)
		}
	}()
	return pub.Invoke(), nil
}

// SpinConsumer keeps the consumer receiving from in until its token reports
// cancellation. A consumer disabled while peer subscribers remain leaves the
// channel quietly; the last consumer drives the termination handshake:
// initialize, flush until every producer confirmed, drain the residue,
// finalize.
func SpinConsumer[A any](in *channel.Channel[A], con *Consumer[A], tok *channel.SubscriberToken) error {
	con.Token().OnCancel(in.Wake)

	var callErr error
	for callErr == nil && !con.CancellationRequested() && in.State() < channel.ConsumerInitialized {
		gen := in.MessageGenerator(tok, con.CancellationRequested)
		for {
			msg, ok := gen.Next()
			if !ok {
				break
			}
			callErr = invokeConsumer(con, msg)
			in.NotifyMessageConsumed(tok)
			if callErr != nil || con.CancellationRequested() {
				break
			}
		}
	}

	// Handshakes are serialized across networks sharing the runtime.
	consumerMu.Lock()
	defer consumerMu.Unlock()

	// A subscriber disabled through its handle withdraws without shutting
	// the channel down while peers remain; the pipeline terminates when the
	// last consumer is cancelled. Deadline cancellation always runs the full
	// handshake so every subscriber drains completely.
	if con.Detached() && in.State() == channel.Running && in.Leave(tok) {
		return callErr
	}

	in.InitializeTermination()
	for in.State() < channel.PublisherReceived {
		flushInto(in, con, tok, &callErr)
		yield()
	}
	// Producers have all confirmed; one final pass drains the residue so no
	// committed slot is dropped.
	flushInto(in, con, tok, &callErr)
	in.FinalizeTermination()

	return callErr
}

func invokeConsumer[A any](con *Consumer[A], msg A) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(KindConsumer, con.Name(), r)
		}
	}()
	con.Invoke(msg)
	return nil
}

// SpinTransformer bridges in and out: it transforms batches while the
// downstream side runs, trickles residual messages one sequence at a time
// during the downstream drain, then terminates its upstream channel. Tokens
// come from out.RegisterProducer and in.Subscribe at build time.
func SpinTransformer[A, R any](
	in *channel.Channel[A],
	out *channel.Channel[R],
	tr *Transformer[A, R],
	ptok *channel.ProducerToken[R],
	stok *channel.SubscriberToken,
) error {
	ptok.SetCancelled(tr.CancellationRequested)
	tr.Token().OnCancel(func() {
		in.Wake()
		out.Wake()
	})

	downstreamDone := func() bool {
		return out.State() >= channel.ConsumerInitialized || tr.CancellationRequested()
	}

	var callErr error
	if out.RequestPermissionToPublish(ptok) {
	steady:
		for callErr == nil && !downstreamDone() {
			gen := in.MessageGenerator(stok, downstreamDone)
			for {
				msg, ok := gen.Next()
				if !ok {
					break
				}

				res, err := invokeTransformer(tr, msg)
				in.NotifyMessageConsumed(stok)
				if err != nil {
					callErr = err
					// Commit the results already produced and return the
					// unfilled sequences so fan-in peers on out are not
					// stalled behind this batch's gap.
					out.ReleaseReservation(ptok)
					out.PublishMessages(ptok)
					break steady
				}
				ptok.Push(res)

				if ptok.Full() {
					out.PublishMessages(ptok)
					if !out.RequestPermissionToPublish(ptok) {
						break steady
					}
				}
				if downstreamDone() {
					break steady
				}
			}
		}
	}

	// The mutex scopes the downstream drain only. The upstream handshake
	// below must run outside it: an upstream transformer confirms under
	// this same mutex, and holding it while waiting for that confirmation
	// would deadlock chains with more than one transformer.
	transformerMu.Lock()

	out.ConfirmTermination()

	// One-at-a-time trickle: secure a downstream sequence, then move one
	// message, so nothing consumed from upstream lacks a slot. The poll is
	// non-suspending; the downstream consumer drives finalization. A
	// transformer disabled by its handle skips the trickle and terminates
	// upstream instead.
	if callErr == nil && !tr.CancellationRequested() {
		gen := in.MessageGenerator(stok, nil)
		for out.State() < channel.ConsumerFinalized {
			if !out.RequestPermissionToPublishOne(ptok) {
				break
			}
			if ptok.Pending() == 0 {
				msg, ok := gen.TryNext()
				if !ok {
					if out.State() >= channel.ConsumerFinalized {
						break
					}
					yield()
					continue
				}
				res, err := invokeTransformer(tr, msg)
				in.NotifyMessageConsumed(stok)
				if err != nil {
					callErr = err
					break
				}
				ptok.Push(res)
			}
			out.PublishOne(ptok)
		}
	}

	// Whatever is still staged or reserved goes back to the channel before
	// the upstream handshake; an abandoned sequence would stall the commit
	// cursor for every other producer on out.
	out.ReleaseReservation(ptok)
	out.PublishMessages(ptok)
	transformerMu.Unlock()

	in.InitializeTermination()
	for in.State() < channel.PublisherReceived {
		flushTransformer(in, tr, stok, &callErr)
		yield()
	}
	flushTransformer(in, tr, stok, &callErr)
	in.FinalizeTermination()

	return callErr
}

func invokeTransformer[A, R any](tr *Transformer[A, R], msg A) (res R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(KindTransformer, tr.Name(), r)
		}
	}()
	return tr.Invoke(msg), nil
}

// flushInto releases producers suspended on the other end of the channel by
// consuming residual messages through the consumer callable.
func flushInto[A any](ch *channel.Channel[A], con *Consumer[A], tok *channel.SubscriberToken, callErr *error) {
	flush(ch, tok, func(msg A) {
		if err := invokeConsumer(con, msg); err != nil && *callErr == nil {
			*callErr = err
		}
	})
}

// flushTransformer is flushInto for a transformer's upstream side; results
// have nowhere to go once the downstream channel is finalized and are
// dropped.
func flushTransformer[A, R any](ch *channel.Channel[A], tr *Transformer[A, R], tok *channel.SubscriberToken, callErr *error) {
	flush(ch, tok, func(msg A) {
		if _, err := invokeTransformer(tr, msg); err != nil && *callErr == nil {
			*callErr = err
		}
	})
}

// flush steps the generator to exhaustion while a producer is suspended on
// the other end, so no routine stays parked after the consumer side decides
// to stop. A final exhaustion pass also catches messages committed after the
// last producer woke.
func flush[A any](ch *channel.Channel[A], tok *channel.SubscriberToken, invoke func(A)) {
	for {
		gen := ch.MessageGenerator(tok, nil)
		for {
			msg, ok := gen.TryNext()
			if !ok {
				break
			}
			invoke(msg)
			ch.NotifyMessageConsumed(tok)
		}
		if !ch.IsWaiting() {
			return
		}
		yield()
	}
}
