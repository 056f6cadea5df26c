package network

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/RoboSDK/flow/cancellation"
)

// HandleKind distinguishes the two registration directions.
type HandleKind int

const (
	// HandlePublisher marks a handle issued for a publishing registration.
	HandlePublisher HandleKind = iota
	// HandleSubscription marks a handle issued for a subscription.
	HandleSubscription
)

// String returns the string representation of the handle kind
func (k HandleKind) String() string {
	switch k {
	case HandlePublisher:
		return "publisher"
	case HandleSubscription:
		return "subscription"
	default:
		return "unknown"
	}
}

// CallbackHandle is the externally held receipt for a registered publisher
// or subscription. It identifies the registration and bears cancellation
// authority over the owning routine; the handle may outlive the routine.
type CallbackHandle struct {
	id          uint64
	kind        HandleKind
	channelName string
	messageType reflect.Type

	disabled atomic.Bool
	cancel   cancellation.Handle
	detach   func()
}

func newCallbackHandle(id uint64, kind HandleKind, channelName string, messageType reflect.Type, cancel cancellation.Handle, detach func()) *CallbackHandle {
	return &CallbackHandle{
		id:          id,
		kind:        kind,
		channelName: channelName,
		messageType: messageType,
		cancel:      cancel,
		detach:      detach,
	}
}

// ID returns the stable identifier shared with the underlying callable.
func (h *CallbackHandle) ID() uint64 { return h.id }

// Kind returns the registration direction.
func (h *CallbackHandle) Kind() HandleKind { return h.kind }

// ChannelName returns the channel this registration is attached to.
func (h *CallbackHandle) ChannelName() string { return h.channelName }

// MessageType returns the channel's message type.
func (h *CallbackHandle) MessageType() reflect.Type { return h.messageType }

// Disable sets the disabled flag, detaches the owning routine, and requests
// cancellation of its token. A detached subscriber with live peers leaves
// its channel without initiating the termination handshake; the network
// shuts down when the remaining consumers are cancelled. Disabling twice is
// equivalent to once.
func (h *CallbackHandle) Disable() {
	h.disabled.Store(true)
	if h.detach != nil {
		h.detach()
	}
	h.cancel.RequestCancellation()
}

// IsDisabled reports whether Disable has been called.
func (h *CallbackHandle) IsDisabled() bool {
	return h.disabled.Load()
}

// String returns a log-friendly description of the handle.
func (h *CallbackHandle) String() string {
	msgType := "<none>"
	if h.messageType != nil {
		msgType = h.messageType.String()
	}
	return fmt.Sprintf("callback_handle{id: %d, kind: %s, channel: %q, message: %s, disabled: %t}",
		h.id, h.kind, h.channelName, msgType, h.IsDisabled())
}
