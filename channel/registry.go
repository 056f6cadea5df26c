package channel

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/RoboSDK/flow/logging"
)

// Key identifies a channel by name and message type. Two edges carrying the
// same message type under the same name resolve to the same channel; that is
// how fan-in and fan-out across routines compose.
type Key struct {
	Name string
	Type reflect.Type
}

// Registry is the keyed store mapping (channel name, message type) to a
// unique channel instance.
//
// When no name is supplied the stringified message type is used. Two
// unrelated edges with the same message type therefore collide on the
// default and share a channel; name the edges explicitly when that is not
// intended.
type Registry struct {
	mu       sync.RWMutex
	channels map[Key]any
	logger   *slog.Logger
}

// NewRegistry creates an empty channel registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		channels: make(map[Key]any),
		logger:   logging.Default(logger),
	}
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// TypeName returns the default channel name for message type T.
func TypeName[T any]() string {
	return messageType[T]().String()
}

func messageType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// GetOrCreate returns the channel registered under (name, T), creating it
// with the given options on first use. Idempotent: repeated lookups with the
// same key return the same instance, and creation options on later calls are
// ignored.
func GetOrCreate[T any](r *Registry, name string, opts ...Option[T]) (*Channel[T], error) {
	if name == "" {
		name = TypeName[T]()
	}
	key := Key{Name: name, Type: messageType[T]()}

	r.mu.RLock()
	existing, ok := r.channels[key]
	r.mu.RUnlock()
	if ok {
		return existing.(*Channel[T]), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock; another goroutine may have won.
	if existing, ok := r.channels[key]; ok {
		return existing.(*Channel[T]), nil
	}

	ch, err := New[T](name, opts...)
	if err != nil {
		return nil, err
	}
	r.channels[key] = ch
	r.logger.Debug("channel created",
		slog.String("channel", name),
		slog.String("type", key.Type.String()),
		slog.Int("capacity", ch.Capacity()))
	return ch, nil
}

// Lookup returns the channel registered under (name, T) without creating
// one. An empty name resolves to the type's default name.
func Lookup[T any](r *Registry, name string) (*Channel[T], bool) {
	if name == "" {
		name = TypeName[T]()
	}
	key := Key{Name: name, Type: messageType[T]()}

	r.mu.RLock()
	defer r.mu.RUnlock()
	existing, ok := r.channels[key]
	if !ok {
		return nil, false
	}
	return existing.(*Channel[T]), true
}
