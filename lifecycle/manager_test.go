package lifecycle

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoboSDK/flow/errors"
	"github.com/RoboSDK/flow/pkg/retry"
)

// Store is a provided interface used by the tests.
type Store interface {
	Put(key string) error
}

// Clock is a second provided interface.
type Clock interface {
	Now() time.Time
}

// events records lifecycle transitions across services.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(entry string) {
	e.mu.Lock()
	e.log = append(e.log, entry)
	e.mu.Unlock()
}

func (e *events) entries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

// storeService provides Store.
type storeService struct {
	events   *events
	failures int
	attempts int
}

func (s *storeService) Name() string { return "store" }

func (s *storeService) Start(context.Context) error {
	s.attempts++
	if s.attempts <= s.failures {
		return fmt.Errorf("store warming up, retry")
	}
	s.events.add("store:start")
	return nil
}

func (s *storeService) Stop(time.Duration) error {
	s.events.add("store:stop")
	return nil
}

func (s *storeService) Put(string) error { return nil }

// cacheService requires Store and optionally Clock.
type cacheService struct {
	events *events

	mu    sync.Mutex
	store Store
	clock Clock
}

func (c *cacheService) Name() string { return "cache" }

func (c *cacheService) Start(context.Context) error {
	c.events.add("cache:start")
	return nil
}

func (c *cacheService) Stop(time.Duration) error {
	c.events.add("cache:stop")
	return nil
}

func (c *cacheService) Dependencies() []Dependency {
	return []Dependency{Required[Store](), Optional[Clock]()}
}

func (c *cacheService) AddDependency(iface reflect.Type, impl any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch iface {
	case Iface[Store]():
		c.store = impl.(Store)
	case Iface[Clock]():
		c.clock = impl.(Clock)
	}
}

func (c *cacheService) RemoveDependency(iface reflect.Type, _ any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch iface {
	case Iface[Store]():
		c.store = nil
	case Iface[Clock]():
		c.clock = nil
	}
}

func (c *cacheService) deps() (Store, Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store, c.clock
}

func quickRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2.0}
}

func TestManager_StartsInDependencyOrder(t *testing.T) {
	ev := &events{}
	store := &storeService{events: ev}
	cache := &cacheService{events: ev}

	mgr := NewManager(WithRetry(quickRetry()))
	_, err := mgr.Register(cache)
	require.NoError(t, err)
	_, err = mgr.Register(store, Provides(Iface[Store]()))
	require.NoError(t, err)

	require.NoError(t, mgr.StartAll(context.Background()))

	log := ev.entries()
	require.Equal(t, []string{"store:start", "cache:start"}, log,
		"dependent starts only after its provider")

	injected, _ := cache.deps()
	assert.NotNil(t, injected, "Store implementation must be injected")

	state, err := mgr.ServiceState("cache")
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)
}

func TestManager_StopsInReverseOrder(t *testing.T) {
	ev := &events{}
	store := &storeService{events: ev}
	cache := &cacheService{events: ev}

	mgr := NewManager(WithRetry(quickRetry()))
	_, err := mgr.Register(store, Provides(Iface[Store]()))
	require.NoError(t, err)
	_, err = mgr.Register(cache)
	require.NoError(t, err)

	require.NoError(t, mgr.StartAll(context.Background()))
	require.NoError(t, mgr.StopAll(time.Second))

	log := ev.entries()
	require.Equal(t, []string{"store:start", "cache:start", "cache:stop", "store:stop"}, log,
		"dependents stop before their providers")

	injected, _ := cache.deps()
	assert.Nil(t, injected, "implementation must be withdrawn on stop")
}

func TestManager_WaitsForMissingRequired(t *testing.T) {
	ev := &events{}
	cache := &cacheService{events: ev}

	mgr := NewManager(WithRetry(quickRetry()))
	_, err := mgr.Register(cache)
	require.NoError(t, err)

	err = mgr.StartAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingDependency)

	state, stateErr := mgr.ServiceState("cache")
	require.NoError(t, stateErr)
	assert.Equal(t, StateWaiting, state)

	// Registering the provider and starting again picks the waiter up.
	store := &storeService{events: ev}
	_, err = mgr.Register(store, Provides(Iface[Store]()))
	require.NoError(t, err)
	require.NoError(t, mgr.StartAll(context.Background()))

	state, stateErr = mgr.ServiceState("cache")
	require.NoError(t, stateErr)
	assert.Equal(t, StateActive, state)
}

func TestManager_RetriesTransientStartFailures(t *testing.T) {
	ev := &events{}
	store := &storeService{events: ev, failures: 2}

	mgr := NewManager(WithRetry(quickRetry()))
	_, err := mgr.Register(store, Provides(Iface[Store]()))
	require.NoError(t, err)

	require.NoError(t, mgr.StartAll(context.Background()))
	assert.Equal(t, 3, store.attempts)
}

func TestManager_ExhaustedRetriesFailService(t *testing.T) {
	ev := &events{}
	store := &storeService{events: ev, failures: 10}

	mgr := NewManager(WithRetry(quickRetry()))
	_, err := mgr.Register(store, Provides(Iface[Store]()))
	require.NoError(t, err)

	err = mgr.StartAll(context.Background())
	require.Error(t, err)

	state, stateErr := mgr.ServiceState("store")
	require.NoError(t, stateErr)
	assert.Equal(t, StateFailed, state)
	assert.Error(t, mgr.LastError("store"))
}

func TestManager_RegisterValidation(t *testing.T) {
	mgr := NewManager()

	_, err := mgr.Register(nil)
	require.Error(t, err)

	ev := &events{}
	store := &storeService{events: ev}

	// Duplicate provided interface.
	_, err = mgr.Register(store, Provides(Iface[Store](), Iface[Store]()))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyRegistered)

	// Interface the service does not implement.
	_, err = mgr.Register(store, Provides(Iface[Clock]()))
	require.Error(t, err)
}

func TestManager_ServiceStateUnknown(t *testing.T) {
	mgr := NewManager()
	_, err := mgr.ServiceState("ghost")
	assert.ErrorIs(t, err, errors.ErrServiceNotFound)
}
