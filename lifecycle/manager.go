package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/RoboSDK/flow/errors"
	"github.com/RoboSDK/flow/logging"
	"github.com/RoboSDK/flow/pkg/retry"
)

// managed tracks one registered service and its wiring state.
type managed struct {
	id       string
	service  Service
	provides []reflect.Type
	deps     []Dependency

	satisfied  map[reflect.Type]bool
	state      State
	startOrder int
	lastErr    error
}

func (m *managed) requiredSatisfied() bool {
	for _, dep := range m.deps {
		if dep.Required && !m.satisfied[dep.Iface] {
			return false
		}
	}
	return true
}

func (m *managed) dependsOn(iface reflect.Type) (Dependency, bool) {
	for _, dep := range m.deps {
		if dep.Iface == iface {
			return dep, true
		}
	}
	return Dependency{}, false
}

// Manager is the service-lifecycle registry: services declare the interfaces
// they provide and require, and the manager starts each service once its
// required interfaces are available, injecting implementations into
// dependents as providers come online and withdrawing them as providers
// stop.
type Manager struct {
	mu       sync.Mutex
	logger   *slog.Logger
	retryCfg retry.Config

	services []*managed
	startSeq int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRetry sets the backoff configuration for transient start failures.
func WithRetry(cfg retry.Config) Option {
	return func(m *Manager) {
		m.retryCfg = cfg
	}
}

// NewManager creates an empty lifecycle manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		retryCfg: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.Default(m.logger)
	return m
}

// RegisterOption configures one registration.
type RegisterOption func(*managed)

// Provides declares the interfaces this service offers to dependents.
func Provides(ifaces ...reflect.Type) RegisterOption {
	return func(m *managed) {
		m.provides = append(m.provides, ifaces...)
	}
}

// Register adds a service to the manager and returns its instance id.
// Dependencies are taken from the service's DependencyAware implementation
// when present. Declaring the same provided interface twice is an error, as
// is providing an interface the service does not implement.
func (m *Manager) Register(svc Service, opts ...RegisterOption) (string, error) {
	if svc == nil {
		return "", errors.WrapInvalid(
			fmt.Errorf("service cannot be nil: %w", errors.ErrInvalidConfig),
			"Manager", "Register", "nil check")
	}

	entry := &managed{
		id:        uuid.NewString(),
		service:   svc,
		satisfied: make(map[reflect.Type]bool),
		state:     StateInactive,
	}
	for _, opt := range opts {
		opt(entry)
	}

	seen := make(map[reflect.Type]bool)
	svcType := reflect.TypeOf(svc)
	for _, iface := range entry.provides {
		if seen[iface] {
			return "", errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrAlreadyRegistered, iface),
				"Manager", "Register", "provided interface check")
		}
		seen[iface] = true

		if iface.Kind() != reflect.Interface || !svcType.Implements(iface) {
			return "", errors.WrapInvalid(
				fmt.Errorf("service %s does not implement %s", svc.Name(), iface),
				"Manager", "Register", "provided interface check")
		}
	}

	if aware, ok := svc.(DependencyAware); ok {
		entry.deps = aware.Dependencies()
	}

	m.mu.Lock()
	m.services = append(m.services, entry)
	m.mu.Unlock()

	m.logger.Debug("service registered",
		slog.String("service", svc.Name()),
		slog.String("id", entry.id),
		slog.Int("provides", len(entry.provides)),
		slog.Int("dependencies", len(entry.deps)))
	return entry.id, nil
}

// StartAll wires and starts registered services: each round starts, in
// parallel, every service whose required interfaces are satisfied, then
// injects the new providers into dependents; rounds repeat until no further
// service becomes startable. Services left waiting for a required interface
// are reported through the returned error and remain registered, so a later
// StartAll can pick them up once a provider is registered.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		var ready []*managed
		for _, entry := range m.services {
			if (entry.state == StateInactive || entry.state == StateWaiting) && entry.requiredSatisfied() {
				ready = append(ready, entry)
			}
		}
		if len(ready) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, entry := range ready {
			entry := entry
			g.Go(func() error {
				err := retry.Do(gctx, m.retryCfg, func() error {
					return entry.service.Start(gctx)
				})
				if err != nil {
					entry.state = StateFailed
					entry.lastErr = err
					m.logger.Error("service start failed",
						slog.String("service", entry.service.Name()),
						slog.Any("error", err))
					return errors.Wrap(err, "Manager", "StartAll", entry.service.Name()+" start")
				}
				return nil
			})
		}
		err := g.Wait()

		for _, entry := range ready {
			if entry.state == StateFailed {
				continue
			}
			m.startSeq++
			entry.state = StateActive
			entry.startOrder = m.startSeq
			m.logger.Info("service started", slog.String("service", entry.service.Name()))
			m.dependencyOnlineLocked(entry)
		}

		if err != nil {
			return err
		}
	}

	var waiting []string
	for _, entry := range m.services {
		if entry.state == StateActive || entry.state == StateStopped || entry.state == StateFailed {
			continue
		}
		if !entry.requiredSatisfied() {
			entry.state = StateWaiting
			waiting = append(waiting, entry.service.Name())
		}
	}
	if len(waiting) > 0 {
		return errors.WrapTransient(
			fmt.Errorf("%w: %s", errors.ErrMissingDependency, strings.Join(waiting, ", ")),
			"Manager", "StartAll", "dependency resolution")
	}
	return nil
}

// dependencyOnlineLocked injects the provider's interfaces into every
// dependent and marks required dependencies satisfied.
func (m *Manager) dependencyOnlineLocked(provider *managed) {
	for _, iface := range provider.provides {
		for _, entry := range m.services {
			if entry == provider {
				continue
			}
			dep, ok := entry.dependsOn(iface)
			if !ok || entry.satisfied[iface] {
				continue
			}

			if aware, ok := entry.service.(DependencyAware); ok {
				aware.AddDependency(iface, provider.service)
			}
			entry.satisfied[iface] = true
			m.logger.Debug("dependency online",
				slog.String("service", entry.service.Name()),
				slog.String("interface", iface.String()),
				slog.Bool("required", dep.Required))
		}
	}
}

// dependencyOfflineLocked withdraws the provider's interfaces from every
// dependent, stopping active dependents that lose a required interface.
func (m *Manager) dependencyOfflineLocked(provider *managed, timeout time.Duration) {
	for _, iface := range provider.provides {
		for _, entry := range m.services {
			if entry == provider || !entry.satisfied[iface] {
				continue
			}
			dep, _ := entry.dependsOn(iface)

			entry.satisfied[iface] = false
			if dep.Required && entry.state == StateActive {
				m.stopLocked(entry, timeout)
			}
			if aware, ok := entry.service.(DependencyAware); ok {
				aware.RemoveDependency(iface, provider.service)
			}
		}
	}
}

func (m *Manager) stopLocked(entry *managed, timeout time.Duration) {
	m.dependencyOfflineLocked(entry, timeout)

	if err := entry.service.Stop(timeout); err != nil {
		entry.state = StateFailed
		entry.lastErr = err
		m.logger.Error("service stop failed",
			slog.String("service", entry.service.Name()),
			slog.Any("error", err))
		return
	}
	entry.state = StateStopped
	m.logger.Info("service stopped", slog.String("service", entry.service.Name()))
}

// StopAll stops active services in reverse start order, withdrawing their
// interfaces from dependents first.
func (m *Manager) StopAll(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make([]*managed, 0, len(m.services))
	for _, entry := range m.services {
		if entry.state == StateActive {
			active = append(active, entry)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].startOrder > active[j].startOrder
	})

	var failed []string
	for _, entry := range active {
		if entry.state != StateActive {
			// Already stopped as a dependent of an earlier provider.
			continue
		}
		m.stopLocked(entry, timeout)
		if entry.state == StateFailed {
			failed = append(failed, entry.service.Name())
		}
	}

	if len(failed) > 0 {
		return errors.Wrap(
			fmt.Errorf("services failed to stop: %s", strings.Join(failed, ", ")),
			"Manager", "StopAll", "shutdown")
	}
	return nil
}

// ServiceState returns the lifecycle state of the named service.
func (m *Manager) ServiceState(name string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.services {
		if entry.service.Name() == name {
			return entry.state, nil
		}
	}
	return StateInactive, errors.Wrap(errors.ErrServiceNotFound, "Manager", "ServiceState", name)
}

// LastError returns the last lifecycle error of the named service.
func (m *Manager) LastError(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.services {
		if entry.service.Name() == name {
			return entry.lastErr
		}
	}
	return errors.Wrap(errors.ErrServiceNotFound, "Manager", "LastError", name)
}
