// Package lifecycle provides a service-lifecycle registry that wires
// dependent services together as their required interfaces become available.
//
// # Model
//
// A service implements the Service contract (Name/Start/Stop) and declares,
// at registration, the interfaces it Provides. A service that consumes other
// services' interfaces additionally implements DependencyAware: it lists its
// Dependencies (required or optional) and receives implementations through
// AddDependency / RemoveDependency as providers come online and go offline.
//
//	type cache struct{ store Store }
//
//	func (c *cache) Dependencies() []lifecycle.Dependency {
//	    return []lifecycle.Dependency{lifecycle.Required[Store]()}
//	}
//	func (c *cache) AddDependency(_ reflect.Type, impl any)   { c.store = impl.(Store) }
//	func (c *cache) RemoveDependency(_ reflect.Type, _ any)   { c.store = nil }
//
//	mgr := lifecycle.NewManager()
//	mgr.Register(store, lifecycle.Provides(lifecycle.Iface[Store]()))
//	mgr.Register(c)
//	err := mgr.StartAll(ctx)
//
// # Semantics
//
// StartAll runs in rounds: every service whose required set is satisfied
// starts (in parallel; transient failures retried with backoff), its
// provided interfaces are injected into dependents, and the next round
// begins. Services still missing a required interface are left in the
// waiting state and reported through the returned error; registering a
// provider later and calling StartAll again picks them up.
//
// StopAll reverses the start order. Withdrawing a provider first stops any
// active dependent that loses a required interface, then removes the
// injected implementation, so a dependent never observes a dead provider.
package lifecycle
