// Package servus is a runtime service registry with asynchronous
// dependency resolution. Producers publish capabilities, consumers declare
// dependencies on them, and servus resolves those dependencies in a
// deterministic order even when producers and consumers start in an
// unpredictable sequence.
//
// # Quick Start
//
// Producers register in two phases: Register makes a service discoverable,
// Ready makes it safe to consume.
//
//	reg := servus.New()
//
//	servus.Register(reg, db)       // discoverable, still initializing
//	// ... db warms up ...
//	servus.Ready[*Database](reg)   // waiters for *Database complete now
//
// Consumers mark injectable fields with the `inject` tag and run the
// resolution builder:
//
//	type Server struct {
//	    DB    *Database `inject:""`          // required
//	    Cache *Cache    `inject:",optional"` // absent if never provided
//	}
//
//	srv := &Server{}
//	err := reg.InjectInto(srv).
//	    WithTimeout(5 * time.Second).
//	    ExecuteAsync()
//
// Required fields are all-or-nothing: if any of them cannot be resolved,
// nothing is assigned. Optional fields resolve to absent instead of
// failing. An optional dependency that is not registered yet is given one
// scheduling tick to appear (the settle window) before it is concluded
// absent, which covers the common startup race where a sibling producer
// registers a few ticks later.
//
// # Time
//
// Timeouts run on a virtual clock that advances only when the host calls
// Tick, scaled by a configurable factor:
//
//	reg.Tick(16 * time.Millisecond) // once per scheduling frame
//
// A host that stops ticking freezes every pending timeout rather than
// firing it late. SetLive(false) marks the host as shutting down: a
// cancellation arriving after that degrades pending optional fields to
// absent and still commits the values a resolution has already obtained,
// while the same cancellation on a live host aborts the injection.
//
// # Cycles
//
// Declared dependencies feed an incrementally maintained graph, so a
// registration that closes a dependency loop fails immediately with
// CIRCULAR_DEPENDENCY naming the full cycle path:
//
//	servus.Register(reg, a, servus.WithDependsOn(servus.KeyOf[*B]()))
//	servus.Register(reg, b, servus.WithDependsOn(servus.KeyOf[*A]())) // fails
//
// Services registered with WithExempt stay resolvable but never appear in
// cycle analysis.
//
// # Errors
//
// Every failure is a *Error with a structured code, the service key or
// consumer involved, and, where it applies, the cycle path or the
// unresolved field names. Use the predicates to branch:
//
//	if servus.IsTimeout(err) { ... }
//	if servus.IsServiceRemoved(err) { ... }
package servus
