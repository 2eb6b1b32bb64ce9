package servus

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmarkhas/servus/internal/registry"
	"github.com/dmarkhas/servus/internal/typeref"
)

// KeyOf derives the service key for a contract type, the identity used
// everywhere in the registry.
func KeyOf[T any]() string {
	return typeref.Key[T]()
}

func KeyOfNamed[T any](name string) string {
	return typeref.KeyNamed[T](name)
}

// NameOf is the short display name of a contract type, for messages and
// test output. Unlike KeyOf it omits the package path.
func NameOf[T any]() string {
	return typeref.Name[T]()
}

type RegisterOption func(*registerConfig)

type registerConfig struct {
	name         string
	tags         []string
	exempt       bool
	registeredBy string
	dependencies []string
}

// WithName registers the instance under a named key so several producers
// can publish the same contract type.
func WithName(name string) RegisterOption {
	return func(cfg *registerConfig) {
		cfg.name = name
	}
}

func WithTags(tags ...string) RegisterOption {
	return func(cfg *registerConfig) {
		cfg.tags = append(cfg.tags, tags...)
	}
}

// WithExempt excludes the service from circular-dependency analysis. It
// stays resolvable by direct lookup but never appears in a detected cycle.
func WithExempt() RegisterOption {
	return func(cfg *registerConfig) {
		cfg.exempt = true
	}
}

// WithRegisteredBy records a free-text origin label shown in snapshots.
func WithRegisteredBy(origin string) RegisterOption {
	return func(cfg *registerConfig) {
		cfg.registeredBy = origin
	}
}

// WithDependsOn declares the service keys this producer requires. The
// declaration feeds incremental cycle detection: a registration that
// closes a loop fails immediately with CIRCULAR_DEPENDENCY instead of
// letting a later resolution hang.
func WithDependsOn(keys ...string) RegisterOption {
	return func(cfg *registerConfig) {
		cfg.dependencies = append(cfg.dependencies, keys...)
	}
}

// Register publishes instance under T's key in the Registered state:
// discoverable, but not yet safe to inject. Fails with
// DUPLICATE_REGISTRATION when the key is already present and with
// CIRCULAR_DEPENDENCY when the declared dependencies close a cycle, in
// which case the registration is rolled back.
func Register[T any](r *Registry, instance T, opts ...RegisterOption) error {
	cfg := &registerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	key := typeref.Key[T]()
	if cfg.name != "" {
		key = typeref.KeyNamed[T](cfg.name)
	}

	if typeref.IsNil(instance) {
		return errConfigInvalid(fmt.Sprintf("cannot register nil instance for %s", key), nil).WithService(key)
	}

	err := r.services.Register(key, instance, registry.RegisterOptions{
		Tags:         cfg.tags,
		Exempt:       cfg.exempt,
		RegisteredBy: cfg.registeredBy,
		Dependencies: cfg.dependencies,
	})
	if err != nil {
		if errors.Is(err, registry.ErrDuplicate) {
			return errDuplicateRegistration(key)
		}
		return newError(ErrCodeUnknown, "registration failed", err).WithService(key)
	}

	if cfg.exempt {
		r.graph.MarkExempt(key)
	} else {
		r.graph.SetEdges(key, cfg.dependencies)
		// A new cycle must run through the edges just added, so searching
		// from this key alone covers every consumer affected by them.
		if cycle := r.graph.CheckFrom(key); cycle != nil {
			r.services.Remove(key)
			r.graph.RemoveNode(key)
			return errCircularDependency(cycle)
		}
	}

	r.callRegisterHooks(key)
	return nil
}

// Ready transitions T's key from Registered to Ready and completes every
// pending waiter for it, in insertion order, atomically with the
// transition. Fails with NOT_REGISTERED when the key is absent.
func Ready[T any](r *Registry, opts ...RegisterOption) error {
	cfg := &registerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	key := typeref.Key[T]()
	if cfg.name != "" {
		key = typeref.KeyNamed[T](cfg.name)
	}

	completed, err := r.services.Ready(key)
	if err != nil {
		return errNotRegistered(key)
	}

	r.callReadyHooks(key, completed)
	return nil
}

// RegisterReady registers and immediately marks ready, for producers with
// no asynchronous initialization of their own.
func RegisterReady[T any](r *Registry, instance T, opts ...RegisterOption) error {
	if err := Register(r, instance, opts...); err != nil {
		return err
	}
	return Ready[T](r, opts...)
}

// Unregister removes T's key, cancelling its pending waiters with
// SERVICE_REMOVED. Idempotent: unregistering an absent key is a no-op and
// reports false.
func Unregister[T any](r *Registry, opts ...RegisterOption) bool {
	cfg := &registerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	key := typeref.Key[T]()
	if cfg.name != "" {
		key = typeref.KeyNamed[T](cfg.name)
	}

	removed := r.services.Remove(key)
	if removed {
		r.graph.RemoveNode(key)
		r.callUnregisterHooks(key)
	}
	return removed
}

// TryGet returns T's instance without blocking. It succeeds only when the
// service is Ready.
func TryGet[T any](r *Registry) (T, bool) {
	return tryGetKey[T](r, typeref.Key[T]())
}

func TryGetNamed[T any](r *Registry, name string) (T, bool) {
	return tryGetKey[T](r, typeref.KeyNamed[T](name))
}

func tryGetKey[T any](r *Registry, key string) (T, bool) {
	var zero T

	instance, ok := r.services.TryGet(key)
	if !ok {
		return zero, false
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

func IsRegistered[T any](r *Registry) bool {
	return r.services.IsRegistered(typeref.Key[T]())
}

func IsRegisteredNamed[T any](r *Registry, name string) bool {
	return r.services.IsRegistered(typeref.KeyNamed[T](name))
}

func IsReady[T any](r *Registry) bool {
	return r.services.IsReady(typeref.Key[T]())
}

func IsReadyNamed[T any](r *Registry, name string) bool {
	return r.services.IsReady(typeref.KeyNamed[T](name))
}

// Get returns T's instance, suspending the calling goroutine until the key
// becomes Ready, ctx is cancelled, or the registry's default timeout
// elapses on the virtual clock. Waiting works even before the key is
// registered.
func Get[T any](ctx context.Context, r *Registry) (T, error) {
	return getKey[T](ctx, r, typeref.Key[T]())
}

func GetNamed[T any](ctx context.Context, r *Registry, name string) (T, error) {
	return getKey[T](ctx, r, typeref.KeyNamed[T](name))
}

func getKey[T any](ctx context.Context, r *Registry, key string) (T, error) {
	var zero T

	instance, err := r.get(ctx, key, key, r.cfg.DefaultTimeout)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, newError(
			ErrCodeUnknown,
			fmt.Sprintf("instance registered for %s has unexpected type %T", key, instance),
			nil,
		).WithService(key)
	}
	return typed, nil
}
