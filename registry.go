package servus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmarkhas/servus/config"
	"github.com/dmarkhas/servus/internal/graph"
	"github.com/dmarkhas/servus/internal/plan"
	"github.com/dmarkhas/servus/internal/registry"
	"github.com/dmarkhas/servus/internal/vclock"
)

// Registry mediates between producers that publish services and consumers
// that declare dependencies on them. It owns the entry map, the waiter
// lists, the dependency graph used for cycle detection, and the timeout
// coordinator that drives virtual-time cancellation.
type Registry struct {
	services *registry.Registry
	graph    *graph.Graph
	coord    *vclock.Coordinator
	plans    *plan.Cache
	cfg      config.Config
	logger   *slog.Logger

	onRegister   []RegisterHook
	onReady      []ReadyHook
	onUnregister []UnregisterHook
	onResolve    []ResolveHook
}

func New(opts ...Option) *Registry {
	cfg := &registryConfig{
		logger: slog.Default(),
		cfg:    config.Default(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &Registry{
		services:     registry.New(cfg.logger),
		graph:        graph.New(),
		coord:        vclock.New(cfg.logger),
		plans:        plan.NewCache(TagKey),
		cfg:          cfg.cfg,
		logger:       cfg.logger,
		onRegister:   cfg.onRegister,
		onReady:      cfg.onReady,
		onUnregister: cfg.onUnregister,
		onResolve:    cfg.onResolve,
	}
}

// NewFromConfigFile loads resolution defaults from path (plus SERVUS_ env
// overrides) before constructing the registry.
func NewFromConfigFile(path string, opts ...Option) (*Registry, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errConfigInvalid("invalid registry configuration", err)
	}

	opts = append([]Option{WithConfig(cfg)}, opts...)
	return New(opts...), nil
}

// Tick advances the virtual clock by delta (scaled by the time scale),
// releases settle-window waits, and fires expired timeouts. Hosts call it
// once per scheduling frame; not calling it pauses all timeouts.
func (r *Registry) Tick(delta time.Duration) {
	r.coord.Tick(delta)
}

func (r *Registry) SetTimeScale(scale float64) {
	r.coord.SetTimeScale(scale)
}

func (r *Registry) TimeScale() float64 {
	return r.coord.TimeScale()
}

// SetLive records host liveness. Once false, cancellations are treated as
// shutdown noise: resolutions that already hold their values still commit.
func (r *Registry) SetLive(live bool) {
	r.coord.SetLive(live)
}

func (r *Registry) Live() bool {
	return r.coord.Live()
}

// ClearAll unregisters every key, cancelling all pending waiters, and
// resets the dependency graph. The registry is reusable afterwards,
// indistinguishable from a fresh one.
func (r *Registry) ClearAll() {
	r.services.Clear()
	r.graph.Clear()
	r.logger.Debug("registry cleared")
}

// Close tears the registry down: all entries unregistered, all waiters and
// pending timeouts cancelled. The instance remains reusable.
func (r *Registry) Close() {
	r.ClearAll()
	r.coord.Cleanup()
}

func (r *Registry) Size() int {
	return r.services.Size()
}

func (r *Registry) Keys() []string {
	return r.services.Keys()
}

// Validate reports dependency keys that are declared by some registration
// but have themselves never been registered.
func (r *Registry) Validate() error {
	missing := r.graph.Validate()
	if len(missing) == 0 {
		return nil
	}
	return errConfigInvalid("declared dependencies were never registered", nil).WithFields(missing)
}

// StartupOrder returns a deterministic order in which producers can be
// brought up so every declared dependency precedes its dependents.
func (r *Registry) StartupOrder() ([]string, error) {
	order, err := r.graph.StartupOrder()
	if err != nil {
		if errors.Is(err, graph.ErrCycleDetected) {
			return nil, errCircularDependency(nil)
		}
		return nil, err
	}
	return order, nil
}

// ShutdownOrder is StartupOrder reversed.
func (r *Registry) ShutdownOrder() ([]string, error) {
	order, err := r.graph.ShutdownOrder()
	if err != nil {
		if errors.Is(err, graph.ErrCycleDetected) {
			return nil, errCircularDependency(nil)
		}
		return nil, err
	}
	return order, nil
}

// PendingWaiters reports how many waiters are suspended across all keys.
func (r *Registry) PendingWaiters() int {
	return r.services.TotalWaiters()
}

// PendingTimeouts reports how many timeout registrations are outstanding.
func (r *Registry) PendingTimeouts() int {
	return r.coord.Pending()
}

func (r *Registry) callRegisterHooks(key string) {
	for _, hook := range r.onRegister {
		hook(key)
	}
}

func (r *Registry) callReadyHooks(key string, waitersCompleted int) {
	for _, hook := range r.onReady {
		hook(key, waitersCompleted)
	}
}

func (r *Registry) callUnregisterHooks(key string) {
	for _, hook := range r.onUnregister {
		hook(key)
	}
}

func (r *Registry) callResolveHooks(key string, duration time.Duration, err error) {
	for _, hook := range r.onResolve {
		hook(key, duration, err)
	}
}

// get is the shared suspension path: immediate when the key is Ready,
// otherwise a waiter plus a virtual-clock timeout. The waiter's channel
// receives exactly one result, so a fulfillment that races the
// cancellation is never lost.
func (r *Registry) get(ctx context.Context, key, subject string, timeout time.Duration) (any, error) {
	start := time.Now()
	instance, err := r.getWait(ctx, key, subject, timeout)
	r.callResolveHooks(key, time.Since(start), err)
	return instance, err
}

func (r *Registry) getWait(ctx context.Context, key, subject string, timeout time.Duration) (any, error) {
	instance, ready, w := r.services.Subscribe(key)
	if ready {
		return instance, nil
	}

	if timeout > 0 {
		reg := r.coord.RegisterTimeout(timeout, subject, func(cause error) {
			r.services.CancelWaiter(w, cause)
		})
		defer reg.Dispose()
	}

	select {
	case res := <-w.C():
		return res.Instance, mapWaitErr(key, res.Err)
	case <-ctx.Done():
		r.services.CancelWaiter(w, context.Cause(ctx))
		res := <-w.C()
		return res.Instance, mapWaitErr(key, res.Err)
	}
}

func mapWaitErr(key string, err error) error {
	if err == nil {
		return nil
	}

	var removed *registry.RemovedError
	if errors.As(err, &removed) {
		return errServiceRemoved(removed.Key, err)
	}

	var timedOut *vclock.TimeoutError
	if errors.As(err, &timedOut) {
		return errTimeout(timedOut.Subject, nil, err)
	}

	return errCanceled(key, err)
}
