package servus

import (
	"context"
	"fmt"
	"time"

	"github.com/dmarkhas/servus/internal/plan"
	"github.com/dmarkhas/servus/internal/typeref"
)

// TagKey is the struct tag marking injectable fields:
//
//	type Consumer struct {
//	    DB    *Database `inject:""`          // required, by type
//	    Audit *Auditor  `inject:"primary"`   // required, named key
//	    Cache *Cache    `inject:",optional"` // optional
//	}
const TagKey = "inject"

// ErrorHandler receives terminal resolution failures configured via
// OnError. When a handler is set, ExecuteAsync reports success and the
// handler owns the error.
type ErrorHandler func(error)

type injectionState int

const (
	stateDiscovering injectionState = iota
	stateCheckingCycles
	stateWaitingRequired
	stateWaitingOptional
	stateCommitting
	stateCompleted
	stateFailed
)

func (s injectionState) String() string {
	switch s {
	case stateDiscovering:
		return "discovering"
	case stateCheckingCycles:
		return "checking-cycles"
	case stateWaitingRequired:
		return "waiting-required"
	case stateWaitingOptional:
		return "waiting-optional"
	case stateCommitting:
		return "committing"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Injection is the fluent per-consumer resolution builder. Configure it,
// then run ExecuteAsync (blocking) or Execute (fire-and-forget).
type Injection struct {
	registry *Registry
	consumer any
	ctx      context.Context
	timeout  time.Duration
	handler  ErrorHandler
}

// InjectInto starts an injection for consumer, which must be a non-nil
// pointer to a struct carrying `inject` tags.
func (r *Registry) InjectInto(consumer any) *Injection {
	return &Injection{
		registry: r,
		consumer: consumer,
		ctx:      context.Background(),
	}
}

func (in *Injection) WithContext(ctx context.Context) *Injection {
	in.ctx = ctx
	return in
}

// WithTimeout overrides the registry's default resolution timeout,
// measured on the virtual clock.
func (in *Injection) WithTimeout(d time.Duration) *Injection {
	in.timeout = d
	return in
}

func (in *Injection) OnError(handler ErrorHandler) *Injection {
	in.handler = handler
	return in
}

// ExecuteAsync resolves every injectable field of the consumer and commits
// the whole batch at once. Required fields are all-or-nothing: any failure
// aborts with nothing assigned. Optional fields degrade to absent on
// timeout, removal, or shutdown instead of failing the operation; only a
// cancellation while the host is still live aborts. A cancellation
// observed after the waiting phases never prevents the commit, so host
// shutdown cannot leave a consumer partially wired.
func (in *Injection) ExecuteAsync() error {
	err := in.run()
	if err != nil && in.handler != nil {
		in.handler(err)
		return nil
	}
	return err
}

// Execute behaves like ExecuteAsync but discards the completion: the
// resolution runs on its own goroutine and errors route through the
// configured handler, or the registry logger when none is set.
func (in *Injection) Execute() {
	go func() {
		if err := in.run(); err != nil {
			if in.handler != nil {
				in.handler(err)
				return
			}
			in.registry.logger.Error("fire-and-forget injection failed", "error", err)
		}
	}()
}

type resolvedField struct {
	field   plan.Field
	value   any
	present bool
}

func (in *Injection) run() error {
	r := in.registry
	ctx := in.ctx
	consumerKey := typeref.KeyFromValue(in.consumer)

	state := stateDiscovering
	r.logger.Debug("injection state", "consumer", consumerKey, "state", state)

	pl, structVal, err := r.plans.For(in.consumer)
	if err != nil {
		return in.fail(consumerKey, errInjectionFailed(consumerKey, nil, err))
	}

	required := pl.Required()
	optional := pl.Optional()

	state = stateCheckingCycles
	r.logger.Debug("injection state", "consumer", consumerKey, "state", state)

	requiredKeys := make([]string, len(required))
	for i, f := range required {
		requiredKeys[i] = f.Key
	}
	// Merged, not replaced: the consumer may also be a producer with
	// dependencies declared at registration time.
	r.graph.AddEdges(consumerKey, requiredKeys)
	if cycle := r.graph.CheckFrom(consumerKey); cycle != nil {
		return in.fail(consumerKey, errCircularDependency(cycle))
	}

	timeout := in.timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}

	state = stateWaitingRequired
	r.logger.Debug("injection state", "consumer", consumerKey, "state", state)

	results := make([]resolvedField, 0, len(pl.Fields))
	for i, f := range required {
		value, err := r.get(ctx, f.Key, fieldSubject(consumerKey, f), timeout)
		if err != nil {
			outstanding := make([]string, 0, len(required)-i)
			for _, rest := range required[i:] {
				outstanding = append(outstanding, rest.Name)
			}
			return in.fail(consumerKey, requiredFailure(consumerKey, outstanding, err))
		}
		results = append(results, resolvedField{field: f, value: value, present: true})
	}

	state = stateWaitingOptional
	r.logger.Debug("injection state", "consumer", consumerKey, "state", state)

	for _, f := range optional {
		res, err := in.resolveOptional(ctx, consumerKey, f, timeout)
		if err != nil {
			return in.fail(consumerKey, err)
		}
		results = append(results, res)
	}

	state = stateCommitting
	r.logger.Debug("injection state", "consumer", consumerKey, "state", state)

	for _, res := range results {
		if !res.present {
			continue
		}
		if err := pl.Set(structVal, res.field, res.value); err != nil {
			return in.fail(consumerKey, errInjectionFailed(consumerKey, []string{res.field.Name}, err))
		}
	}

	state = stateCompleted
	r.logger.Debug("injection state", "consumer", consumerKey, "state", state)
	return nil
}

// resolveOptional degrades to absent on timeout, removal, or a
// cancellation arriving while the host is shutting down. A cancellation
// observed while the host is still live is a real abort and fails the
// injection. An unregistered key gets a settle window of SettleTicks
// scheduling ticks before it is concluded absent, covering the race where
// a sibling producer registers within the same startup burst.
func (in *Injection) resolveOptional(ctx context.Context, consumerKey string, f plan.Field, timeout time.Duration) (resolvedField, error) {
	r := in.registry

	if value, ok := r.services.TryGet(f.Key); ok {
		return resolvedField{field: f, value: value, present: true}, nil
	}

	if !r.services.IsRegistered(f.Key) {
		for i := 0; i < r.cfg.SettleTicks; i++ {
			barrier := r.coord.SettleBarrier()
			select {
			case <-barrier:
			case <-ctx.Done():
				if r.coord.Live() {
					return resolvedField{}, errCanceled(fieldSubject(consumerKey, f), context.Cause(ctx))
				}
				return resolvedField{field: f}, nil
			}
		}

		if !r.services.IsRegistered(f.Key) {
			r.logger.Debug("optional dependency absent after settle window",
				"consumer", consumerKey, "field", f.Name, "key", f.Key)
			return resolvedField{field: f}, nil
		}
	}

	value, err := r.get(ctx, f.Key, fieldSubject(consumerKey, f), timeout)
	if err != nil {
		if IsCanceled(err) && r.coord.Live() {
			return resolvedField{}, err
		}
		r.logger.Debug("optional dependency degraded to absent",
			"consumer", consumerKey, "field", f.Name, "key", f.Key, "error", err)
		return resolvedField{field: f}, nil
	}
	return resolvedField{field: f, value: value, present: true}, nil
}

func (in *Injection) fail(consumerKey string, err error) error {
	in.registry.logger.Debug("injection state",
		"consumer", consumerKey, "state", stateFailed, "error", err)
	return err
}

// requiredFailure keeps timeout and explicit cancellation distinct so
// callers can apply different retry policies to each; everything else
// (removal, never provided) surfaces as INJECTION_FAILED naming the
// unresolved fields.
func requiredFailure(consumerKey string, outstanding []string, err error) error {
	switch {
	case IsTimeout(err):
		return errTimeout(consumerKey, outstanding, err)
	case IsCanceled(err):
		return err
	default:
		return errInjectionFailed(consumerKey, outstanding, err)
	}
}

func fieldSubject(consumerKey string, f plan.Field) string {
	return fmt.Sprintf("%s (field %s of %s)", f.Key, f.Name, consumerKey)
}
