// Package servustest provides helpers for testing code that registers or
// consumes services through a servus registry.
package servustest

import (
	"sync"
	"time"

	"github.com/dmarkhas/servus"
)

type TB interface {
	Helper()
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Cleanup(f func())
}

// TestRegistry wraps a registry whose teardown is tied to the test's
// Cleanup, so leaked waiters and timeouts never outlive a test.
type TestRegistry struct {
	*servus.Registry
	tb TB

	mu     sync.Mutex
	stopCh chan struct{}
}

func New(tb TB, opts ...servus.Option) *TestRegistry {
	tb.Helper()

	tr := &TestRegistry{
		Registry: servus.New(opts...),
		tb:       tb,
	}

	tb.Cleanup(func() {
		tr.StopTicking()
		tr.Close()
	})

	return tr
}

// RequireRegister registers instance and fails the test on error.
func RequireRegister[T any](tr *TestRegistry, instance T, opts ...servus.RegisterOption) {
	tr.TB().Helper()

	if err := servus.Register(tr.Registry, instance, opts...); err != nil {
		tr.TB().Fatalf("failed to register %s: %v", servus.NameOf[T](), err)
	}
}

// RequireReady marks T ready and fails the test on error.
func RequireReady[T any](tr *TestRegistry, opts ...servus.RegisterOption) {
	tr.TB().Helper()

	if err := servus.Ready[T](tr.Registry, opts...); err != nil {
		tr.TB().Fatalf("failed to mark %s ready: %v", servus.NameOf[T](), err)
	}
}

// RequireRegisterReady registers instance and marks it ready in one step.
func RequireRegisterReady[T any](tr *TestRegistry, instance T, opts ...servus.RegisterOption) {
	tr.TB().Helper()

	if err := servus.RegisterReady(tr.Registry, instance, opts...); err != nil {
		tr.TB().Fatalf("failed to register %s ready: %v", servus.NameOf[T](), err)
	}
}

// RequireInject runs a blocking injection into consumer and fails the test
// on error.
func (tr *TestRegistry) RequireInject(consumer any) {
	tr.tb.Helper()

	if err := tr.InjectInto(consumer).ExecuteAsync(); err != nil {
		tr.tb.Fatalf("injection failed: %v", err)
	}
}

// StartTicking drives the registry's virtual clock from a background
// goroutine at the given wall-clock interval, standing in for a host
// scheduling loop. Stopped automatically on test cleanup.
func (tr *TestRegistry) StartTicking(interval time.Duration) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.stopCh != nil {
		return
	}
	stop := make(chan struct{})
	tr.stopCh = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				tr.Tick(interval)
			}
		}
	}()
}

func (tr *TestRegistry) StopTicking() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.stopCh != nil {
		close(tr.stopCh)
		tr.stopCh = nil
	}
}

func (tr *TestRegistry) TB() TB {
	return tr.tb
}
