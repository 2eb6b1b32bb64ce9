package servus_test

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/dmarkhas/servus"
)

// registryMachine runs random register/ready/unregister/get sequences
// against a model of the expected lifecycle, using named registrations of
// one type as the key space.
type registryMachine struct {
	reg   *servus.Registry
	state map[string]int // 0 absent, 1 registered, 2 ready
}

const (
	modelAbsent = iota
	modelRegistered
	modelReady
)

var serviceNames = []string{"alpha", "beta", "gamma", "delta"}

func (m *registryMachine) init(t *rapid.T) {
	m.reg = servus.New()
	m.state = make(map[string]int)
}

func (m *registryMachine) Register(t *rapid.T) {
	name := rapid.SampledFrom(serviceNames).Draw(t, "name")
	err := servus.Register(m.reg, &Database{Name: name}, servus.WithName(name))

	if m.state[name] == modelAbsent {
		if err != nil {
			t.Fatalf("register %q: %v", name, err)
		}
		m.state[name] = modelRegistered
		return
	}
	if !servus.IsDuplicateRegistration(err) {
		t.Fatalf("register %q: want duplicate error, got %v", name, err)
	}
}

func (m *registryMachine) Ready(t *rapid.T) {
	name := rapid.SampledFrom(serviceNames).Draw(t, "name")
	err := servus.Ready[*Database](m.reg, servus.WithName(name))

	if m.state[name] == modelAbsent {
		if !servus.IsNotRegistered(err) {
			t.Fatalf("ready %q: want not-registered error, got %v", name, err)
		}
		return
	}
	if err != nil {
		t.Fatalf("ready %q: %v", name, err)
	}
	m.state[name] = modelReady
}

func (m *registryMachine) Unregister(t *rapid.T) {
	name := rapid.SampledFrom(serviceNames).Draw(t, "name")
	removed := servus.Unregister[*Database](m.reg, servus.WithName(name))

	if removed != (m.state[name] != modelAbsent) {
		t.Fatalf("unregister %q: removed=%v with model state %d", name, removed, m.state[name])
	}
	m.state[name] = modelAbsent
}

func (m *registryMachine) TryGet(t *rapid.T) {
	name := rapid.SampledFrom(serviceNames).Draw(t, "name")
	got, ok := servus.TryGetNamed[*Database](m.reg, name)

	if ok != (m.state[name] == modelReady) {
		t.Fatalf("tryget %q: ok=%v with model state %d", name, ok, m.state[name])
	}
	if ok && got.Name != name {
		t.Fatalf("tryget %q: got instance named %q", name, got.Name)
	}
}

func (m *registryMachine) ClearAll(t *rapid.T) {
	m.reg.ClearAll()
	m.state = make(map[string]int)
}

func (m *registryMachine) Check(t *rapid.T) {
	size := 0
	for name, st := range m.state {
		if st == modelAbsent {
			continue
		}
		size++
		if !servus.IsRegisteredNamed[*Database](m.reg, name) {
			t.Fatalf("%q should be registered", name)
		}
		if servus.IsReadyNamed[*Database](m.reg, name) != (st == modelReady) {
			t.Fatalf("%q readiness mismatch with model state %d", name, st)
		}
	}
	if got := m.reg.Size(); got != size {
		t.Fatalf("registry size %d, model has %d live services", got, size)
	}
}

func TestRegistryLifecycleProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		m := &registryMachine{}
		m.init(t)
		t.Repeat(rapid.StateMachineActions(m))
	})
}
