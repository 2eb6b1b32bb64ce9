package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State int

const (
	Unregistered State = iota
	Registered
	Ready
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var (
	ErrDuplicate     = errors.New("service already registered")
	ErrNotRegistered = errors.New("service not registered")
)

// RemovedError is the waiter cancellation cause when the awaited key is
// unregistered, distinct from timeout and caller cancellation.
type RemovedError struct {
	Key string
}

func (e *RemovedError) Error() string {
	return fmt.Sprintf("service removed while waiting: %s", e.Key)
}

type Entry struct {
	Key          string
	Instance     any
	State        State
	Tags         []string
	RegisteredBy string
	RegisteredAt time.Time
	Exempt       bool
	Dependencies []string
}

// Info is a point-in-time copy of an entry plus its waiter count, for the
// inspection surface.
type Info struct {
	Key          string
	State        State
	Tags         []string
	RegisteredBy string
	RegisteredAt time.Time
	Exempt       bool
	Dependencies []string
	Waiters      int
}

// Result is delivered exactly once per waiter: either the instance (with
// its fulfillment position within the drain) or the cancellation cause.
type Result struct {
	Instance any
	Err      error
	Position int
}

type Waiter struct {
	id   uuid.UUID
	key  string
	c    chan Result
	done bool
}

func (w *Waiter) ID() uuid.UUID    { return w.id }
func (w *Waiter) Key() string      { return w.key }
func (w *Waiter) C() <-chan Result { return w.c }

type RegisterOptions struct {
	Tags         []string
	Exempt       bool
	RegisteredBy string
	Dependencies []string
}

// Registry owns the entry map, the per-key waiter lists, and the tag index.
// A single mutex guards all three so state transitions and waiter drains
// are one atomic unit as observed by callers.
type Registry struct {
	mu       sync.Mutex
	logger   *slog.Logger
	entries  map[string]*Entry
	waiters  map[string][]*Waiter
	tagIndex map[string]map[string]struct{}
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:   logger,
		entries:  make(map[string]*Entry),
		waiters:  make(map[string][]*Waiter),
		tagIndex: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(key string, instance any, opts RegisterOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}

	tags := append([]string(nil), opts.Tags...)
	deps := append([]string(nil), opts.Dependencies...)

	r.entries[key] = &Entry{
		Key:          key,
		Instance:     instance,
		State:        Registered,
		Tags:         tags,
		RegisteredBy: opts.RegisteredBy,
		RegisteredAt: time.Now(),
		Exempt:       opts.Exempt,
		Dependencies: deps,
	}

	for _, tag := range tags {
		set, ok := r.tagIndex[tag]
		if !ok {
			set = make(map[string]struct{})
			r.tagIndex[tag] = set
		}
		set[key] = struct{}{}
	}

	r.logger.Debug("service registered",
		"key", key, "tags", tags, "exempt", opts.Exempt, "by", opts.RegisteredBy)
	return nil
}

// Ready transitions a registered key to Ready and drains its waiters in
// insertion order under the lock, so no waiter can observe a state between
// "ready" and "fulfilled". Readying an already-ready key is a no-op.
// Returns the number of waiters completed.
func (r *Registry) Ready(key string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[key]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}

	if entry.State == Ready {
		return 0, nil
	}
	entry.State = Ready

	pending := r.waiters[key]
	delete(r.waiters, key)

	completed := 0
	for _, w := range pending {
		if w.done {
			continue
		}
		w.done = true
		w.c <- Result{Instance: entry.Instance, Position: completed}
		completed++
	}

	r.logger.Debug("service ready", "key", key, "waiters_completed", completed)
	return completed, nil
}

// Remove unregisters a key, cancelling its waiters with *RemovedError.
// Idempotent: removing an absent key reports false and is not an error.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[key]
	if !exists {
		return false
	}

	r.dropEntryLocked(entry)
	r.logger.Debug("service unregistered", "key", key)
	return true
}

func (r *Registry) dropEntryLocked(entry *Entry) {
	delete(r.entries, entry.Key)

	for _, tag := range entry.Tags {
		if set, ok := r.tagIndex[tag]; ok {
			delete(set, entry.Key)
			if len(set) == 0 {
				delete(r.tagIndex, tag)
			}
		}
	}

	pending := r.waiters[entry.Key]
	delete(r.waiters, entry.Key)
	for _, w := range pending {
		if w.done {
			continue
		}
		w.done = true
		w.c <- Result{Err: &RemovedError{Key: entry.Key}}
	}
}

func (r *Registry) TryGet(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[key]
	if !exists || entry.State != Ready {
		return nil, false
	}
	return entry.Instance, true
}

func (r *Registry) IsRegistered(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.entries[key]
	return exists
}

func (r *Registry) IsReady(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[key]
	return exists && entry.State == Ready
}

// Subscribe returns the instance immediately when the key is Ready;
// otherwise it appends a waiter to the key's list, whether or not the key
// is registered yet. The waiter's channel is buffered so the drain never
// blocks under the lock.
func (r *Registry) Subscribe(key string) (any, bool, *Waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[key]; exists && entry.State == Ready {
		return entry.Instance, true, nil
	}

	w := &Waiter{
		id:  uuid.New(),
		key: key,
		c:   make(chan Result, 1),
	}
	r.waiters[key] = append(r.waiters[key], w)

	r.logger.Debug("waiter created", "key", key, "waiter", w.id)
	return nil, false, w
}

// CancelWaiter completes a pending waiter with err and removes it from its
// list. A waiter already fulfilled or cancelled is left untouched, so the
// caller can always drain exactly one Result from the channel.
func (r *Registry) CancelWaiter(w *Waiter, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.done {
		return
	}
	w.done = true

	list := r.waiters[w.key]
	for i, pending := range list {
		if pending.id == w.id {
			r.waiters[w.key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.waiters[w.key]) == 0 {
		delete(r.waiters, w.key)
	}

	w.c <- Result{Err: err}
}

func (r *Registry) WithTag(tag string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedKeys(r.tagIndex[tag])
}

func (r *Registry) WithAnyTag(tags ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	union := make(map[string]struct{})
	for _, tag := range tags {
		for key := range r.tagIndex[tag] {
			union[key] = struct{}{}
		}
	}
	return sortedKeys(union)
}

func (r *Registry) WithAllTags(tags ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(tags) == 0 {
		return nil
	}

	result := make(map[string]struct{})
	for key := range r.tagIndex[tags[0]] {
		result[key] = struct{}{}
	}
	for _, tag := range tags[1:] {
		set := r.tagIndex[tag]
		for key := range result {
			if _, ok := set[key]; !ok {
				delete(result, key)
			}
		}
	}
	return sortedKeys(result)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	return keys
}

func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Clear unregisters every key, cancelling all pending waiters, leaving the
// registry indistinguishable from a fresh one.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.entries {
		r.dropEntryLocked(entry)
	}

	// Waiters may exist for keys that were never registered.
	for key, pending := range r.waiters {
		for _, w := range pending {
			if w.done {
				continue
			}
			w.done = true
			w.c <- Result{Err: &RemovedError{Key: key}}
		}
		delete(r.waiters, key)
	}

	r.entries = make(map[string]*Entry)
	r.tagIndex = make(map[string]map[string]struct{})
}

func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]Info, 0, len(r.entries))
	for _, entry := range r.entries {
		infos = append(infos, Info{
			Key:          entry.Key,
			State:        entry.State,
			Tags:         append([]string(nil), entry.Tags...),
			RegisteredBy: entry.RegisteredBy,
			RegisteredAt: entry.RegisteredAt,
			Exempt:       entry.Exempt,
			Dependencies: append([]string(nil), entry.Dependencies...),
			Waiters:      len(r.waiters[entry.Key]),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

func (r *Registry) Dependencies(key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[key]
	if !exists {
		return nil
	}
	return append([]string(nil), entry.Dependencies...)
}

func (r *Registry) AllDependencies() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	deps := make(map[string][]string, len(r.entries))
	for key, entry := range r.entries {
		deps[key] = append([]string(nil), entry.Dependencies...)
	}
	return deps
}

func (r *Registry) PendingWaiters(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.waiters[key])
}

func (r *Registry) TotalWaiters() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, pending := range r.waiters {
		total += len(pending)
	}
	return total
}
