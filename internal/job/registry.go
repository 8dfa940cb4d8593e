package job

import (
	"fmt"
	"sync"
)

// Factory reconstructs an executable job from its persisted payload.
type Factory func(params Parameters, data []byte) (Job, error)

// Registry maps factory keys to job constructors. It is a closed registry:
// every job type the engine may encounter on disk must be registered before
// the runners start, and an unknown key at instantiation time is treated as
// data corruption by the engine.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering the same key twice is a programming
// error and panics.
func (r *Registry) Register(key string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[key]; ok {
		panic("job factory registered twice: " + key)
	}
	r.factories[key] = f
}

// Instantiate rebuilds a job from its factory key and serialized payload.
func (r *Registry) Instantiate(key string, params Parameters, data []byte) (Job, error) {
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown job factory %q", key)
	}

	j, err := f(params, data)
	if err != nil {
		return nil, fmt.Errorf("instantiate %q: %w", key, err)
	}
	return j, nil
}

// Constraint is a live-checkable precondition gating job eligibility.
// Constraints are stateless queries: IsMet is evaluated fresh on every
// eligibility check, never cached.
type Constraint interface {
	IsMet() bool
}

// ConstraintFactory produces a constraint for a registered key.
type ConstraintFactory func() Constraint

// ConstraintRegistry maps constraint keys to factories.
type ConstraintRegistry struct {
	mu        sync.RWMutex
	factories map[string]ConstraintFactory
}

func NewConstraintRegistry() *ConstraintRegistry {
	return &ConstraintRegistry{factories: make(map[string]ConstraintFactory)}
}

func (r *ConstraintRegistry) Register(key string, f ConstraintFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[key]; ok {
		panic("constraint factory registered twice: " + key)
	}
	r.factories[key] = f
}

func (r *ConstraintRegistry) Instantiate(key string) (Constraint, error) {
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown constraint factory %q", key)
	}
	return f(), nil
}
