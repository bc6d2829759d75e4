package stage

import (
	"context"
	"fmt"
	"sync"

	"reelsmith/internal/state"
)

// Constructor builds a stage handler. Constructors run at most once per
// registry; the resulting handler is cached and shared by every job, so
// handlers must be safe for concurrent use.
type Constructor func() (Handler, error)

// Registry maps stage identifiers to handler singletons. Registration is
// explicit: wiring code registers a constructor per stage and lookup fails
// loudly for unknown identifiers.
type Registry struct {
	mu           sync.Mutex
	constructors map[state.StageType]Constructor
	instances    map[state.StageType]Handler
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[state.StageType]Constructor),
		instances:    make(map[state.StageType]Handler),
	}
}

// Register installs a constructor for the stage identifier. Registering the
// same identifier twice is a wiring bug and returns an error.
func (r *Registry) Register(stageType state.StageType, ctor Constructor) error {
	if ctor == nil {
		return fmt.Errorf("stage %s: nil constructor", stageType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[stageType]; exists {
		return fmt.Errorf("stage %s: already registered", stageType)
	}
	r.constructors[stageType] = ctor
	return nil
}

// MustRegister is Register for static wiring tables, panicking on error.
func (r *Registry) MustRegister(stageType state.StageType, ctor Constructor) {
	if err := r.Register(stageType, ctor); err != nil {
		panic(err)
	}
}

// IsRegistered reports whether a constructor exists for the identifier.
func (r *Registry) IsRegistered(stageType state.StageType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.constructors[stageType]
	return ok
}

// GetInstance returns the handler singleton for the identifier, constructing
// it on first use.
func (r *Registry) GetInstance(stageType state.StageType) (Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handler, ok := r.instances[stageType]; ok {
		return handler, nil
	}
	ctor, ok := r.constructors[stageType]
	if !ok {
		return nil, fmt.Errorf("stage %s: not registered", stageType)
	}
	handler, err := ctor()
	if err != nil {
		return nil, fmt.Errorf("stage %s: construct handler: %w", stageType, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("stage %s: constructor returned nil handler", stageType)
	}
	if handler.Name() != stageType {
		return nil, fmt.Errorf("stage %s: constructor returned handler for %s", stageType, handler.Name())
	}
	r.instances[stageType] = handler
	return handler, nil
}

// Stages returns the registered identifiers in canonical pipeline order.
func (r *Registry) Stages() []state.StageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	ordered := make([]state.StageType, 0, len(r.constructors))
	for _, stageType := range state.AllStages() {
		if _, ok := r.constructors[stageType]; ok {
			ordered = append(ordered, stageType)
		}
	}
	return ordered
}

// HealthChecks instantiates every registered stage and collects readiness.
func (r *Registry) HealthChecks(ctx context.Context) []Health {
	checks := make([]Health, 0)
	for _, stageType := range r.Stages() {
		handler, err := r.GetInstance(stageType)
		if err != nil {
			checks = append(checks, Unhealthy(string(stageType), err.Error()))
			continue
		}
		checks = append(checks, handler.HealthCheck(ctx))
	}
	return checks
}
