package migration

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ksred/hoopstats/internal/utils"
)

// Registry holds the migration functions available to the executor.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]Function
	logger    zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		functions: make(map[string]Function),
		logger:    logger,
	}
}

// Register adds a migration function. Registering the identical
// version/content-hash pair again is a no-op; the same name with different
// logic is a conflict.
func (r *Registry) Register(fn Function) error {
	if fn.Name == "" {
		return utils.RequiredFieldError("name")
	}
	if fn.Transform == nil {
		return utils.RequiredFieldError("transform")
	}
	if fn.CreatedAt.IsZero() {
		fn.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.functions[fn.Name]; ok {
		if existing.sameIdentity(fn) {
			return nil
		}
		return utils.WrapConflictError("migration function", "name", fn.Name)
	}

	r.functions[fn.Name] = fn
	r.logger.Info().Str("function", fn.Name).Str("version", fn.Version).Msg("registered migration function")
	return nil
}

// Get returns a registered function by name.
func (r *Registry) Get(name string) (Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.functions[name]
	if !ok {
		return Function{}, utils.WrapNotFoundError("migration function", name)
	}
	return fn, nil
}

// List returns all registered functions sorted by name.
func (r *Registry) List() []Function {
	r.mu.RLock()
	defer r.mu.RUnlock()

	functions := make([]Function, 0, len(r.functions))
	for _, fn := range r.functions {
		functions = append(functions, fn)
	}
	sort.Slice(functions, func(i, j int) bool {
		return functions[i].Name < functions[j].Name
	})
	return functions
}
