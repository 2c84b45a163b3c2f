package capability

import (
	"sort"
	"sync"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// Registry is the thread-safe capability lookup table. It is populated once
// at startup and read-only afterwards.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		capabilities: make(map[string]Capability),
	}
}

// Register adds a capability to the registry. Returns an error on duplicate name.
func (r *Registry) Register(c Capability) error {
	if c == nil {
		return schema.NewError(schema.ErrCodeInvalidInput, "capability is nil")
	}
	name := c.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeInvalidInput, "capability name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.capabilities[name]; exists {
		return schema.NewErrorf(schema.ErrCodeDuplicateStage, "capability %q already registered", name)
	}

	r.capabilities[name] = c
	return nil
}

// Resolve retrieves a capability by name.
func (r *Registry) Resolve(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.capabilities[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownStage, "capability %q not registered", name)
	}
	return c, nil
}

// Has checks if a capability is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.capabilities[name]
	return ok
}

// List returns info for all registered capabilities, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.capabilities))
	for _, c := range r.capabilities {
		s := c.Spec()
		infos = append(infos, Info{
			Name:        c.Name(),
			Description: s.Description,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.capabilities)
}
