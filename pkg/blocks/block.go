// Package blocks implements the SQL Server operation blocks: query,
// command, bulk_insert, stream and table. Blocks are registered in a
// factory and executed through a shared Runtime that owns the connection
// pool and the event sink.
package blocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Block is one executable operation. Execute reads its YAML input, runs the
// operation against the pool and emits at least one event: a result event on
// success or an error event on failure.
type Block interface {
	// Name returns the registered block name.
	Name() string

	// Execute runs the block. input is the raw YAML block input.
	Execute(ctx context.Context, rt *Runtime, input []byte) error
}

// Constructor creates a fresh, stateless block instance.
type Constructor func() Block

// Registry maps block names to constructors.
type Registry struct {
	mu       sync.RWMutex
	registry map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{registry: make(map[string]Constructor)}
}

// Register adds a block constructor. Called from init() in each block file.
func (r *Registry) Register(name string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[name] = c
}

// New instantiates a registered block.
func (r *Registry) New(name string) (Block, error) {
	r.mu.RLock()
	c, ok := r.registry[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown block: %s (available: %v)", name, r.Names())
	}
	return c(), nil
}

// Names returns the registered block names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var globalRegistry = NewRegistry()

// Register adds a block to the global registry.
func Register(name string, c Constructor) {
	globalRegistry.Register(name, c)
}

// New instantiates a block from the global registry.
func New(name string) (Block, error) {
	return globalRegistry.New(name)
}

// Names lists globally registered blocks.
func Names() []string {
	return globalRegistry.Names()
}
