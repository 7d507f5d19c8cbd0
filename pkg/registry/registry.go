// Package registry provides a central schema registry for table metadata.
package registry

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/marshallshelly/procuredb/pkg/schema"
)

// Registry is a thread-safe registry for table metadata.
type Registry struct {
	mu     sync.RWMutex
	parser *schema.Parser
	tables map[reflect.Type]*schema.TableMetadata
	names  map[string]*schema.TableMetadata
}

// NewRegistry creates a new Registry instance.
func NewRegistry() *Registry {
	return &Registry{
		parser: schema.NewParser(),
		tables: make(map[reflect.Type]*schema.TableMetadata),
		names:  make(map[string]*schema.TableMetadata),
	}
}

// Register registers model types and extracts their metadata.
// Registering the same type twice is a no-op.
func (r *Registry) Register(models ...any) error {
	for _, model := range models {
		if err := r.register(model); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) register(model any) error {
	modelType := reflect.TypeOf(model)
	if modelType == nil {
		return fmt.Errorf("model must be a struct, got nil")
	}
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return fmt.Errorf("model must be a struct, got %s", modelType.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[modelType]; ok {
		return nil
	}

	table, err := r.parser.Parse(modelType)
	if err != nil {
		return fmt.Errorf("failed to parse model %s: %w", modelType.Name(), err)
	}
	if existing, ok := r.names[table.Name]; ok {
		return fmt.Errorf("table %s already registered by %s", table.Name, existing.GoType.Name())
	}

	r.tables[modelType] = table
	r.names[table.Name] = table
	return nil
}

// Get retrieves TableMetadata by Go type.
func (r *Registry) Get(modelType reflect.Type) (*schema.TableMetadata, error) {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}

	r.mu.RLock()
	table, ok := r.tables[modelType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("model type %s not registered", modelType.Name())
	}
	return table, nil
}

// GetByName retrieves TableMetadata by table name.
func (r *Registry) GetByName(tableName string) (*schema.TableMetadata, error) {
	r.mu.RLock()
	table, ok := r.names[tableName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("table %s not registered", tableName)
	}
	return table, nil
}

// MustGet is Get for models registered at startup; it panics if model is unknown.
func (r *Registry) MustGet(model any) *schema.TableMetadata {
	table, err := r.Get(reflect.TypeOf(model))
	if err != nil {
		panic(err)
	}
	return table
}

// Has checks if a model type is registered.
func (r *Registry) Has(modelType reflect.Type) bool {
	_, err := r.Get(modelType)
	return err == nil
}

// HasTable checks if a table name is registered.
func (r *Registry) HasTable(tableName string) bool {
	r.mu.RLock()
	_, ok := r.names[tableName]
	r.mu.RUnlock()
	return ok
}

// Names returns all registered table names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Ordered returns the registered tables so that every table comes after the
// tables it references. Ties are broken by name so output is stable.
// Reverse the result for drop order.
func (r *Registry) Ordered() ([]*schema.TableMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.names))
	ordered := make([]*schema.TableMetadata, 0, len(r.names))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("foreign key cycle: %v", append(path, name))
		}
		table, ok := r.names[name]
		if !ok {
			return fmt.Errorf("table %s references unregistered table %s", path[len(path)-1], name)
		}
		state[name] = visiting
		refs := table.References()
		slices.Sort(refs)
		for _, ref := range refs {
			if err := visit(ref, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		ordered = append(ordered, table)
		return nil
	}

	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
