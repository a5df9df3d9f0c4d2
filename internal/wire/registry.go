package wire

import (
	"sort"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Factory allocates an empty message ready for UnmarshalFields.
type Factory func() Message

// Registry maps type names to factories.
//
// Thread-safety: Registry is safe for concurrent use. Decoders running on
// connection reader goroutines look types up while the application may
// still register its own.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in Sync and Text types.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.MustRegister(SyncName, func() Message { return &Sync{} })
	r.MustRegister(TextName, func() Message { return &Text{} })
	return r
}

// Register adds a factory for a type name.
// Returns a ProtocolError if the name is empty, not a valid record name, or
// already registered.
func (r *Registry) Register(name string, f Factory) error {
	name = norm.NFC.String(name)
	if err := validateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return &ProtocolError{Code: ErrCodeDuplicateType, Name: name, Detail: "type already registered"}
	}
	r.factories[name] = f
	return nil
}

// MustRegister is like Register but panics on error.
// Intended for package-level registration of application types.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// New allocates a message of the named type.
func (r *Registry) New(name string) (Message, error) {
	r.mu.RLock()
	f, ok := r.factories[norm.NFC.String(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, &ProtocolError{Code: ErrCodeUnknownType, Name: name}
	}
	return f(), nil
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
