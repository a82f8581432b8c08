package document

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maintains known document types keyed by header.
type Registry struct {
	mu    sync.RWMutex
	types map[string]DocumentType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: map[string]DocumentType{}}
}

// Register installs a document type. Returns an error if the header already exists.
func (r *Registry) Register(typ DocumentType) error {
	if typ == nil {
		return fmt.Errorf("document: type is required")
	}
	header := typ.Header()
	if header == "" {
		return fmt.Errorf("document: header is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[header]; exists {
		return fmt.Errorf("document: %s already registered", header)
	}
	r.types[header] = typ
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(typ DocumentType) {
	if err := r.Register(typ); err != nil {
		panic(err)
	}
}

// Lookup returns the type registered for header.
func (r *Registry) Lookup(header string) (DocumentType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	typ, ok := r.types[header]
	return typ, ok
}

// Headers returns a sorted list of registered headers.
func (r *Registry) Headers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	headers := make([]string, 0, len(r.types))
	for header := range r.types {
		headers = append(headers, header)
	}
	sort.Strings(headers)
	return headers
}

// Detect picks the document type of a YAML payload from its single
// top-level key.
func (r *Registry) Detect(data []byte) (DocumentType, error) {
	raw, err := DecodeRaw(data)
	if err != nil {
		return nil, err
	}
	if len(raw) != 1 {
		return nil, &Error{Kind: ErrInvalidHeader, Msg: fmt.Sprintf("expected exactly one header, found %d", len(raw))}
	}
	for header := range raw {
		typ, ok := r.Lookup(header)
		if !ok {
			return nil, &Error{Kind: ErrInvalidHeader, Msg: fmt.Sprintf("unknown header %q, registered: %v", header, r.Headers())}
		}
		return typ, nil
	}
	return nil, nil
}
