package document

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// RefKey marks a reference to another document of the same type.
	RefKey = "$ref"
	// RemoveMarker deletes a key from the merge result.
	RemoveMarker = "$remove"
	// RemoveFromListPrefix deletes the suffixed value from a merged list.
	RemoveFromListPrefix = RemoveMarker + "::"
)

// Document is a configuration body of a known type. It may reference other
// documents, contain sub-documents and carry template variables.
type Document struct {
	typ          DocumentType
	body         map[string]any
	path         string
	absolutePath string
	parent       *Document
	loaded       []string
	internal     map[string]any
	frozen       bool
}

// Option configures a document during New.
type Option func(*newOptions)

type newOptions struct {
	path          string
	absolutePath  string
	parent        *Document
	loaded        []string
	skipInitHooks bool
}

// WithPath sets the repository-relative reference path of the document.
func WithPath(path string) Option {
	return func(o *newOptions) { o.path = path }
}

// WithAbsolutePath records where the document was read from.
func WithAbsolutePath(path string) Option {
	return func(o *newOptions) { o.absolutePath = path }
}

// WithParent attaches the document below parent.
func WithParent(parent *Document) Option {
	return func(o *newOptions) { o.parent = parent }
}

// WithLoaded sets the chain of reference paths already being loaded.
func WithLoaded(chain []string) Option {
	return func(o *newOptions) { o.loaded = chain }
}

// SkipInitHooks disables the BeforeMerge hook, mostly for tests.
func SkipInitHooks() Option {
	return func(o *newOptions) { o.skipInitHooks = true }
}

// New builds a document of typ from body. The body map is owned by the
// returned document.
func New(typ DocumentType, body map[string]any, opts ...Option) (*Document, error) {
	if typ == nil {
		return nil, fmt.Errorf("document: type is required")
	}
	var o newOptions
	for _, opt := range opts {
		opt(&o)
	}
	if body == nil {
		body = map[string]any{}
	}
	doc := &Document{
		typ:          typ,
		body:         body,
		path:         o.path,
		absolutePath: o.absolutePath,
		parent:       o.parent,
	}
	doc.loaded = append([]string{}, o.loaded...)
	if doc.path != "" {
		key := chainKey(typ, doc.path)
		for _, seen := range o.loaded {
			if seen == key {
				chain := append(doc.loaded, key)
				return nil, newError(ErrCircularDependency, doc, "reference chain %s", strings.Join(chain, " -> "))
			}
		}
		doc.loaded = append(doc.loaded, key)
	}
	if !o.skipInitHooks {
		if hook, ok := typ.(BeforeMergeHook); ok {
			if err := hook.BeforeMerge(doc); err != nil {
				return nil, wrapError(ErrInvalidDocument, doc, err, "before merge")
			}
		}
	}
	return doc, nil
}

// Type returns the document type.
func (d *Document) Type() DocumentType { return d.typ }

// Header returns the header of the document type.
func (d *Document) Header() string { return d.typ.Header() }

// Path returns the repository-relative reference path, empty for documents
// not loaded from a repository.
func (d *Document) Path() string { return d.path }

// AbsolutePath returns the location the document was read from. After a
// merge it points at the referencing (top) document.
func (d *Document) AbsolutePath() string { return d.absolutePath }

// Location names the document for error messages.
func (d *Document) Location() string {
	switch {
	case d.absolutePath != "":
		return d.absolutePath
	case d.path != "":
		return d.path
	default:
		return "<" + d.Header() + ">"
	}
}

// Parent returns the parent document, or the document itself at the root.
func (d *Document) Parent() *Document {
	if d.parent == nil {
		return d
	}
	return d.parent
}

// Root walks up to the top-most document.
func (d *Document) Root() *Document {
	cur := d
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Frozen reports whether the body is immutable.
func (d *Document) Frozen() bool { return d.frozen }

// Len returns the number of top-level keys.
func (d *Document) Len() int { return len(d.body) }

// Keys returns the top-level keys in sorted order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.body))
	for key := range d.body {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present at the top level.
func (d *Document) Has(key string) bool {
	_, ok := d.body[key]
	return ok
}

// Get returns a top-level value. Sub-documents are returned as *Document.
func (d *Document) Get(key string) (any, bool) {
	value, ok := d.body[key]
	return value, ok
}

// Lookup follows a dot-separated path through maps and sub-documents.
func (d *Document) Lookup(path string) (any, bool) {
	var cur any = d
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case *Document:
			value, ok := node.body[part]
			if !ok {
				return nil, false
			}
			cur = value
		case map[string]any:
			value, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = value
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set stores a top-level value.
func (d *Document) Set(key string, value any) error {
	if d.frozen {
		return fmt.Errorf("%w: set %s in %s", ErrFrozen, key, d.Location())
	}
	d.body[key] = value
	return nil
}

// Delete removes a top-level value.
func (d *Document) Delete(key string) error {
	if d.frozen {
		return fmt.Errorf("%w: delete %s in %s", ErrFrozen, key, d.Location())
	}
	delete(d.body, key)
	return nil
}

// Body returns a deep copy of the body with sub-documents expanded to maps.
func (d *Document) Body() map[string]any {
	return plainMap(d.body)
}

// ToMap returns the body wrapped in its header, as it would appear on disk.
func (d *Document) ToMap() map[string]any {
	return map[string]any{d.Header(): d.Body()}
}

// InternalGet returns a value from the internal store. Internal values are
// never merged or serialized and stay writable after Freeze.
func (d *Document) InternalGet(key string) (any, bool) {
	value, ok := d.internal[key]
	return value, ok
}

// InternalSet stores a value in the internal store.
func (d *Document) InternalSet(key string, value any) {
	if d.internal == nil {
		d.internal = map[string]any{}
	}
	d.internal[key] = value
}

// InternalHas reports whether the internal store holds key.
func (d *Document) InternalHas(key string) bool {
	_, ok := d.internal[key]
	return ok
}

// InternalDelete removes key from the internal store.
func (d *Document) InternalDelete(key string) {
	delete(d.internal, key)
}

// Freeze makes the body of the document and all sub-documents immutable and
// runs AfterFreeze hooks, children first.
func (d *Document) Freeze() error {
	if d.frozen {
		return nil
	}
	for _, child := range d.children() {
		if err := child.Freeze(); err != nil {
			return err
		}
	}
	d.frozen = true
	if hook, ok := d.typ.(AfterFreezeHook); ok {
		if err := hook.AfterFreeze(d); err != nil {
			return wrapError(ErrInvalidDocument, d, err, "after freeze")
		}
	}
	return nil
}

func (d *Document) String() string {
	return fmt.Sprintf("%s(%v)", d.Header(), d.Body())
}

// MarshalYAML emits the plain body.
func (d *Document) MarshalYAML() (any, error) {
	return d.Body(), nil
}

var _ yaml.Marshaler = (*Document)(nil)

// children returns the sub-documents directly below d in key order.
func (d *Document) children() []*Document {
	var out []*Document
	var walk func(any)
	walk = func(value any) {
		switch node := value.(type) {
		case *Document:
			out = append(out, node)
		case map[string]any:
			for _, key := range sortedKeys(node) {
				walk(node[key])
			}
		case []any:
			for _, item := range node {
				walk(item)
			}
		}
	}
	for _, key := range d.Keys() {
		walk(d.body[key])
	}
	return out
}

// chainKey identifies a loaded reference; refs of different types may share
// a path.
func chainKey(typ DocumentType, path string) string {
	return typ.Header() + ":" + path
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// plain deep-copies a body value, expanding sub-documents into maps.
func plain(value any) any {
	switch node := value.(type) {
	case *Document:
		return plainMap(node.body)
	case map[string]any:
		return plainMap(node)
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = plain(item)
		}
		return out
	default:
		return node
	}
}

func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = plain(value)
	}
	return out
}
