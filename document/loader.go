package document

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many sibling sub-documents resolve at once.
const DefaultConcurrency = 4

// Loader resolves references against an ordered list of repositories.
// Later sources override earlier ones when a ref exists in several.
type Loader struct {
	sources     []Source
	logger      log.FieldLogger
	concurrency int

	mu    sync.Mutex
	cache map[string]cachedLookup
}

type cachedLookup struct {
	found Found
	ok    bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(logger log.FieldLogger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithConcurrency bounds concurrent sub-document resolution.
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// NewLoader returns a loader over sources.
func NewLoader(sources []Source, opts ...LoaderOption) *Loader {
	l := &Loader{
		sources:     append([]Source{}, sources...),
		logger:      log.StandardLogger(),
		concurrency: DefaultConcurrency,
		cache:       map[string]cachedLookup{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Sources returns the configured repositories in lookup order.
func (l *Loader) Sources() []Source {
	return append([]Source{}, l.sources...)
}

// Invalidate drops every cached lookup.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = map[string]cachedLookup{}
}

// Load reads paths with LoadMultiple and resolves the result.
func (l *Loader) Load(ctx context.Context, typ DocumentType, paths ...string) (*Document, error) {
	doc, err := LoadMultiple(typ, paths...)
	if err != nil {
		return nil, err
	}
	if err := l.Resolve(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Resolve merges the document with the documents it references, loads its
// sub-documents and runs AfterMerge hooks. The document is changed in place.
func (l *Loader) Resolve(ctx context.Context, doc *Document) error {
	if err := l.resolve(ctx, doc); err != nil {
		return err
	}
	return runAfterMerge(doc)
}

func (l *Loader) resolve(ctx context.Context, doc *Document) error {
	if doc.frozen {
		return fmt.Errorf("%w: resolve %s", ErrFrozen, doc.Location())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if raw, ok := doc.body[RefKey]; ok {
		ref, ok := raw.(string)
		if !ok || strings.TrimSpace(ref) == "" {
			return newError(ErrInvalidDocument, doc, "%s must be a non-empty string, got %v", RefKey, raw)
		}
		base, err := l.loadReferenced(ctx, doc, ref)
		if err != nil {
			return err
		}
		if err := MergeDocuments(doc, base); err != nil {
			return err
		}
	} else if err := doc.stripRemoveMarkers(); err != nil {
		return err
	}
	return l.resolveSubdocuments(ctx, doc)
}

func (l *Loader) loadReferenced(ctx context.Context, doc *Document, ref string) (*Document, error) {
	var base *Document
	for _, src := range l.sources {
		found, ok, err := l.lookup(ctx, src, ref)
		if err != nil {
			return nil, fmt.Errorf("document: lookup %s in %s: %w", ref, src, err)
		}
		if !ok {
			continue
		}
		l.logger.WithFields(log.Fields{
			"ref":      ref,
			"source":   src.String(),
			"location": found.Location,
			"from":     doc.Location(),
		}).Debug("loading referenced document")
		next, err := ParseYAML(doc.typ, found.Data, found.Location,
			WithPath(ref), WithParent(doc.parent), WithLoaded(doc.loaded))
		if err != nil {
			return nil, err
		}
		if err := l.resolve(ctx, next); err != nil {
			return nil, err
		}
		if base != nil {
			if err := MergeDocuments(next, base); err != nil {
				return nil, err
			}
		}
		base = next
	}
	if base == nil {
		names := make([]string, len(l.sources))
		for i, src := range l.sources {
			names[i] = src.String()
		}
		err := newError(ErrReferencedDocumentNotFound, doc, "%s not found in lookup paths [%s]", ref, strings.Join(names, ", "))
		err.Ref = ref
		return nil, err
	}
	return base, nil
}

func (l *Loader) lookup(ctx context.Context, src Source, ref string) (Found, bool, error) {
	key := src.String() + "\x00" + ref
	l.mu.Lock()
	cached, hit := l.cache[key]
	l.mu.Unlock()
	if hit {
		return cached.found, cached.ok, nil
	}
	found, ok, err := src.Lookup(ctx, ref)
	if err != nil {
		return Found{}, false, err
	}
	l.mu.Lock()
	l.cache[key] = cachedLookup{found: found, ok: ok}
	l.mu.Unlock()
	return found, ok, nil
}

func (l *Loader) resolveSubdocuments(ctx context.Context, doc *Document) error {
	for _, decl := range subdocumentsOf(doc.typ) {
		container, last, ok := locate(doc.body, decl.Key)
		if !ok || container[last] == nil {
			continue
		}
		if !decl.Many {
			sub, err := l.subdocument(ctx, doc, decl, container[last], decl.Key)
			if err != nil {
				return err
			}
			container[last] = sub
			continue
		}
		entries, ok := container[last].(map[string]any)
		if !ok {
			return newError(ErrInvalidDocument, doc, "%s must be a map of %s documents", decl.Key, decl.Type.Header())
		}
		names := sortedKeys(entries)
		results := make([]*Document, len(names))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.concurrency)
		for i, name := range names {
			i, name := i, name
			raw := entries[name]
			g.Go(func() error {
				sub, err := l.subdocument(gctx, doc, decl, raw, decl.Key+"."+name)
				if err != nil {
					return err
				}
				results[i] = sub
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for i, name := range names {
			entries[name] = results[i]
		}
	}
	return nil
}

func (l *Loader) subdocument(ctx context.Context, parent *Document, decl Subdocument, raw any, key string) (*Document, error) {
	var sub *Document
	switch value := raw.(type) {
	case *Document:
		value.parent = parent
		sub = value
	case map[string]any:
		created, err := New(decl.Type, value,
			WithParent(parent), WithLoaded(parent.loaded), WithAbsolutePath(parent.absolutePath))
		if err != nil {
			return nil, err
		}
		sub = created
	default:
		return nil, newError(ErrInvalidDocument, parent, "sub-document %s must be a map, got %T", key, raw)
	}
	if err := l.resolve(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// locate walks a dotted key to the map holding its last segment.
func locate(body map[string]any, key string) (map[string]any, string, bool) {
	parts := strings.Split(key, ".")
	cur := body
	for _, part := range parts[:len(parts)-1] {
		next, ok := bodyOf(cur[part])
		if !ok {
			return nil, "", false
		}
		cur = next
	}
	last := parts[len(parts)-1]
	if _, ok := cur[last]; !ok {
		return nil, "", false
	}
	return cur, last, true
}

func runAfterMerge(doc *Document) error {
	for _, child := range doc.children() {
		if err := runAfterMerge(child); err != nil {
			return err
		}
	}
	if hook, ok := doc.typ.(AfterMergeHook); ok {
		if err := hook.AfterMerge(doc); err != nil {
			return wrapError(ErrInvalidDocument, doc, err, "after merge")
		}
	}
	return nil
}
