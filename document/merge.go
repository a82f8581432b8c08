package document

import (
	"fmt"
	"strings"
)

// MergeDocuments merges source underneath target, in place. Maps are merged
// key by key, lists are concatenated with the source items first, and for
// every other value the target wins. The target's own $ref is replaced by
// source, so a $ref carried by an unresolved source survives for later
// resolution. Remove markers in target are applied and stripped once no
// $ref is left; until then they wait for the referenced base.
func MergeDocuments(target, source *Document) error {
	if target == nil || source == nil {
		return fmt.Errorf("document: merge requires two documents")
	}
	if target.frozen {
		return fmt.Errorf("%w: merge into %s", ErrFrozen, target.Location())
	}
	delete(target.body, RefKey)
	mergeMaps(target.body, source.body)
	if target.absolutePath == "" {
		target.absolutePath = source.absolutePath
	}
	if target.Has(RefKey) {
		return nil
	}
	return target.stripRemoveMarkers()
}

func mergeMaps(target, source map[string]any) {
	for key, sourceValue := range source {
		targetValue, exists := target[key]
		if !exists {
			target[key] = plain(sourceValue)
			continue
		}
		target[key] = mergeValues(targetValue, sourceValue)
	}
}

func mergeValues(target, source any) any {
	if tm, ok := bodyOf(target); ok {
		if sm, ok := bodyOf(source); ok {
			mergeMaps(tm, sm)
			return target
		}
		return target
	}
	if tl, ok := target.([]any); ok {
		if sl, ok := source.([]any); ok {
			out := make([]any, 0, len(sl)+len(tl))
			for _, item := range sl {
				out = append(out, plain(item))
			}
			return append(out, tl...)
		}
	}
	return target
}

func bodyOf(value any) (map[string]any, bool) {
	switch node := value.(type) {
	case map[string]any:
		return node, true
	case *Document:
		return node.body, true
	default:
		return nil, false
	}
}

// stripRemoveMarkers applies the markers of d's own body. Values at
// sub-document keys are left alone: each sub-document applies its markers
// after merging its own $ref.
func (d *Document) stripRemoveMarkers() error {
	cleaned, err := stripRemoveMarkers(d.body, "", ownedBySubdocument(d.typ))
	if err != nil {
		return wrapError(ErrInvalidRemove, d, err, "")
	}
	d.body = cleaned.(map[string]any)
	return nil
}

// ownedBySubdocument reports whether a dotted body path holds a
// sub-document of typ.
func ownedBySubdocument(typ DocumentType) func(path string) bool {
	decls := subdocumentsOf(typ)
	return func(path string) bool {
		for _, decl := range decls {
			if !decl.Many {
				if path == decl.Key {
					return true
				}
				continue
			}
			if name, ok := strings.CutPrefix(path, decl.Key+"."); ok && name != "" {
				return true
			}
		}
		return false
	}
}

// stripRemoveMarkers deletes keys whose value is $remove and applies
// $remove::<value> list entries. Paths for which skip is true are kept
// untouched.
func stripRemoveMarkers(value any, path string, skip func(string) bool) (any, error) {
	switch node := value.(type) {
	case *Document:
		if err := node.stripRemoveMarkers(); err != nil {
			return nil, err
		}
		return node, nil
	case map[string]any:
		for key, item := range node {
			if s, ok := item.(string); ok && s == RemoveMarker {
				delete(node, key)
				continue
			}
			child := key
			if path != "" {
				child = path + "." + key
			}
			if skip(child) {
				continue
			}
			cleaned, err := stripRemoveMarkers(item, child, skip)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			node[key] = cleaned
		}
		return node, nil
	case []any:
		removals := map[string]struct{}{}
		for idx, item := range node {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s == RemoveMarker {
				return nil, fmt.Errorf("[%d]: %s can only be used as a map value, use %s<value> in lists", idx, RemoveMarker, RemoveFromListPrefix)
			}
			if strings.HasPrefix(s, RemoveFromListPrefix) {
				removals[strings.TrimPrefix(s, RemoveFromListPrefix)] = struct{}{}
			}
		}
		out := make([]any, 0, len(node))
		for idx, item := range node {
			if s, ok := item.(string); ok && strings.HasPrefix(s, RemoveFromListPrefix) {
				continue
			}
			if isScalar(item) {
				if _, drop := removals[fmt.Sprint(item)]; drop {
					continue
				}
			}
			cleaned, err := stripRemoveMarkers(item, fmt.Sprintf("%s[%d]", path, idx), skip)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", idx, err)
			}
			out = append(out, cleaned)
		}
		return out, nil
	default:
		return node, nil
	}
}

func isScalar(value any) bool {
	switch value.(type) {
	case map[string]any, []any, *Document, nil:
		return false
	default:
		return true
	}
}
