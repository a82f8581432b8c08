package document

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML payload of typ. The payload must be a map with
// the type's header as key; its value becomes the body.
func ParseYAML(typ DocumentType, data []byte, location string, opts ...Option) (*Document, error) {
	body, err := decodeBody(typ, data, location)
	if err != nil {
		return nil, err
	}
	if location != "" {
		opts = append([]Option{WithAbsolutePath(location)}, opts...)
	}
	return New(typ, body, opts...)
}

// FromYAML reads and parses a document file.
func FromYAML(typ DocumentType, path string, opts ...Option) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("document: read %s: %w", path, err)
	}
	return ParseYAML(typ, data, filepath.Clean(path), opts...)
}

// LoadMultiple loads one or more files of typ and merges them as if every
// file $ref'ed the file before it. The last file wins. References inside
// the files are not resolved; call Loader.Resolve for that. While the merged
// body still carries a $ref its remove markers are kept for the resolve.
func LoadMultiple(typ DocumentType, paths ...string) (*Document, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("document: at least one document path is required")
	}
	var doc *Document
	for _, path := range paths {
		next, err := FromYAML(typ, path)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			if err := MergeDocuments(next, doc); err != nil {
				return nil, err
			}
		}
		doc = next
	}
	return doc, nil
}

// DecodeRaw parses a YAML payload into a normalized map without requiring a
// header. Registries use it to detect the document type of a file.
func DecodeRaw(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("document: payload is empty")
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("document: decode yaml: %w", err)
	}
	m, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document: top level is not a map")
	}
	return m, nil
}

func decodeBody(typ DocumentType, data []byte, location string) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &Error{Kind: ErrInvalidDocument, Location: location, Msg: "payload is empty"}
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Kind: ErrInvalidDocument, Location: location, Msg: "decode yaml", Err: err}
	}
	top, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, &Error{Kind: ErrInvalidHeader, Location: location, Msg: fmt.Sprintf("expected a map with header %q", typ.Header())}
	}
	value, ok := top[typ.Header()]
	if !ok {
		return nil, &Error{Kind: ErrInvalidHeader, Location: location, Msg: fmt.Sprintf("the document does not have a valid header, expected %q", typ.Header())}
	}
	if value == nil {
		return map[string]any{}, nil
	}
	body, ok := value.(map[string]any)
	if !ok {
		return nil, &Error{Kind: ErrInvalidHeader, Location: location, Msg: fmt.Sprintf("body under %q is not a map", typ.Header())}
	}
	return body, nil
}

// normalize converts yaml.v3 output so every map is keyed by string.
func normalize(value any) any {
	switch node := value.(type) {
	case map[string]any:
		for key, item := range node {
			node[key] = normalize(item)
		}
		return node
	case map[any]any:
		out := make(map[string]any, len(node))
		for key, item := range node {
			out[fmt.Sprint(key)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range node {
			node[i] = normalize(item)
		}
		return node
	default:
		return node
	}
}
