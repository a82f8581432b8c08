package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"text/template"

	"github.com/stretchr/testify/require"
)

type projectType struct{}

func (projectType) Header() string { return "project" }

func (projectType) Subdocuments() []Subdocument {
	return []Subdocument{
		{Key: "services", Type: serviceType{}, Many: true},
		{Key: "runtime.database", Type: serviceType{}},
	}
}

type serviceType struct{}

func (serviceType) Header() string { return "service" }

func (serviceType) Schema() any { return &serviceSchema{} }

func (serviceType) Helpers(doc *Document) template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"name":  func() string { return doc.Location() },
	}
}

type serviceSchema struct {
	Image  string         `yaml:"image" validate:"required"`
	Port   int            `yaml:"port" validate:"gte=0,lte=65535"`
	Env    map[string]any `yaml:"env"`
	Tags   []any          `yaml:"tags"`
	Labels map[string]any `yaml:"labels"`
}

// hookType records every lifecycle hook it sees.
type hookType struct {
	mu    sync.Mutex
	calls []string
}

func (h *hookType) Header() string { return "hooked" }

func (h *hookType) record(stage string, doc *Document) {
	h.mu.Lock()
	defer h.mu.Unlock()
	name, _ := doc.Get("name")
	h.calls = append(h.calls, stage+":"+toString(name))
}

func (h *hookType) BeforeMerge(doc *Document) error {
	h.record("before", doc)
	doc.InternalSet("constructed", true)
	return nil
}

func (h *hookType) AfterMerge(doc *Document) error {
	h.record("merge", doc)
	if !doc.Has("replicas") {
		return doc.Set("replicas", 1)
	}
	return nil
}

func (h *hookType) AfterVariables(doc *Document) error {
	h.record("vars", doc)
	return nil
}

func (h *hookType) AfterFreeze(doc *Document) error {
	h.record("freeze", doc)
	return nil
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

// countingSource wraps a Source and counts lookups per ref.
type countingSource struct {
	Source
	mu    sync.Mutex
	count map[string]int
}

func (s *countingSource) Lookup(ctx context.Context, ref string) (Found, bool, error) {
	s.mu.Lock()
	if s.count == nil {
		s.count = map[string]int{}
	}
	s.count[ref]++
	s.mu.Unlock()
	return s.Source.Lookup(ctx, ref)
}

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimLeft(content, "\n")), 0o644))
	return path
}

func mustNew(t *testing.T, typ DocumentType, body map[string]any, opts ...Option) *Document {
	t.Helper()
	doc, err := New(typ, body, opts...)
	require.NoError(t, err)
	return doc
}
