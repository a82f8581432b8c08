package document

import (
	"context"
	"strings"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessVarsCoercesScalars(t *testing.T) {
	doc := mustNew(t, serviceType{}, map[string]any{
		"base_port": 8000,
		"port":      "{{ .base_port }}",
		"ratio":     "{{ .base_port }}.5",
		"enabled":   "{{ if .base_port }}True{{ end }}",
		"url":       "http://localhost:{{ .base_port }}",
		"quoted":    "8000",
	})

	require.NoError(t, ProcessVars(doc))

	body := doc.Body()
	assert.Equal(t, 8000, body["port"])
	assert.Equal(t, 8000.5, body["ratio"])
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, "http://localhost:8000", body["url"])
	assert.Equal(t, "8000", body["quoted"])
}

func TestProcessVarsStrForcesString(t *testing.T) {
	doc := mustNew(t, serviceType{}, map[string]any{
		"base_port": 8000,
		"port":      "{{ str .base_port }}",
		"copy":      "{{ .port }}",
	})

	require.NoError(t, ProcessVars(doc))

	body := doc.Body()
	assert.Equal(t, "8000", body["port"])
	assert.Equal(t, "8000", body["copy"])
}

func TestProcessVarsResolvesChainsAcrossPasses(t *testing.T) {
	doc := mustNew(t, serviceType{}, map[string]any{
		"a":    "{{ .b }}-a",
		"b":    "{{ .c }}-b",
		"c":    "c",
		"list": []any{"{{ .a }}", map[string]any{"nested": "{{ .c }}"}},
	})

	require.NoError(t, ProcessVars(doc))

	body := doc.Body()
	assert.Equal(t, "c-b-a", body["a"])
	assert.Equal(t, []any{"c-b-a", map[string]any{"nested": "c"}}, body["list"])
}

func TestProcessVarsDetectsCycles(t *testing.T) {
	cases := map[string]map[string]any{
		"swap":    {"a": "{{ .b }}", "b": "{{ .a }}"},
		"growing": {"a": "x{{ .b }}", "b": "{{ .a }}"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			doc := mustNew(t, serviceType{}, body)
			err := (&VariableProcessor{MaxPasses: 8}).Process(doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrVariableProcessing)
		})
	}
}

func TestProcessVarsMissingKey(t *testing.T) {
	doc := mustNew(t, serviceType{}, map[string]any{"a": "{{ .missing }}"})

	err := ProcessVars(doc)

	assert.ErrorIs(t, err, ErrVariableProcessing)
	assert.ErrorIs(t, err, ErrConfigcrunch)
}

func TestProcessVarsSubdocumentsUseOwnContext(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "service/web.yml", `
service:
  image: "{{ (parent).registry }}/web:{{ .version }}"
  version: 2
  labels:
    project: "{{ (root).name | upper }}"
    from: "{{ lookup \"labels.static\" }}"
    static: fixed
`)
	doc, err := ParseYAML(projectType{}, []byte(`
project:
  name: shop
  registry: registry.local
  services:
    web:
      $ref: /service/web
`), "shop.yml")
	require.NoError(t, err)
	require.NoError(t, NewLoader([]Source{DirSource{Root: repo}}).Resolve(context.Background(), doc))

	require.NoError(t, ProcessVars(doc))

	web, _ := doc.Lookup("services.web")
	body := web.(*Document).Body()
	assert.Equal(t, "registry.local/web:2", body["image"])
	assert.Equal(t, map[string]any{"project": "SHOP", "from": "fixed", "static": "fixed"}, body["labels"])
}

func TestProcessVarsUsesProcessorHelpers(t *testing.T) {
	doc := mustNew(t, serviceType{}, map[string]any{
		"greeting": "{{ shout \"hi\" }}",
		"fallback": "{{ default \"none\" .empty }}",
		"empty":    "",
	})
	processor := &VariableProcessor{Helpers: template.FuncMap{
		"shout": func(s string) string { return strings.ToUpper(s) + "!" },
	}}

	require.NoError(t, processor.Process(doc))

	body := doc.Body()
	assert.Equal(t, "HI!", body["greeting"])
	assert.Equal(t, "none", body["fallback"])
}

func TestProcessVarsIsIdempotent(t *testing.T) {
	doc := mustNew(t, serviceType{}, map[string]any{
		"port": "{{ str 80 }}",
		"url":  "http://x:{{ .port }}",
	})
	require.NoError(t, ProcessVars(doc))
	first := doc.Body()

	require.NoError(t, ProcessVars(doc))

	assert.Equal(t, first, doc.Body())
}

func TestProcessVarsRunsHooksAndRejectsFrozen(t *testing.T) {
	hooks := &hookType{}
	doc := mustNew(t, hooks, map[string]any{"name": "n"})

	require.NoError(t, ProcessVars(doc))
	assert.Contains(t, hooks.calls, "vars:n")

	require.NoError(t, doc.Freeze())
	assert.ErrorIs(t, ProcessVars(doc), ErrFrozen)
}

func TestProcessVarsFor(t *testing.T) {
	doc := mustNew(t, serviceType{}, map[string]any{"image": "nginx", "port": 80})

	out, err := ProcessVarsFor(doc, "{{ .image }}:{{ str .port }}")
	require.NoError(t, err)
	assert.Equal(t, "nginx:80", out)

	unchanged, err := ProcessVarsFor(doc, "no variables")
	require.NoError(t, err)
	assert.Equal(t, "no variables", unchanged)

	_, err = ProcessVarsFor(doc, "{{ .nope }}")
	assert.ErrorIs(t, err, ErrVariableProcessing)
}

func TestCoerce(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{"42", 42},
		{"-7", -7},
		{"1.5", 1.5},
		{"1e3", 1000.0},
		{"TRUE", true},
		{"false", false},
		{"NaN", "NaN"},
		{"", ""},
		{"v1", "v1"},
		{forceStringMarker + "42", forceStringMarker + "42"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, coerce(tc.in), tc.in)
	}
}
