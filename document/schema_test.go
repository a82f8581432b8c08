package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsValidService(t *testing.T) {
	doc := mustNew(t, serviceType{}, map[string]any{
		"image": "nginx",
		"port":  80,
		"env":   map[string]any{"A": "1"},
	})

	assert.NoError(t, doc.Validate())
}

func TestValidateSchemaFailures(t *testing.T) {
	cases := map[string]map[string]any{
		"missing image": {"port": 80},
		"port range":    {"image": "nginx", "port": 70000},
		"unknown key":   {"image": "nginx", "volumes": []any{"a"}},
		"wrong type":    {"image": "nginx", "env": "A=1"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			doc := mustNew(t, serviceType{}, body)
			err := doc.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestValidateSkipsUnresolvedReference(t *testing.T) {
	doc := mustNew(t, serviceType{}, map[string]any{RefKey: "/service/base"})

	assert.NoError(t, doc.Validate())
}

func TestValidateWrapsSubdocumentErrors(t *testing.T) {
	doc, err := ParseYAML(projectType{}, []byte(`
project:
  services:
    web:
      image: nginx
    broken:
      port: 80
`), "shop.yml")
	require.NoError(t, err)
	require.NoError(t, NewLoader(nil).Resolve(context.Background(), doc))

	err = doc.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.Contains(t, err.Error(), "sub-document services.broken of type service")
}

func TestValidateRequiresLoadedSubdocuments(t *testing.T) {
	doc := mustNew(t, projectType{}, map[string]any{
		"services": map[string]any{"web": map[string]any{"image": "nginx"}},
	})

	err := doc.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not loaded as a document")
}

func TestGenericTypeRequiredKeys(t *testing.T) {
	typ := &GenericType{Name: "app", Required: []string{"name", "owner.team"}}

	ok := mustNew(t, typ, map[string]any{
		"name":  "shop",
		"owner": map[string]any{"team": "payments"},
	})
	assert.NoError(t, ok.Validate())

	missing := mustNew(t, typ, map[string]any{"name": ""})
	err := missing.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "owner.team is required")
}
