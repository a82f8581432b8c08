package document

import (
	"errors"
	"fmt"
)

// GenericType is a document type declared in configuration rather than in
// Go code. It supports sub-documents and required top-level keys.
type GenericType struct {
	Name     string
	Subdocs  []Subdocument
	Required []string
}

var (
	_ SubdocumentProvider = (*GenericType)(nil)
	_ CustomValidator     = (*GenericType)(nil)
)

// Header implements DocumentType.
func (t *GenericType) Header() string { return t.Name }

// Subdocuments implements SubdocumentProvider.
func (t *GenericType) Subdocuments() []Subdocument { return t.Subdocs }

// ValidateDocument checks that every required key holds a non-empty value.
func (t *GenericType) ValidateDocument(doc *Document) error {
	var errs []error
	for _, key := range t.Required {
		value, _ := doc.Lookup(key)
		if err := validate.Var(value, "required"); err != nil {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	return errors.Join(errs...)
}
