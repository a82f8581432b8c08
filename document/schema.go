package document

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validator returns the shared struct validator so callers can register
// custom tags before validating documents.
func Validator() *validator.Validate { return validate }

// Validate checks the document against its type's schema and custom
// validation, then validates every sub-document against its own type.
// Bodies that still carry an unresolved $ref are skipped.
func (d *Document) Validate() error {
	if d.Has(RefKey) {
		return nil
	}
	if provider, ok := d.typ.(SchemaProvider); ok {
		if err := decodeSchema(provider.Schema(), d.Body()); err != nil {
			return wrapError(ErrInvalidDocument, d, err, "schema %s", d.Header())
		}
	}
	if custom, ok := d.typ.(CustomValidator); ok {
		if err := custom.ValidateDocument(d); err != nil {
			return wrapError(ErrInvalidDocument, d, err, "schema %s", d.Header())
		}
	}
	for _, decl := range subdocumentsOf(d.typ) {
		container, last, ok := locate(d.body, decl.Key)
		if !ok || container[last] == nil {
			continue
		}
		if !decl.Many {
			if err := validateSubdocument(d, decl, container[last], decl.Key); err != nil {
				return err
			}
			continue
		}
		entries, ok := container[last].(map[string]any)
		if !ok {
			return newError(ErrInvalidDocument, d, "%s must be a map of %s documents", decl.Key, decl.Type.Header())
		}
		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := validateSubdocument(d, decl, entries[name], decl.Key+"."+name); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateSubdocument(parent *Document, decl Subdocument, value any, key string) error {
	switch sub := value.(type) {
	case *Document:
		if sub.Header() != decl.Type.Header() {
			return newError(ErrInvalidDocument, parent, "expected %s document at %s, got %s", decl.Type.Header(), key, sub.Header())
		}
		if err := sub.Validate(); err != nil {
			return wrapError(ErrInvalidDocument, parent, err, "sub-document %s of type %s", key, decl.Type.Header())
		}
		return nil
	case map[string]any:
		if _, ok := sub[RefKey]; ok {
			return nil
		}
		return newError(ErrInvalidDocument, parent, "expected %s document at %s, the value was not loaded as a document", decl.Type.Header(), key)
	default:
		return newError(ErrInvalidDocument, parent, "expected %s document at %s, got %T", decl.Type.Header(), key, value)
	}
}

// decodeSchema decodes body into a fresh value of the prototype's struct
// type, rejecting unknown keys, and runs its validate tags.
func decodeSchema(prototype any, body map[string]any) error {
	if prototype == nil {
		return nil
	}
	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("schema must be a struct, got %s", t)
	}
	target := reflect.New(t).Interface()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      target,
		TagName:     "yaml",
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(body); err != nil {
		return err
	}
	return validate.Struct(target)
}
