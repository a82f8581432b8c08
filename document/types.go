package document

import "text/template"

// DocumentType describes one kind of configuration document. Optional
// behaviour is discovered through the capability interfaces below.
type DocumentType interface {
	// Header is the single top-level key a YAML file of this type must carry.
	Header() string
}

// SchemaProvider returns a pointer to a prototype struct. Bodies are decoded
// into a fresh value of the same struct type and checked with its
// `validate` tags.
type SchemaProvider interface {
	Schema() any
}

// Subdocument declares a body key that holds documents of another type.
// Key is a dot-separated path; Many means the value is a map of named
// documents rather than a single one.
type Subdocument struct {
	Key  string
	Type DocumentType
	Many bool
}

// SubdocumentProvider lists the sub-document keys of a type.
type SubdocumentProvider interface {
	Subdocuments() []Subdocument
}

// HelperProvider exposes additional template functions bound to a document.
type HelperProvider interface {
	Helpers(doc *Document) template.FuncMap
}

// BeforeMergeHook runs when a document is constructed. Use it for internal
// values that take part in merging; defaults belong in AfterMergeHook.
type BeforeMergeHook interface {
	BeforeMerge(doc *Document) error
}

// AfterMergeHook runs once references and sub-documents are resolved.
type AfterMergeHook interface {
	AfterMerge(doc *Document) error
}

// AfterVariablesHook runs once variables are processed.
type AfterVariablesHook interface {
	AfterVariables(doc *Document) error
}

// AfterFreezeHook runs once the document is frozen.
type AfterFreezeHook interface {
	AfterFreeze(doc *Document) error
}

func subdocumentsOf(typ DocumentType) []Subdocument {
	provider, ok := typ.(SubdocumentProvider)
	if !ok {
		return nil
	}
	return provider.Subdocuments()
}

// CustomValidator adds checks beyond the schema struct.
type CustomValidator interface {
	ValidateDocument(doc *Document) error
}
