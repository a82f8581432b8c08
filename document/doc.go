// Package document loads YAML configuration documents that can reference
// and overlay each other, contain typed sub-documents and carry template
// variables.
//
// A document file holds a single header key naming its type; the value under
// it is the body. Bodies may contain:
//
//	$ref: /service/web       # merge the referenced document underneath
//	key: $remove             # drop key from the merge result
//	- $remove::value         # drop value from a merged list
//	url: "http://{{ .host }}" # rendered by ProcessVars
//
// The usual pipeline is LoadMultiple (or FromYAML), Loader.Resolve,
// ProcessVars, then Document.Validate and optionally Document.Freeze.
package document
