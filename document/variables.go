package document

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
)

const (
	// MaxVariablePasses bounds repeated rendering; variables that keep
	// changing after this many passes reference each other in a cycle.
	MaxVariablePasses = 32

	// forceStringMarker is prepended by the str helper so the rendered value
	// is not converted back to a number or bool. It is removed once
	// processing settles.
	forceStringMarker = "__forcestring__"

	actionStart = "{{"
)

// VariableProcessor renders template variables inside document bodies.
type VariableProcessor struct {
	// Helpers are made available to every document, after the built-in
	// and type helpers.
	Helpers template.FuncMap
	// MaxPasses overrides MaxVariablePasses when positive.
	MaxPasses int
}

// ProcessVars renders all variables of doc and its sub-documents with the
// default processor.
func ProcessVars(doc *Document) error {
	return (&VariableProcessor{}).Process(doc)
}

// ProcessVarsFor renders input as if it were a value inside doc.
func ProcessVarsFor(doc *Document, input string) (string, error) {
	return (&VariableProcessor{}).ProcessFor(doc, input)
}

// Process renders every string containing a template action until no value
// changes, converts results back to scalars and runs AfterVariables hooks.
// Each sub-document is rendered against its own body.
func (p *VariableProcessor) Process(doc *Document) error {
	if doc.frozen {
		return fmt.Errorf("%w: process variables of %s", ErrFrozen, doc.Location())
	}
	limit := p.MaxPasses
	if limit <= 0 {
		limit = MaxVariablePasses
	}
	settled := false
	for pass := 0; pass < limit; pass++ {
		changed, err := p.pass(doc)
		if err != nil {
			return err
		}
		if !changed {
			settled = true
			break
		}
	}
	if !settled {
		return newError(ErrVariableProcessing, doc, "variables still changing after %d passes, check for cyclic references", limit)
	}
	if err := checkUnresolved(doc, doc.body); err != nil {
		return err
	}
	stripForceMarkers(doc.body)
	return runAfterVariables(doc)
}

// ProcessFor renders a single string in the context of doc.
func (p *VariableProcessor) ProcessFor(doc *Document, input string) (string, error) {
	if !strings.Contains(input, actionStart) {
		return input, nil
	}
	out, err := p.render(doc, input, newPassState())
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(out, forceStringMarker, ""), nil
}

type update struct {
	set   func(any)
	value any
}

// passState snapshots template contexts so every value rendered in one pass
// sees the same document state.
type passState struct {
	contexts map[*Document]map[string]any
}

func newPassState() *passState {
	return &passState{contexts: map[*Document]map[string]any{}}
}

func (s *passState) context(doc *Document) map[string]any {
	if ctx, ok := s.contexts[doc]; ok {
		return ctx
	}
	ctx := plainMap(doc.body)
	s.contexts[doc] = ctx
	return ctx
}

func (p *VariableProcessor) pass(doc *Document) (bool, error) {
	state := newPassState()
	var updates []update
	if err := p.walk(doc, doc.body, nil, state, &updates); err != nil {
		return false, err
	}
	for _, u := range updates {
		u.set(u.value)
	}
	return len(updates) > 0, nil
}

func (p *VariableProcessor) walk(owner *Document, value any, set func(any), state *passState, updates *[]update) error {
	switch node := value.(type) {
	case *Document:
		if node.frozen {
			return fmt.Errorf("%w: process variables of %s", ErrFrozen, node.Location())
		}
		return p.walk(node, node.body, nil, state, updates)
	case map[string]any:
		for _, key := range sortedKeys(node) {
			key := key
			err := p.walk(owner, node[key], func(v any) { node[key] = v }, state, updates)
			if err != nil {
				return err
			}
		}
	case []any:
		for i := range node {
			i := i
			err := p.walk(owner, node[i], func(v any) { node[i] = v }, state, updates)
			if err != nil {
				return err
			}
		}
	case string:
		if set == nil || !strings.Contains(node, actionStart) {
			return nil
		}
		rendered, err := p.render(owner, node, state)
		if err != nil {
			return err
		}
		if rendered == node {
			return nil
		}
		*updates = append(*updates, update{set: set, value: coerce(rendered)})
	}
	return nil
}

func (p *VariableProcessor) render(doc *Document, input string, state *passState) (string, error) {
	tmpl, err := template.New(doc.Location()).
		Option("missingkey=error").
		Funcs(p.funcs(doc, state)).
		Parse(input)
	if err != nil {
		return "", wrapError(ErrVariableProcessing, doc, err, "parse %q", input)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state.context(doc)); err != nil {
		return "", wrapError(ErrVariableProcessing, doc, err, "render %q", input)
	}
	return buf.String(), nil
}

func (p *VariableProcessor) funcs(doc *Document, state *passState) template.FuncMap {
	funcs := template.FuncMap{
		"parent": func() map[string]any { return state.context(doc.Parent()) },
		"root":   func() map[string]any { return state.context(doc.Root()) },
		"str":    func(v any) string { return forceStringMarker + fmt.Sprint(v) },
		"env":    os.Getenv,
		"default": func(fallback, v any) any {
			if v == nil {
				return fallback
			}
			if s, ok := v.(string); ok && s == "" {
				return fallback
			}
			return v
		},
		"lookup": func(path string) (any, error) {
			value, ok := doc.Lookup(path)
			if !ok {
				return nil, fmt.Errorf("%s is not set", path)
			}
			return plain(value), nil
		},
	}
	if provider, ok := doc.typ.(HelperProvider); ok {
		for name, fn := range provider.Helpers(doc) {
			funcs[name] = fn
		}
	}
	for name, fn := range p.Helpers {
		funcs[name] = fn
	}
	return funcs
}

// coerce converts a rendered string back to an int, float or bool when it
// reads as one. Forced strings and values that still contain template
// actions stay strings.
func coerce(s string) any {
	if strings.Contains(s, forceStringMarker) || strings.Contains(s, actionStart) {
		return s
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return int(i)
	}
	if strings.ContainsAny(trimmed, "0123456789") {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	}
	if strings.EqualFold(trimmed, "true") {
		return true
	}
	if strings.EqualFold(trimmed, "false") {
		return false
	}
	return s
}

func checkUnresolved(owner *Document, value any) error {
	switch node := value.(type) {
	case *Document:
		return checkUnresolved(node, node.body)
	case map[string]any:
		for _, key := range sortedKeys(node) {
			if err := checkUnresolved(owner, node[key]); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range node {
			if err := checkUnresolved(owner, item); err != nil {
				return err
			}
		}
	case string:
		if strings.Contains(node, actionStart) {
			return newError(ErrVariableProcessing, owner, "%q references itself", node)
		}
	}
	return nil
}

func stripForceMarkers(value any) {
	switch node := value.(type) {
	case *Document:
		stripForceMarkers(node.body)
	case map[string]any:
		for key, item := range node {
			if s, ok := item.(string); ok {
				node[key] = strings.ReplaceAll(s, forceStringMarker, "")
				continue
			}
			stripForceMarkers(item)
		}
	case []any:
		for i, item := range node {
			if s, ok := item.(string); ok {
				node[i] = strings.ReplaceAll(s, forceStringMarker, "")
				continue
			}
			stripForceMarkers(item)
		}
	}
}

func runAfterVariables(doc *Document) error {
	for _, child := range doc.children() {
		if err := runAfterVariables(child); err != nil {
			return err
		}
	}
	if hook, ok := doc.typ.(AfterVariablesHook); ok {
		if err := hook.AfterVariables(doc); err != nil {
			return wrapError(ErrInvalidDocument, doc, err, "after variables")
		}
	}
	return nil
}
