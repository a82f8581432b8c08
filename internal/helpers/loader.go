// Package helpers loads template helper functions from Go scripts.
package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"text/template"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const helpersFuncName = "Helpers"

// LoadDir interprets every .go file in dir and merges the functions each
// returns from Helpers() map[string]any. A missing dir yields no helpers.
func LoadDir(dir string) (template.FuncMap, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("helpers: read %s: %w", trimmed, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" || strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}
		files = append(files, filepath.Join(trimmed, entry.Name()))
	}
	sort.Strings(files)

	funcs := template.FuncMap{}
	origin := map[string]string{}
	for _, path := range files {
		fileFuncs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for name, fn := range fileFuncs {
			if prev, dup := origin[name]; dup {
				return nil, fmt.Errorf("helpers: %s defined in both %s and %s", name, prev, path)
			}
			origin[name] = path
			funcs[name] = fn
		}
	}
	if len(funcs) == 0 {
		return nil, nil
	}
	return funcs, nil
}

// LoadFile interprets a single helper script.
func LoadFile(path string) (template.FuncMap, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("helpers: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("helpers: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("helpers: load stdlib symbols: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("helpers: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(helpersFuncName)
	if err != nil {
		return nil, fmt.Errorf("helpers: %s must define %s() map[string]any: %w", path, helpersFuncName, err)
	}
	raw, err := invokeHelpersFunc(fnValue)
	if err != nil {
		return nil, fmt.Errorf("helpers: %s: %w", path, err)
	}
	funcs := make(template.FuncMap, len(raw))
	for name, value := range raw {
		if err := checkFunc(name, value); err != nil {
			return nil, fmt.Errorf("helpers: %s: %w", path, err)
		}
		funcs[name] = value
	}
	return funcs, nil
}

func invokeHelpersFunc(value reflect.Value) (map[string]any, error) {
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", helpersFuncName)
	}
	results := value.Call(nil)
	if len(results) != 1 {
		return nil, fmt.Errorf("%s must return map[string]any", helpersFuncName)
	}
	m, ok := results[0].Interface().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must return map[string]any, got %s", helpersFuncName, results[0].Type())
	}
	return m, nil
}

// checkFunc applies the text/template rules for callable helpers: a
// function returning one value, or a value and an error.
func checkFunc(name string, value any) error {
	if name == "" {
		return fmt.Errorf("helper with empty name")
	}
	t := reflect.TypeOf(value)
	if t == nil || t.Kind() != reflect.Func {
		return fmt.Errorf("helper %s is not a function", name)
	}
	switch t.NumOut() {
	case 1:
		return nil
	case 2:
		if t.Out(1) == reflect.TypeOf((*error)(nil)).Elem() {
			return nil
		}
	}
	return fmt.Errorf("helper %s must return a value and an optional error", name)
}
