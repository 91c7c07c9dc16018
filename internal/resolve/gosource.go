package resolve

import (
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// fieldAliases maps definition keys to the Go field names accepted for them.
var fieldAliases = map[string][]string{
	"version_data_path": {"VersionDataPath", "JournalPath"},
	"ini_content":       {"INIContent", "IniContent", "ConfigContent"},
	"env_content":       {"EnvContent"},
	"min_version":       {"MinVersion"},
}

// loadGoSource interprets a Go file and extracts the value at the attribute
// path. The first segment names a package-level identifier; functions are
// called with no arguments.
func loadGoSource(path, attr string) (map[string]any, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("interpret %s: %w", path, err)
	}

	segments := strings.Split(attr, ".")
	value, err := i.Eval(segments[0])
	if err != nil {
		pkg := packageName(path)
		if pkg == "" || pkg == "main" {
			return nil, fmt.Errorf("attribute %q not found: %w", segments[0], err)
		}
		value, err = i.Eval(pkg + "." + segments[0])
		if err != nil {
			return nil, fmt.Errorf("attribute %q not found: %w", segments[0], err)
		}
	}
	for idx, seg := range segments[1:] {
		value, err = field(value, seg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.Join(segments[:idx+2], "."), err)
		}
	}
	return fieldsOf(value)
}

func packageName(path string) string {
	f, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.PackageClauseOnly)
	if err != nil {
		return ""
	}
	return f.Name.Name
}

// settle dereferences pointers and interfaces and calls niladic functions.
func settle(v reflect.Value) (reflect.Value, error) {
	for i := 0; i < 8; i++ {
		if !v.IsValid() {
			return v, errors.New("value is nil")
		}
		switch v.Kind() {
		case reflect.Pointer, reflect.Interface:
			if v.IsNil() {
				return v, errors.New("value is nil")
			}
			v = v.Elem()
		case reflect.Func:
			out, err := call(v)
			if err != nil {
				return v, err
			}
			v = out
		default:
			return v, nil
		}
	}
	return v, errors.New("value nests too deeply")
}

func call(fn reflect.Value) (reflect.Value, error) {
	if fn.IsNil() {
		return fn, errors.New("function is nil")
	}
	t := fn.Type()
	if t.NumIn() != 0 {
		return fn, fmt.Errorf("function must take no arguments, takes %d", t.NumIn())
	}
	switch {
	case t.NumOut() == 1:
	case t.NumOut() == 2 && t.Out(1).Implements(errorType):
	default:
		return fn, errors.New("function must return (definition) or (definition, error)")
	}
	results := fn.Call(nil)
	if len(results) == 2 && !results[1].IsNil() {
		if e, ok := results[1].Interface().(error); ok {
			return fn, e
		}
	}
	return results[0], nil
}

func field(v reflect.Value, name string) (reflect.Value, error) {
	v, err := settle(v)
	if err != nil {
		return v, err
	}
	switch v.Kind() {
	case reflect.Struct:
		f := v.FieldByName(name)
		if !f.IsValid() {
			return f, fmt.Errorf("no field %q", name)
		}
		return f, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return v, errors.New("map keys are not strings")
		}
		f := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !f.IsValid() {
			return f, fmt.Errorf("no key %q", name)
		}
		return f, nil
	default:
		return v, fmt.Errorf("cannot select %q from a %s", name, v.Kind())
	}
}

// fieldsOf checks that v structurally looks like a session definition and
// returns its definition keys. Unrelated struct fields are ignored.
func fieldsOf(v reflect.Value) (map[string]any, error) {
	v, err := settle(v)
	if err != nil {
		return nil, err
	}
	switch v.Kind() {
	case reflect.Struct:
		out := map[string]any{}
		for key, names := range fieldAliases {
			for _, name := range names {
				f := v.FieldByName(name)
				if !f.IsValid() {
					continue
				}
				s, present, err := stringOf(f)
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", name, err)
				}
				if present {
					out[key] = s
				}
				break
			}
		}
		if _, ok := out["version_data_path"]; !ok {
			return nil, fmt.Errorf("%s has no VersionDataPath field; not a session definition", v.Type())
		}
		return out, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, errors.New("map keys are not strings; not a session definition")
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value is a %s, not a session definition", v.Kind())
	}
}

func stringOf(v reflect.Value) (string, bool, error) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", false, nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.String {
		return "", false, fmt.Errorf("expected a string, got %s", v.Kind())
	}
	return v.String(), true, nil
}
