package mockup

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/reflectwalk"
)

var (
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

	errUnorderedMap = errors.New("mockup: map outside a struct field cannot be fingerprinted")
)

// Fingerprint returns the canonical text of req. Two requests have equal
// fingerprints exactly when their canonical texts are equal.
//
// Struct fields are written by name in declaration order, maps with their
// entries sorted by key, and any field implementing encoding.TextMarshaler
// (the artwork, the preview type) as its quoted text. Unexported fields are
// ignored.
func Fingerprint(req *RenderRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	var sb strings.Builder
	if err := reflectwalk.Walk(req, &fingerprintWalker{sb: &sb}); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return sb.String(), nil
}

// fingerprintWalker writes a canonical serialization while reflectwalk
// traverses a value.
type fingerprintWalker struct {
	sb *strings.Builder
}

func (w *fingerprintWalker) Enter(loc reflectwalk.Location) error {
	switch loc {
	case reflectwalk.Struct:
		w.sb.WriteByte('{')
	case reflectwalk.Slice, reflectwalk.Array:
		w.sb.WriteByte('[')
	}
	return nil
}

func (w *fingerprintWalker) Exit(loc reflectwalk.Location) error {
	switch loc {
	case reflectwalk.Struct:
		w.sb.WriteByte('}')
	case reflectwalk.Slice, reflectwalk.Array:
		w.sb.WriteByte(']')
	case reflectwalk.StructField, reflectwalk.SliceElem, reflectwalk.ArrayElem:
		w.sb.WriteByte(';')
	}
	return nil
}

// Interface records the dynamic type so that different payload variants
// with equal fields never collide.
func (w *fingerprintWalker) Interface(v reflect.Value) error {
	if !v.IsNil() {
		w.sb.WriteString(v.Elem().Type().String())
	}
	return nil
}

func (w *fingerprintWalker) Struct(reflect.Value) error { return nil }

// StructField writes the field name and handles the values reflectwalk
// cannot order or should not descend into. Those are written here and the
// field is skipped.
func (w *fingerprintWalker) StructField(sf reflect.StructField, v reflect.Value) error {
	if sf.PkgPath != "" {
		return reflectwalk.SkipEntry
	}
	w.sb.WriteString(sf.Name)
	w.sb.WriteByte('=')

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			w.sb.WriteString("nil;")
			return reflectwalk.SkipEntry
		}
	}
	if v.Type().Implements(textMarshalerType) {
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}
		w.sb.WriteString(strconv.Quote(string(text)))
		w.sb.WriteByte(';')
		return reflectwalk.SkipEntry
	}
	if v.Kind() == reflect.Map {
		if err := w.writeMap(v); err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}
		w.sb.WriteByte(';')
		return reflectwalk.SkipEntry
	}
	return nil
}

// writeMap writes the entries of m sorted by their key text.
func (w *fingerprintWalker) writeMap(m reflect.Value) error {
	type kv struct {
		key string
		val reflect.Value
	}
	entries := make([]kv, 0, m.Len())
	iter := m.MapRange()
	for iter.Next() {
		entries = append(entries, kv{key: fmt.Sprint(iter.Key().Interface()), val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	w.sb.WriteByte('(')
	for _, e := range entries {
		w.sb.WriteString(strconv.Quote(e.key))
		w.sb.WriteByte(':')
		if err := reflectwalk.Walk(e.val.Interface(), w); err != nil {
			return err
		}
		w.sb.WriteByte(',')
	}
	w.sb.WriteByte(')')
	return nil
}

// Map rejects maps reached through slices or the root, whose iteration
// order reflectwalk does not fix.
func (w *fingerprintWalker) Map(reflect.Value) error { return errUnorderedMap }

func (w *fingerprintWalker) MapElem(_, _, _ reflect.Value) error { return nil }

func (w *fingerprintWalker) Slice(reflect.Value) error { return nil }

func (w *fingerprintWalker) SliceElem(int, reflect.Value) error { return nil }

func (w *fingerprintWalker) Array(reflect.Value) error { return nil }

func (w *fingerprintWalker) ArrayElem(int, reflect.Value) error { return nil }

func (w *fingerprintWalker) Primitive(v reflect.Value) error {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			w.sb.WriteString("nil")
			return nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Invalid:
		w.sb.WriteString("nil")
	case reflect.String:
		w.sb.WriteString(strconv.Quote(v.String()))
	case reflect.Bool:
		w.sb.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		w.sb.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		w.sb.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		w.sb.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}
