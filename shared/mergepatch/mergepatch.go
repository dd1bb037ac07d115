// Package mergepatch implements JSON Merge Patch (RFC 7396) over decoded JSON
// documents, with a per-schema set of fields that may be cleared with null.
package mergepatch

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// ContentType is the media type a merge patch must be sent with.
const ContentType = "application/merge-patch+json"

// ErrNotObject is returned by Parse when the body is valid JSON but not an object.
var ErrNotObject = errors.New("merge patch must be a JSON object")

// Document is a decoded merge patch.
type Document map[string]any

// Parse decodes body into a Document. Numbers are kept as json.Number so
// integers survive the round trip untouched.
func Parse(body []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode merge patch")
	}
	if dec.More() {
		return nil, errors.New("unexpected data after merge patch")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Document(obj), nil
}

// Fields returns the top-level keys present in the patch.
func (d Document) Fields() []string {
	fields := make([]string, 0, len(d))
	for k := range d {
		fields = append(fields, k)
	}
	return fields
}

// Clears reports whether the patch sets field to null.
func (d Document) Clears(field string) bool {
	v, ok := d[field]
	return ok && v == nil
}

// Schema describes the target document a patch is applied to.
type Schema struct {
	nullable map[string]bool
}

func NewSchema(nullableFields ...string) Schema {
	s := Schema{nullable: make(map[string]bool, len(nullableFields))}
	for _, f := range nullableFields {
		s.nullable[f] = true
	}
	return s
}

func (s Schema) IsNullable(field string) bool {
	return s.nullable[field]
}

// Apply merges patch into target and returns the result, leaving target
// untouched. Top-level nulls on fields the schema does not allow to be cleared
// are reported in rejected and leave the target value in place.
func (s Schema) Apply(target map[string]any, patch Document) (merged map[string]any, rejected []string) {
	merged = make(map[string]any, len(target))
	for k, v := range target {
		merged[k] = v
	}
	for k, v := range patch {
		if v == nil {
			if !s.IsNullable(k) {
				rejected = append(rejected, k)
				continue
			}
			delete(merged, k)
			continue
		}
		merged[k] = mergeValue(merged[k], v)
	}
	return merged, rejected
}

// Merge applies patch to target following RFC 7396 section 2 exactly, with no
// nullability rules.
func Merge(target, patch any) any {
	return mergeValue(target, patch)
}

func mergeValue(target, patch any) any {
	patchObj, ok := patch.(map[string]any)
	if !ok {
		return patch
	}
	targetObj, ok := target.(map[string]any)
	if !ok {
		targetObj = map[string]any{}
	}
	out := make(map[string]any, len(targetObj))
	for k, v := range targetObj {
		out[k] = v
	}
	for k, v := range patchObj {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = mergeValue(out[k], v)
	}
	return out
}

// Decode copies the listed fields of doc into the struct pointed to by out,
// matching fields by their json tag. A field missing from doc is reset to its
// zero value. Decode failures are returned per field, keyed by json name.
func Decode(doc map[string]any, out any, fields []string) map[string]error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		panic("mergepatch: Decode target must be a pointer to struct")
	}
	index := jsonFieldIndex(rv.Elem().Type())

	failures := map[string]error{}
	for _, name := range fields {
		i, ok := index[name]
		if !ok {
			continue
		}
		fv := rv.Elem().Field(i)
		v, present := doc[name]
		if !present || v == nil {
			fv.Set(reflect.Zero(fv.Type()))
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			failures[name] = errors.Wrapf(err, "failed to encode %s", name)
			continue
		}
		ptr := reflect.New(fv.Type())
		if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
			failures[name] = err
			continue
		}
		fv.Set(ptr.Elem())
	}
	return failures
}

func jsonFieldIndex(t reflect.Type) map[string]int {
	index := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		index[name] = i
	}
	return index
}
