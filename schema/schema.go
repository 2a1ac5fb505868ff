// Package schema validates the shape of records before they are written to
// the built-in collections.
package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/balogun-pappy/advoc/store"
)

// Kind is the JSON type a field must hold.
type Kind string

const (
	String  Kind = "string"
	Integer Kind = "integer"
	Number  Kind = "number"
	Boolean Kind = "boolean"
	Array   Kind = "array"
	Object  Kind = "object"
)

// Field is the rule set for one record field.
type Field struct {
	Name     string
	Kind     Kind
	Required bool

	NonBlank    bool     // strings: not empty after trimming whitespace
	NonNegative bool     // numbers: >= 0
	Enum        []string // strings: one of these values
	Items       *Schema  // arrays: every element is an object matching Items
}

// Schema describes a record shape. Fields it does not list are allowed.
type Schema struct {
	Name   string
	Fields []Field
}

// Error describes the first rule a record broke.
type Error struct {
	Path string
	Msg  string
}

func (e *Error) Error() string {
	return e.Path + ": " + e.Msg
}

// Validate checks rec against s. A nil schema accepts everything.
func (s *Schema) Validate(rec map[string]any) error {
	if s == nil {
		return nil
	}
	return s.validate(rec, "$")
}

func (s *Schema) validate(obj map[string]any, path string) error {
	for _, f := range s.Fields {
		v, ok := obj[f.Name]
		fpath := path + "." + f.Name
		if !ok || v == nil {
			if f.Required {
				return &Error{Path: fpath, Msg: "missing required field"}
			}
			continue
		}
		if err := f.check(v, fpath); err != nil {
			return err
		}
	}
	return nil
}

func (f *Field) check(v any, path string) error {
	actual := jsonType(v)
	if !kindAccepts(f.Kind, v, actual) {
		return &Error{Path: path, Msg: fmt.Sprintf("expected type %q, got %q", f.Kind, actual)}
	}

	switch x := v.(type) {
	case string:
		if f.NonBlank && strings.TrimSpace(x) == "" {
			return &Error{Path: path, Msg: "must not be blank"}
		}
		if len(f.Enum) > 0 && !slices.Contains(f.Enum, x) {
			return &Error{Path: path, Msg: fmt.Sprintf("value %q not in %v", x, f.Enum)}
		}
	case []any:
		if f.Items == nil {
			return nil
		}
		for i, elem := range x {
			epath := fmt.Sprintf("%s[%d]", path, i)
			obj, ok := elem.(map[string]any)
			if !ok {
				return &Error{Path: epath, Msg: fmt.Sprintf("expected type %q, got %q", Object, jsonType(elem))}
			}
			if err := f.Items.validate(obj, epath); err != nil {
				return err
			}
		}
	default:
		if n, ok := toFloat(v); ok && f.NonNegative && n < 0 {
			return &Error{Path: path, Msg: fmt.Sprintf("%v is negative", n)}
		}
	}
	return nil
}

func kindAccepts(kind Kind, v any, actual string) bool {
	switch kind {
	case Integer:
		if f, ok := v.(float64); ok {
			return f == float64(int64(f))
		}
		return actual == "integer"
	case Number:
		return actual == "number" || actual == "integer"
	default:
		return actual == string(kind)
	}
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, json.Number:
		return "number"
	case int, int32, int64:
		return "integer"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Built-in record shapes.
var (
	Comment = &Schema{
		Name: "comment",
		Fields: []Field{
			{Name: "user", Kind: String, Required: true, NonBlank: true},
			{Name: "text", Kind: String, Required: true, NonBlank: true},
		},
	}

	Post = &Schema{
		Name: "post",
		Fields: []Field{
			{Name: "filename", Kind: String, Required: true, NonBlank: true},
			{Name: "caption", Kind: String},
			{Name: "type", Kind: String, Required: true, Enum: []string{"image", "video"}},
			{Name: "likes", Kind: Integer, Required: true, NonNegative: true},
			{Name: "comments", Kind: Array, Items: Comment},
			{Name: "user", Kind: String, Required: true, NonBlank: true},
		},
	}

	User = &Schema{
		Name: "user",
		Fields: []Field{
			{Name: "username", Kind: String, Required: true, NonBlank: true},
			{Name: "password", Kind: String, Required: true, NonBlank: true},
			{Name: "phone", Kind: String},
		},
	}

	DirectMessage = &Schema{
		Name: "direct message",
		Fields: []Field{
			{Name: "from", Kind: String, Required: true, NonBlank: true},
			{Name: "to", Kind: String, Required: true, NonBlank: true},
			{Name: "message", Kind: String, Required: true},
			{Name: "timestamp", Kind: Integer, Required: true, NonNegative: true},
		},
	}
)

// For returns the schema of a built-in collection, or nil.
func For(collection string) *Schema {
	switch collection {
	case store.Posts, store.BusinessPosts:
		return Post
	case store.Users:
		return User
	case store.DirectMessages:
		return DirectMessage
	}
	return nil
}
