package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// errUnsupportedValue is returned when JSON input has no Value representation.
var errUnsupportedValue = errors.New("unsupported answer value")

// ValueKind tags the variant held by a Value.
type ValueKind uint8

// Value kinds. The zero Value is KindEmpty.
const (
	KindEmpty ValueKind = iota
	KindString
	KindNumber
	KindBoolean
	KindStringList
	KindFileRef
)

// String returns the kind name used in logs and diagnostics.
func (k ValueKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindStringList:
		return "string_list"
	case KindFileRef:
		return "file_ref"
	default:
		return "unknown"
	}
}

// FileRef is an opaque reference to a file that an upload collaborator already stored.
type FileRef struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Value is an answer or a literal in a rule: exactly one of String, Number,
// Boolean, StringList, FileRef, or Empty.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []string
	file *FileRef
}

// EmptyValue returns the "no answer" value.
func EmptyValue() Value { return Value{} }

// StringValue wraps s.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps n.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{kind: KindBoolean, b: b} }

// StringListValue wraps a copy of items.
func StringListValue(items ...string) Value {
	list := make([]string, len(items))
	copy(list, items)

	return Value{kind: KindStringList, list: list}
}

// FileValue wraps a file reference.
func FileValue(ref FileRef) Value {
	r := ref

	return Value{kind: KindFileRef, file: &r}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsEmpty reports whether v counts as "no answer": absent, null, empty string,
// empty list, or a file reference without an ID.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindEmpty:
		return true
	case KindString:
		return v.str == ""
	case KindStringList:
		return len(v.list) == 0
	case KindFileRef:
		return v.file == nil || v.file.ID == ""
	default:
		return false
	}
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBoolean
}

// AsStringList returns the list payload.
func (v Value) AsStringList() ([]string, bool) {
	return v.list, v.kind == KindStringList
}

// AsFileRef returns the file payload.
func (v Value) AsFileRef() (*FileRef, bool) {
	return v.file, v.kind == KindFileRef && v.file != nil
}

// AsNumber returns v as a number. Strings holding a decimal number coerce;
// every other kind does not.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return 0, false
		}

		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}

		return n, true
	default:
		return 0, false
	}
}

// Text renders v for string comparison.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindStringList:
		return strings.Join(v.list, ",")
	case KindFileRef:
		if v.file != nil {
			return v.file.ID
		}

		return ""
	default:
		return ""
	}
}

// Equal reports structural equality of two values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case KindEmpty:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBoolean:
		return v.b == o.b
	case KindStringList:
		if len(v.list) != len(o.list) {
			return false
		}

		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}

		return true
	case KindFileRef:
		if v.file == nil || o.file == nil {
			return v.file == o.file
		}

		return *v.file == *o.file
	default:
		return false
	}
}

// MarshalJSON encodes the variant as its natural JSON form (null for Empty).
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBoolean:
		return json.Marshal(v.b)
	case KindStringList:
		if v.list == nil {
			return []byte("[]"), nil
		}

		return json.Marshal(v.list)
	case KindFileRef:
		return json.Marshal(v.file)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes null, string, number, boolean, string array, or a file
// reference object.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = EmptyValue()

		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode string value: %w", err)
		}

		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return fmt.Errorf("decode boolean value: %w", err)
		}

		*v = BoolValue(b)
	case '[':
		var items []any
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("decode list value: %w", err)
		}

		list := make([]string, 0, len(items))
		for _, item := range items {
			switch it := item.(type) {
			case string:
				list = append(list, it)
			case float64:
				list = append(list, strconv.FormatFloat(it, 'f', -1, 64))
			case bool:
				list = append(list, strconv.FormatBool(it))
			default:
				return fmt.Errorf("%w: list element %T", errUnsupportedValue, item)
			}
		}

		*v = Value{kind: KindStringList, list: list}
	case '{':
		var ref FileRef
		if err := json.Unmarshal(trimmed, &ref); err != nil {
			return fmt.Errorf("decode file reference: %w", err)
		}

		*v = FileValue(ref)
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("%w: %s", errUnsupportedValue, string(trimmed))
		}

		*v = NumberValue(n)
	}

	return nil
}

// AnswerSet maps field IDs to answers. A missing key means "no answer".
type AnswerSet map[string]Value

// Get returns the answer for id, or the empty value.
func (a AnswerSet) Get(id string) Value {
	if a == nil {
		return EmptyValue()
	}

	return a[id]
}

// Clone returns a shallow copy; Values are immutable so this is a full copy.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}

	return out
}
