// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Record is the structured data extracted from one filing. Keys are
// chosen by the model, so the shape is dynamic; insertion order is kept
// so artifacts list fields in the order they appear on the form.
//
// Values are string, json.Number, bool, nil, []any, or *Record.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// Len returns the number of top-level keys.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns the top-level keys in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Set stores value under key. A new key is appended; an existing key
// keeps its position and takes the new value.
func (r *Record) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Strings returns the value under key as a list of strings. A single
// string yields a one-element list; lists keep their string and number
// elements. Anything else yields nil.
func (r *Record) Strings(key string) []string {
	v, ok := r.Get(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case json.Number:
				out = append(out, s.String())
			}
		}
		return out
	}
	return nil
}

// MarshalJSON writes the record as a JSON object in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeJSON(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := encodeJSON(&buf, r.values[k]); err != nil {
			return nil, fmt.Errorf("marshaling %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeJSON appends v to buf without HTML escaping, so values such as
// "Smith & Co" stay readable in artifacts.
func encodeJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}

// ErrNotObject is returned when JSON input is valid but not an object.
var ErrNotObject = errors.New("expected a JSON object")

// UnmarshalJSON reads a JSON object, preserving key order. Numbers are
// kept as json.Number so they round-trip unchanged.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ErrNotObject
	}
	decoded, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*r = *decoded
	return nil
}

// decodeObject reads object members after the opening brace has been consumed.
func decodeObject(dec *json.Decoder) (*Record, error) {
	rec := NewRecord()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		rec.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return rec, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		return decodeObject(dec)
	case '[':
		list := make([]any, 0)
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return list, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %v", d)
}

// MarshalYAML encodes the record as a YAML mapping in insertion order.
func (r *Record) MarshalYAML() (any, error) {
	return r.yamlNode()
}

func (r *Record) yamlNode() (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if r == nil {
		return node, nil
	}
	for _, k := range r.keys {
		vn, err := yamlValue(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", k, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, vn)
	}
	return node, nil
}

func yamlValue(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *Record:
		return t.yamlNode()
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			n, err := yamlValue(item)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	case json.Number:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: t.String()}, nil
	}
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return &n, nil
}

// Field is one leaf of a flattened record.
type Field struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Flatten returns the record's leaves with dotted keys. Lists of scalars
// are joined with "; "; lists containing objects are indexed as key[i].
func (r *Record) Flatten() []Field {
	var out []Field
	r.flatten("", &out)
	return out
}

func (r *Record) flatten(prefix string, out *[]Field) {
	if r == nil {
		return
	}
	for _, k := range r.keys {
		flattenValue(joinKey(prefix, k), r.values[k], out)
	}
}

func flattenValue(key string, v any, out *[]Field) {
	switch t := v.(type) {
	case *Record:
		t.flatten(key, out)
	case []any:
		if !hasObjects(t) {
			parts := make([]string, 0, len(t))
			for _, item := range t {
				parts = append(parts, scalarString(item))
			}
			*out = append(*out, Field{Key: key, Value: strings.Join(parts, "; ")})
			return
		}
		for i, item := range t {
			flattenValue(fmt.Sprintf("%s[%d]", key, i), item, out)
		}
	default:
		*out = append(*out, Field{Key: key, Value: scalarString(v)})
	}
}

func hasObjects(list []any) bool {
	for _, item := range list {
		switch item.(type) {
		case *Record, []any:
			return true
		}
	}
	return false
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	return fmt.Sprint(v)
}

// FlatKeys returns the sorted union of flattened keys across records.
func FlatKeys(records []*Record) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, r := range records {
		for _, f := range r.Flatten() {
			if !seen[f.Key] {
				seen[f.Key] = true
				keys = append(keys, f.Key)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
