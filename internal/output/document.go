package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"

	"github.com/jmespath/go-jmespath"
)

// DecodeError reports a response body that is not valid JSON.
type DecodeError struct {
	Body []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("JSON decoding failed with: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// QueryFilterError reports an invalid or failing response filter.
type QueryFilterError struct {
	Expr string
	Err  error
}

func (e *QueryFilterError) Error() string {
	return fmt.Sprintf("invalid cliquery syntax - %v", e.Err)
}

func (e *QueryFilterError) Unwrap() error {
	return e.Err
}

// Document is a decoded JSON response. Objects are plain maps and numbers
// are json.Number so integers keep every digit; the key order of every
// decoded object is kept on the side for rendering.
type Document struct {
	Value any
	order map[uintptr]objectKeys
}

// objectKeys holds a decoded object with its keys in decode order. Keeping
// the map referenced keeps its address unique for the document's lifetime.
type objectKeys struct {
	m    map[string]any
	keys []string
}

func (d *Document) remember(m map[string]any, keys []string) {
	d.order[reflect.ValueOf(m).Pointer()] = objectKeys{m: m, keys: keys}
}

// Decode parses a JSON response body.
func Decode(data []byte) (*Document, error) {
	d := &Document{order: make(map[uintptr]objectKeys)}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := d.decodeValue(dec)
	if err != nil {
		return nil, &DecodeError{Body: data, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Body: data, Err: fmt.Errorf("unexpected data after top-level value")}
	}
	d.Value = v
	return d, nil
}

func (d *Document) decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		m := make(map[string]any)
		var keys []string
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := kt.(string)
			v, err := d.decodeValue(dec)
			if err != nil {
				return nil, err
			}
			if _, dup := m[key]; !dup {
				keys = append(keys, key)
			}
			m[key] = v
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		d.remember(m, keys)
		return m, nil
	case '[':
		list := make([]any, 0)
		for dec.More() {
			v, err := d.decodeValue(dec)
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
	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}

// Filter applies a JMESPath expression and returns the selected value.
// Numbers in the result are float64.
func (d *Document) Filter(expr string) (*Document, error) {
	query, err := jmespath.Compile(expr)
	if err != nil {
		return nil, &QueryFilterError{Expr: expr, Err: err}
	}
	out := &Document{order: make(map[uintptr]objectKeys)}
	v, err := query.Search(out.searchable(d, d.Value))
	if err != nil {
		return nil, &QueryFilterError{Expr: expr, Err: err}
	}
	out.Value = v
	return out, nil
}

// searchable copies v from src with numbers as float64, the only numeric
// type JMESPath compares. Copied objects keep the key order of src.
func (d *Document) searchable(src *Document, v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = d.searchable(src, val)
		}
		d.remember(m, src.keys(t))
		return m
	case []any:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = d.searchable(src, item)
		}
		return list
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return string(t)
		}
		return f
	}
	return v
}

// keys returns the keys of m in decode order. Objects built by a filter
// have no recorded order and are listed sorted.
func (d *Document) keys(m map[string]any) []string {
	if e, ok := d.order[reflect.ValueOf(m).Pointer()]; ok && len(e.keys) == len(m) {
		return e.keys
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
