// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package schema

import (
	"math"
	"sort"

	"github.com/karpov-sv/fink-utils/batch"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/linkedin/goavro/v2"
)

// encodeRecord converts a struct value described by src into the goavro
// native form of record n.
func encodeRecord(n *node, src []batch.Field, r batch.Row) (map[string]interface{}, error) {
	if len(r) != len(src) {
		return nil, errors.Newf(errors.ErrDataShape, "row has %d values for %d fields", len(r), len(src))
	}
	idx := make(map[string]int, len(src))
	for i, f := range src {
		idx[f.Name] = i
	}
	out := make(map[string]interface{}, len(n.fields))
	for _, f := range n.fields {
		i, ok := idx[f.name]
		if !ok {
			if !f.nullable {
				return nil, errors.Newf(errors.ErrDataShape, "no value for required field %q", f.name)
			}
			out[f.name] = nil
			continue
		}
		delete(idx, f.name)
		v, err := encodeValue(f.node, f.nullable, src[i].Type, r[i])
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", f.name)
		}
		out[f.name] = v
	}
	if len(idx) > 0 {
		extra := make([]string, 0, len(idx))
		for name := range idx {
			extra = append(extra, name)
		}
		sort.Strings(extra)
		return nil, errors.Newf(errors.ErrDataShape, "fields %v are not in record %s", extra, n.fullName)
	}
	return out, nil
}

func encodeValue(n *node, nullable bool, src batch.DataType, v interface{}) (interface{}, error) {
	if v == nil {
		if !nullable {
			return nil, errors.New(errors.ErrDataShape, "null value for non-nullable type")
		}
		return nil, nil
	}
	var (
		nv  interface{}
		err error
	)
	switch n.typ.Kind {
	case batch.KindStruct:
		r, ok := v.(batch.Row)
		if !ok || src.Kind != batch.KindStruct {
			return nil, errors.Newf(errors.ErrDataShape, "value of type %T is not a struct", v)
		}
		nv, err = encodeRecord(n, src.Fields, r)
	case batch.KindArray:
		a, ok := v.([]interface{})
		if !ok || src.Kind != batch.KindArray {
			return nil, errors.Newf(errors.ErrDataShape, "value of type %T is not an array", v)
		}
		out := make([]interface{}, len(a))
		for i, e := range a {
			out[i], err = encodeValue(n.elem, n.typ.ContainsNull, *src.Elem, e)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
		}
		nv = out
	default:
		nv, err = coerce(n.typ.Kind, v)
	}
	if err != nil {
		return nil, err
	}
	if nullable {
		return goavro.Union(n.branch(), nv), nil
	}
	return nv, nil
}

// coerce converts scalar values to the Go type goavro expects. Numeric
// values are converted between widths when no precision is lost in the
// integer part.
func coerce(k batch.Kind, v interface{}) (interface{}, error) {
	switch k {
	case batch.KindBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case batch.KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case batch.KindBytes:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	case batch.KindInt:
		if i, ok := asInt64(v); ok && i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i), nil
		}
	case batch.KindLong:
		if i, ok := asInt64(v); ok {
			return i, nil
		}
	case batch.KindFloat:
		if f, ok := asFloat64(v); ok {
			return float32(f), nil
		}
	case batch.KindDouble:
		if f, ok := asFloat64(v); ok {
			return f, nil
		}
	}
	return nil, errors.Newf(errors.ErrDataShape, "value %v of type %T cannot be encoded as %s", v, v, k)
}

func asInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

// decodeValue converts goavro native data into a batch value of node n.
func decodeValue(n *node, nullable bool, native interface{}) (interface{}, error) {
	if native == nil {
		if !nullable {
			return nil, errors.New(errors.ErrDataShape, "null value for non-nullable type")
		}
		return nil, nil
	}
	if nullable {
		m, ok := native.(map[string]interface{})
		if !ok || len(m) != 1 {
			return nil, errors.Newf(errors.ErrDataShape, "expected a union value, got %T", native)
		}
		for _, inner := range m {
			native = inner
		}
	}
	switch n.typ.Kind {
	case batch.KindStruct:
		m, ok := native.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrDataShape, "expected a record, got %T", native)
		}
		row := make(batch.Row, len(n.fields))
		for i, f := range n.fields {
			v, err := decodeValue(f.node, f.nullable, m[f.name])
			if err != nil {
				return nil, errors.Wrapf(err, "field %q", f.name)
			}
			row[i] = v
		}
		return row, nil
	case batch.KindArray:
		a, ok := native.([]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrDataShape, "expected an array, got %T", native)
		}
		out := make([]interface{}, len(a))
		for i, e := range a {
			v, err := decodeValue(n.elem, n.typ.ContainsNull, e)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
			out[i] = v
		}
		return out, nil
	}
	return native, nil
}
