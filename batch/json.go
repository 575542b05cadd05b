// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strings"

	"github.com/karpov-sv/fink-utils/errors"
	"github.com/tidwall/gjson"
)

// WriteJSONLines writes one JSON object per row, keys in field order.
// Structs become nested objects, bytes are base64 encoded and non-finite
// floats are written as null.
func WriteJSONLines(w io.Writer, b *Batch) error {
	bw := bufio.NewWriter(w)
	var buf bytes.Buffer
	for j, r := range b.rows {
		buf.Reset()
		if err := appendObject(&buf, b.fields, r); err != nil {
			return errors.Wrapf(err, "row %d", j)
		}
		buf.WriteByte('\n')
		if _, err := bw.Write(buf.Bytes()); err != nil {
			return errors.Wrap(err, "writing row")
		}
	}
	return errors.Wrap(bw.Flush(), "flushing")
}

func appendObject(buf *bytes.Buffer, fields []Field, r Row) error {
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(f.Name)
		buf.Write(name)
		buf.WriteByte(':')
		if err := appendValue(buf, f.Type, r[i]); err != nil {
			return errors.Wrapf(err, "field %q", f.Name)
		}
	}
	buf.WriteByte('}')
	return nil
}

func appendValue(buf *bytes.Buffer, t DataType, v interface{}) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case Row:
		return appendObject(buf, t.Fields, x)
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendValue(buf, *t.Elem, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			buf.WriteString("null")
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			buf.WriteString("null")
			return nil
		}
	}
	p, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshaling value")
	}
	buf.Write(p)
	return nil
}

// ReadJSONLines reads flat JSON objects, one per line, into a batch.
// Columns appear in first-seen key order and are all nullable. A column
// holding only booleans is boolean, only strings is string, only integral
// numbers is long and any other numbers double. Nested objects and arrays
// are rejected.
func ReadJSONLines(r io.Reader) (*Batch, error) {
	var (
		names  []string
		index  = make(map[string]int)
		values []map[int]gjson.Result
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if !gjson.Valid(text) {
			return nil, errors.Newf(errors.ErrParse, "line %d is not valid JSON", line)
		}
		obj := gjson.Parse(text)
		if !obj.IsObject() {
			return nil, errors.Newf(errors.ErrParse, "line %d is not a JSON object", line)
		}
		row := make(map[int]gjson.Result)
		var ferr error
		obj.ForEach(func(key, value gjson.Result) bool {
			if value.IsObject() || value.IsArray() {
				ferr = errors.Newf(errors.ErrParse, "line %d: key %q holds a nested value", line, key.String())
				return false
			}
			i, ok := index[key.String()]
			if !ok {
				i = len(names)
				index[key.String()] = i
				names = append(names, key.String())
			}
			row[i] = value
			return true
		})
		if ferr != nil {
			return nil, ferr
		}
		values = append(values, row)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning lines")
	}

	fields := make([]Field, len(names))
	for i, n := range names {
		t, err := inferJSONType(values, i)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", n)
		}
		fields[i] = Field{Name: n, Type: t, Nullable: true}
	}
	rows := make([]Row, len(values))
	for j, vals := range values {
		row := make(Row, len(fields))
		for i, f := range fields {
			v, ok := vals[i]
			if !ok || v.Type == gjson.Null {
				continue
			}
			switch f.Type.Kind {
			case KindBoolean:
				row[i] = v.Bool()
			case KindLong:
				row[i] = v.Int()
			case KindDouble:
				row[i] = v.Float()
			default:
				row[i] = v.String()
			}
		}
		rows[j] = row
	}
	return New(fields, rows...)
}

func inferJSONType(values []map[int]gjson.Result, i int) (DataType, error) {
	var seen gjson.Type
	integral := true
	for _, vals := range values {
		v, ok := vals[i]
		if !ok || v.Type == gjson.Null {
			continue
		}
		typ := v.Type
		if typ == gjson.False {
			typ = gjson.True
		}
		if seen != gjson.Null && typ != seen {
			return DataType{}, errors.New(errors.ErrParse, "mixed value types")
		}
		seen = typ
		if typ == gjson.Number && strings.ContainsAny(v.Raw, ".eE") {
			integral = false
		}
	}
	switch seen {
	case gjson.True:
		return Boolean(), nil
	case gjson.Number:
		if integral {
			return Long(), nil
		}
		return Double(), nil
	}
	return String(), nil
}
