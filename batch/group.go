// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package batch

import (
	"math"
	"strings"

	"github.com/karpov-sv/fink-utils/errors"
)

// GroupIntoStruct nests every column named "<prefix>_<name>" into one
// non-nullable struct column called prefix, with the prefix and separator
// stripped from the nested names. The other columns keep their order and
// the struct column is appended last. Rows are matched on key, which must
// be a non-prefixed column with unique, non-null scalar values; the input
// row order is kept.
func GroupIntoStruct(b *Batch, prefix, key string) (*Batch, error) {
	sep := prefix + "_"
	ki := b.Index(key)
	if ki < 0 {
		return nil, errors.Newf(errors.ErrDataShape, "key column %q not found", key)
	}
	if strings.HasPrefix(key, sep) {
		return nil, errors.Newf(errors.ErrDataShape, "key column %q must not start with %q", key, sep)
	}

	var (
		kept, nested   []int
		keptF, nestedF []Field
	)
	for i, f := range b.fields {
		if strings.HasPrefix(f.Name, sep) {
			nf := f
			nf.Name = strings.TrimPrefix(f.Name, sep)
			nested = append(nested, i)
			nestedF = append(nestedF, nf)
			continue
		}
		kept = append(kept, i)
		keptF = append(keptF, f)
	}
	if len(nested) == 0 {
		return nil, errors.Newf(errors.ErrConfiguration, "no column starts with %q", sep)
	}

	// The key must identify exactly one row.
	byKey := make(map[interface{}]int, len(b.rows))
	for j, r := range b.rows {
		k, err := hashable(r[ki])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d key %q", j, key)
		}
		if prev, ok := byKey[k]; ok {
			return nil, errors.Newf(errors.ErrDataShape, "key column %q is not unique: rows %d and %d share %v", key, prev, j, r[ki])
		}
		byKey[k] = j
	}

	fields := append(keptF, Field{Name: prefix, Type: Struct(nestedF...)})
	rows := make([]Row, len(b.rows))
	for j, r := range b.rows {
		st := make(Row, len(nested))
		for n, i := range nested {
			st[n] = r[i]
		}
		nr := make(Row, 0, len(fields))
		for _, i := range kept {
			nr = append(nr, r[i])
		}
		rows[j] = append(nr, st)
	}
	out, err := newTrusted(fields, rows)
	if err != nil {
		return nil, errors.Wrapf(err, "grouping %q", prefix)
	}
	return out, nil
}

func hashable(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case nil:
		return nil, errors.New(errors.ErrDataShape, "null key")
	case float64:
		if math.IsNaN(x) {
			return nil, errors.New(errors.ErrDataShape, "NaN key")
		}
	case float32:
		if math.IsNaN(float64(x)) {
			return nil, errors.New(errors.ErrDataShape, "NaN key")
		}
	case []byte:
		return "bytes:" + string(x), nil
	case Row, []interface{}:
		return nil, errors.New(errors.ErrDataShape, "key values must be scalars")
	}
	return v, nil
}
