// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package batch provides an in-memory, row-major table of alert records
// and the column operations the distribution and enrichment code needs.
package batch

import (
	"reflect"

	"github.com/karpov-sv/fink-utils/errors"
)

// Row holds one value per field, in field order. A struct value is itself
// a Row aligned with the struct's fields.
type Row []interface{}

// Batch is an ordered set of fields plus rows aligned with them. A Batch is
// not safe for concurrent mutation.
type Batch struct {
	fields []Field
	rows   []Row
	index  map[string]int
}

// New returns a batch holding fields and rows. Every row is validated.
func New(fields []Field, rows ...Row) (*Batch, error) {
	if err := checkFields(fields); err != nil {
		return nil, errors.Wrap(err, "checking fields")
	}
	b := &Batch{
		fields: append([]Field(nil), fields...),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range b.fields {
		b.index[f.Name] = i
	}
	b.rows = make([]Row, 0, len(rows))
	for _, r := range rows {
		if err := b.Append(r); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// MustNew is like New but panics on error. It is meant for tests and
// static tables.
func MustNew(fields []Field, rows ...Row) *Batch {
	b, err := New(fields, rows...)
	if err != nil {
		panic(err)
	}
	return b
}

// Append validates r and adds it to the batch.
func (b *Batch) Append(r Row) error {
	if len(r) != len(b.fields) {
		return errors.Newf(errors.ErrDataShape, "row %d has %d values, want %d", len(b.rows), len(r), len(b.fields))
	}
	for i, f := range b.fields {
		if err := checkValue(f.Type, f.Nullable, r[i]); err != nil {
			return errors.Wrapf(err, "row %d, field %q", len(b.rows), f.Name)
		}
	}
	b.rows = append(b.rows, r)
	return nil
}

// Len returns the number of rows.
func (b *Batch) Len() int { return len(b.rows) }

// Fields returns a copy of the field list.
func (b *Batch) Fields() []Field {
	return append([]Field(nil), b.fields...)
}

// Names returns the field names in order.
func (b *Batch) Names() []string {
	names := make([]string, len(b.fields))
	for i, f := range b.fields {
		names[i] = f.Name
	}
	return names
}

// Rows returns the rows. Callers must not modify them.
func (b *Batch) Rows() []Row { return b.rows }

// Row returns row i.
func (b *Batch) Row(i int) Row { return b.rows[i] }

// Index returns the position of the named field, or -1.
func (b *Batch) Index(name string) int {
	if i, ok := b.index[name]; ok {
		return i
	}
	return -1
}

// Field returns the named field.
func (b *Batch) Field(name string) (Field, bool) {
	i := b.Index(name)
	if i < 0 {
		return Field{}, false
	}
	return b.fields[i], true
}

// Column returns the values of the named field, one per row.
func (b *Batch) Column(name string) ([]interface{}, error) {
	i := b.Index(name)
	if i < 0 {
		return nil, errors.Newf(errors.ErrDataShape, "no column %q", name)
	}
	out := make([]interface{}, len(b.rows))
	for j, r := range b.rows {
		out[j] = r[i]
	}
	return out, nil
}

// Value returns the value of the named field in row.
func (b *Batch) Value(row int, name string) (interface{}, error) {
	i := b.Index(name)
	if i < 0 {
		return nil, errors.Newf(errors.ErrDataShape, "no column %q", name)
	}
	if row < 0 || row >= len(b.rows) {
		return nil, errors.Newf(errors.ErrDataShape, "row %d out of range [0,%d)", row, len(b.rows))
	}
	return b.rows[row][i], nil
}

// Select returns a batch with only the named columns, in the given order.
func (b *Batch) Select(names ...string) (*Batch, error) {
	idx := make([]int, len(names))
	fields := make([]Field, len(names))
	for k, n := range names {
		i := b.Index(n)
		if i < 0 {
			return nil, errors.Newf(errors.ErrDataShape, "no column %q", n)
		}
		idx[k] = i
		fields[k] = b.fields[i]
	}
	return b.project(fields, idx)
}

// Drop returns a batch without the named columns. Names that are not
// present are ignored.
func (b *Batch) Drop(names ...string) *Batch {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	var (
		idx    []int
		fields []Field
	)
	for i, f := range b.fields {
		if _, ok := drop[f.Name]; ok {
			continue
		}
		idx = append(idx, i)
		fields = append(fields, f)
	}
	out, err := b.project(fields, idx)
	if err != nil {
		// fields come from a valid batch
		panic(err)
	}
	return out
}

func (b *Batch) project(fields []Field, idx []int) (*Batch, error) {
	rows := make([]Row, len(b.rows))
	for j, r := range b.rows {
		nr := make(Row, len(idx))
		for k, i := range idx {
			nr[k] = r[i]
		}
		rows[j] = nr
	}
	return newTrusted(fields, rows)
}

// newTrusted builds a batch from rows that were already validated against
// the same field types.
func newTrusted(fields []Field, rows []Row) (*Batch, error) {
	if err := checkFields(fields); err != nil {
		return nil, err
	}
	b := &Batch{
		fields: fields,
		rows:   rows,
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		b.index[f.Name] = i
	}
	return b, nil
}

// Pack returns a batch with a single non-nullable struct column called
// name holding every column of b.
func (b *Batch) Pack(name string) *Batch {
	st := Field{Name: name, Type: Struct(b.Fields()...)}
	rows := make([]Row, len(b.rows))
	for j, r := range b.rows {
		rows[j] = Row{append(Row(nil), r...)}
	}
	out, err := newTrusted([]Field{st}, rows)
	if err != nil {
		panic(err)
	}
	return out
}

// Unpack replaces the named struct column by its fields, at the same
// position. A null struct yields nulls, so every unpacked field becomes
// nullable when the struct column is.
func (b *Batch) Unpack(name string) (*Batch, error) {
	i := b.Index(name)
	if i < 0 {
		return nil, errors.Newf(errors.ErrDataShape, "no column %q", name)
	}
	sf := b.fields[i]
	if sf.Type.Kind != KindStruct {
		return nil, errors.Newf(errors.ErrDataShape, "column %q is a %s, not a struct", name, sf.Type)
	}
	inner := sf.Type.Fields
	fields := make([]Field, 0, len(b.fields)-1+len(inner))
	fields = append(fields, b.fields[:i]...)
	for _, f := range inner {
		if sf.Nullable {
			f.Nullable = true
		}
		fields = append(fields, f)
	}
	fields = append(fields, b.fields[i+1:]...)

	rows := make([]Row, len(b.rows))
	for j, r := range b.rows {
		nr := make(Row, 0, len(fields))
		nr = append(nr, r[:i]...)
		if s, ok := r[i].(Row); ok {
			nr = append(nr, s...)
		} else {
			nr = append(nr, make(Row, len(inner))...)
		}
		nr = append(nr, r[i+1:]...)
		rows[j] = nr
	}
	out, err := newTrusted(fields, rows)
	if err != nil {
		return nil, errors.Wrapf(err, "unpacking %q", name)
	}
	return out, nil
}

// WithColumn returns a batch with f appended as the last column, holding
// values (one per row).
func (b *Batch) WithColumn(f Field, values []interface{}) (*Batch, error) {
	if len(values) != len(b.rows) {
		return nil, errors.Newf(errors.ErrDataShape, "column %q has %d values for %d rows", f.Name, len(values), len(b.rows))
	}
	fields := append(b.Fields(), f)
	rows := make([]Row, len(b.rows))
	for j, r := range b.rows {
		nr := make(Row, 0, len(r)+1)
		nr = append(nr, r...)
		rows[j] = append(nr, values[j])
	}
	return New(fields, rows...)
}

// Equal reports whether both batches have the same fields and rows.
func (b *Batch) Equal(o *Batch) bool {
	if b == nil || o == nil {
		return b == o
	}
	if len(b.fields) != len(o.fields) || len(b.rows) != len(o.rows) {
		return false
	}
	for i := range b.fields {
		if !b.fields[i].Equal(o.fields[i]) {
			return false
		}
	}
	for j := range b.rows {
		if !reflect.DeepEqual(b.rows[j], o.rows[j]) {
			return false
		}
	}
	return true
}
