// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package batch

import (
	"context"
	"os"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
	"github.com/karpov-sv/fink-utils/errors"
)

// ReadParquetFile reads a whole parquet file into a batch.
func ReadParquetFile(ctx context.Context, path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	b, err := ReadParquet(ctx, f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return b, nil
}

// ReadParquet reads a parquet stream into a batch. Boolean, 32 and 64 bit
// integer and floating point, string, binary, struct and list columns are
// supported.
func ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker) (*Batch, error) {
	pf, err := file.NewParquetReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening parquet reader")
	}
	defer pf.Close()

	mem := memory.NewGoAllocator()
	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, errors.Wrap(err, "creating arrow reader")
	}
	table, err := reader.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading table")
	}
	defer table.Release()
	return FromArrow(table)
}

// FromArrow copies an arrow table into a batch.
func FromArrow(table arrow.Table) (*Batch, error) {
	schema := table.Schema()
	fields := make([]Field, len(schema.Fields()))
	for i, af := range schema.Fields() {
		f, err := fieldFromArrow(af)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}

	numRows := int(table.NumRows())
	rows := make([]Row, numRows)
	for j := range rows {
		rows[j] = make(Row, len(fields))
	}
	for i := range fields {
		off := 0
		for _, chunk := range table.Column(i).Data().Chunks() {
			for k := 0; k < chunk.Len(); k++ {
				v, err := valueFromArrow(chunk, k)
				if err != nil {
					return nil, errors.Wrapf(err, "column %q row %d", fields[i].Name, off+k)
				}
				rows[off+k][i] = v
			}
			off += chunk.Len()
		}
	}
	return New(fields, rows...)
}

func fieldFromArrow(af arrow.Field) (Field, error) {
	t, err := typeFromArrow(af.Type)
	if err != nil {
		return Field{}, errors.Wrapf(err, "field %q", af.Name)
	}
	return Field{Name: af.Name, Type: t, Nullable: af.Nullable}, nil
}

func typeFromArrow(dt arrow.DataType) (DataType, error) {
	switch dt.ID() {
	case arrow.BOOL:
		return Boolean(), nil
	case arrow.INT32:
		return Int(), nil
	case arrow.INT64:
		return Long(), nil
	case arrow.FLOAT32:
		return Float(), nil
	case arrow.FLOAT64:
		return Double(), nil
	case arrow.STRING:
		return String(), nil
	case arrow.BINARY:
		return Bytes(), nil
	case arrow.STRUCT:
		st := dt.(*arrow.StructType)
		fields := make([]Field, len(st.Fields()))
		for i, af := range st.Fields() {
			f, err := fieldFromArrow(af)
			if err != nil {
				return DataType{}, err
			}
			fields[i] = f
		}
		return Struct(fields...), nil
	case arrow.LIST:
		lt := dt.(*arrow.ListType)
		elem, err := typeFromArrow(lt.Elem())
		if err != nil {
			return DataType{}, err
		}
		if lt.ElemField().Nullable {
			return ArrayOfNullable(elem), nil
		}
		return Array(elem), nil
	}
	return DataType{}, errors.Newf(errors.ErrDataShape, "unsupported arrow type %s", dt)
}

func valueFromArrow(a arrow.Array, i int) (interface{}, error) {
	if a.IsNull(i) {
		return nil, nil
	}
	switch c := a.(type) {
	case *array.Boolean:
		return c.Value(i), nil
	case *array.Int32:
		return c.Value(i), nil
	case *array.Int64:
		return c.Value(i), nil
	case *array.Float32:
		return c.Value(i), nil
	case *array.Float64:
		return c.Value(i), nil
	case *array.String:
		return c.Value(i), nil
	case *array.Binary:
		return append([]byte(nil), c.Value(i)...), nil
	case *array.Struct:
		r := make(Row, c.NumField())
		for k := range r {
			v, err := valueFromArrow(c.Field(k), i)
			if err != nil {
				return nil, err
			}
			r[k] = v
		}
		return r, nil
	case *array.List:
		offsets := c.Offsets()
		values := c.ListValues()
		start, end := int(offsets[i]), int(offsets[i+1])
		out := make([]interface{}, 0, end-start)
		for k := start; k < end; k++ {
			v, err := valueFromArrow(values, k)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, errors.Newf(errors.ErrDataShape, "unsupported arrow array %T", a)
}
