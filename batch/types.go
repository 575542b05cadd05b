// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package batch

import (
	"strings"

	"github.com/karpov-sv/fink-utils/errors"
)

// Kind identifies the logical type of a column.
type Kind int

const (
	KindBoolean Kind = iota + 1
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindString
	KindBytes
	KindStruct
	KindArray
)

var kindNames = map[Kind]string{
	KindBoolean: "boolean",
	KindInt:     "int",
	KindLong:    "long",
	KindFloat:   "float",
	KindDouble:  "double",
	KindString:  "string",
	KindBytes:   "bytes",
	KindStruct:  "struct",
	KindArray:   "array",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// DataType describes a column. Fields is set for structs, Elem and
// ContainsNull for arrays.
type DataType struct {
	Kind         Kind
	Fields       []Field
	Elem         *DataType
	ContainsNull bool
}

func Boolean() DataType { return DataType{Kind: KindBoolean} }
func Int() DataType     { return DataType{Kind: KindInt} }
func Long() DataType    { return DataType{Kind: KindLong} }
func Float() DataType   { return DataType{Kind: KindFloat} }
func Double() DataType  { return DataType{Kind: KindDouble} }
func String() DataType  { return DataType{Kind: KindString} }
func Bytes() DataType   { return DataType{Kind: KindBytes} }

// Struct returns a struct type holding fields, in order.
func Struct(fields ...Field) DataType {
	return DataType{Kind: KindStruct, Fields: fields}
}

// Array returns an array type whose elements are of type elem. Elements
// are never null.
func Array(elem DataType) DataType {
	return DataType{Kind: KindArray, Elem: &elem}
}

// ArrayOfNullable is like Array but elements may be null.
func ArrayOfNullable(elem DataType) DataType {
	return DataType{Kind: KindArray, Elem: &elem, ContainsNull: true}
}

// Equal reports whether two types are structurally identical.
func (d DataType) Equal(o DataType) bool {
	if d.Kind != o.Kind {
		return false
	}
	switch d.Kind {
	case KindStruct:
		if len(d.Fields) != len(o.Fields) {
			return false
		}
		for i := range d.Fields {
			if !d.Fields[i].Equal(o.Fields[i]) {
				return false
			}
		}
	case KindArray:
		if d.ContainsNull != o.ContainsNull {
			return false
		}
		if d.Elem == nil || o.Elem == nil {
			return d.Elem == o.Elem
		}
		return d.Elem.Equal(*o.Elem)
	}
	return true
}

func (d DataType) String() string {
	switch d.Kind {
	case KindStruct:
		parts := make([]string, len(d.Fields))
		for i, f := range d.Fields {
			parts[i] = f.String()
		}
		return "struct<" + strings.Join(parts, ",") + ">"
	case KindArray:
		if d.Elem == nil {
			return "array<?>"
		}
		if d.ContainsNull {
			return "array<" + d.Elem.String() + "?>"
		}
		return "array<" + d.Elem.String() + ">"
	}
	return d.Kind.String()
}

// Field is a named, typed column.
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
}

func (f Field) Equal(o Field) bool {
	return f.Name == o.Name && f.Nullable == o.Nullable && f.Type.Equal(o.Type)
}

func (f Field) String() string {
	s := f.Name + ":" + f.Type.String()
	if !f.Nullable {
		s += " not null"
	}
	return s
}

// checkFields validates that names are present and unique.
func checkFields(fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return errors.New(errors.ErrDataShape, "field name must not be empty")
		}
		if _, ok := seen[f.Name]; ok {
			return errors.Newf(errors.ErrDataShape, "duplicate field name %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if err := checkType(f.Type); err != nil {
			return errors.Wrapf(err, "field %q", f.Name)
		}
	}
	return nil
}

func checkType(t DataType) error {
	switch t.Kind {
	case KindBoolean, KindInt, KindLong, KindFloat, KindDouble, KindString, KindBytes:
		return nil
	case KindStruct:
		return checkFields(t.Fields)
	case KindArray:
		if t.Elem == nil {
			return errors.New(errors.ErrDataShape, "array without element type")
		}
		return checkType(*t.Elem)
	}
	return errors.Newf(errors.ErrDataShape, "unknown kind %d", int(t.Kind))
}

// checkValue validates that v is a legal value of type t.
func checkValue(t DataType, nullable bool, v interface{}) error {
	if v == nil {
		if nullable {
			return nil
		}
		return errors.New(errors.ErrDataShape, "null value in non-nullable field")
	}
	ok := false
	switch t.Kind {
	case KindBoolean:
		_, ok = v.(bool)
	case KindInt:
		_, ok = v.(int32)
	case KindLong:
		_, ok = v.(int64)
	case KindFloat:
		_, ok = v.(float32)
	case KindDouble:
		_, ok = v.(float64)
	case KindString:
		_, ok = v.(string)
	case KindBytes:
		_, ok = v.([]byte)
	case KindStruct:
		r, isRow := v.(Row)
		if !isRow {
			break
		}
		if len(r) != len(t.Fields) {
			return errors.Newf(errors.ErrDataShape, "struct value has %d values, want %d", len(r), len(t.Fields))
		}
		for i, f := range t.Fields {
			if err := checkValue(f.Type, f.Nullable, r[i]); err != nil {
				return errors.Wrapf(err, "struct field %q", f.Name)
			}
		}
		return nil
	case KindArray:
		a, isArr := v.([]interface{})
		if !isArr {
			break
		}
		for i, e := range a {
			if err := checkValue(*t.Elem, t.ContainsNull, e); err != nil {
				return errors.Wrapf(err, "array element %d", i)
			}
		}
		return nil
	}
	if !ok {
		return errors.Newf(errors.ErrDataShape, "value of type %T is not a %s", v, t)
	}
	return nil
}
