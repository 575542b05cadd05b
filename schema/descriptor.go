// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package schema builds, persists and loads the Avro schema descriptors
// that alert payloads are encoded with.
package schema

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/go-avro/avro"
	"github.com/karpov-sv/fink-utils/batch"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/linkedin/goavro/v2"
)

// TopLevelName is the name of the record derived from a batch.
const TopLevelName = "topLevelRecord"

// Descriptor is an Avro record schema together with the batch fields it
// describes and a codec for it.
type Descriptor struct {
	text  string
	root  *node
	codec *goavro.Codec
}

// node mirrors an Avro type with what encoding and decoding need: the
// batch type and the union branch name.
type node struct {
	typ      batch.DataType
	fullName string
	fields   []nodeField
	elem     *node
}

type nodeField struct {
	name     string
	nullable bool
	node     *node
}

// branch returns the name goavro uses for this type inside a union.
func (n *node) branch() string {
	if n.fullName != "" {
		return n.fullName
	}
	return avroPrimitive(n.typ.Kind)
}

func (n *node) batchFields() []batch.Field {
	fields := make([]batch.Field, len(n.fields))
	for i, f := range n.fields {
		fields[i] = batch.Field{Name: f.name, Type: f.node.batchType(), Nullable: f.nullable}
	}
	return fields
}

func (n *node) batchType() batch.DataType {
	switch n.typ.Kind {
	case batch.KindStruct:
		return batch.Struct(n.batchFields()...)
	case batch.KindArray:
		elem := n.elem.batchType()
		if n.typ.ContainsNull {
			return batch.ArrayOfNullable(elem)
		}
		return batch.Array(elem)
	}
	return batch.DataType{Kind: n.typ.Kind}
}

func avroPrimitive(k batch.Kind) string {
	switch k {
	case batch.KindArray:
		return "array"
	case batch.KindStruct:
		return "record"
	}
	return k.String()
}

// Derive returns the descriptor of a record holding fields. The record is
// named topLevelRecord, nested records are named after their field and
// namespaced by their parent's full name, and nullable types become
// [type, "null"] unions.
func Derive(fields []batch.Field) (*Descriptor, error) {
	rec := deriveType(batch.Struct(fields...), TopLevelName, "")
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling derived schema")
	}
	d, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "deriving schema")
	}
	return d, nil
}

type jsonRecord struct {
	Type      string      `json:"type"`
	Name      string      `json:"name"`
	Namespace string      `json:"namespace,omitempty"`
	Fields    []jsonField `json:"fields"`
}

type jsonField struct {
	Name string      `json:"name"`
	Type interface{} `json:"type"`
}

type jsonArray struct {
	Type  string      `json:"type"`
	Items interface{} `json:"items"`
}

func deriveType(t batch.DataType, name, namespace string) interface{} {
	switch t.Kind {
	case batch.KindStruct:
		rec := jsonRecord{Type: "record", Name: name, Namespace: namespace, Fields: []jsonField{}}
		child := name
		if namespace != "" {
			child = namespace + "." + name
		}
		for _, f := range t.Fields {
			ft := deriveType(f.Type, f.Name, child)
			if f.Nullable {
				ft = []interface{}{ft, "null"}
			}
			rec.Fields = append(rec.Fields, jsonField{Name: f.Name, Type: ft})
		}
		return rec
	case batch.KindArray:
		items := deriveType(*t.Elem, name, namespace)
		if t.ContainsNull {
			items = []interface{}{items, "null"}
		}
		return jsonArray{Type: "array", Items: items}
	}
	return avroPrimitive(t.Kind)
}

// Parse reads an Avro JSON record schema. Records, arrays, the primitive
// types, enums (as strings) and two-branch unions with null are
// supported.
func Parse(data []byte) (*Descriptor, error) {
	text := string(data)
	s, err := avro.ParseSchema(text)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrConfiguration, "parsing avro schema")
	}
	rec, ok := s.(*avro.RecordSchema)
	if !ok {
		return nil, errors.Newf(errors.ErrConfiguration, "top-level avro schema must be a record, got %s", s.GetName())
	}
	root, err := walk(rec, "")
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrConfiguration, "walking avro schema")
	}
	codec, err := goavro.NewCodec(text)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrConfiguration, "building avro codec")
	}
	return &Descriptor{text: text, root: root, codec: codec}, nil
}

func fullName(name, namespace, enclosing string) string {
	switch {
	case strings.Contains(name, "."):
		return name
	case namespace != "":
		return namespace + "." + name
	case enclosing != "":
		return enclosing + "." + name
	}
	return name
}

func namespaceOf(full string) string {
	if i := strings.LastIndex(full, "."); i >= 0 {
		return full[:i]
	}
	return ""
}

// walk converts an Avro type. enclosing is the namespace named types
// inherit when they do not declare one.
func walk(s avro.Schema, enclosing string) (*node, error) {
	switch t := s.(type) {
	case *avro.BooleanSchema:
		return &node{typ: batch.Boolean()}, nil
	case *avro.IntSchema:
		return &node{typ: batch.Int()}, nil
	case *avro.LongSchema:
		return &node{typ: batch.Long()}, nil
	case *avro.FloatSchema:
		return &node{typ: batch.Float()}, nil
	case *avro.DoubleSchema:
		return &node{typ: batch.Double()}, nil
	case *avro.StringSchema:
		return &node{typ: batch.String()}, nil
	case *avro.BytesSchema:
		return &node{typ: batch.Bytes()}, nil
	case *avro.EnumSchema:
		return &node{typ: batch.String(), fullName: fullName(t.Name, t.Namespace, enclosing)}, nil
	case *avro.RecordSchema:
		n := &node{typ: batch.DataType{Kind: batch.KindStruct}, fullName: fullName(t.Name, t.Namespace, enclosing)}
		ns := namespaceOf(n.fullName)
		for _, f := range t.Fields {
			child, nullable, err := walkField(f.Type, ns)
			if err != nil {
				return nil, errors.Wrapf(err, "field %q", f.Name)
			}
			n.fields = append(n.fields, nodeField{name: f.Name, nullable: nullable, node: child})
		}
		n.typ = n.batchType()
		return n, nil
	case *avro.ArraySchema:
		elem, nullable, err := walkField(t.Items, enclosing)
		if err != nil {
			return nil, errors.Wrap(err, "array items")
		}
		n := &node{typ: batch.DataType{Kind: batch.KindArray, ContainsNull: nullable}, elem: elem}
		n.typ = n.batchType()
		return n, nil
	case *avro.RecursiveSchema:
		return nil, errors.Newf(errors.ErrConfiguration, "recursive type %s is not supported", t.GetName())
	}
	return nil, errors.Newf(errors.ErrConfiguration, "avro type %s is not supported", s.GetName())
}

// walkField unwraps an optional [T, "null"] or ["null", T] union.
func walkField(s avro.Schema, enclosing string) (*node, bool, error) {
	u, ok := s.(*avro.UnionSchema)
	if !ok {
		n, err := walk(s, enclosing)
		return n, false, err
	}
	var inner avro.Schema
	nulls := 0
	for _, t := range u.Types {
		if _, isNull := t.(*avro.NullSchema); isNull {
			nulls++
			continue
		}
		if inner != nil {
			return nil, false, errors.New(errors.ErrConfiguration, "unions with more than one non-null branch are not supported")
		}
		inner = t
	}
	if inner == nil || nulls != 1 {
		return nil, false, errors.New(errors.ErrConfiguration, "unions must hold one type and null")
	}
	n, err := walk(inner, enclosing)
	return n, true, err
}

// Fields returns the batch fields of the record.
func (d *Descriptor) Fields() []batch.Field {
	return d.root.batchFields()
}

// Codec returns the goavro codec of the record.
func (d *Descriptor) Codec() *goavro.Codec {
	return d.codec
}

// Schema returns the schema text the descriptor was built from.
func (d *Descriptor) Schema() string {
	return d.text
}

// Name returns the full name of the record.
func (d *Descriptor) Name() string {
	return d.root.fullName
}

// MarshalIndent returns the schema as JSON indented by two spaces, the
// form schema artifacts are persisted in.
func (d *Descriptor) MarshalIndent() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(d.text), "", "  "); err != nil {
		return nil, errors.Wrap(err, "indenting schema")
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Equal reports whether two descriptors describe the same fields under
// the same record name.
func (d *Descriptor) Equal(o *Descriptor) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.Name() != o.Name() {
		return false
	}
	return batch.Struct(d.Fields()...).Equal(batch.Struct(o.Fields()...))
}

// EncodeRow encodes one row whose columns are described by fields.
// Columns are matched to the record by name; a nullable record field with
// no column is encoded as null.
func (d *Descriptor) EncodeRow(fields []batch.Field, row batch.Row) ([]byte, error) {
	native, err := encodeRecord(d.root, fields, row)
	if err != nil {
		return nil, err
	}
	buf, err := d.codec.BinaryFromNative(nil, native)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrDataShape, "encoding row")
	}
	return buf, nil
}

// DecodeRow decodes one payload into a row aligned with Fields. Payloads
// that fail to decode or carry trailing bytes are DecodeErrors.
func (d *Descriptor) DecodeRow(payload []byte) (batch.Row, error) {
	native, rest, err := d.codec.NativeFromBinary(payload)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrDecode, "decoding payload")
	}
	if len(rest) > 0 {
		return nil, errors.Newf(errors.ErrDecode, "payload has %d trailing bytes", len(rest))
	}
	v, err := decodeValue(d.root, false, native)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrDecode, "converting payload")
	}
	return v.(batch.Row), nil
}
