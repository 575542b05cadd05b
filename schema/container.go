// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package schema

import (
	"io"
	"os"

	"github.com/karpov-sv/fink-utils/batch"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/linkedin/goavro/v2"
)

// WriteContainer writes every row of b to w as an Avro object container
// file using descriptor d.
func WriteContainer(w io.Writer, d *Descriptor, b *batch.Batch) error {
	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:     w,
		Codec: d.Codec(),
	})
	if err != nil {
		return errors.Wrap(err, "creating container writer")
	}
	fields := b.Fields()
	values := make([]interface{}, 0, b.Len())
	for j, r := range b.Rows() {
		native, err := encodeRecord(d.root, fields, r)
		if err != nil {
			return errors.Wrapf(err, "row %d", j)
		}
		values = append(values, native)
	}
	if len(values) == 0 {
		return nil
	}
	return errors.Wrap(ocfw.Append(values), "appending rows")
}

// ReadContainerSchema returns the descriptor stored in the header of an
// Avro object container file.
func ReadContainerSchema(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return ReadContainerSchemaFrom(f)
}

// ReadContainerSchemaFrom is like ReadContainerSchema but reads from r.
func ReadContainerSchemaFrom(r io.Reader) (*Descriptor, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrConfiguration, "reading container header")
	}
	return Parse([]byte(ocfr.Codec().Schema()))
}

// ReadContainer decodes every record of an Avro object container file into
// a batch and returns it with the descriptor from the file header.
func ReadContainer(r io.Reader) (*Descriptor, *batch.Batch, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, nil, errors.WithCode(err, errors.ErrConfiguration, "reading container header")
	}
	d, err := Parse([]byte(ocfr.Codec().Schema()))
	if err != nil {
		return nil, nil, err
	}
	b, err := batch.New(d.Fields())
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating batch")
	}
	for ocfr.Scan() {
		native, err := ocfr.Read()
		if err != nil {
			return nil, nil, errors.WithCode(err, errors.ErrDecode, "reading record")
		}
		v, err := decodeValue(d.root, false, native)
		if err != nil {
			return nil, nil, errors.WithCode(err, errors.ErrDecode, "converting record")
		}
		if err := b.Append(v.(batch.Row)); err != nil {
			return nil, nil, err
		}
	}
	if err := ocfr.Err(); err != nil {
		return nil, nil, errors.WithCode(err, errors.ErrDecode, "scanning container")
	}
	return d, b, nil
}
