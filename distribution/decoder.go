// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package distribution

import (
	"context"

	fink "github.com/karpov-sv/fink-utils"
	"github.com/karpov-sv/fink-utils/batch"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
	"github.com/karpov-sv/fink-utils/schema"
)

// Decoder turns payloads back into rows using a stored schema.
type Decoder struct {
	d   *schema.Descriptor
	log logger.Logger
}

// NewDecoder reads the descriptor at schemaPath through the schema store.
func NewDecoder(sess *fink.Session, schemaPath string) (*Decoder, error) {
	store, err := schema.NewStore(sess)
	if err != nil {
		return nil, err
	}
	d, err := store.Read(context.Background(), schemaPath)
	if err != nil {
		return nil, err
	}
	return NewDecoderFromDescriptor(sess, d)
}

// NewDecoderFromDescriptor returns a Decoder for an already loaded
// descriptor.
func NewDecoderFromDescriptor(sess *fink.Session, d *schema.Descriptor) (*Decoder, error) {
	if err := fink.CheckSession(sess); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errors.New(errors.ErrConfiguration, "decoder needs a schema")
	}
	return &Decoder{d: d, log: sess.Logger().WithPrefix("[decoder] ")}, nil
}

// Descriptor returns the schema payloads are decoded with.
func (dec *Decoder) Descriptor() *schema.Descriptor { return dec.d }

// RowError records why one payload could not be decoded.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return errors.Wrapf(e.Err, "payload %d", e.Row).Error()
}

func (dec *Decoder) field() batch.Field {
	return batch.Field{Name: StructColumn, Type: batch.Struct(dec.d.Fields()...)}
}

// Decode returns one row per payload in a single struct column. Any
// payload that does not match the schema aborts the batch with a
// DecodeError telling how many failed and which came first.
func (dec *Decoder) Decode(payloads [][]byte) (*batch.Batch, error) {
	b, failed := dec.DecodeLenient(payloads)
	if len(failed) > 0 {
		return nil, errors.WithCodef(failed[0].Err, errors.ErrDecode,
			"%d of %d payloads do not match the schema, first at row %d", len(failed), len(payloads), failed[0].Row)
	}
	return b, nil
}

// DecodeLenient decodes what it can. Failed payloads are left out of the
// batch and returned alongside it.
func (dec *Decoder) DecodeLenient(payloads [][]byte) (*batch.Batch, []RowError) {
	var failed []RowError
	rows := make([]batch.Row, 0, len(payloads))
	for i, p := range payloads {
		r, err := dec.d.DecodeRow(p)
		if err != nil {
			failed = append(failed, RowError{Row: i, Err: err})
			continue
		}
		rows = append(rows, batch.Row{r})
	}
	CounterDecodedMessages.Add(float64(len(rows)))
	if len(failed) > 0 {
		CounterDecodeFailures.Add(float64(len(failed)))
		dec.log.Warnf("%d of %d payloads failed to decode", len(failed), len(payloads))
	}
	b, err := batch.New([]batch.Field{dec.field()}, rows...)
	if err != nil {
		// Rows come from the descriptor, so they always fit its fields.
		panic(err)
	}
	return b, failed
}

// DecodeMessages is Decode over message values.
func (dec *Decoder) DecodeMessages(msgs []Message) (*batch.Batch, error) {
	payloads := make([][]byte, len(msgs))
	for i, m := range msgs {
		payloads[i] = m.Value
	}
	return dec.Decode(payloads)
}
