// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package distribution

import (
	"context"
	"time"

	fink "github.com/karpov-sv/fink-utils"
	"github.com/karpov-sv/fink-utils/batch"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
	"github.com/karpov-sv/fink-utils/schema"
)

// DefaultSettleTime bounds how long SaveSchema waits for a micro-batch.
const DefaultSettleTime = 10 * time.Second

// EncoderConfig describes how batches are encoded.
type EncoderConfig struct {
	PipelineVersion string
	ScienceVersion  string

	// Schema picks the descriptor. Nil derives it from each batch.
	Schema schema.Source

	// SettleTime defaults to DefaultSettleTime.
	SettleTime time.Duration
}

// Encoder turns batches into keyed Avro messages.
type Encoder struct {
	cfg   EncoderConfig
	store *schema.Store
	log   logger.Logger

	// fixed is set when the source does not depend on the data.
	fixed *schema.Descriptor
}

// NewEncoder returns an Encoder. A fixed schema source is loaded here, so
// a missing or malformed override is reported before anything is encoded.
func NewEncoder(sess *fink.Session, cfg EncoderConfig) (*Encoder, error) {
	store, err := schema.NewStore(sess)
	if err != nil {
		return nil, err
	}
	if cfg.Schema == nil {
		cfg.Schema = schema.Derived{}
	}
	if cfg.SettleTime <= 0 {
		cfg.SettleTime = DefaultSettleTime
	}
	e := &Encoder{
		cfg:   cfg,
		store: store,
		log:   sess.Logger().WithPrefix("[encoder] "),
	}
	if f, ok := cfg.Schema.(schema.Fixed); ok {
		d, err := f.Descriptor(context.Background(), store, nil)
		if err != nil {
			return nil, errors.WithCode(err, errors.ErrConfiguration, "loading fixed schema")
		}
		e.fixed = d
	}
	return e, nil
}

// Key returns the routing key shared by every message.
func (e *Encoder) Key() string {
	return e.cfg.PipelineVersion + "_" + e.cfg.ScienceVersion
}

// Encode drops the status column, packs the remaining columns into one
// struct and encodes that struct once per row.
func (e *Encoder) Encode(b *batch.Batch) ([]Message, error) {
	return e.EncodeContext(context.Background(), b)
}

// EncodeContext is Encode with a context for loading the schema.
func (e *Encoder) EncodeContext(ctx context.Context, b *batch.Batch) ([]Message, error) {
	packed := b.Drop(StatusColumn).Pack(StructColumn)
	inner := packed.Fields()[0].Type.Fields

	d := e.fixed
	if d == nil {
		var err error
		if d, err = e.cfg.Schema.Descriptor(ctx, e.store, inner); err != nil {
			return nil, errors.Wrap(err, "resolving schema")
		}
	}

	key := []byte(e.Key())
	msgs := make([]Message, packed.Len())
	for i, r := range packed.Rows() {
		value, err := d.EncodeRow(inner, r[0].(batch.Row))
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		msgs[i] = Message{Key: key, Value: value}
	}
	CounterEncodedMessages.Add(float64(len(msgs)))
	return msgs, nil
}

// Stream delivers micro-batches.
type Stream interface {
	Next(ctx context.Context) (*batch.Batch, error)
	Stop() error
}

// SaveSchema waits at most the settle time for one micro-batch from
// stream, stores its schema at path and stops the stream whatever
// happened. Data still in flight is discarded, so this must not run while
// other consumers depend on the stream. It reports whether a schema was
// written; no batch before the deadline is logged and is not an error.
func (e *Encoder) SaveSchema(ctx context.Context, stream Stream, path string) (written bool, err error) {
	defer func() {
		if serr := stream.Stop(); serr != nil && err == nil {
			err = errors.Wrap(serr, "stopping stream")
		}
	}()

	wctx, cancel := context.WithTimeout(ctx, e.cfg.SettleTime)
	defer cancel()
	b, err := stream.Next(wctx)
	if err != nil {
		if wctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			e.log.Warnf("no data after %s, schema %s not written", e.cfg.SettleTime, path)
			return false, nil
		}
		return false, errors.Wrap(err, "waiting for a micro-batch")
	}
	return e.store.Write(ctx, b.Drop(StatusColumn), path)
}

// SliceStream is a Stream over batches already in memory.
type SliceStream struct {
	Batches []*batch.Batch
	Stopped bool
}

func (s *SliceStream) Next(ctx context.Context) (*batch.Batch, error) {
	if s.Stopped {
		return nil, errors.New(errors.ErrConfiguration, "stream stopped")
	}
	if len(s.Batches) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b := s.Batches[0]
	s.Batches = s.Batches[1:]
	return b, nil
}

func (s *SliceStream) Stop() error {
	s.Stopped = true
	s.Batches = nil
	return nil
}
