// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"time"

	fink "github.com/karpov-sv/fink-utils"
	"github.com/karpov-sv/fink-utils/batch"
	"github.com/karpov-sv/fink-utils/distribution"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
	"github.com/karpov-sv/fink-utils/schema"
)

// DistributeCommand publishes tables of alerts to the distribution topic,
// one input file per batch interval.
type DistributeCommand struct {
	Config

	// Inputs are parquet or JSON lines files, one batch each.
	Inputs []string

	// Regroup nests the columns of each prefix into a struct column,
	// joined on RegroupKey.
	Regroup    []string
	RegroupKey string

	PipelineVersion string
	ScienceVersion  string

	// SchemaPath fixes the schema instead of deriving it from the data.
	SchemaPath string

	// SaveSchema stores the schema of the first batch at SchemaOut
	// before publishing.
	SaveSchema bool
	SchemaOut  string

	// TimeColumn holds alert timestamps in ms. When set, rows at or
	// before the starting offset are skipped and the offset log records
	// the latest timestamp of each batch.
	TimeColumn   string
	OffsetPolicy string

	*fink.CmdIO

	// NewPublisher is replaced in tests.
	NewPublisher func(distribution.KafkaConfig, logger.Logger) (distribution.Publisher, error)
}

// NewDistributeCommand returns a new instance of DistributeCommand.
func NewDistributeCommand(stdin io.Reader, stdout, stderr io.Writer) *DistributeCommand {
	return &DistributeCommand{
		Config:       NewConfig(),
		RegroupKey:   "candid",
		OffsetPolicy: distribution.PolicyLatest,
		CmdIO:        fink.NewCmdIO(stdin, stdout, stderr),
		NewPublisher: distribution.NewPublisher,
	}
}

// Run publishes every input.
func (cmd *DistributeCommand) Run(ctx context.Context) error {
	if len(cmd.Inputs) == 0 {
		return fmt.Errorf("%w: at least one input is required", UsageError)
	}
	if cmd.SaveSchema && cmd.SchemaOut == "" {
		return fmt.Errorf("%w: --schema-out is required with --save-schema", UsageError)
	}
	sess, done, err := setup(cmd.CmdIO, cmd.Config)
	if err != nil {
		return err
	}
	defer done()
	log := cmd.Logger()

	if cmd.MetricsAddr != "" {
		if _, err := ServeMetrics(ctx, cmd.MetricsAddr, log); err != nil {
			return err
		}
	}

	var source schema.Source = schema.Derived{}
	if cmd.SchemaPath != "" {
		source = schema.Fixed{Path: cmd.SchemaPath}
	}
	enc, err := distribution.NewEncoder(sess, distribution.EncoderConfig{
		PipelineVersion: cmd.PipelineVersion,
		ScienceVersion:  cmd.ScienceVersion,
		Schema:          source,
	})
	if err != nil {
		return errors.Wrap(err, "creating encoder")
	}

	var offsetLog *distribution.OffsetLog
	offset := distribution.DefaultOffset
	if cp := cmd.Kafka.CheckpointPath; cp != "" {
		offsetLog = &distribution.OffsetLog{Path: cp}
		if offset, err = distribution.GetOffset(cp, cmd.OffsetPolicy); err != nil {
			return errors.Wrap(err, "getting starting offset")
		}
		log.Infof("starting from offset %d", offset)
	}

	publisher, err := cmd.NewPublisher(cmd.Kafka, log)
	if err != nil {
		return errors.Wrap(err, "creating publisher")
	}
	defer publisher.Close()

	interval := cmd.Kafka.BatchInterval.Duration()
	for i, in := range cmd.Inputs {
		if i > 0 && interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		b, err := cmd.load(ctx, in, offset)
		if err != nil {
			return errors.Wrapf(err, "loading %s", in)
		}
		if i == 0 && cmd.SaveSchema {
			stream := &distribution.SliceStream{Batches: []*batch.Batch{b}}
			if _, err := enc.SaveSchema(ctx, stream, cmd.SchemaOut); err != nil {
				return errors.Wrap(err, "saving schema")
			}
		}
		if b.Len() == 0 {
			log.Infof("%s: nothing to publish", in)
			continue
		}

		msgs, err := enc.EncodeContext(ctx, b)
		if err != nil {
			return errors.Wrapf(err, "encoding %s", in)
		}
		if err := publisher.Publish(ctx, msgs); err != nil {
			return errors.Wrapf(err, "publishing %s", in)
		}
		log.Infof("%s: published %d alerts with key %s", in, len(msgs), enc.Key())

		if offsetLog != nil {
			ts, err := cmd.latest(b)
			if err != nil {
				return err
			}
			if err := offsetLog.Append(enc.Key(), ts); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cmd *DistributeCommand) load(ctx context.Context, path string, offset int64) (*batch.Batch, error) {
	b, err := readInput(ctx, cmd.Stdin, path)
	if err != nil {
		return nil, err
	}
	for _, prefix := range cmd.Regroup {
		if b, err = batch.GroupIntoStruct(b, prefix, cmd.RegroupKey); err != nil {
			return nil, errors.Wrapf(err, "regrouping %s", prefix)
		}
	}
	if cmd.TimeColumn == "" {
		return b, nil
	}
	col, err := b.Column(cmd.TimeColumn)
	if err != nil {
		return nil, err
	}
	var kept []batch.Row
	for i, v := range col {
		ts, ok := millis(v)
		if !ok {
			return nil, errors.Newf(errors.ErrDataShape, "row %d: %s is %v", i, cmd.TimeColumn, v)
		}
		if ts > offset {
			kept = append(kept, b.Row(i))
		}
	}
	return batch.New(b.Fields(), kept...)
}

// latest returns the greatest timestamp of b, or the current time when
// no time column is configured.
func (cmd *DistributeCommand) latest(b *batch.Batch) (int64, error) {
	if cmd.TimeColumn == "" {
		return time.Now().UnixMilli(), nil
	}
	col, err := b.Column(cmd.TimeColumn)
	if err != nil {
		return 0, err
	}
	var max int64
	for _, v := range col {
		if ts, _ := millis(v); ts > max {
			max = ts
		}
	}
	return max, nil
}

func millis(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	}
	return 0, false
}
