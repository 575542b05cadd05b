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
)

// ConsumeCommand reads the distribution topic and prints the decoded
// alerts as JSON lines.
type ConsumeCommand struct {
	Config

	// SchemaPath is the stored schema payloads are decoded with.
	SchemaPath string

	// MaxMessages stops consumption early; 0 reads until Timeout.
	MaxMessages int
	Timeout     time.Duration

	// Lenient skips undecodable payloads instead of failing.
	Lenient bool

	// Output is a JSON lines file, stdout when empty.
	Output string

	*fink.CmdIO

	// NewConsumer is replaced in tests.
	NewConsumer func(context.Context, distribution.KafkaConfig, logger.Logger) (*distribution.Consumer, error)
}

// NewConsumeCommand returns a new instance of ConsumeCommand.
func NewConsumeCommand(stdin io.Reader, stdout, stderr io.Writer) *ConsumeCommand {
	return &ConsumeCommand{
		Config:      NewConfig(),
		Timeout:     10 * time.Second,
		CmdIO:       fink.NewCmdIO(stdin, stdout, stderr),
		NewConsumer: distribution.NewConsumer,
	}
}

func (cmd *ConsumeCommand) Run(ctx context.Context) error {
	if cmd.SchemaPath == "" {
		return fmt.Errorf("%w: a schema path is required", UsageError)
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

	dec, err := distribution.NewDecoder(sess, cmd.SchemaPath)
	if err != nil {
		return err
	}
	consumer, err := cmd.NewConsumer(ctx, cmd.Kafka, log)
	if err != nil {
		return errors.Wrap(err, "creating consumer")
	}
	defer consumer.Close()

	msgs, err := consumer.Poll(ctx, cmd.MaxMessages, cmd.Timeout)
	if err != nil {
		return err
	}

	var b *batch.Batch
	if cmd.Lenient {
		var failed []distribution.RowError
		b, failed = dec.DecodeLenient(payloads(msgs))
		for _, f := range failed {
			log.Debugf("%v", f)
		}
	} else if b, err = dec.DecodeMessages(msgs); err != nil {
		return err
	}
	log.Infof("consumed %d messages, %d decoded", len(msgs), b.Len())

	flat, err := b.Unpack(distribution.StructColumn)
	if err != nil {
		return err
	}
	return writeOutput(cmd.Stdout, cmd.Output, flat)
}

func payloads(msgs []distribution.Message) [][]byte {
	out := make([][]byte, len(msgs))
	for i, m := range msgs {
		out[i] = m.Value
	}
	return out
}
