// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/karpov-sv/fink-utils/ctl"
)

var Distributer *ctl.DistributeCommand

func newDistributeCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	Distributer = ctl.NewDistributeCommand(stdin, stdout, stderr)
	distCmd := &cobra.Command{
		Use:   "distribute [flags] INPUT...",
		Short: "Publish alert tables to Kafka.",
		Long: `
Encodes every row of each input table (parquet, or JSON lines for .json and
.jsonl files) as an Avro message keyed by <pipeline>_<science> and publishes
it to the distribution topic, one input per batch interval. The reserved
status column is never distributed.

When a checkpoint path is configured, the latest timestamp of each published
batch is appended to it.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			Distributer.Inputs = args
			return Distributer.Run(cmd.Context())
		},
	}
	flags := distCmd.Flags()
	flags.StringVar(&Distributer.PipelineVersion, "pipeline-version", "", "Version of the broker pipeline, first half of the message key.")
	flags.StringVar(&Distributer.ScienceVersion, "science-version", "", "Version of the science modules, second half of the message key.")
	flags.StringSliceVar(&Distributer.Regroup, "regroup", nil, "Nest the columns of these prefixes into struct columns.")
	flags.StringVar(&Distributer.RegroupKey, "regroup-key", Distributer.RegroupKey, "Key column rows are re-joined on when regrouping.")
	flags.StringVar(&Distributer.SchemaPath, "schema", "", "Encode with the schema stored at this path instead of deriving it.")
	flags.BoolVar(&Distributer.SaveSchema, "save-schema", false, "Store the schema of the first batch before publishing.")
	flags.StringVar(&Distributer.SchemaOut, "schema-out", "", "Where --save-schema stores the schema (local path or s3:// URL).")
	flags.StringVar(&Distributer.TimeColumn, "time-column", "", "Column of alert timestamps in ms used to resume distribution.")
	flags.StringVar(&Distributer.OffsetPolicy, "offset-policy", Distributer.OffsetPolicy, "earliest, latest or a timestamp in ms.")
	ctl.SetCommonFlags(flags, &Distributer.Config)
	ctl.SetKafkaFlags(flags, &Distributer.Kafka)

	return distCmd
}
