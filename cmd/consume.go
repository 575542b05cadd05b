// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/karpov-sv/fink-utils/ctl"
)

var Consumer *ctl.ConsumeCommand

func newConsumeCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	Consumer = ctl.NewConsumeCommand(stdin, stdout, stderr)
	consumeCmd := &cobra.Command{
		Use:   "consume",
		Short: "Read alerts back from Kafka.",
		Long: `
Reads the distribution topic from the configured starting offsets, decodes
the messages with a stored schema and prints the alerts as JSON lines.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Consumer.Run(cmd.Context())
		},
	}
	flags := consumeCmd.Flags()
	flags.StringVar(&Consumer.SchemaPath, "schema", "", "Stored schema messages are decoded with.")
	flags.IntVarP(&Consumer.MaxMessages, "max-messages", "n", 0, "Stop after this many messages, 0 reads until the timeout.")
	flags.DurationVar(&Consumer.Timeout, "timeout", Consumer.Timeout, "How long to wait for messages.")
	flags.BoolVar(&Consumer.Lenient, "lenient", false, "Skip messages that do not match the schema.")
	flags.StringVarP(&Consumer.Output, "output-file", "o", "", "File to write alerts to - default stdout")
	ctl.SetCommonFlags(flags, &Consumer.Config)
	ctl.SetKafkaFlags(flags, &Consumer.Kafka)

	return consumeCmd
}
