// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/karpov-sv/fink-utils/ctl"
)

var Offsetter *ctl.OffsetCommand

func newOffsetCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	Offsetter = ctl.NewOffsetCommand(stdin, stdout, stderr)
	offsetCmd := &cobra.Command{
		Use:   "offset PATH",
		Short: "Print the offset distribution starts from.",
		Long: `
Reads the offset log at PATH and prints the offset distribution would start
from under the given policy: 100 for earliest or when there is no history,
the last recorded timestamp for latest, or the policy itself when it is a
timestamp.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			Offsetter.Path = args[0]
			return Offsetter.Run(cmd.Context())
		},
	}
	offsetCmd.Flags().StringVarP(&Offsetter.Policy, "policy", "p", Offsetter.Policy, "earliest, latest or a timestamp in ms.")
	return offsetCmd
}
