// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/karpov-sv/fink-utils/ctl"
)

var (
	SchemaSaver *ctl.SchemaSaveCommand
	SchemaShow  *ctl.SchemaShowCommand
)

func newSchemaCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Store or print alert schemas.",
	}
	schemaCmd.AddCommand(newSchemaSaveCommand(stdin, stdout, stderr))
	schemaCmd.AddCommand(newSchemaShowCommand(stdin, stdout, stderr))
	return schemaCmd
}

func newSchemaSaveCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	SchemaSaver = ctl.NewSchemaSaveCommand(stdin, stdout, stderr)
	saveCmd := &cobra.Command{
		Use:   "save INPUT PATH",
		Short: "Store the schema of a table.",
		Long: `
Stores the Avro schema of the alerts in INPUT at PATH (a local path or an
s3:// URL). A schema already stored at PATH is kept as is.
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			SchemaSaver.Input, SchemaSaver.Path = args[0], args[1]
			return SchemaSaver.Run(cmd.Context())
		},
	}
	flags := saveCmd.Flags()
	flags.StringSliceVar(&SchemaSaver.Regroup, "regroup", nil, "Nest the columns of these prefixes into struct columns.")
	flags.StringVar(&SchemaSaver.RegroupKey, "regroup-key", SchemaSaver.RegroupKey, "Key column rows are re-joined on when regrouping.")
	ctl.SetCommonFlags(flags, &SchemaSaver.Config)
	return saveCmd
}

func newSchemaShowCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	SchemaShow = ctl.NewSchemaShowCommand(stdin, stdout, stderr)
	showCmd := &cobra.Command{
		Use:   "show PATH",
		Short: "Print a stored schema or the header schema of an Avro container file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			SchemaShow.Path = args[0]
			return SchemaShow.Run(cmd.Context())
		},
	}
	ctl.SetCommonFlags(showCmd.Flags(), &SchemaShow.Config)
	return showCmd
}
