// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	fink "github.com/karpov-sv/fink-utils"
	"github.com/karpov-sv/fink-utils/batch"
	"github.com/karpov-sv/fink-utils/distribution"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/schema"
)

// SchemaSaveCommand stores the schema of a table, unless one is already
// stored at the path.
type SchemaSaveCommand struct {
	Config

	Input string
	Path  string

	Regroup    []string
	RegroupKey string

	*fink.CmdIO
}

func NewSchemaSaveCommand(stdin io.Reader, stdout, stderr io.Writer) *SchemaSaveCommand {
	return &SchemaSaveCommand{
		Config:     NewConfig(),
		RegroupKey: "candid",
		CmdIO:      fink.NewCmdIO(stdin, stdout, stderr),
	}
}

func (cmd *SchemaSaveCommand) Run(ctx context.Context) error {
	if cmd.Input == "" || cmd.Path == "" {
		return fmt.Errorf("%w: an input and a schema path are required", UsageError)
	}
	sess, done, err := setup(cmd.CmdIO, cmd.Config)
	if err != nil {
		return err
	}
	defer done()

	b, err := readInput(ctx, cmd.Stdin, cmd.Input)
	if err != nil {
		return errors.Wrapf(err, "loading %s", cmd.Input)
	}
	for _, prefix := range cmd.Regroup {
		if b, err = batch.GroupIntoStruct(b, prefix, cmd.RegroupKey); err != nil {
			return errors.Wrapf(err, "regrouping %s", prefix)
		}
	}
	store, err := schema.NewStore(sess)
	if err != nil {
		return err
	}
	written, err := store.Write(ctx, b.Drop(distribution.StatusColumn), cmd.Path)
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(cmd.Stdout, "schema written to %s\n", cmd.Path)
	} else {
		fmt.Fprintf(cmd.Stdout, "schema already stored at %s\n", cmd.Path)
	}
	return nil
}

// SchemaShowCommand prints a stored schema. A local ".avro" path is read
// as an Avro object container file instead: its header schema goes to
// stdout and its record count to stderr.
type SchemaShowCommand struct {
	Config

	Path string

	*fink.CmdIO
}

func NewSchemaShowCommand(stdin io.Reader, stdout, stderr io.Writer) *SchemaShowCommand {
	return &SchemaShowCommand{
		Config: NewConfig(),
		CmdIO:  fink.NewCmdIO(stdin, stdout, stderr),
	}
}

func (cmd *SchemaShowCommand) Run(ctx context.Context) error {
	if cmd.Path == "" {
		return fmt.Errorf("%w: a schema path is required", UsageError)
	}
	sess, done, err := setup(cmd.CmdIO, cmd.Config)
	if err != nil {
		return err
	}
	defer done()

	var d *schema.Descriptor
	if strings.HasSuffix(cmd.Path, ".avro") {
		d, err = cmd.readContainer()
	} else {
		var store *schema.Store
		if store, err = schema.NewStore(sess); err == nil {
			d, err = store.Read(ctx, cmd.Path)
		}
	}
	if err != nil {
		return err
	}
	out, err := d.MarshalIndent()
	if err != nil {
		return err
	}
	_, err = cmd.Stdout.Write(out)
	return errors.Wrap(err, "writing schema")
}

func (cmd *SchemaShowCommand) readContainer() (*schema.Descriptor, error) {
	f, err := os.Open(cmd.Path)
	if err != nil {
		return nil, errors.WithCodef(err, errors.ErrConfiguration, "opening %s", cmd.Path)
	}
	defer f.Close()
	d, b, err := schema.ReadContainer(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", cmd.Path)
	}
	fmt.Fprintf(cmd.Stderr, "%d records in %s\n", b.Len(), cmd.Path)
	return d, nil
}
