// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"

	fink "github.com/karpov-sv/fink-utils"
	"github.com/karpov-sv/fink-utils/distribution"
)

// OffsetCommand prints the offset distribution would start from.
type OffsetCommand struct {
	// Path of the offset log.
	Path string

	// Policy is earliest, latest or an explicit timestamp.
	Policy string

	*fink.CmdIO
}

func NewOffsetCommand(stdin io.Reader, stdout, stderr io.Writer) *OffsetCommand {
	return &OffsetCommand{
		Policy: distribution.PolicyLatest,
		CmdIO:  fink.NewCmdIO(stdin, stdout, stderr),
	}
}

func (cmd *OffsetCommand) Run(_ context.Context) error {
	if cmd.Path == "" {
		return fmt.Errorf("%w: an offset log path is required", UsageError)
	}
	offset, err := distribution.GetOffset(cmd.Path, cmd.Policy)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "%d\n", offset)
	return nil
}
