// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
/*
fink-ephem adds Miriade ephemerides to a table of solar system object
detections. Every flag can also be set through a FINK_EPHEM_ environment
variable, e.g. FINK_EPHEM_OBSERVER=I41.
*/
package main

import (
	"context"
	"os"

	"github.com/jaffee/commandeer/pflag"
	"github.com/karpov-sv/fink-utils/ctl"
	"github.com/karpov-sv/fink-utils/logger"
)

const envPrefix = "FINK_EPHEM_"

func main() {
	m := ctl.NewEphemeridesCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := pflag.LoadEnv(m, envPrefix, nil); err != nil {
		logger.NewStandardLogger(os.Stderr).Errorf("parsing arguments: %v", err)
		os.Exit(1)
	}
	if err := m.Run(context.Background()); err != nil {
		m.Logger().Errorf("Error running command: %v", err)
		os.Exit(1)
	}
}
