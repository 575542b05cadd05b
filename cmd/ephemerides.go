// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/karpov-sv/fink-utils/ctl"
)

var Ephemerides *ctl.EphemeridesCommand

func newEphemeridesCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	Ephemerides = ctl.NewEphemeridesCommand(stdin, stdout, stderr)
	ephCmd := &cobra.Command{
		Use:   "ephemerides INPUT",
		Short: "Add Miriade ephemerides to solar system object detections.",
		Long: `
Queries the IMCCE Miriade service once per object of INPUT (grouped by
i:ssnamenr, at the i:jd epochs) and prints the detections with the
ephemerides columns and the reduced magnitude i:magpsf_red appended.
Objects the service cannot answer for are kept without ephemerides.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			Ephemerides.Input = args[0]
			return Ephemerides.Run(cmd.Context())
		},
	}
	flags := ephCmd.Flags()
	flags.StringVarP(&Ephemerides.Output, "output-file", "o", "", "File to write detections to - default stdout")
	flags.StringVar(&Ephemerides.URL, "url", Ephemerides.URL, "Ephemerides service endpoint.")
	flags.StringVar(&Ephemerides.Observer, "observer", Ephemerides.Observer, "IAU observatory code.")
	flags.Float64Var(&Ephemerides.Shift, "shift", Ephemerides.Shift, "Seconds added to every epoch.")
	flags.IntVar(&Ephemerides.TCoor, "tcoor", Ephemerides.TCoor, "Coordinate type of equatorial queries.")
	flags.BoolVar(&Ephemerides.Ecliptic, "ecliptic", Ephemerides.Ecliptic, "Also query ecliptic coordinates.")
	flags.IntVar(&Ephemerides.Concurrency, "concurrency", Ephemerides.Concurrency, "Objects queried in parallel.")
	flags.DurationVar(&Ephemerides.Timeout, "timeout", Ephemerides.Timeout, "Timeout of a single query.")
	flags.IntVar(&Ephemerides.Retries, "retries", Ephemerides.Retries, "Retries of a failed query.")
	flags.BoolVarP(&Ephemerides.Verbose, "verbose", "v", false, "Enable verbose logging.")
	flags.StringVar(&Ephemerides.LogPath, "log-path", "", "Log path, stderr when empty.")
	flags.StringVar(&Ephemerides.MetricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address, disabled when empty.")

	return ephCmd
}
