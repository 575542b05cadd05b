// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	fink "github.com/karpov-sv/fink-utils"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/sso"
)

// EphemeridesCommand adds Miriade ephemerides to a table of solar system
// object detections. Its fields double as fink-ephem flags.
type EphemeridesCommand struct {
	Input       string        `short:"i" help:"Parquet or JSON lines table of detections, - for stdin."`
	Output      string        `short:"o" help:"JSON lines output, stdout when empty."`
	URL         string        `flag:"url" help:"Ephemerides service endpoint."`
	Observer    string        `help:"IAU observatory code."`
	Shift       float64       `help:"Seconds added to every epoch."`
	TCoor       int           `flag:"tcoor" help:"Coordinate type of equatorial queries."`
	Ecliptic    bool          `help:"Also query ecliptic coordinates."`
	Concurrency int           `help:"Objects queried in parallel."`
	Timeout     time.Duration `help:"Timeout of a single query."`
	Retries     int           `help:"Retries of a failed query."`
	Verbose     bool          `short:"v" help:"Enable verbose logging."`
	LogPath     string        `help:"Log path, stderr when empty."`
	MetricsAddr string        `help:"Serve prometheus metrics on this address, disabled when empty."`

	*fink.CmdIO `flag:"-"`
}

// NewEphemeridesCommand returns a new instance of EphemeridesCommand.
func NewEphemeridesCommand(stdin io.Reader, stdout, stderr io.Writer) *EphemeridesCommand {
	return &EphemeridesCommand{
		URL:         sso.DefaultURL,
		Observer:    sso.DefaultObserver,
		Shift:       sso.DefaultShift,
		TCoor:       sso.DefaultTCoor,
		Ecliptic:    true,
		Concurrency: sso.DefaultConcurrency,
		Timeout:     sso.DefaultTimeout,
		Retries:     sso.DefaultRetryMax,
		CmdIO:       fink.NewCmdIO(stdin, stdout, stderr),
	}
}

func (cmd *EphemeridesCommand) Run(ctx context.Context) error {
	if cmd.Input == "" {
		return fmt.Errorf("%w: an input is required", UsageError)
	}
	sess, done, err := setup(cmd.CmdIO, Config{
		Verbose: cmd.Verbose,
		LogPath: cmd.LogPath,
		TempDir: os.TempDir(),
	})
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

	client := sso.NewClient(
		sso.OptClientURL(cmd.URL),
		sso.OptClientObserver(cmd.Observer),
		sso.OptClientShift(cmd.Shift),
		sso.OptClientTCoor(cmd.TCoor),
		sso.OptClientTimeout(cmd.Timeout),
		sso.OptClientRetryMax(cmd.Retries),
		sso.OptClientLogger(log),
	)
	enricher, err := sso.NewEnricher(sess, client, sso.WithEcliptic(cmd.Ecliptic), sso.WithConcurrency(cmd.Concurrency))
	if err != nil {
		return err
	}

	b, err := readInput(ctx, cmd.Stdin, cmd.Input)
	if err != nil {
		return errors.Wrapf(err, "loading %s", cmd.Input)
	}
	start := time.Now()
	out, err := enricher.Enrich(ctx, b)
	if err != nil {
		return err
	}
	log.Infof("enriched %d detections in %s", out.Len(), time.Since(start))
	return writeOutput(cmd.Stdout, cmd.Output, out)
}
