// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package main

import (
	"os"
	"testing"
	"time"

	"github.com/jaffee/commandeer"
	"github.com/jaffee/commandeer/pflag"
	"github.com/karpov-sv/fink-utils/ctl"
	"github.com/karpov-sv/fink-utils/sso"
	pflag13 "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinkEphemArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string

		Input       string
		Output      string
		URL         string
		Observer    string
		TCoor       int
		Ecliptic    bool
		Concurrency int
		Timeout     time.Duration
	}{
		{
			name: "empty",
			args: []string{
				"", // os.Args[0] can be ignored
			},
			URL:         sso.DefaultURL,
			Observer:    sso.DefaultObserver,
			TCoor:       sso.DefaultTCoor,
			Ecliptic:    true,
			Concurrency: sso.DefaultConcurrency,
			Timeout:     sso.DefaultTimeout,
		},
		{
			name: "long",
			args: []string{
				"fink-ephem",
				"--input", "sso.parquet",
				"--output", "sso.json",
				"--url", "http://localhost:8080/ephemcc",
				"--observer", "500",
				"--tcoor", "1",
				"--ecliptic=false",
				"--concurrency", "16",
				"--timeout", "3s",
			},
			Input:       "sso.parquet",
			Output:      "sso.json",
			URL:         "http://localhost:8080/ephemcc",
			Observer:    "500",
			TCoor:       1,
			Ecliptic:    false,
			Concurrency: 16,
			Timeout:     3 * time.Second,
		},
		{
			name: "short-and-env",
			args: []string{
				"fink-ephem",
				"-i", "in.json",
				"-o", "out.json",
			},
			env: map[string]string{
				"FINK_EPHEM_OBSERVER":    "809",
				"FINK_EPHEM_CONCURRENCY": "2",
			},
			Input:       "in.json",
			Output:      "out.json",
			URL:         sso.DefaultURL,
			Observer:    "809",
			TCoor:       sso.DefaultTCoor,
			Ecliptic:    true,
			Concurrency: 2,
			Timeout:     sso.DefaultTimeout,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			fs := &pflag.FlagSet{FlagSet: pflag13.NewFlagSet(tc.args[0], pflag13.ContinueOnError)}
			m := ctl.NewEphemeridesCommand(os.Stdin, os.Stdout, os.Stderr)

			require.NoError(t, commandeer.LoadArgsEnv(fs, m, tc.args[1:], envPrefix, nil))

			assert.Equal(t, tc.Input, m.Input)
			assert.Equal(t, tc.Output, m.Output)
			assert.Equal(t, tc.URL, m.URL)
			assert.Equal(t, tc.Observer, m.Observer)
			assert.Equal(t, tc.TCoor, m.TCoor)
			assert.Equal(t, tc.Ecliptic, m.Ecliptic)
			assert.Equal(t, tc.Concurrency, m.Concurrency)
			assert.Equal(t, tc.Timeout, m.Timeout)
			assert.NotNil(t, m.CmdIO)
		})
	}
}
