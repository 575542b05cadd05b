// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	fink "github.com/karpov-sv/fink-utils"
	"github.com/karpov-sv/fink-utils/batch"
	"github.com/karpov-sv/fink-utils/distribution"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
	"github.com/spf13/pflag"
)

// UsageError is wrapped by errors caused by bad command line arguments.
var UsageError = errors.New(errors.ErrConfiguration, "usage error")

// Config is the configuration shared by the fink commands. Its TOML form
// is what generate-config prints and what --config reads.
type Config struct {
	Verbose     bool   `toml:"verbose"`
	LogPath     string `toml:"log-path"`
	TempDir     string `toml:"temp-dir"`
	S3Region    string `toml:"s3-region"`
	MetricsAddr string `toml:"metrics-addr"`

	Kafka distribution.KafkaConfig `toml:"kafka"`
}

// NewConfig returns a Config holding the defaults.
func NewConfig() Config {
	return Config{
		TempDir: os.TempDir(),
		Kafka:   distribution.NewKafkaConfig(),
	}
}

// SetCommonFlags registers the flags for the fields of c other than the
// Kafka ones.
func SetCommonFlags(flags *pflag.FlagSet, c *Config) {
	flags.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "Enable verbose logging.")
	flags.StringVar(&c.LogPath, "log-path", c.LogPath, "Log path, stderr when empty.")
	flags.StringVar(&c.TempDir, "temp-dir", c.TempDir, "Scratch directory.")
	flags.StringVar(&c.S3Region, "s3-region", c.S3Region, "Region of s3:// schema paths.")
	flags.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Serve prometheus metrics on this address, disabled when empty.")
}

// SetKafkaFlags registers the Kafka flags. Their names follow the
// [kafka] table of the configuration file.
func SetKafkaFlags(flags *pflag.FlagSet, k *distribution.KafkaConfig) {
	flags.StringSliceVar(&k.BootstrapServers, "kafka.bootstrap-servers", k.BootstrapServers, "Kafka bootstrap servers.")
	flags.StringVar(&k.Topic, "kafka.topic", k.Topic, "Distribution topic.")
	flags.StringVar(&k.SASLUsername, "kafka.sasl-username", k.SASLUsername, "SASL PLAIN username.")
	flags.StringVar(&k.SASLPassword, "kafka.sasl-password", k.SASLPassword, "SASL PLAIN password.")
	flags.BoolVar(&k.Kerberos, "kafka.kerberos", k.Kerberos, "Authenticate with Kerberos (GSSAPI over SASL_PLAINTEXT).")
	flags.StringVar(&k.KerberosKeytab, "kafka.kerberos-keytab", k.KerberosKeytab, "Kerberos keytab.")
	flags.StringVar(&k.KerberosPrincipal, "kafka.kerberos-principal", k.KerberosPrincipal, "Kerberos principal.")
	flags.StringVar(&k.KinitCmd, "kafka.kinit-cmd", k.KinitCmd, "Command refreshing the Kerberos ticket.")
	flags.StringVar(&k.StartingOffsets, "kafka.starting-offsets", k.StartingOffsets, "earliest, latest or a timestamp in ms.")
	flags.BoolVar(&k.FailOnDataLoss, "kafka.fail-on-data-loss", k.FailOnDataLoss, "Fail when the starting offsets cannot be resolved.")
	flags.StringVar(&k.CheckpointPath, "kafka.checkpoint-path", k.CheckpointPath, "Offset log appended after every published batch.")
	flags.Var(&k.BatchInterval, "kafka.batch-interval", "Interval between published batches.")
	flags.StringVar(&k.TLS.CACertPath, "kafka.tls.ca-certificate", "", "TLS CA certificate path.")
	flags.StringVar(&k.TLS.CertificatePath, "kafka.tls.certificate-path", "", "TLS certificate path (usually has the .crt or .pem extension).")
	flags.StringVar(&k.TLS.CertificateKeyPath, "kafka.tls.certificate-key-path", "", "TLS certificate key path (usually has the .key extension).")
	flags.BoolVar(&k.TLS.SkipVerify, "kafka.tls.skip-verify", false, "Skip TLS certificate verification (not secure).")
}

// setup builds the logger and the session described by c. The returned
// function releases the log file.
func setup(cmdio *fink.CmdIO, c Config) (*fink.Session, func(), error) {
	closer := func() {}
	w := cmdio.Stderr
	if c.LogPath != "" {
		fw, err := logger.NewFileWriter(c.LogPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening log file")
		}
		w = fw
		sighup := make(chan os.Signal, 1)
		signal.Notify(sighup, syscall.SIGHUP)
		go fw.ReopenOn(sighup, cmdio.Stderr)
		closer = func() {
			signal.Stop(sighup)
			close(sighup)
			fw.Close()
		}
	}
	log := logger.New(w, c.Verbose)
	cmdio.SetLogger(log)

	opts := []fink.SessionOption{fink.OptSessionLogger(log)}
	if c.TempDir != "" {
		opts = append(opts, fink.OptSessionTempDir(c.TempDir))
	}
	if c.S3Region != "" {
		opts = append(opts, fink.OptSessionS3Region(c.S3Region))
	}
	sess, err := fink.NewSession(opts...)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return sess, closer, nil
}

// readInput loads a table from a parquet file, or from JSON lines when
// the name ends in .json or .jsonl ("-" reads JSON lines from stdin).
func readInput(ctx context.Context, stdin io.Reader, path string) (*batch.Batch, error) {
	switch {
	case path == "-":
		return batch.ReadJSONLines(stdin)
	case isJSON(path):
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "opening input")
		}
		defer f.Close()
		return batch.ReadJSONLines(f)
	}
	return batch.ReadParquetFile(ctx, path)
}

func isJSON(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".ndjson":
		return true
	}
	return false
}

// writeOutput writes b as JSON lines to path, or to stdout when path is
// empty.
func writeOutput(stdout io.Writer, path string, b *batch.Batch) error {
	if path == "" {
		return batch.WriteJSONLines(stdout, b)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating output")
	}
	if err := batch.WriteJSONLines(f, b); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "closing output")
}
