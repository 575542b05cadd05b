// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package distribution

import (
	"strconv"
	"strings"
	"time"

	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/toml"
)

// Defaults for KafkaConfig.
const (
	DefaultBootstrapServers = "localhost:9092"
	DefaultBatchInterval    = 30 * time.Second
	DefaultKinitCmd         = `kinit -t "%{sasl.kerberos.keytab}" -k %{sasl.kerberos.principal}`
	DefaultKerberosService  = "kafka"
)

// TLSConfig contains TLS configuration for the Kafka connection.
type TLSConfig struct {
	// CACertPath is the path to a PEM root certificate bundle.
	CACertPath string `toml:"ca-certificate"`
	// CertificatePath contains the path to the client certificate.
	CertificatePath string `toml:"certificate-path"`
	// CertificateKeyPath contains the path to the client certificate key.
	CertificateKeyPath string `toml:"certificate-key-path"`
	// SkipVerify disables verification for self-signed certificates.
	SkipVerify bool `toml:"skip-verify"`
}

func (t TLSConfig) enabled() bool {
	return t.CACertPath != "" || t.CertificatePath != "" || t.SkipVerify
}

// KafkaConfig holds everything needed to publish to and consume from the
// distribution topic.
type KafkaConfig struct {
	BootstrapServers []string `toml:"bootstrap-servers"`
	Topic            string   `toml:"topic"`

	SASLUsername string `toml:"sasl-username"`
	SASLPassword string `toml:"sasl-password"`

	// Kerberos switches to GSSAPI over SASL_PLAINTEXT through librdkafka.
	Kerberos          bool   `toml:"kerberos"`
	KerberosKeytab    string `toml:"kerberos-keytab"`
	KerberosPrincipal string `toml:"kerberos-principal"`
	KinitCmd          string `toml:"kinit-cmd"`

	// StartingOffsets is earliest, latest or a timestamp in milliseconds.
	StartingOffsets string `toml:"starting-offsets"`
	FailOnDataLoss  bool   `toml:"fail-on-data-loss"`

	// CheckpointPath is the offset log appended after every published
	// batch.
	CheckpointPath string        `toml:"checkpoint-path"`
	BatchInterval  toml.Duration `toml:"batch-interval"`

	TLS TLSConfig `toml:"tls"`
}

// NewKafkaConfig returns a config holding the defaults.
func NewKafkaConfig() KafkaConfig {
	return KafkaConfig{
		BootstrapServers: []string{DefaultBootstrapServers},
		StartingOffsets:  PolicyLatest,
		KinitCmd:         DefaultKinitCmd,
		BatchInterval:    toml.Duration(DefaultBatchInterval),
	}
}

// Validate checks the fields publishing and consuming rely on.
func (c KafkaConfig) Validate() error {
	if len(c.BootstrapServers) == 0 {
		return errors.New(errors.ErrConfiguration, "at least one bootstrap server is required")
	}
	if c.Topic == "" {
		return errors.New(errors.ErrConfiguration, "a topic is required")
	}
	if (c.SASLUsername == "") != (c.SASLPassword == "") {
		return errors.New(errors.ErrConfiguration, "sasl username and password must be set together")
	}
	if c.Kerberos && c.SASLUsername != "" {
		return errors.New(errors.ErrConfiguration, "kerberos and sasl username/password are mutually exclusive")
	}
	if _, err := ParseStartingOffsets(c.StartingOffsets); err != nil {
		return err
	}
	return nil
}

// Brokers returns the bootstrap servers with comma separated entries
// split.
func (c KafkaConfig) Brokers() []string {
	var out []string
	for _, s := range c.BootstrapServers {
		for _, b := range strings.Split(s, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}

// StartKind tells where consumption starts.
type StartKind int

const (
	StartLatest StartKind = iota
	StartEarliest
	StartTimestamp
)

// StartingOffsets is a parsed starting-offsets policy.
type StartingOffsets struct {
	Kind      StartKind
	Timestamp time.Time
}

// ParseStartingOffsets parses earliest, latest (the default) or a
// timestamp in milliseconds since the epoch.
func ParseStartingOffsets(s string) (StartingOffsets, error) {
	switch strings.TrimSpace(s) {
	case "", PolicyLatest:
		return StartingOffsets{Kind: StartLatest}, nil
	case PolicyEarliest:
		return StartingOffsets{Kind: StartEarliest}, nil
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return StartingOffsets{}, errors.Newf(errors.ErrConfiguration, "starting offsets must be earliest, latest or a timestamp in ms, got %q", s)
	}
	return StartingOffsets{Kind: StartTimestamp, Timestamp: time.UnixMilli(ms)}, nil
}
