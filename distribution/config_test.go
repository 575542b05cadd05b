// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package distribution_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	confluent "github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/karpov-sv/fink-utils/distribution"
	"github.com/karpov-sv/fink-utils/errors"
	gotoml "github.com/pelletier/go-toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaConfig(t *testing.T) {
	t.Parallel()

	t.Run("Decode", func(t *testing.T) {
		cfg := distribution.NewKafkaConfig()
		data := []byte(`
bootstrap-servers = ["k1:9093,k2:9093", "k3:9093"]
topic = "fink_alerts"
sasl-username = "fink"
sasl-password = "secret"
starting-offsets = "earliest"
checkpoint-path = "/tmp/offsets"
batch-interval = "10s"

[tls]
skip-verify = true
`)
		require.NoError(t, gotoml.Unmarshal(data, &cfg))
		require.NoError(t, cfg.Validate())
		assert.Equal(t, []string{"k1:9093", "k2:9093", "k3:9093"}, cfg.Brokers())
		assert.Equal(t, 10*time.Second, cfg.BatchInterval.Duration())
		assert.True(t, cfg.TLS.SkipVerify)
	})

	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name string
			mod  func(c *distribution.KafkaConfig)
		}{
			{name: "no-brokers", mod: func(c *distribution.KafkaConfig) { c.BootstrapServers = nil }},
			{name: "no-topic", mod: func(c *distribution.KafkaConfig) { c.Topic = "" }},
			{name: "half-sasl", mod: func(c *distribution.KafkaConfig) { c.SASLUsername = "fink" }},
			{name: "kerberos-and-sasl", mod: func(c *distribution.KafkaConfig) {
				c.Kerberos = true
				c.SASLUsername, c.SASLPassword = "fink", "secret"
			}},
			{name: "bad-start", mod: func(c *distribution.KafkaConfig) { c.StartingOffsets = "tomorrow" }},
		}
		for _, test := range tests {
			test := test
			t.Run(test.name, func(t *testing.T) {
				cfg := distribution.NewKafkaConfig()
				cfg.Topic = "fink_alerts"
				test.mod(&cfg)
				err := cfg.Validate()
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrConfiguration))
			})
		}
	})

	t.Run("StartingOffsets", func(t *testing.T) {
		s, err := distribution.ParseStartingOffsets("")
		require.NoError(t, err)
		assert.Equal(t, distribution.StartLatest, s.Kind)

		s, err = distribution.ParseStartingOffsets("earliest")
		require.NoError(t, err)
		assert.Equal(t, distribution.StartEarliest, s.Kind)

		s, err = distribution.ParseStartingOffsets("1700000000000")
		require.NoError(t, err)
		assert.Equal(t, distribution.StartTimestamp, s.Kind)
		assert.Equal(t, int64(1700000000000), s.Timestamp.UnixMilli())
	})
}

func TestSetupConfluent(t *testing.T) {
	t.Parallel()

	t.Run("Kerberos", func(t *testing.T) {
		cfg := distribution.NewKafkaConfig()
		cfg.Topic = "fink_alerts"
		cfg.Kerberos = true
		cfg.KerberosKeytab = "/etc/fink.keytab"
		cfg.KerberosPrincipal = "fink@EXAMPLE"

		cm, err := distribution.SetupConfluent(cfg, true)
		require.NoError(t, err)
		exp := map[string]confluent.ConfigValue{
			"bootstrap.servers":          "localhost:9092",
			"security.protocol":          "SASL_PLAINTEXT",
			"sasl.mechanism":             "GSSAPI",
			"sasl.kerberos.service.name": "kafka",
			"sasl.kerberos.kinit.cmd":    `kinit -t "%{sasl.kerberos.keytab}" -k %{sasl.kerberos.principal}`,
			"sasl.kerberos.keytab":       "/etc/fink.keytab",
			"sasl.kerberos.principal":    "fink@EXAMPLE",
			"enable.auto.commit":         false,
		}
		for k, v := range exp {
			assert.Equal(t, v, (*cm)[k], k)
		}
		assert.Contains(t, (*cm)["group.id"], "fink-")
	})

	t.Run("SASL", func(t *testing.T) {
		cfg := distribution.NewKafkaConfig()
		cfg.BootstrapServers = []string{"k1:9093", "k2:9093"}
		cfg.SASLUsername, cfg.SASLPassword = "fink", "secret"
		cfg.TLS.CACertPath = "/etc/ca.pem"

		cm, err := distribution.SetupConfluent(cfg, false)
		require.NoError(t, err)
		assert.Equal(t, "k1:9093,k2:9093", (*cm)["bootstrap.servers"])
		assert.Equal(t, "SASL_SSL", (*cm)["security.protocol"])
		assert.Equal(t, "PLAIN", (*cm)["sasl.mechanism"])
		assert.Equal(t, "fink", (*cm)["sasl.username"])
		assert.Equal(t, "/etc/ca.pem", (*cm)["ssl.ca.location"])
		assert.Equal(t, true, (*cm)["enable.ssl.certificate.verification"])
		_, ok := (*cm)["enable.auto.commit"]
		assert.False(t, ok)
	})
}

func TestGetTLSConfig(t *testing.T) {
	t.Parallel()

	got, err := distribution.GetTLSConfig(distribution.TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = distribution.GetTLSConfig(distribution.TLSConfig{SkipVerify: true})
	require.NoError(t, err)
	assert.True(t, got.InsecureSkipVerify)

	dir := t.TempDir()
	ca := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(ca, []byte("not a certificate"), 0o600))

	tests := []distribution.TLSConfig{
		{CACertPath: ca, SkipVerify: true},
		{CACertPath: ca},
		{CACertPath: filepath.Join(dir, "missing.pem")},
		{CertificatePath: filepath.Join(dir, "cert.pem")},
	}
	for i, test := range tests {
		_, err := distribution.GetTLSConfig(test)
		require.Error(t, err, "case %d", i)
		assert.True(t, errors.Is(err, errors.ErrConfiguration), "case %d: %v", i, err)
	}
}
