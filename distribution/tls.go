// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package distribution

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/karpov-sv/fink-utils/errors"
)

// GetTLSConfig builds a client TLS config. It returns nil when TLS is not
// configured.
func GetTLSConfig(c TLSConfig) (*tls.Config, error) {
	if !c.enabled() {
		return nil, nil
	}
	hasCA := c.CACertPath != ""
	hasCert := c.CertificatePath != "" && c.CertificateKeyPath != ""

	if hasCA && c.SkipVerify {
		return nil, errors.New(errors.ErrConfiguration, "cannot specify root certificate and disable server certificate verification")
	}
	if (c.CertificatePath == "") != (c.CertificateKeyPath == "") {
		return nil, errors.New(errors.ErrConfiguration, "certificate and key paths must be set together")
	}

	cfg := &tls.Config{
		InsecureSkipVerify: c.SkipVerify, // nolint: gosec
		MinVersion:         tls.VersionTLS12,
	}
	if hasCert {
		cert, err := tls.LoadX509KeyPair(c.CertificatePath, c.CertificateKeyPath)
		if err != nil {
			return nil, errors.WithCode(err, errors.ErrConfiguration, "loading keypair")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if hasCA {
		b, err := os.ReadFile(c.CACertPath)
		if err != nil {
			return nil, errors.WithCode(err, errors.ErrConfiguration, "loading tls ca certificate")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(b) {
			return nil, errors.New(errors.ErrConfiguration, "error parsing CA certificate")
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
