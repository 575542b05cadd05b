// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package fink holds the session shared by the broker utilities: the
// logger, the scratch directory used to materialize schema artifacts, and
// the S3 client used for s3:// paths.
package fink

import (
	"os"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
)

// Session is the explicit processing context handed to every component
// constructor.
type Session struct {
	logger   logger.Logger
	tempDir  string
	s3Region string

	mu       sync.Mutex
	s3client s3iface.S3API
}

// SessionOption is a functional option for NewSession.
type SessionOption func(s *Session) error

// OptSessionLogger sets the logger. A nil logger discards output.
func OptSessionLogger(l logger.Logger) SessionOption {
	return func(s *Session) error {
		if l == nil {
			l = logger.NopLogger
		}
		s.logger = l
		return nil
	}
}

// OptSessionTempDir sets the directory temporary artifacts are written
// under. It defaults to os.TempDir().
func OptSessionTempDir(dir string) SessionOption {
	return func(s *Session) error {
		s.tempDir = dir
		return nil
	}
}

// OptSessionS3Region sets the region of the lazily created S3 client.
func OptSessionS3Region(region string) SessionOption {
	return func(s *Session) error {
		s.s3Region = region
		return nil
	}
}

// OptSessionS3Client injects an S3 client, mostly for tests.
func OptSessionS3Client(c s3iface.S3API) SessionOption {
	return func(s *Session) error {
		s.s3client = c
		return nil
	}
}

func NewSession(opts ...SessionOption) (*Session, error) {
	s := &Session{
		logger:  logger.NopLogger,
		tempDir: os.TempDir(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.Wrap(err, "applying session option")
		}
	}
	if s.tempDir == "" {
		return nil, errors.New(errors.ErrConfiguration, "session temp dir must not be empty")
	}
	return s, nil
}

// Logger returns the session logger.
func (s *Session) Logger() logger.Logger {
	return s.logger
}

// TempDir returns the scratch directory.
func (s *Session) TempDir() string {
	return s.tempDir
}

// S3 returns the session's S3 client, creating it on first use.
func (s *Session) S3() (s3iface.S3API, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s3client != nil {
		return s.s3client, nil
	}
	config := &aws.Config{}
	if s.s3Region != "" {
		config.Region = aws.String(s.s3Region)
		// else, NewSession will use the default region.
	}
	sess, err := session.NewSession(config)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrConfiguration, "creating S3 session")
	}
	s.s3client = s3.New(sess)
	return s.s3client, nil
}

// CheckSession returns a ConfigurationError when s is nil. Constructors
// call it before anything else.
func CheckSession(s *Session) error {
	if s == nil {
		return errors.New(errors.ErrConfiguration, "a session is required")
	}
	return nil
}
