// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package schema

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	fink "github.com/karpov-sv/fink-utils"
	"github.com/karpov-sv/fink-utils/batch"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
)

// Store persists schema descriptors at local paths or s3:// URLs. An
// artifact is written once and never replaced.
type Store struct {
	sess *fink.Session
	log  logger.Logger
}

// NewStore returns a Store using the session's scratch directory, logger
// and S3 client.
func NewStore(sess *fink.Session) (*Store, error) {
	if err := fink.CheckSession(sess); err != nil {
		return nil, err
	}
	return &Store{
		sess: sess,
		log:  sess.Logger().WithPrefix("[schema] "),
	}, nil
}

func (s *Store) s3For(path string) (s3iface.S3API, error) {
	if !isS3(path) {
		return nil, nil
	}
	return s.sess.S3()
}

// Write persists the schema of b at path unless an artifact already
// exists there. The rows of b are written to an Avro container file in a
// fresh scratch directory and the schema is read back from its header, so
// the artifact is exactly what a container reader would see. It returns
// whether the artifact was written; an existing artifact is logged and is
// not an error.
func (s *Store) Write(ctx context.Context, b *batch.Batch, path string) (bool, error) {
	written, err := s.write(ctx, b, path)
	switch {
	case err != nil:
		CounterSchemaWrites.WithLabelValues("error").Inc()
	case written:
		CounterSchemaWrites.WithLabelValues("written").Inc()
	default:
		CounterSchemaWrites.WithLabelValues("exists").Inc()
	}
	return written, err
}

func (s *Store) write(ctx context.Context, b *batch.Batch, path string) (bool, error) {
	s3client, err := s.s3For(path)
	if err != nil {
		return false, err
	}
	exists, err := existsFileOrURL(ctx, path, s3client)
	if err != nil {
		return false, errors.Wrap(err, "checking schema artifact")
	}
	if exists {
		s.log.Infof("%s already exists - cannot write the new schema", path)
		return false, nil
	}

	d, err := Derive(b.Fields())
	if err != nil {
		return false, err
	}

	dir := filepath.Join(s.sess.TempDir(), "fink-schema-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, errors.Wrap(err, "creating scratch directory")
	}
	defer os.RemoveAll(dir)

	part := filepath.Join(dir, "part-00000.avro")
	f, err := os.Create(part)
	if err != nil {
		return false, errors.Wrap(err, "creating container file")
	}
	if err := WriteContainer(f, d, b); err != nil {
		f.Close()
		return false, errors.Wrap(err, "writing container file")
	}
	if err := f.Close(); err != nil {
		return false, errors.Wrap(err, "closing container file")
	}

	stored, err := ReadContainerSchema(part)
	if err != nil {
		return false, errors.Wrap(err, "reading back container schema")
	}
	data, err := stored.MarshalIndent()
	if err != nil {
		return false, err
	}

	err = createFileOrURL(ctx, path, data, s3client)
	if err == errExists {
		s.log.Infof("%s already exists - cannot write the new schema", path)
		return false, nil
	} else if err != nil {
		return false, errors.Wrap(err, "creating schema artifact")
	}
	s.log.Debugf("schema %s written with %d fields", path, len(stored.Fields()))
	return true, nil
}

// Read loads the descriptor persisted at path. An absent or invalid
// artifact is a ConfigurationError.
func (s *Store) Read(ctx context.Context, path string) (*Descriptor, error) {
	s3client, err := s.s3For(path)
	if err != nil {
		return nil, err
	}
	data, err := readFileOrURL(ctx, path, s3client)
	if err == errNotFound {
		return nil, errors.Newf(errors.ErrConfiguration, "schema file %s does not exist", path)
	} else if err != nil {
		return nil, errors.WithCode(err, errors.ErrConfiguration, "reading schema file "+path)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "schema file %s", path)
	}
	return d, nil
}
