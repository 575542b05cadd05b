// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package schema

import (
	"bytes"
	"context"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// errNotFound is returned when a local path or S3 object is absent.
	errNotFound = errors.New("file or url does not exist")

	// errExists is returned when creating an artifact that is already
	// there.
	errExists = errors.New("file or url already exists")
)

func isS3(name string) bool {
	return strings.HasPrefix(name, "s3://")
}

func parseS3(name string) (bucket, key string, err error) {
	u, err := url.Parse(name)
	if err != nil {
		return "", "", errors.Wrapf(err, "parsing S3 URL %v", name)
	}
	if u.Host == "" || len(u.Path) < 2 {
		return "", "", errors.Errorf("S3 URL %v needs a bucket and a key", name)
	}
	return u.Host, u.Path[1:], nil // strip leading slash
}

func isS3NotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

// readFileOrURL reads a path from the filesystem or an s3 URL. It returns
// errNotFound when the path or object is absent.
func readFileOrURL(ctx context.Context, name string, s3client s3iface.S3API) ([]byte, error) {
	if !isS3(name) {
		content, err := os.ReadFile(name)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errNotFound
			}
			return nil, errors.Wrapf(err, "reading file %v", name)
		}
		return content, nil
	}

	bucket, key, err := parseS3(name)
	if err != nil {
		return nil, err
	}
	result, err := s3client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errNotFound
		}
		return nil, errors.Wrapf(err, "fetching S3 object %v", name)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, errors.Wrapf(err, "reading S3 object %v", name)
	}
	return buf.Bytes(), nil
}

// existsFileOrURL reports whether a path or S3 object is present.
func existsFileOrURL(ctx context.Context, name string, s3client s3iface.S3API) (bool, error) {
	if !isS3(name) {
		_, err := os.Stat(name)
		switch {
		case err == nil:
			return true, nil
		case os.IsNotExist(err):
			return false, nil
		}
		return false, errors.Wrapf(err, "checking file %v", name)
	}

	bucket, key, err := parseS3(name)
	if err != nil {
		return false, err
	}
	_, err = s3client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "checking S3 object %v", name)
	}
	return true, nil
}

// createFileOrURL writes contents to name unless something is already
// there, in which case it returns errExists. Local files are written to a
// temporary name and hard linked into place, so readers never see a
// partial file and concurrent writers cannot both succeed. S3 has no such
// primitive: the check and the put are separate requests.
func createFileOrURL(ctx context.Context, name string, contents []byte, s3client s3iface.S3API) error {
	if isS3(name) {
		exists, err := existsFileOrURL(ctx, name, s3client)
		if err != nil {
			return err
		}
		if exists {
			return errExists
		}
		bucket, key, err := parseS3(name)
		if err != nil {
			return err
		}
		_, err = s3client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(contents),
			ContentLength: aws.Int64(int64(len(contents))),
		})
		return errors.Wrapf(err, "putting S3 object %v", name)
	}

	if dir := filepath.Dir(name); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "creating directory %v", dir)
		}
	}
	tmp := name + ".tmp-" + uuid.New().String()
	if err := os.WriteFile(tmp, contents, 0o644); err != nil {
		return errors.Wrapf(err, "writing file %v", tmp)
	}
	defer os.Remove(tmp)
	if err := os.Link(tmp, name); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return errExists
		}
		return errors.Wrapf(err, "linking %v", name)
	}
	return nil
}
