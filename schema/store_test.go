// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package schema_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	fink "github.com/karpov-sv/fink-utils"
	"github.com/karpov-sv/fink-utils/batch"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
	"github.com/karpov-sv/fink-utils/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...fink.SessionOption) (*schema.Store, *logger.BufferLogger) {
	t.Helper()
	l := logger.NewBufferLogger()
	opts = append([]fink.SessionOption{fink.OptSessionTempDir(t.TempDir()), fink.OptSessionLogger(l)}, opts...)
	sess, err := fink.NewSession(opts...)
	require.NoError(t, err)
	st, err := schema.NewStore(sess)
	require.NoError(t, err)
	return st, l
}

func sample() *batch.Batch {
	return batch.MustNew([]batch.Field{
		{Name: "objectId", Type: batch.String()},
		{Name: "candidate", Type: batch.Struct(
			batch.Field{Name: "ra", Type: batch.Double()},
			batch.Field{Name: "magpsf", Type: batch.Float(), Nullable: true},
		)},
	},
		batch.Row{"ZTF1", batch.Row{1.5, float32(18)}},
		batch.Row{"ZTF2", batch.Row{2.5, nil}},
	)
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("WriteOnce", func(t *testing.T) {
		st, l := newStore(t)
		path := filepath.Join(t.TempDir(), "schemas", "alert.avsc")

		written, err := st.Write(ctx, sample(), path)
		require.NoError(t, err)
		assert.True(t, written)

		first, err := os.ReadFile(path)
		require.NoError(t, err)

		other := batch.MustNew([]batch.Field{{Name: "x", Type: batch.Long()}}, batch.Row{int64(1)})
		written, err = st.Write(ctx, other, path)
		require.NoError(t, err)
		assert.False(t, written)
		assert.Contains(t, l.String(), path+" already exists - cannot write the new schema")

		second, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		d, err := st.Read(ctx, path)
		require.NoError(t, err)
		assert.True(t, batch.Struct(sample().Fields()...).Equal(batch.Struct(d.Fields()...)))

		// no temporary files are left behind
		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("Concurrent", func(t *testing.T) {
		st, _ := newStore(t)
		path := filepath.Join(t.TempDir(), "alert.avsc")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				written, err := st.Write(ctx, sample(), path)
				assert.NoError(t, err)
				if written {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, winners)
	})

	t.Run("ReadErrors", func(t *testing.T) {
		st, _ := newStore(t)
		_, err := st.Read(ctx, filepath.Join(t.TempDir(), "missing.avsc"))
		assert.True(t, errors.Is(err, errors.ErrConfiguration), "got %v", err)

		bad := filepath.Join(t.TempDir(), "bad.avsc")
		require.NoError(t, os.WriteFile(bad, []byte("{not a schema"), 0600))
		_, err = st.Read(ctx, bad)
		assert.True(t, errors.Is(err, errors.ErrConfiguration), "got %v", err)
	})

	t.Run("S3", func(t *testing.T) {
		fake := &fakeS3{objects: map[string][]byte{}}
		st, l := newStore(t, fink.OptSessionS3Client(fake))

		written, err := st.Write(ctx, sample(), "s3://bucket/schemas/alert.avsc")
		require.NoError(t, err)
		assert.True(t, written)
		assert.Contains(t, fake.objects, "bucket/schemas/alert.avsc")

		written, err = st.Write(ctx, sample(), "s3://bucket/schemas/alert.avsc")
		require.NoError(t, err)
		assert.False(t, written)
		assert.Contains(t, l.String(), "already exists")

		d, err := st.Read(ctx, "s3://bucket/schemas/alert.avsc")
		require.NoError(t, err)
		assert.Equal(t, "topLevelRecord", d.Name())

		_, err = st.Read(ctx, "s3://bucket/schemas/missing.avsc")
		assert.True(t, errors.Is(err, errors.ErrConfiguration), "got %v", err)
	})

	t.Run("NilSession", func(t *testing.T) {
		_, err := schema.NewStore(nil)
		assert.True(t, errors.Is(err, errors.ErrConfiguration))
	})
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)

	d, err := schema.Derived{}.Descriptor(ctx, st, sample().Fields())
	require.NoError(t, err)
	assert.Equal(t, "topLevelRecord", d.Name())

	path := filepath.Join(t.TempDir(), "fixed.avsc")
	_, err = st.Write(ctx, sample(), path)
	require.NoError(t, err)
	fixed, err := schema.Fixed{Path: path}.Descriptor(ctx, st, nil)
	require.NoError(t, err)
	assert.True(t, d.Equal(fixed))
}

func TestContainer(t *testing.T) {
	b := sample()
	d, err := schema.Derive(b.Fields())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, schema.WriteContainer(&buf, d, b))
	data := buf.Bytes()

	header, err := schema.ReadContainerSchemaFrom(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, d.Equal(header))

	stored, back, err := schema.ReadContainer(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, d.Equal(stored))
	assert.True(t, b.Equal(back), "got %v", back.Rows())
}

type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Bucket+"/"+*in.Key]; !ok {
		return nil, awserr.New("NotFound", "not found", nil)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}
