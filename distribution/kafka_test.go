// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package distribution_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/karpov-sv/fink-utils/distribution"
	"github.com/karpov-sv/fink-utils/logger"
	segmentio "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messages(n int) []segmentio.Message {
	out := make([]segmentio.Message, n)
	for i := range out {
		out[i] = segmentio.Message{Key: []byte("k"), Value: []byte(fmt.Sprintf("v%d", i))}
	}
	return out
}

func publishMessages(n int) []distribution.Message {
	out := make([]distribution.Message, n)
	for i := range out {
		out[i] = distribution.Message{Key: []byte("k"), Value: []byte(fmt.Sprintf("v%d", i))}
	}
	return out
}

func TestPublisher(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backoff := distribution.OptPublisherBackoff(time.Millisecond, 5*time.Millisecond)

	t.Run("Publish", func(t *testing.T) {
		w := &distribution.KafkaTestWriter{}
		p := distribution.NewWriterPublisher(w, logger.NopLogger)

		require.NoError(t, p.Publish(ctx, nil))
		assert.Equal(t, 0, w.Calls)

		msgs := []distribution.Message{
			{Key: []byte("1.0_2.0"), Value: []byte{1}},
			{Key: []byte("1.0_2.0"), Value: []byte{2}},
		}
		require.NoError(t, p.Publish(ctx, msgs))
		require.Len(t, w.Written, 2)
		assert.Equal(t, "1.0_2.0", string(w.Written[1].Key))
		assert.Equal(t, []byte{2}, w.Written[1].Value)

		require.NoError(t, p.Close())
		assert.True(t, w.Closed)
	})

	t.Run("RetriesTemporary", func(t *testing.T) {
		w := &distribution.KafkaTestWriter{Errs: []error{segmentio.LeaderNotAvailable}}
		p := distribution.NewWriterPublisher(w, logger.NopLogger, backoff)
		require.NoError(t, p.Publish(ctx, publishMessages(3)))
		assert.Equal(t, 2, w.Calls)
		assert.Len(t, w.Written, 3)
	})

	t.Run("PermanentFails", func(t *testing.T) {
		w := &distribution.KafkaTestWriter{Errs: []error{segmentio.MessageSizeTooLarge}}
		p := distribution.NewWriterPublisher(w, logger.NopLogger, backoff)
		err := p.Publish(ctx, publishMessages(3))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 1 tries")
		assert.Empty(t, w.Written)
	})

	t.Run("PartialWriteResendsRemaining", func(t *testing.T) {
		w := &distribution.KafkaTestWriter{Errs: []error{
			segmentio.WriteErrors{nil, segmentio.NotLeaderForPartition, nil},
		}}
		l := logger.NewBufferLogger()
		p := distribution.NewWriterPublisher(w, l, backoff)
		require.NoError(t, p.Publish(ctx, publishMessages(3)))
		require.Len(t, w.Written, 3)
		assert.Equal(t, "v1", string(w.Written[2].Value))
		assert.Equal(t, 1, strings.Count(l.String(), "resending 1 messages"))
	})

	t.Run("PartialWritePermanent", func(t *testing.T) {
		w := &distribution.KafkaTestWriter{Errs: []error{
			segmentio.WriteErrors{nil, segmentio.NotLeaderForPartition, segmentio.MessageSizeTooLarge},
		}}
		p := distribution.NewWriterPublisher(w, logger.NopLogger, backoff)
		err := p.Publish(ctx, publishMessages(3))
		require.Error(t, err)
		assert.Equal(t, 1, w.Calls)
	})

	t.Run("CanceledDuringBackoff", func(t *testing.T) {
		w := &distribution.KafkaTestWriter{Errs: []error{segmentio.LeaderNotAvailable}}
		p := distribution.NewWriterPublisher(w, logger.NopLogger, distribution.OptPublisherBackoff(time.Hour, time.Hour))
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		err := p.Publish(cctx, publishMessages(1))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, w.Calls)
	})
}

// failingReader fails every fetch with err.
type failingReader struct {
	err error
}

func (r failingReader) FetchMessage(context.Context) (segmentio.Message, error) {
	return segmentio.Message{}, r.err
}

func (r failingReader) Close() error { return nil }

func TestConsumer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Poll", func(t *testing.T) {
		r := &distribution.KafkaTestReader{Queue: messages(5)}
		c := distribution.NewReaderConsumer(r, logger.NopLogger)

		got, err := c.Poll(ctx, 2, time.Second)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "v1", string(got[1].Value))

		got, err = c.Poll(ctx, 0, 20*time.Millisecond)
		require.NoError(t, err)
		assert.Len(t, got, 3)

		require.NoError(t, c.Close())
		assert.True(t, r.Closed)
	})

	t.Run("Canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		c := distribution.NewReaderConsumer(&distribution.KafkaTestReader{Queue: messages(1)}, logger.NopLogger)
		_, err := c.Poll(cctx, 0, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Blend", func(t *testing.T) {
		a := &distribution.KafkaTestReader{Queue: messages(3)}
		b := &distribution.KafkaTestReader{Queue: []segmentio.Message{{Value: []byte("w0")}, {Value: []byte("w1")}}}
		blended := distribution.BlendReaders(map[string]distribution.KafkaReader{"alerts/0": a, "alerts/1": b})
		c := distribution.NewReaderConsumer(blended, logger.NopLogger)

		got, err := c.Poll(ctx, 5, 5*time.Second)
		require.NoError(t, err)
		values := make([]string, len(got))
		for i, m := range got {
			values[i] = string(m.Value)
		}
		sort.Strings(values)
		assert.Equal(t, []string{"v0", "v1", "v2", "w0", "w1"}, values)

		require.NoError(t, c.Close())
		assert.True(t, a.Closed)
		assert.True(t, b.Closed)
	})

	t.Run("BlendFailure", func(t *testing.T) {
		a := &distribution.KafkaTestReader{Queue: messages(3)}
		blended := distribution.BlendReaders(map[string]distribution.KafkaReader{
			"alerts/0": a,
			"alerts/1": failingReader{err: segmentio.TopicAuthorizationFailed},
		})
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		var err error
		for err == nil {
			_, err = blended.FetchMessage(cctx)
		}
		assert.ErrorIs(t, err, segmentio.TopicAuthorizationFailed)
		assert.Contains(t, err.Error(), "alerts/1")
		assert.ErrorIs(t, blended.Close(), segmentio.TopicAuthorizationFailed)
		assert.True(t, a.Closed)
	})
}
