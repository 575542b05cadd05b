// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package distribution

import (
	"context"
	"io"
	"sync"

	segmentio "github.com/segmentio/kafka-go"
)

// KafkaTestReader is a testing implementation of the KafkaReader type.
type KafkaTestReader struct {
	Queue    []segmentio.Message
	FetchOff int
	Closed   bool
}

func (r *KafkaTestReader) FetchMessage(ctx context.Context) (segmentio.Message, error) {
	if err := ctx.Err(); err != nil {
		return segmentio.Message{}, err
	}

	if r.Closed {
		return segmentio.Message{}, io.EOF
	}

	if r.FetchOff == len(r.Queue) {
		<-ctx.Done()
		return segmentio.Message{}, ctx.Err()
	}

	msg := r.Queue[r.FetchOff]
	r.FetchOff++

	return msg, nil
}

func (r *KafkaTestReader) Close() error {
	r.Closed = true
	return nil
}

// KafkaTestWriter is a testing implementation of the KafkaWriter type.
// Each call to WriteMessages consumes the next entry of Errs, if any.
type KafkaTestWriter struct {
	mu      sync.Mutex
	Written []segmentio.Message
	Errs    []error
	Calls   int
	Closed  bool
}

func (w *KafkaTestWriter) WriteMessages(ctx context.Context, msgs ...segmentio.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	w.Calls++
	if len(w.Errs) > 0 {
		err := w.Errs[0]
		w.Errs = w.Errs[1:]
		if we, ok := err.(segmentio.WriteErrors); ok {
			for i, m := range msgs {
				if i < len(we) && we[i] == nil {
					w.Written = append(w.Written, m)
				}
			}
		}
		if err != nil {
			return err
		}
	}
	w.Written = append(w.Written, msgs...)
	return nil
}

func (w *KafkaTestWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Closed = true
	return nil
}
