// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package distribution

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
	segmentio "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"golang.org/x/sync/errgroup"
)

// Backoff bounds of the writer publisher.
const (
	DefaultWriteInterval    = 100 * time.Millisecond
	DefaultWriteMaxInterval = 10 * time.Second
)

// KafkaReader is the part of a kafka reader consumption relies on.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (segmentio.Message, error)
	io.Closer
}

// KafkaWriter is the part of a kafka writer publishing relies on.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...segmentio.Message) error
	io.Closer
}

// BlendReaders merges the readers of several partitions into one. A
// reader failing stops the others; the blended reader then reports that
// error once its buffered messages are drained.
func BlendReaders(in map[string]KafkaReader) KafkaReader {
	if len(in) == 1 {
		for _, r := range in {
			return r
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	b := &blendedReader{
		cancel: cancel,
		msgs:   make(chan segmentio.Message, len(in)),
		done:   make(chan struct{}),
	}
	for name, r := range in {
		name, r := name, r
		g.Go(func() error { return b.pump(gctx, name, r) })
	}
	go func() {
		b.err = g.Wait()
		close(b.msgs)
		close(b.done)
	}()
	return b
}

type blendedReader struct {
	cancel context.CancelFunc
	msgs   chan segmentio.Message
	done   chan struct{}
	err    error
}

// pump forwards the messages of one partition until it ends or ctx is
// cancelled. r is closed on return.
func (b *blendedReader) pump(ctx context.Context, name string, r KafkaReader) (err error) {
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()
	for {
		msg, err := r.FetchMessage(ctx)
		if err == io.EOF || ctx.Err() != nil {
			return nil
		} else if err != nil {
			return errors.Wrapf(err, "fetching from %s", name)
		}
		select {
		case b.msgs <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *blendedReader) FetchMessage(ctx context.Context) (segmentio.Message, error) {
	select {
	case msg, ok := <-b.msgs:
		if !ok {
			if b.err != nil {
				return segmentio.Message{}, b.err
			}
			return segmentio.Message{}, io.EOF
		}
		return msg, nil
	case <-ctx.Done():
		return segmentio.Message{}, ctx.Err()
	}
}

func (b *blendedReader) Close() error {
	b.cancel()
	<-b.done
	return b.err
}

// retryReader refetches after temporary broker errors.
type retryReader struct {
	*segmentio.Reader
}

func (r retryReader) FetchMessage(ctx context.Context) (segmentio.Message, error) {
	for {
		msg, err := r.Reader.FetchMessage(ctx)
		switch {
		case err == nil:
			return msg, nil
		case ctx.Err() != nil:
			return segmentio.Message{}, ctx.Err()
		case !temporary(err):
			return segmentio.Message{}, err
		}
	}
}

// temporary reports whether a kafka operation failing with err is worth
// retrying as is.
func temporary(err error) bool {
	if err == segmentio.RebalanceInProgress {
		return true
	}
	var kerr segmentio.Error
	return errors.As(err, &kerr) && kerr.Temporary()
}

// resendable returns the messages to write again after a write of msgs
// failed with err. It returns an error when any message failed for good.
func resendable(msgs []segmentio.Message, err error) ([]segmentio.Message, error) {
	werrs, ok := err.(segmentio.WriteErrors)
	if !ok {
		if temporary(err) {
			return msgs, nil
		}
		return nil, err
	}
	var out []segmentio.Message
	for i, m := range msgs {
		switch {
		case werrs[i] == nil:
		case temporary(werrs[i]):
			out = append(out, m)
		default:
			return nil, werrs[i]
		}
	}
	return out, nil
}

// Publisher sends encoded messages to the distribution topic. It is not
// safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, msgs []Message) error
	io.Closer
}

// NewPublisher returns a publisher for cfg. Kerberos goes through
// librdkafka, everything else through a native writer.
func NewPublisher(cfg KafkaConfig, log logger.Logger) (Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Kerberos {
		return newConfluentPublisher(cfg, log)
	}
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	w := &segmentio.Writer{
		Addr:         segmentio.TCP(cfg.Brokers()...),
		Topic:        cfg.Topic,
		Balancer:     &segmentio.Hash{},
		RequiredAcks: segmentio.RequireAll,
		Transport:    transport,
		Logger:       segmentio.LoggerFunc(log.Debugf),
		ErrorLogger:  segmentio.LoggerFunc(log.Errorf),
	}
	return NewWriterPublisher(w, log), nil
}

// PublisherOption configures a writer publisher.
type PublisherOption func(p *writerPublisher)

// OptPublisherBackoff sets the first and the largest wait between two
// write attempts.
func OptPublisherBackoff(interval, maxInterval time.Duration) PublisherOption {
	return func(p *writerPublisher) {
		p.interval = interval
		p.maxInterval = maxInterval
	}
}

// NewWriterPublisher publishes through w, which must already know its
// topic.
func NewWriterPublisher(w KafkaWriter, log logger.Logger, opts ...PublisherOption) Publisher {
	p := &writerPublisher{
		w:           w,
		log:         log,
		interval:    DefaultWriteInterval,
		maxInterval: DefaultWriteMaxInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type writerPublisher struct {
	w   KafkaWriter
	log logger.Logger

	interval    time.Duration
	maxInterval time.Duration
}

// Publish writes msgs, resending those that failed temporarily with an
// exponential backoff until they all land, one fails for good or ctx is
// done.
func (p *writerPublisher) Publish(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]segmentio.Message, len(msgs))
	for i, m := range msgs {
		out[i] = segmentio.Message{Key: m.Key, Value: m.Value}
	}
	err := p.write(ctx, out)
	countPublish(err)
	return err
}

func (p *writerPublisher) write(ctx context.Context, msgs []segmentio.Message) error {
	wait := p.interval
	for tries := 1; ; tries++ {
		err := p.w.WriteMessages(ctx, msgs...)
		if err == nil {
			return nil
		}
		if msgs, err = resendable(msgs, err); err != nil {
			return errors.Wrapf(err, "failed to deliver messages after %d tries", tries)
		}
		p.log.Warnf("temporary write error, resending %d messages in %s", len(msgs), wait)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "failed to deliver messages after %d tries", tries)
		}
		if wait *= 2; wait > p.maxInterval {
			wait = p.maxInterval
		}
	}
}

func (p *writerPublisher) Close() error {
	return errors.Wrap(p.w.Close(), "closing kafka writer")
}

func countPublish(err error) {
	if err != nil {
		CounterPublishedBatches.WithLabelValues("error").Inc()
		return
	}
	CounterPublishedBatches.WithLabelValues("ok").Inc()
}

func mechanism(cfg KafkaConfig) sasl.Mechanism {
	if cfg.SASLUsername == "" {
		return nil
	}
	return plain.Mechanism{Username: cfg.SASLUsername, Password: cfg.SASLPassword}
}

// clientTLS returns the TLS config for cfg. SASL credentials always travel
// over TLS.
func clientTLS(cfg KafkaConfig) (*tls.Config, error) {
	t, err := GetTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if t == nil && cfg.SASLUsername != "" {
		t = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return t, nil
}

func newTransport(cfg KafkaConfig) (*segmentio.Transport, error) {
	t, err := clientTLS(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "getting TLS config")
	}
	return &segmentio.Transport{
		SASL: mechanism(cfg),
		TLS:  t,
	}, nil
}

func newDialer(cfg KafkaConfig) (*segmentio.Dialer, error) {
	t, err := clientTLS(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "getting TLS config")
	}
	return &segmentio.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		TLS:           t,
		SASLMechanism: mechanism(cfg),
	}, nil
}

// Consumer reads encoded messages from the distribution topic. It is not
// safe for concurrent use.
type Consumer struct {
	r   KafkaReader
	log logger.Logger
}

// NewReaderConsumer consumes from r.
func NewReaderConsumer(r KafkaReader, log logger.Logger) *Consumer {
	return &Consumer{r: r, log: log}
}

// NewConsumer opens one reader per partition of the topic, positioned
// according to the starting offsets policy, and blends them.
func NewConsumer(ctx context.Context, cfg KafkaConfig, log logger.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Kerberos {
		r, err := newConfluentReader(cfg, log)
		if err != nil {
			return nil, err
		}
		return NewReaderConsumer(r, log), nil
	}

	start, _ := ParseStartingOffsets(cfg.StartingOffsets)
	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}

	var partitions []segmentio.Partition
	for _, broker := range cfg.Brokers() {
		if partitions, err = dialer.LookupPartitions(ctx, "tcp", broker, cfg.Topic); err == nil {
			break
		}
		log.Warnf("looking up partitions of %s on %s: %v", cfg.Topic, broker, err)
	}
	if err != nil {
		return nil, errors.WithCodef(err, errors.ErrNetwork, "looking up partitions of %s", cfg.Topic)
	}
	if len(partitions) == 0 {
		return nil, errors.Newf(errors.ErrConfiguration, "topic %s has no partitions", cfg.Topic)
	}

	readers := make(map[string]KafkaReader, len(partitions))
	closeAll := func() {
		for _, r := range readers {
			r.Close()
		}
	}
	for _, p := range partitions {
		r := segmentio.NewReader(segmentio.ReaderConfig{
			Brokers:     cfg.Brokers(),
			Topic:       cfg.Topic,
			Partition:   p.ID,
			Dialer:      dialer,
			Logger:      segmentio.LoggerFunc(log.Debugf),
			ErrorLogger: segmentio.LoggerFunc(log.Errorf),
		})
		if err := position(ctx, r, start, cfg.FailOnDataLoss, log); err != nil {
			r.Close()
			closeAll()
			return nil, errors.Wrapf(err, "positioning partition %d", p.ID)
		}
		readers[fmt.Sprintf("%s/%d", cfg.Topic, p.ID)] = retryReader{r}
	}
	log.Infof("consuming %s from %d partitions", cfg.Topic, len(readers))
	return NewReaderConsumer(BlendReaders(readers), log), nil
}

// position moves a partition reader to the starting offset. When a
// timestamp cannot be resolved the reader falls back to the first
// available offset, unless data loss must fail.
func position(ctx context.Context, r *segmentio.Reader, start StartingOffsets, failOnDataLoss bool, log logger.Logger) error {
	switch start.Kind {
	case StartEarliest:
		return r.SetOffset(segmentio.FirstOffset)
	case StartLatest:
		return r.SetOffset(segmentio.LastOffset)
	}
	err := r.SetOffsetAt(ctx, start.Timestamp)
	if err == nil {
		return nil
	}
	if failOnDataLoss {
		return errors.Wrapf(err, "resolving offset at %s", start.Timestamp)
	}
	log.Warnf("resolving offset at %s: %v, starting from the first offset", start.Timestamp, err)
	return r.SetOffset(segmentio.FirstOffset)
}

// Poll returns up to max messages (no limit when max <= 0), waiting at
// most wait for them. Running out of time is not an error.
func (c *Consumer) Poll(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	pctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var out []Message
	for max <= 0 || len(out) < max {
		m, err := c.r.FetchMessage(pctx)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			if err == io.EOF || pctx.Err() != nil {
				return out, nil
			}
			return out, errors.WithCode(err, errors.ErrNetwork, "fetching message")
		}
		out = append(out, Message{Key: m.Key, Value: m.Value})
	}
	return out, nil
}

func (c *Consumer) Close() error {
	return errors.Wrap(c.r.Close(), "closing kafka consumer")
}
