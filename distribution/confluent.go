// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package distribution

import (
	"context"
	"strings"
	"time"

	confluent "github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
	segmentio "github.com/segmentio/kafka-go"
)

const confluentTimeoutMs = 10000

// SetupConfluent builds the librdkafka configuration for cfg. Kerberos
// uses GSSAPI over SASL_PLAINTEXT with the configured kinit command, SASL
// credentials use PLAIN over SASL_SSL.
func SetupConfluent(cfg KafkaConfig, consumer bool) (*confluent.ConfigMap, error) {
	configMap := &confluent.ConfigMap{}
	set := func(key string, value confluent.ConfigValue) error {
		return errors.Wrapf(configMap.SetKey(key, value), "setting %s", key)
	}

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		brokers = []string{DefaultBootstrapServers}
	}
	if err := set("bootstrap.servers", strings.Join(brokers, ",")); err != nil {
		return nil, err
	}
	if err := set("socket.timeout.ms", 60000); err != nil {
		return nil, err
	}
	if consumer {
		if err := set("enable.auto.commit", false); err != nil {
			return nil, err
		}
		if err := set("group.id", "fink-"+uuid.New().String()); err != nil {
			return nil, err
		}
	}

	switch {
	case cfg.Kerberos:
		kinit := cfg.KinitCmd
		if kinit == "" {
			kinit = DefaultKinitCmd
		}
		opts := []struct {
			key   string
			value string
		}{
			{"security.protocol", "SASL_PLAINTEXT"},
			{"sasl.mechanism", "GSSAPI"},
			{"sasl.kerberos.service.name", DefaultKerberosService},
			{"sasl.kerberos.kinit.cmd", kinit},
			{"sasl.kerberos.keytab", cfg.KerberosKeytab},
			{"sasl.kerberos.principal", cfg.KerberosPrincipal},
		}
		for _, o := range opts {
			if o.value == "" {
				continue
			}
			if err := set(o.key, o.value); err != nil {
				return nil, err
			}
		}
	case cfg.SASLUsername != "":
		if err := set("security.protocol", "SASL_SSL"); err != nil {
			return nil, err
		}
		if err := set("sasl.mechanism", "PLAIN"); err != nil {
			return nil, err
		}
		if err := set("sasl.username", cfg.SASLUsername); err != nil {
			return nil, err
		}
		if err := set("sasl.password", cfg.SASLPassword); err != nil {
			return nil, err
		}
	}

	// SSL
	if cfg.TLS.CACertPath != "" {
		if err := set("ssl.ca.location", cfg.TLS.CACertPath); err != nil {
			return nil, err
		}
	}
	if cfg.TLS.CertificatePath != "" {
		if err := set("ssl.certificate.location", cfg.TLS.CertificatePath); err != nil {
			return nil, err
		}
	}
	if cfg.TLS.CertificateKeyPath != "" {
		if err := set("ssl.key.location", cfg.TLS.CertificateKeyPath); err != nil {
			return nil, err
		}
	}
	if cfg.TLS.enabled() {
		if err := set("enable.ssl.certificate.verification", !cfg.TLS.SkipVerify); err != nil {
			return nil, err
		}
	}
	return configMap, nil
}

type confluentPublisher struct {
	p     *confluent.Producer
	topic string
	log   logger.Logger
}

func newConfluentPublisher(cfg KafkaConfig, log logger.Logger) (*confluentPublisher, error) {
	cm, err := SetupConfluent(cfg, false)
	if err != nil {
		return nil, err
	}
	p, err := confluent.NewProducer(cm)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrConfiguration, "creating kafka producer")
	}
	return &confluentPublisher{p: p, topic: cfg.Topic, log: log}, nil
}

// Publish produces every message and waits for all delivery reports.
func (c *confluentPublisher) Publish(ctx context.Context, msgs []Message) (err error) {
	defer func() { countPublish(err) }()
	if len(msgs) == 0 {
		return nil
	}
	delivery := make(chan confluent.Event, len(msgs))
	sent := 0
	for _, m := range msgs {
		err := c.p.Produce(&confluent.Message{
			TopicPartition: confluent.TopicPartition{Topic: &c.topic, Partition: confluent.PartitionAny},
			Key:            m.Key,
			Value:          m.Value,
		}, delivery)
		if err != nil {
			return errors.Wrapf(err, "producing message %d", sent)
		}
		sent++
	}

	var first error
	failed := 0
	for i := 0; i < sent; i++ {
		select {
		case e := <-delivery:
			switch ev := e.(type) {
			case *confluent.Message:
				if ev.TopicPartition.Error != nil {
					failed++
					if first == nil {
						first = ev.TopicPartition.Error
					}
				}
			case confluent.Error:
				failed++
				if first == nil {
					first = ev
				}
			default:
				c.log.Debugf("ignored event: %s", ev)
				i--
			}
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for delivery reports")
		}
	}
	if first != nil {
		return errors.Wrapf(first, "%d of %d messages were not delivered", failed, sent)
	}
	return nil
}

func (c *confluentPublisher) Close() error {
	if left := c.p.Flush(confluentTimeoutMs); left > 0 {
		c.log.Warnf("%d messages still queued when closing the producer", left)
	}
	c.p.Close()
	return nil
}

// confluentReader adapts a librdkafka consumer to KafkaReader.
type confluentReader struct {
	c *confluent.Consumer
}

func newConfluentReader(cfg KafkaConfig, log logger.Logger) (*confluentReader, error) {
	cm, err := SetupConfluent(cfg, true)
	if err != nil {
		return nil, err
	}
	c, err := confluent.NewConsumer(cm)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrConfiguration, "creating kafka consumer")
	}
	if err := assign(c, cfg, log); err != nil {
		c.Close()
		return nil, err
	}
	return &confluentReader{c: c}, nil
}

func assign(c *confluent.Consumer, cfg KafkaConfig, log logger.Logger) error {
	topic := cfg.Topic
	md, err := c.GetMetadata(&topic, false, confluentTimeoutMs)
	if err != nil {
		return errors.WithCodef(err, errors.ErrNetwork, "getting metadata of %s", topic)
	}
	tm, ok := md.Topics[topic]
	if !ok || len(tm.Partitions) == 0 {
		return errors.Newf(errors.ErrConfiguration, "topic %s has no partitions", topic)
	}

	start, _ := ParseStartingOffsets(cfg.StartingOffsets)
	tps := make([]confluent.TopicPartition, len(tm.Partitions))
	for i, p := range tm.Partitions {
		tps[i] = confluent.TopicPartition{Topic: &topic, Partition: p.ID}
		switch start.Kind {
		case StartEarliest:
			tps[i].Offset = confluent.OffsetBeginning
		case StartLatest:
			tps[i].Offset = confluent.OffsetEnd
		case StartTimestamp:
			tps[i].Offset = confluent.Offset(start.Timestamp.UnixMilli())
		}
	}
	if start.Kind == StartTimestamp {
		resolved, err := c.OffsetsForTimes(tps, confluentTimeoutMs)
		switch {
		case err == nil:
			tps = resolved
		case cfg.FailOnDataLoss:
			return errors.Wrapf(err, "resolving offsets at %s", start.Timestamp)
		default:
			log.Warnf("resolving offsets at %s: %v, starting from the first offset", start.Timestamp, err)
			for i := range tps {
				tps[i].Offset = confluent.OffsetBeginning
			}
		}
	}
	return errors.Wrap(c.Assign(tps), "assigning partitions")
}

func (r *confluentReader) FetchMessage(ctx context.Context) (segmentio.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return segmentio.Message{}, err
		}
		m, err := r.c.ReadMessage(100 * time.Millisecond)
		if err != nil {
			if kerr, ok := err.(confluent.Error); ok && kerr.Code() == confluent.ErrTimedOut {
				continue
			}
			return segmentio.Message{}, err
		}
		out := segmentio.Message{
			Partition: int(m.TopicPartition.Partition),
			Offset:    int64(m.TopicPartition.Offset),
			Key:       m.Key,
			Value:     m.Value,
			Time:      m.Timestamp,
		}
		if m.TopicPartition.Topic != nil {
			out.Topic = *m.TopicPartition.Topic
		}
		return out, nil
	}
}

func (r *confluentReader) Close() error {
	return r.c.Close()
}

var _ KafkaReader = (*confluentReader)(nil)
