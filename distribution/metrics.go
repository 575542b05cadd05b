// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package distribution

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricEncodedMessages  = "encoded_messages_total"
	MetricDecodedMessages  = "decoded_messages_total"
	MetricDecodeFailures   = "decode_failures_total"
	MetricPublishedBatches = "published_batches_total"
)

var CounterEncodedMessages = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "fink",
		Name:      MetricEncodedMessages,
		Help:      "Rows encoded into messages.",
	},
)

var CounterDecodedMessages = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "fink",
		Name:      MetricDecodedMessages,
		Help:      "Payloads decoded into rows.",
	},
)

var CounterDecodeFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "fink",
		Name:      MetricDecodeFailures,
		Help:      "Payloads that did not match the schema.",
	},
)

// CounterPublishedBatches counts publish attempts by outcome: ok or
// error.
var CounterPublishedBatches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fink",
		Name:      MetricPublishedBatches,
		Help:      "Batches published to Kafka by outcome.",
	},
	[]string{
		"outcome",
	},
)

func init() {
	prometheus.MustRegister(
		CounterEncodedMessages,
		CounterDecodedMessages,
		CounterDecodeFailures,
		CounterPublishedBatches,
	)
}
