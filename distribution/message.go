// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package distribution encodes alert batches as keyed Avro messages,
// moves them through Kafka and decodes them back into batches.
package distribution

// Message is one encoded row as published on the bus.
type Message struct {
	Key   []byte
	Value []byte
}

// StatusColumn is reserved by the pipeline and never distributed.
const StatusColumn = "status"

// StructColumn names the single column encoded rows are packed into.
const StructColumn = "struct"
