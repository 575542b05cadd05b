// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package schema

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricSchemaWrites = "schema_writes_total"
)

// CounterSchemaWrites counts Store.Write calls by outcome: written,
// exists or error.
var CounterSchemaWrites = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fink",
		Name:      MetricSchemaWrites,
		Help:      "Schema artifact writes by outcome.",
	},
	[]string{
		"outcome",
	},
)

func init() {
	prometheus.MustRegister(CounterSchemaWrites)
}
