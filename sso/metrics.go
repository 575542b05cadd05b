// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package sso

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricQueries         = "ephemerides_queries_total"
	MetricPassThroughRows = "ephemerides_passthrough_rows_total"
)

// CounterQueries counts Miriade queries by reference plane and outcome.
var CounterQueries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fink",
		Name:      MetricQueries,
		Help:      "Ephemerides queries by plane and outcome.",
	},
	[]string{
		"plane",
		"outcome",
	},
)

var CounterPassThroughRows = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "fink",
		Name:      MetricPassThroughRows,
		Help:      "Rows left without ephemerides after a failed query.",
	},
)

func init() {
	prometheus.MustRegister(CounterQueries, CounterPassThroughRows)
}
