// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsHandler routes /metrics to the prometheus registry.
func NewMetricsHandler() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET").Name("GetMetrics")
	return router
}

// ServeMetrics serves /metrics on addr until ctx is done. It returns the
// address actually listened on.
func ServeMetrics(ctx context.Context, addr string, log logger.Logger) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	srv := &http.Server{
		Handler:           NewMetricsHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	log.Infof("serving metrics on http://%s/metrics", ln.Addr())
	return ln.Addr(), nil
}
