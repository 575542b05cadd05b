// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/karpov-sv/fink-utils/ctl"
	"github.com/karpov-sv/fink-utils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMetricsHandler(t *testing.T) {
	srv := httptest.NewServer(ctl.NewMetricsHandler())
	defer srv.Close()

	code, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "fink_encoded_messages_total")
	assert.Contains(t, body, "fink_decode_failures_total")

	code, _ = get(t, srv.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServeMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logger.NewBufferLogger()

	addr, err := ctl.ServeMetrics(ctx, "localhost:0", log)
	require.NoError(t, err)
	code, body := get(t, "http://"+addr.String()+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "fink_ephemerides_passthrough_rows_total")
	assert.Contains(t, log.String(), "serving metrics on")
}
