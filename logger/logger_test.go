// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/karpov-sv/fink-utils/logger"
	"github.com/stretchr/testify/assert"
)

func TestStandardLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logger.New(buf, false).WithPrefix("[sso] ")
	l.Debugf("hidden %d", 1)
	l.Infof("queried %s", "1234")
	l.Errorf("failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if assert.Len(t, lines, 2) {
		assert.Contains(t, lines[0], "[sso] INFO:  queried 1234")
		assert.Contains(t, lines[1], "[sso] ERROR: failed")
	}
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	logger.New(buf, true).Debugf("shown")
	assert.Contains(t, buf.String(), "DEBUG: shown")
	assert.Regexp(t, `^\d{4}-\d\d-\d\dT\d\d:\d\d:\d\d\.\d{6}Z `, buf.String())
}

func TestBufferLogger(t *testing.T) {
	b := logger.NewBufferLogger()
	b.Warnf("first\n")
	b.WithPrefix("[encoder] ").Debugf("second")
	assert.Equal(t, "WARN:  first\n[encoder] DEBUG: second\n", b.String())

	logger.NopLogger.WithPrefix("x").Errorf("dropped")
}
