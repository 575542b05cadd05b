// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fink_test

import (
	"testing"

	fink "github.com/karpov-sv/fink-utils"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		s, err := fink.NewSession()
		require.NoError(t, err)
		assert.Equal(t, logger.NopLogger, s.Logger())
		assert.NotEmpty(t, s.TempDir())
		assert.NoError(t, fink.CheckSession(s))
	})

	t.Run("Options", func(t *testing.T) {
		dir := t.TempDir()
		l := logger.NewBufferLogger()
		s, err := fink.NewSession(fink.OptSessionTempDir(dir), fink.OptSessionLogger(l))
		require.NoError(t, err)
		assert.Equal(t, dir, s.TempDir())
		s.Logger().Infof("hello")
		assert.Contains(t, l.String(), "hello")
	})

	t.Run("EmptyTempDir", func(t *testing.T) {
		_, err := fink.NewSession(fink.OptSessionTempDir(""))
		assert.True(t, errors.Is(err, errors.ErrConfiguration))
	})

	t.Run("Nil", func(t *testing.T) {
		err := fink.CheckSession(nil)
		assert.True(t, errors.Is(err, errors.ErrConfiguration))
	})
}

func TestVersionInfo(t *testing.T) {
	assert.Contains(t, fink.VersionInfo(), "fink-utils")
}
