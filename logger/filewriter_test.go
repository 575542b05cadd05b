// This file is a modified redistribution of reopen (github.com/client9/reopen),
// which is governed by the following license notice:
//
// The MIT License (MIT)
//
// Copyright (c) 2015 Nick Galbreath
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWriterAppends(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "fink.log")
	require.NoError(t, os.WriteFile(fname, []byte("line0\n"), 0600))

	f, err := NewFileWriter(fname)
	require.NoError(t, err)
	assert.Equal(t, fname, f.Name())

	_, err = f.Write([]byte("line1\n"))
	require.NoError(t, err)
	require.NoError(t, f.Reopen())
	_, err = f.Write([]byte("line2\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Equal(t, "line0\nline1\nline2\n", string(out))

	_, err = f.Write([]byte("late\n"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

// A rotated file must not keep receiving writes after Reopen.
func TestFileWriterRotation(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "rotate.log")

	f, err := NewFileWriter(fname)
	require.NoError(t, err)
	_, err = f.Write([]byte("line1\n"))
	require.NoError(t, err)

	require.NoError(t, os.Rename(fname, fname+".orig"))
	_, err = f.Write([]byte("after1\n"))
	require.NoError(t, err)

	require.NoError(t, f.Reopen())
	_, err = f.Write([]byte("line2\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Equal(t, "line2\n", string(out))

	orig, err := os.ReadFile(fname + ".orig")
	require.NoError(t, err)
	assert.Equal(t, "line1\nafter1\n", string(orig))
}

func TestStandardLoggerLevels(t *testing.T) {
	buf := NewBufferLogger()
	buf.Infof("schema written to %s", "a.avsc")
	buf.Debugf("dropped")
	buf.Warnf("group %s failed", "2010 AB")
	out := buf.String()
	assert.Contains(t, out, "INFO:  schema written to a.avsc\n")
	assert.Contains(t, out, "WARN:  group 2010 AB failed\n")
	assert.NotContains(t, out, "dropped")

	fname := filepath.Join(t.TempDir(), "levels.log")
	fw, err := NewFileWriter(fname)
	require.NoError(t, err)
	l := New(fw, false).WithPrefix("[sso] ")
	l.Debugf("hidden")
	l.Errorf("visible")
	require.NoError(t, fw.Close())

	out2, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.NotContains(t, string(out2), "hidden")
	assert.Contains(t, string(out2), "[sso] ")
	assert.Contains(t, string(out2), "ERROR: visible")
}

func TestFileWriterReopenOn(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, os.Mkdir(dir, 0700))
	fname := filepath.Join(dir, "fink.log")
	f, err := NewFileWriter(fname)
	require.NoError(t, err)
	defer f.Close()

	t.Run("Rotated", func(t *testing.T) {
		require.NoError(t, os.Rename(fname, fname+".1"))
		sig := make(chan os.Signal, 1)
		sig <- syscall.SIGHUP
		close(sig)
		var errw bytes.Buffer
		f.ReopenOn(sig, &errw)
		assert.Empty(t, errw.String())
		_, err := os.Stat(fname)
		assert.NoError(t, err)
	})

	t.Run("Failed", func(t *testing.T) {
		require.NoError(t, os.RemoveAll(dir))
		sig := make(chan os.Signal, 1)
		sig <- syscall.SIGHUP
		close(sig)
		var errw bytes.Buffer
		f.ReopenOn(sig, &errw)
		assert.Contains(t, errw.String(), "reopening log file "+fname)
		_, err := f.Write([]byte("lost\n"))
		assert.ErrorIs(t, err, os.ErrClosed)
	})
}
