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
	"fmt"
	"io"
	"os"
	"sync"
)

// FileWriter appends to a log file that can be reopened in place, so an
// external rotation can move the file away underneath a running command.
type FileWriter struct {
	mu   sync.Mutex // serializes close, reopen and write; protects f
	f    *os.File
	mode os.FileMode
	name string
}

// Close closes the underlying file.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

// mutex free version
func (f *FileWriter) reopen() error {
	if f.f != nil {
		f.f.Close()
		f.f = nil
	}
	newf, err := os.OpenFile(f.name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, f.mode)
	if err != nil {
		return err
	}
	f.f = newf
	return nil
}

// Reopen closes the current handle and opens the named file again.
func (f *FileWriter) Reopen() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reopen()
}

// ReopenOn reopens f for every value received on sig until sig is closed.
// Failures go to errw since f can no longer carry them.
func (f *FileWriter) ReopenOn(sig <-chan os.Signal, errw io.Writer) {
	for range sig {
		if err := f.Reopen(); err != nil {
			fmt.Fprintf(errw, "reopening log file %s: %v\n", f.name, err)
		}
	}
}

// Write implements io.Writer.
func (f *FileWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return 0, os.ErrClosed
	}
	return f.f.Write(p)
}

// Name returns the path the writer appends to.
func (f *FileWriter) Name() string {
	return f.name
}

// NewFileWriter opens name for appending with mode 0600.
func NewFileWriter(name string) (*FileWriter, error) {
	return NewFileWriterMode(name, 0600)
}

// NewFileWriterMode opens name for appending with a specific permission.
func NewFileWriterMode(name string, mode os.FileMode) (*FileWriter, error) {
	writer := &FileWriter{
		name: name,
		mode: mode,
	}
	if err := writer.reopen(); err != nil {
		return nil, err
	}
	return writer, nil
}
