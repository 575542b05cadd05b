// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package logger provides the leveled logger shared by the fink commands
// and libraries.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// TimeFormat is the UTC, constant width timestamp every line starts with.
const TimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// Logger represents an interface for a shared logger.
type Logger interface {
	Printf(format string, v ...interface{}) // same as Infof
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	// WithPrefix returns a new Logger with the same configuration as
	// this one, but all logs will have the given prefix.
	WithPrefix(prefix string) Logger
}

const (
	LevelError = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// LevelPrefix is written between the timestamp and the message.
func LevelPrefix(level int) string {
	return [...]string{"ERROR: ", "WARN:  ", "INFO:  ", "DEBUG: "}[level]
}

// Ensure nopLogger implements interface.
var _ Logger = &nopLogger{}

// NopLogger represents a Logger that doesn't do anything.
var NopLogger Logger = &nopLogger{}

type nopLogger struct{}

func (n *nopLogger) Printf(format string, v ...interface{}) {}
func (n *nopLogger) Debugf(format string, v ...interface{}) {}
func (n *nopLogger) Infof(format string, v ...interface{})  {}
func (n *nopLogger) Warnf(format string, v ...interface{})  {}
func (n *nopLogger) Errorf(format string, v ...interface{}) {}

func (n *nopLogger) WithPrefix(prefix string) Logger { return n }

// standardLogger writes the lines at or below its level to w.
type standardLogger struct {
	logger *log.Logger
	level  int
	prefix string
	w      io.Writer
}

type timestamped struct {
	w io.Writer
}

func (t timestamped) Write(p []byte) (int, error) {
	return fmt.Fprintf(t.w, "%s %s", time.Now().UTC().Format(TimeFormat), p)
}

func newStandardLogger(w io.Writer, level int, prefix string) *standardLogger {
	return &standardLogger{
		logger: log.New(timestamped{w: w}, prefix, 0),
		level:  level,
		prefix: prefix,
		w:      w,
	}
}

// NewStandardLogger logs info, warnings and errors to w.
func NewStandardLogger(w io.Writer) Logger {
	return newStandardLogger(w, LevelInfo, "")
}

// NewVerboseLogger also logs debug lines.
func NewVerboseLogger(w io.Writer) Logger {
	return newStandardLogger(w, LevelDebug, "")
}

// New returns a verbose logger when verbose is set and a standard one
// otherwise.
func New(w io.Writer, verbose bool) Logger {
	if verbose {
		return NewVerboseLogger(w)
	}
	return NewStandardLogger(w)
}

func (s *standardLogger) printf(level int, format string, v ...interface{}) {
	if level > s.level {
		return
	}
	s.logger.Printf(LevelPrefix(level)+format, v...)
}

func (s *standardLogger) Printf(format string, v ...interface{}) { s.printf(LevelInfo, format, v...) }
func (s *standardLogger) Debugf(format string, v ...interface{}) { s.printf(LevelDebug, format, v...) }
func (s *standardLogger) Infof(format string, v ...interface{})  { s.printf(LevelInfo, format, v...) }
func (s *standardLogger) Warnf(format string, v ...interface{})  { s.printf(LevelWarn, format, v...) }
func (s *standardLogger) Errorf(format string, v ...interface{}) { s.printf(LevelError, format, v...) }

func (s *standardLogger) WithPrefix(prefix string) Logger {
	return newStandardLogger(s.w, s.level, s.prefix+prefix)
}

// BufferLogger represents a test Logger that holds every log line, debug
// included, in a buffer for review.
type BufferLogger struct {
	mu     *sync.Mutex
	buf    *bytes.Buffer
	prefix string
}

// NewBufferLogger returns a new instance of BufferLogger.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{
		buf: &bytes.Buffer{},
		mu:  &sync.Mutex{},
	}
}

func (b *BufferLogger) printf(level int, format string, v ...interface{}) {
	s := b.prefix + LevelPrefix(level) + fmt.Sprintf(format, v...)
	if s[len(s)-1] != '\n' {
		s += "\n"
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(s)
}

func (b *BufferLogger) Printf(format string, v ...interface{}) { b.printf(LevelInfo, format, v...) }
func (b *BufferLogger) Debugf(format string, v ...interface{}) { b.printf(LevelDebug, format, v...) }
func (b *BufferLogger) Infof(format string, v ...interface{})  { b.printf(LevelInfo, format, v...) }
func (b *BufferLogger) Warnf(format string, v ...interface{})  { b.printf(LevelWarn, format, v...) }
func (b *BufferLogger) Errorf(format string, v ...interface{}) { b.printf(LevelError, format, v...) }

// WithPrefix returns a logger sharing b's buffer.
func (b *BufferLogger) WithPrefix(prefix string) Logger {
	return &BufferLogger{mu: b.mu, buf: b.buf, prefix: b.prefix + prefix}
}

// String returns everything logged so far.
func (b *BufferLogger) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
