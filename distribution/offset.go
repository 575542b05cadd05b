// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package distribution

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/karpov-sv/fink-utils/errors"
)

// DefaultOffset is returned when there is no offset history to resume
// from.
const DefaultOffset int64 = 100

// Offset policies understood by GetOffset and ParseStartingOffsets.
const (
	PolicyEarliest = "earliest"
	PolicyLatest   = "latest"
)

// GetOffset returns the offset distribution should start from. A missing
// or empty log and the earliest policy give DefaultOffset. The latest
// policy (and the empty one) reads the trailing integer of the last line
// of the log. Any other policy must itself be an integer timestamp.
func GetOffset(path, policy string) (int64, error) {
	st, err := os.Stat(path)
	if os.IsNotExist(err) {
		return DefaultOffset, nil
	} else if err != nil {
		return 0, errors.Wrapf(err, "stat offset log %s", path)
	}
	if st.Size() == 0 || policy == PolicyEarliest {
		return DefaultOffset, nil
	}
	if policy != "" && policy != PolicyLatest {
		v, err := strconv.ParseInt(strings.TrimSpace(policy), 10, 64)
		if err != nil {
			return 0, errors.Newf(errors.ErrParse, "offset policy %q is neither earliest, latest nor an integer", policy)
		}
		return v, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "reading offset log %s", path)
	}
	line := lastLine(string(data))
	if line == "" {
		return DefaultOffset, nil
	}
	parts := strings.Split(line, ", ")
	v, err := strconv.ParseInt(strings.TrimSpace(parts[len(parts)-1]), 10, 64)
	if err != nil {
		return 0, errors.Newf(errors.ErrParse, "malformed offset line %q", line)
	}
	return v, nil
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimRight(lines[i], "\r"); strings.TrimSpace(l) != "" {
			return l
		}
	}
	return ""
}

// OffsetLog appends "<label>, <timestamp-ms>" lines to a file.
type OffsetLog struct {
	Path string

	mu sync.Mutex
}

// Append writes one line to the log, creating it if needed.
func (l *OffsetLog) Append(label string, ts int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening offset log")
	}
	if _, err := fmt.Fprintf(f, "%s, %d\n", label, ts); err != nil {
		f.Close()
		return errors.Wrap(err, "appending offset")
	}
	return errors.Wrap(f.Close(), "closing offset log")
}
