// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const alertsFirst = `{"objectId":"ZTF21aaa","candid":1,"ts":1000,"magpsf":18.25,"status":"ok"}
{"objectId":"ZTF21aab","candid":2,"ts":2000,"magpsf":19.5,"status":"ok"}
`

const alertsSecond = `{"objectId":"ZTF21aac","candid":3,"ts":1500,"magpsf":17.5,"status":"ok"}
{"objectId":"ZTF21aad","candid":4,"ts":3000,"magpsf":null,"status":"ok"}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// lines splits JSON lines output, ignoring the trailing newline.
func lines(buf *bytes.Buffer) []string {
	s := strings.TrimRight(buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
