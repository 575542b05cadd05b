// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/karpov-sv/fink-utils/ctl"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detections = `{"objectId":"ZTF1","i:ssnamenr":"1234","i:jd":2459000.5,"i:magpsf":18.5}
{"objectId":"ZTF2","i:ssnamenr":"1234","i:jd":2459001.5,"i:magpsf":18.75}
{"objectId":"ZTF3","i:ssnamenr":null,"i:jd":2459002.5,"i:magpsf":19.0}
`

// ephemerides answers with one fixed row per requested epoch.
func ephemerides(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("epochs")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, _ := io.ReadAll(file)
	epochs := strings.Split(string(data), "\n")
	rows := make([]map[string]interface{}, len(epochs))
	for i := range epochs {
		if r.URL.Query().Get("-rplane") == "2" {
			rows[i] = map[string]interface{}{"Longitude": 190.25, "Latitude": -2.5}
			continue
		}
		rows[i] = map[string]interface{}{"RA": "12 30 00.0", "DEC": "-10 30 00", "Dobs": 1.0, "Dhelio": 10.0}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": rows})
}

func TestEphemeridesCommand(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(ephemerides))
	defer srv.Close()

	newCommand := func() (*ctl.EphemeridesCommand, *bytes.Buffer) {
		stdout := &bytes.Buffer{}
		cm := ctl.NewEphemeridesCommand(strings.NewReader(detections), stdout, &bytes.Buffer{})
		cm.URL = srv.URL
		cm.Timeout = time.Second
		cm.Retries = 0
		return cm, stdout
	}

	t.Run("Stdin", func(t *testing.T) {
		cm, stdout := newCommand()
		cm.Input = "-"
		require.NoError(t, cm.Run(ctx))

		out := lines(stdout)
		require.Len(t, out, 3)
		for _, l := range out[:2] {
			assert.Contains(t, l, `"RA":187.5`)
			assert.Contains(t, l, `"Dec":-10.5`)
			assert.Contains(t, l, `"Longitude":190.25`)
			assert.Contains(t, l, `"i:magpsf_red":`)
		}
		assert.Contains(t, out[2], `"objectId":"ZTF3"`)
		assert.Contains(t, out[2], `"RA":null`)
	})

	t.Run("File", func(t *testing.T) {
		dir := t.TempDir()
		cm, stdout := newCommand()
		cm.Input = writeFile(t, dir, "sso.jsonl", detections)
		cm.Ecliptic = false
		cm.Output = dir + "/out.jsonl"
		require.NoError(t, cm.Run(ctx))
		assert.Empty(t, stdout.String())
	})

	t.Run("NoInput", func(t *testing.T) {
		cm, _ := newCommand()
		err := cm.Run(ctx)
		assert.True(t, errors.Is(err, errors.ErrConfiguration), "%v", err)
	})

	t.Run("MissingColumn", func(t *testing.T) {
		cm, _ := newCommand()
		cm.Stdin = strings.NewReader(`{"objectId":"ZTF1","i:jd":2459000.5}` + "\n")
		cm.Input = "-"
		err := cm.Run(ctx)
		assert.True(t, errors.Is(err, errors.ErrDataShape), "%v", err)
	})
}
