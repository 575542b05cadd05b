// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package sso_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/sso"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMiriade answers like the ephemerides service, one row per epoch.
// Names listed in modes misbehave: "nodata", "html", "short", "slow" or
// "status".
type fakeMiriade struct {
	mu       sync.Mutex
	modes    map[string]string
	requests []request
}

type request struct {
	name, rplane, tcoor, observer string
	epochs                        []string
}

func (f *fakeMiriade) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	file, _, err := r.FormFile("epochs")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, _ := io.ReadAll(file)
	epochs := strings.Split(string(data), "\n")

	f.mu.Lock()
	f.requests = append(f.requests, request{
		name:     q.Get("-name"),
		rplane:   q.Get("-rplane"),
		tcoor:    q.Get("-tcoor"),
		observer: q.Get("-observer"),
		epochs:   epochs,
	})
	mode := f.modes[q.Get("-name")]
	f.mu.Unlock()

	switch mode {
	case "nodata":
		_, _ = w.Write([]byte(`{"sso": {"name": "unknown"}}`))
		return
	case "html":
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
		return
	case "status":
		http.Error(w, "bad name", http.StatusBadRequest)
		return
	case "slow":
		time.Sleep(200 * time.Millisecond)
	case "short":
		epochs = epochs[1:]
	}

	rows := make([]map[string]interface{}, len(epochs))
	for i, e := range epochs {
		if q.Get("-rplane") == "2" {
			rows[i] = map[string]interface{}{"Date": e, "Longitude": 370.0, "Latitude": -1.5}
			continue
		}
		rows[i] = map[string]interface{}{
			"Date":   e,
			"RA":     "12 30 00.0",
			"DEC":    "-10 30 00",
			"Dobs":   1.2,
			"Dhelio": 2.3,
			"VMag":   17.1,
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": rows})
}

func (f *fakeMiriade) last() request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newFake(t *testing.T, modes map[string]string) (*fakeMiriade, *httptest.Server) {
	t.Helper()
	f := &fakeMiriade{modes: modes}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestTarget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ident, exp string
	}{
		{"1234", "a:1234"},
		{"2P", "c:2P"},
		{"C/2020 F3", "c:C/2020 F3"},
		{"2010 PK9", "a:2010 PK9"},
	}
	for _, test := range tests {
		assert.Equal(t, test.exp, sso.Target(test.ident), test.ident)
	}
}

func TestClientQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f, srv := newFake(t, map[string]string{
		"a:nodata": "nodata",
		"a:html":   "html",
		"a:status": "status",
		"a:slow":   "slow",
	})
	c := sso.NewClient(sso.OptClientURL(srv.URL), sso.OptClientRetryMax(0), sso.OptClientTimeout(50*time.Millisecond))

	t.Run("Equatorial", func(t *testing.T) {
		eph, err := c.Query(ctx, "1234", []float64{2459000.5, 2459001.5}, sso.Equatorial)
		require.NoError(t, err)
		assert.Equal(t, 2, eph.Len())
		assert.Equal(t, []string{"DEC", "Date", "Dhelio", "Dobs", "RA", "VMag"}, eph.Columns)
		assert.Equal(t, "12 30 00.0", eph.Rows[0]["RA"].String())

		req := f.last()
		assert.Equal(t, "a:1234", req.name)
		assert.Equal(t, "1", req.rplane)
		assert.Equal(t, "5", req.tcoor)
		assert.Equal(t, "I41", req.observer)
		assert.Equal(t, []string{"2459000.500174", "2459001.500174"}, req.epochs)
	})

	t.Run("EclipticForcesTCoor", func(t *testing.T) {
		c := sso.NewClient(sso.OptClientURL(srv.URL), sso.OptClientObserver("807"), sso.OptClientShift(0))
		_, err := c.Query(ctx, "2P", []float64{2459000.5}, sso.Ecliptic)
		require.NoError(t, err)
		req := f.last()
		assert.Equal(t, "c:2P", req.name)
		assert.Equal(t, "2", req.rplane)
		assert.Equal(t, "1", req.tcoor)
		assert.Equal(t, "807", req.observer)
		assert.Equal(t, []string{"2459000.500000"}, req.epochs)
	})

	t.Run("Failures", func(t *testing.T) {
		for _, ident := range []string{"nodata", "html", "status", "slow"} {
			_, err := c.Query(ctx, ident, []float64{2459000.5}, sso.Equatorial)
			require.Error(t, err, ident)
			assert.True(t, errors.Is(err, errors.ErrNetwork), "%s: %v", ident, err)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		down := httptest.NewServer(http.NotFoundHandler())
		down.Close()
		c := sso.NewClient(sso.OptClientURL(down.URL), sso.OptClientRetryMax(0))
		_, err := c.Query(ctx, "1234", []float64{2459000.5}, sso.Equatorial)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNetwork))
	})
}
