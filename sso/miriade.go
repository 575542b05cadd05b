// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package sso enriches solar system object detections with ephemerides
// computed by the IMCCE Miriade service.
package sso

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
	"github.com/tidwall/gjson"
)

// Defaults for Client.
const (
	DefaultURL      = "https://ssp.imcce.fr/webservices/miriade/api/ephemcc.php"
	DefaultObserver = "I41"
	DefaultShift    = 15.0
	DefaultTCoor    = 5
	DefaultTimeout  = 10 * time.Second
	DefaultRetryMax = 2
)

// Plane is the reference plane of the returned coordinates.
type Plane int

const (
	Equatorial Plane = 1
	Ecliptic   Plane = 2
)

// Client queries Miriade. It is safe for concurrent use.
type Client struct {
	url      string
	observer string
	shift    float64
	tcoor    int
	timeout  time.Duration
	log      logger.Logger
	http     *retryablehttp.Client
}

// ClientOption configures a Client.
type ClientOption func(c *Client)

// OptClientURL points the client at another ephemerides endpoint.
func OptClientURL(u string) ClientOption {
	return func(c *Client) { c.url = u }
}

// OptClientObserver sets the IAU observatory code.
func OptClientObserver(code string) ClientOption {
	return func(c *Client) { c.observer = code }
}

// OptClientShift sets the shift, in seconds, added to every epoch.
func OptClientShift(seconds float64) ClientOption {
	return func(c *Client) { c.shift = seconds }
}

// OptClientTCoor sets the coordinate type of equatorial queries.
func OptClientTCoor(tcoor int) ClientOption {
	return func(c *Client) { c.tcoor = tcoor }
}

// OptClientTimeout bounds a whole Query, retries and backoff included.
func OptClientTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func OptClientRetryMax(n int) ClientOption {
	return func(c *Client) { c.http.RetryMax = n }
}

func OptClientLogger(l logger.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// NewClient returns a client for the public Miriade service.
func NewClient(opts ...ClientOption) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = DefaultRetryMax
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	c := &Client{
		url:      DefaultURL,
		observer: DefaultObserver,
		shift:    DefaultShift,
		tcoor:    DefaultTCoor,
		timeout:  DefaultTimeout,
		log:      logger.NopLogger,
		http:     hc,
	}
	for _, opt := range opts {
		opt(c)
	}
	hc.HTTPClient.Timeout = c.timeout
	hc.Logger = debugLogger{c.log}
	return c
}

type debugLogger struct {
	logger.Logger
}

func (l debugLogger) Printf(format string, v ...interface{}) {
	l.Debugf(format, v...)
}

// Ephemerides holds one row per requested epoch, in request order.
type Ephemerides struct {
	// Columns lists every key of the rows in first-seen order.
	Columns []string
	Rows    []map[string]gjson.Result
}

// Len returns the number of rows.
func (e *Ephemerides) Len() int { return len(e.Rows) }

// Target returns the Miriade name of an identifier: comets (numbered
// periodic ones ending in P and C/ designations) get the c: prefix,
// everything else is an asteroid.
func Target(ident string) string {
	if strings.HasSuffix(ident, "P") || strings.HasPrefix(ident, "C/") {
		return "c:" + ident
	}
	return "a:" + ident
}

func (c *Client) params(ident string, plane Plane) url.Values {
	tcoor := c.tcoor
	if plane == Ecliptic {
		tcoor = 1
	}
	v := url.Values{}
	v.Set("-name", Target(ident))
	v.Set("-mime", "json")
	v.Set("-rplane", strconv.Itoa(int(plane)))
	v.Set("-tcoor", strconv.Itoa(tcoor))
	v.Set("-output", "--jd,--colors(SDSS:r,SDSS:g)")
	v.Set("-observer", c.observer)
	v.Set("-tscale", "UTC")
	return v
}

func (c *Client) epochs(jd []float64) []byte {
	shift := c.shift / 24.0 / 3600.0
	lines := make([]string, len(jd))
	for i, e := range jd {
		lines[i] = fmt.Sprintf("%.6f", e+shift)
	}
	return []byte(strings.Join(lines, "\n"))
}

// Query returns the ephemerides of ident at the Julian dates jd. Any
// failure to obtain a usable answer is a NetworkError.
func (c *Client) Query(ctx context.Context, ident string, jd []float64, plane Plane) (eph *Ephemerides, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		CounterQueries.WithLabelValues(strconv.Itoa(int(plane)), outcome).Inc()
	}()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("epochs", "epochs")
	if err != nil {
		return nil, errors.Wrap(err, "creating epochs part")
	}
	if _, err := fw.Write(c.epochs(jd)); err != nil {
		return nil, errors.Wrap(err, "writing epochs")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "closing multipart body")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url+"?"+c.params(ident, plane).Encode(), body.Bytes())
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrNetwork, "building request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.log.Debugf("querying %s for %d epochs in plane %d", Target(ident), len(jd), plane)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WithCodef(err, errors.ErrNetwork, "querying ephemerides of %s", ident)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithCodef(err, errors.ErrNetwork, "reading ephemerides of %s", ident)
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Newf(errors.ErrNetwork, "ephemerides of %s: unexpected status %s", ident, resp.Status)
	}
	return parseEphemerides(ident, data)
}

func parseEphemerides(ident string, data []byte) (*Ephemerides, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.Newf(errors.ErrNetwork, "ephemerides of %s: response is not JSON", ident)
	}
	rows := gjson.GetBytes(data, "data")
	if !rows.IsArray() {
		return nil, errors.Newf(errors.ErrNetwork, "ephemerides of %s: response has no data", ident)
	}

	eph := &Ephemerides{}
	seen := make(map[string]bool)
	var bad error
	rows.ForEach(func(_, row gjson.Result) bool {
		if !row.IsObject() {
			bad = errors.Newf(errors.ErrNetwork, "ephemerides of %s: data holds a %s", ident, row.Type)
			return false
		}
		r := make(map[string]gjson.Result)
		row.ForEach(func(k, v gjson.Result) bool {
			name := k.String()
			if !seen[name] {
				seen[name] = true
				eph.Columns = append(eph.Columns, name)
			}
			r[name] = v
			return true
		})
		eph.Rows = append(eph.Rows, r)
		return true
	})
	if bad != nil {
		return nil, bad
	}
	return eph, nil
}
