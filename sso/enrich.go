// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package sso

import (
	"context"
	"fmt"
	"math"

	fink "github.com/karpov-sv/fink-utils"
	"github.com/karpov-sv/fink-utils/batch"
	"github.com/karpov-sv/fink-utils/errors"
	"github.com/karpov-sv/fink-utils/logger"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// Column names read and written by the Enricher.
const (
	ColumnIdentifier = "i:ssnamenr"
	ColumnJD         = "i:jd"
	ColumnMagnitude  = "i:magpsf"
	ColumnReducedMag = "i:magpsf_red"

	ColumnRA        = "RA"
	ColumnDec       = "Dec"
	ColumnLongitude = "Longitude"
	ColumnLatitude  = "Latitude"

	serviceDec = "DEC"
)

// DefaultConcurrency is the number of objects queried at once.
const DefaultConcurrency = 4

// Enricher appends ephemerides columns to batches of detections.
type Enricher struct {
	client      *Client
	log         logger.Logger
	ecliptic    bool
	concurrency int
}

// EnricherOption configures an Enricher.
type EnricherOption func(e *Enricher)

// WithEcliptic toggles the second query for ecliptic coordinates.
func WithEcliptic(on bool) EnricherOption {
	return func(e *Enricher) { e.ecliptic = on }
}

// WithConcurrency bounds the number of objects queried in parallel.
func WithConcurrency(n int) EnricherOption {
	return func(e *Enricher) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEnricher returns an Enricher querying through client.
func NewEnricher(sess *fink.Session, client *Client, opts ...EnricherOption) (*Enricher, error) {
	if err := fink.CheckSession(sess); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New(errors.ErrConfiguration, "enricher needs a client")
	}
	e := &Enricher{
		client:      client,
		log:         sess.Logger().WithPrefix("[sso] "),
		ecliptic:    true,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// group is the set of rows of one object, in input order.
type group struct {
	ident string
	rows  []int
	jd    []float64

	// eph is aligned with rows; nil when the object passes through.
	eph   []map[string]gjson.Result
	order []string
}

// Enrich queries the ephemerides of every object of b and returns b with
// the service columns, RA, Dec, ecliptic coordinates and the reduced
// magnitude appended. An object whose queries fail keeps null ephemerides;
// an answer whose row count differs from the object's aborts the batch
// with a DataShapeError. Rows keep their input order.
func (e *Enricher) Enrich(ctx context.Context, b *batch.Batch) (*batch.Batch, error) {
	for _, name := range []string{ColumnIdentifier, ColumnJD, ColumnMagnitude} {
		if b.Index(name) < 0 {
			return nil, errors.Newf(errors.ErrDataShape, "no column %q", name)
		}
	}
	groups, err := e.groups(b)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			return e.query(gctx, grp)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.merge(b, groups)
}

func (e *Enricher) groups(b *batch.Batch) ([]*group, error) {
	idx := b.Index(ColumnIdentifier)
	jdx := b.Index(ColumnJD)
	byIdent := make(map[string]*group)
	var groups []*group
	for i, r := range b.Rows() {
		if r[idx] == nil {
			continue
		}
		ident := fmt.Sprint(r[idx])
		jd, ok := asFloat(r[jdx])
		if !ok {
			return nil, errors.Newf(errors.ErrDataShape, "row %d: %s is %v", i, ColumnJD, r[jdx])
		}
		grp, ok := byIdent[ident]
		if !ok {
			grp = &group{ident: ident}
			byIdent[ident] = grp
			groups = append(groups, grp)
		}
		grp.rows = append(grp.rows, i)
		grp.jd = append(grp.jd, jd)
	}
	return groups, nil
}

// query fills grp.eph. Only a row count mismatch is returned; query
// failures leave the group to pass through.
func (e *Enricher) query(ctx context.Context, grp *group) error {
	eq, err := e.client.Query(ctx, grp.ident, grp.jd, Equatorial)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.passThrough(grp, err)
		return nil
	}
	if eq.Len() != len(grp.rows) {
		return errors.Newf(errors.ErrDataShape, "%s: %d ephemerides for %d detections", grp.ident, eq.Len(), len(grp.rows))
	}

	var ecl *Ephemerides
	if e.ecliptic {
		if ecl, err = e.client.Query(ctx, grp.ident, grp.jd, Ecliptic); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.passThrough(grp, err)
			return nil
		}
		if ecl.Len() != len(grp.rows) {
			return errors.Newf(errors.ErrDataShape, "%s: %d ecliptic ephemerides for %d detections", grp.ident, ecl.Len(), len(grp.rows))
		}
	}

	rows := make([]map[string]gjson.Result, len(grp.rows))
	for i, r := range eq.Rows {
		ra, err := parseAngle(r[ColumnRA])
		if err != nil {
			e.passThrough(grp, errors.Wrapf(err, "RA of row %d", i))
			return nil
		}
		dec, err := parseAngle(r[serviceDec])
		if err != nil {
			e.passThrough(grp, errors.Wrapf(err, "DEC of row %d", i))
			return nil
		}
		out := make(map[string]gjson.Result, len(r)+4)
		for k, v := range r {
			if k != ColumnRA && k != serviceDec {
				out[k] = v
			}
		}
		out[ColumnRA] = number(wrap360(ra * 15))
		out[ColumnDec] = number(dec)
		if ecl != nil {
			lon, lerr := parseAngle(ecl.Rows[i][ColumnLongitude])
			lat, berr := parseAngle(ecl.Rows[i][ColumnLatitude])
			if lerr != nil || berr != nil {
				e.passThrough(grp, errors.Newf(errors.ErrDataShape, "ecliptic coordinates of row %d", i))
				return nil
			}
			out[ColumnLongitude] = number(wrap360(lon))
			out[ColumnLatitude] = number(lat)
		}
		rows[i] = out
	}
	grp.eph = rows
	grp.columns(eq)
	return nil
}

func (e *Enricher) passThrough(grp *group, err error) {
	e.log.Warnf("no ephemerides for %s, keeping its %d rows unchanged: %v", grp.ident, len(grp.rows), err)
	CounterPassThroughRows.Add(float64(len(grp.rows)))
}

// columns reorders the service columns of a group so RA and Dec come
// after the other service columns.
func (grp *group) columns(eq *Ephemerides) {
	if len(grp.eph) == 0 {
		return
	}
	order := make([]string, 0, len(eq.Columns)+2)
	for _, c := range eq.Columns {
		if c != ColumnRA && c != serviceDec {
			order = append(order, c)
		}
	}
	order = append(order, ColumnRA, ColumnDec)
	if _, ok := grp.eph[0][ColumnLongitude]; ok {
		order = append(order, ColumnLongitude, ColumnLatitude)
	}
	grp.order = order
}

func number(f float64) gjson.Result {
	return gjson.Result{Type: gjson.Number, Num: f, Raw: fmt.Sprint(f)}
}

func (e *Enricher) merge(b *batch.Batch, groups []*group) (*batch.Batch, error) {
	// Service columns in first-seen order over the groups.
	var names []string
	seen := make(map[string]bool)
	perRow := make([]map[string]gjson.Result, b.Len())
	enriched := 0
	for _, grp := range groups {
		if grp.eph == nil {
			continue
		}
		enriched++
		for _, c := range grp.order {
			if !seen[c] {
				seen[c] = true
				names = append(names, c)
			}
		}
		for i, r := range grp.rows {
			perRow[r] = grp.eph[i]
		}
	}
	if enriched == 0 {
		return b, nil
	}

	fields := b.Fields()
	for _, n := range names {
		if b.Index(n) >= 0 {
			e.log.Debugf("service column %q shadows an input column, keeping the input", n)
			continue
		}
		fields = append(fields, batch.Field{Name: n, Type: columnType(n, perRow), Nullable: true})
	}
	fields = append(fields, batch.Field{Name: ColumnReducedMag, Type: batch.Double(), Nullable: true})

	mag := b.Index(ColumnMagnitude)
	rows := make([]batch.Row, b.Len())
	for j, r := range b.Rows() {
		out := make(batch.Row, 0, len(fields))
		out = append(out, r...)
		eph := perRow[j]
		for _, f := range fields[len(r) : len(fields)-1] {
			out = append(out, columnValue(f.Type, eph, f.Name))
		}
		out = append(out, reducedMagnitude(r[mag], eph))
		rows[j] = out
	}
	return batch.New(fields, rows...)
}

// columnType is double when every value of the column is a number,
// boolean when every value is a boolean and string otherwise.
func columnType(name string, rows []map[string]gjson.Result) batch.DataType {
	numbers, bools, others := 0, 0, 0
	for _, r := range rows {
		v, ok := r[name]
		if !ok {
			continue
		}
		switch v.Type {
		case gjson.Null:
		case gjson.Number:
			numbers++
		case gjson.True, gjson.False:
			bools++
		default:
			others++
		}
	}
	switch {
	case others == 0 && bools == 0:
		return batch.Double()
	case others == 0 && numbers == 0:
		return batch.Boolean()
	}
	return batch.String()
}

func columnValue(t batch.DataType, row map[string]gjson.Result, name string) interface{} {
	v, ok := row[name]
	if !ok || v.Type == gjson.Null {
		return nil
	}
	switch t.Kind {
	case batch.KindDouble:
		return v.Float()
	case batch.KindBoolean:
		return v.Bool()
	}
	if v.Type == gjson.String {
		return v.Str
	}
	return v.Raw
}

// reducedMagnitude is the magnitude at unit distances from the Sun and
// the observer.
func reducedMagnitude(mag interface{}, eph map[string]gjson.Result) interface{} {
	if eph == nil {
		return nil
	}
	m, ok := asFloat(mag)
	dobs, dhelio := eph["Dobs"], eph["Dhelio"]
	if !ok || dobs.Type != gjson.Number || dhelio.Type != gjson.Number {
		return nil
	}
	return m - 5*math.Log10(dobs.Float()*dhelio.Float())
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}
