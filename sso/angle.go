// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package sso

import (
	"math"
	"strconv"
	"strings"

	"github.com/karpov-sv/fink-utils/errors"
	"github.com/tidwall/gjson"
)

// parseAngle reads a number or a sexagesimal string such as
// "-12 30 36.0" or "12:30:36".
func parseAngle(v gjson.Result) (float64, error) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), nil
	case gjson.String:
		return parseSexagesimal(v.Str)
	}
	return 0, errors.Newf(errors.ErrDataShape, "angle %s is not a number or a string", v.Raw)
}

func parseSexagesimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ':' })
	if len(parts) == 0 || len(parts) > 3 {
		return 0, errors.Newf(errors.ErrDataShape, "malformed angle %q", s)
	}
	neg := strings.HasPrefix(parts[0], "-")
	out := 0.0
	scale := 1.0
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, errors.Newf(errors.ErrDataShape, "malformed angle %q", s)
		}
		out += math.Abs(f) / scale
		scale *= 60
	}
	if neg {
		out = -out
	}
	return out, nil
}

// wrap360 brings an angle in degrees into [0, 360).
func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
