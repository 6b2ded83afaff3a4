package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// piExpr matches pi, 2pi, 2*pi, pi/2, 3*pi/4, -pi/2 and friends.
var piExpr = regexp.MustCompile(`^([+-]?)(\d*\.?\d*)\s*\*?\s*pi(?:\s*/\s*(\d+\.?\d*))?$`)

// ParseAngle parses a plain number or a multiple of pi.
func ParseAngle(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}

	m := piExpr.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0, false
	}

	coeff := 1.0
	if m[2] != "" {
		var err error
		if coeff, err = strconv.ParseFloat(m[2], 64); err != nil {
			return 0, false
		}
	}
	v := coeff * math.Pi
	if m[3] != "" {
		denom, err := strconv.ParseFloat(m[3], 64)
		if err != nil || denom == 0 {
			return 0, false
		}
		v /= denom
	}
	if m[1] == "-" {
		v = -v
	}
	return v, true
}
