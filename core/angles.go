package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrBadAngle reports an unparseable sexagesimal or decimal angle.
var ErrBadAngle = errors.New("invalid angle")

// ParseSexagesimal parses "dd:mm:ss.s", "dd:mm" or a plain decimal into a
// decimal value in the leading unit. A leading sign applies to the whole
// value, so "-00:30" is -0.5.
func ParseSexagesimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadAngle)
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q has too many fields", ErrBadAngle, s)
	}
	value := 0.0
	scale := 1.0
	for i, part := range parts {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrBadAngle, s, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: %q is not finite", ErrBadAngle, s)
		}
		if f < 0 || (i > 0 && f >= 60) {
			return 0, fmt.Errorf("%w: field %q out of range", ErrBadAngle, part)
		}
		value += f / scale
		scale *= 60
	}
	return sign * value, nil
}

// ParseHourAngle parses a sexagesimal right ascension in hours and returns
// degrees.
func ParseHourAngle(s string) (float64, error) {
	h, err := ParseSexagesimal(s)
	if err != nil {
		return 0, err
	}
	if h < 0 || h >= 24 {
		return 0, fmt.Errorf("%w: hour angle %v outside [0, 24)", ErrBadAngle, h)
	}
	return h * 15, nil
}

// ParseDegrees parses a sexagesimal declination or latitude in degrees.
func ParseDegrees(s string) (float64, error) {
	d, err := ParseSexagesimal(s)
	if err != nil {
		return 0, err
	}
	if math.Abs(d) > 90 {
		return 0, fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrBadAngle, d)
	}
	return d, nil
}

// FormatHourAngle renders degrees as "hh:mm:ss.sss".
func FormatHourAngle(deg float64) string {
	return formatSexagesimal(NormalizeLongitude(deg)/15, 3, false)
}

// FormatDegrees renders degrees as "+dd:mm:ss.ss".
func FormatDegrees(deg float64) string {
	return formatSexagesimal(deg, 2, true)
}

func formatSexagesimal(v float64, decimals int, signed bool) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	} else if signed {
		sign = "+"
	}
	pow := math.Pow(10, float64(decimals))
	totalSec := math.Round(v*3600*pow) / pow
	whole := math.Floor(totalSec / 3600)
	minutes := math.Floor((totalSec - whole*3600) / 60)
	seconds := totalSec - whole*3600 - minutes*60
	width := decimals + 3
	return fmt.Sprintf("%s%02d:%02d:%0*.*f", sign, int(whole), int(minutes), width, decimals, seconds)
}
