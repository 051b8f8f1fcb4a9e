package timectrl

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// MJD is a Modified Julian Date (days).
type MJD float64

const (
	// DaysPerJulianYear is the length of a Julian year.
	DaysPerJulianYear = 365.25
	// mjdOffset converts a Julian date to an MJD.
	mjdOffset = 2400000.5
	// J2000 is the MJD of the J2000.0 epoch (2000-01-01T12:00 TT).
	J2000 MJD = 51544.5
)

var mjdZero = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

// MJDFromTime converts a UTC instant to an MJD. go-satellite computes the
// Julian date for whole seconds and is valid for years 1901 through 2099; the
// fractional second is added back here.
func MJDFromTime(t time.Time) MJD {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	frac := float64(t.Nanosecond()) / float64(24*time.Hour)
	return MJD(jd - mjdOffset + frac)
}

// Time converts the MJD back to a UTC instant, rounded to the microsecond.
func (m MJD) Time() time.Time {
	d := time.Duration(math.Round(float64(m)*86400e6)) * time.Microsecond
	return mjdZero.Add(d)
}

// JulianEpoch returns the epoch as a Julian year, e.g. 2000.0 for J2000.
func (m MJD) JulianEpoch() float64 {
	return 2000.0 + float64(m-J2000)/DaysPerJulianYear
}

func (m MJD) String() string {
	return strconv.FormatFloat(float64(m), 'f', -1, 64)
}

// JulianYearsBetween returns (to - from) in Julian years.
func JulianYearsBetween(from, to MJD) float64 {
	return float64(to-from) / DaysPerJulianYear
}

// ErrBadEpoch reports an epoch string ParseEpoch cannot interpret.
var ErrBadEpoch = errors.New("invalid epoch")

// ParseEpoch accepts an MJD ("58650", "MJD58650.5"), a Julian epoch
// ("J2019.5"), an RFC 3339 instant, a calendar date ("2019-06-20"), or "now".
func ParseEpoch(s string, now func() time.Time) (MJD, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadEpoch)
	}
	lower := strings.ToLower(raw)
	switch {
	case lower == "now":
		if now == nil {
			now = time.Now
		}
		return MJDFromTime(now()), nil
	case strings.HasPrefix(lower, "mjd"):
		return parseMJD(raw[3:])
	case strings.HasPrefix(lower, "j"):
		year, err := strconv.ParseFloat(raw[1:], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: julian epoch %q: %v", ErrBadEpoch, s, err)
		}
		if !finite(year) {
			return 0, fmt.Errorf("%w: julian epoch %q is not finite", ErrBadEpoch, s)
		}
		return J2000 + MJD((year-2000.0)*DaysPerJulianYear), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return MJDFromTime(t), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return MJDFromTime(t), nil
	}
	return parseMJD(raw)
}

func parseMJD(s string) (MJD, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: mjd %q: %v", ErrBadEpoch, s, err)
	}
	if !finite(v) {
		return 0, fmt.Errorf("%w: mjd %q is not finite", ErrBadEpoch, s)
	}
	return MJD(v), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
