package model

import (
	"fmt"
	"strings"
)

// Frame selects one of the supported celestial reference frames.
type Frame int

const (
	FrameUnknown    Frame = iota
	FrameEquatorial       // ICRS right ascension / declination
	FrameEcliptic         // J2000 ecliptic longitude / latitude
	FrameGalactic         // galactic longitude / latitude
)

// Frames lists the supported frames in a stable order.
var Frames = []Frame{FrameEquatorial, FrameEcliptic, FrameGalactic}

// Valid reports whether f is one of the supported frames.
func (f Frame) Valid() bool {
	return f == FrameEquatorial || f == FrameEcliptic || f == FrameGalactic
}

// Index maps a valid frame onto 0..2 for table lookups. Invalid frames map to -1.
func (f Frame) Index() int {
	if !f.Valid() {
		return -1
	}
	return int(f) - 1
}

func (f Frame) String() string {
	switch f {
	case FrameEquatorial:
		return "equatorial"
	case FrameEcliptic:
		return "ecliptic"
	case FrameGalactic:
		return "galactic"
	default:
		return fmt.Sprintf("frame(%d)", int(f))
	}
}

// AxisNames returns the conventional (longitude, latitude) axis names.
func (f Frame) AxisNames() (string, string) {
	switch f {
	case FrameEquatorial:
		return "ra", "dec"
	case FrameEcliptic:
		return "elon", "elat"
	case FrameGalactic:
		return "l", "b"
	default:
		return "lon", "lat"
	}
}

// ParseFrame accepts the frame name or a common alias (icrs, ecl, gal).
func ParseFrame(s string) (Frame, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equatorial", "icrs", "eq", "radec":
		return FrameEquatorial, nil
	case "ecliptic", "ecl", "barycentrictrueecliptic":
		return FrameEcliptic, nil
	case "galactic", "gal":
		return FrameGalactic, nil
	default:
		return FrameUnknown, fmt.Errorf("unknown frame %q", s)
	}
}
