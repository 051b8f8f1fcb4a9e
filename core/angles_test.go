package core

import (
	"errors"
	"testing"
)

func TestParseHourAngle(t *testing.T) {
	cases := map[string]float64{
		"05:34:31.973": 83.63322083333333,
		"00:00:00":     0,
		"12":           180,
		"23:59:59.999": 359.99999583333333,
		" 18:00 ":      270,
	}
	for in, want := range cases {
		got, err := ParseHourAngle(in)
		if err != nil {
			t.Fatalf("ParseHourAngle(%q): %v", in, err)
		}
		assertClose(t, in, got, want, 1e-9)
	}

	for _, bad := range []string{"", "24:00:00", "-01:00:00", "05:60:00", "a:b:c", "1:2:3:4", "nan", "NaN:00:00", "05:nan", "inf", "+Inf"} {
		if _, err := ParseHourAngle(bad); !errors.Is(err, ErrBadAngle) {
			t.Fatalf("ParseHourAngle(%q) error = %v, want ErrBadAngle", bad, err)
		}
	}
}

func TestParseDegrees(t *testing.T) {
	cases := map[string]float64{
		"+22:00:52.06": 22.01446111111111,
		"-00:30":       -0.5,
		"-47:15:09.7":  -47.25269444444444,
		"90":           90,
		"-12.5":        -12.5,
	}
	for in, want := range cases {
		got, err := ParseDegrees(in)
		if err != nil {
			t.Fatalf("ParseDegrees(%q): %v", in, err)
		}
		assertClose(t, in, got, want, 1e-9)
	}
	for _, bad := range []string{"91:00:00", "nan", "-NaN", "+22:nan:00", "inf", "-Inf:00"} {
		if got, err := ParseDegrees(bad); !errors.Is(err, ErrBadAngle) {
			t.Fatalf("ParseDegrees(%q) = %v, %v; want ErrBadAngle", bad, got, err)
		}
	}
}

func TestFormatAngles(t *testing.T) {
	if got := FormatHourAngle(83.63322083333333); got != "05:34:31.973" {
		t.Fatalf("FormatHourAngle = %q", got)
	}
	if got := FormatHourAngle(-15); got != "23:00:00.000" {
		t.Fatalf("FormatHourAngle(-15) = %q", got)
	}
	if got := FormatDegrees(22.01446111111111); got != "+22:00:52.06" {
		t.Fatalf("FormatDegrees = %q", got)
	}
	if got := FormatDegrees(-0.5); got != "-00:30:00.00" {
		t.Fatalf("FormatDegrees(-0.5) = %q", got)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, deg := range []float64{0.001, 45.5, 123.456789, 359.9} {
		got, err := ParseHourAngle(FormatHourAngle(deg))
		if err != nil {
			t.Fatalf("ParseHourAngle: %v", err)
		}
		// 1 ms of time is 0.015 arcsec.
		assertClose(t, "hour angle round trip", got, deg, 0.015/3600)
	}
}
