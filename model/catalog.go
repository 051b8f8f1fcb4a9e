package model

// EquatorialRow is the equatorial catalog query shape. RA and Dec are
// sexagesimal strings as reported by the catalog ("05:34:31.973",
// "+22:00:52.06"). Errors are nil when the catalog has none.
type EquatorialRow struct {
	Name string

	RA       string
	Dec      string
	RAErr    *float64 // seconds of time
	DecErr   *float64 // arcsec
	PMRA     *float64 // mas/yr, already scaled by cos(dec)
	PMDec    *float64 // mas/yr
	PMRAErr  *float64
	PMDecErr *float64

	PosEpoch *float64 // MJD

	Attrs map[string]string
}

// EclipticRow is the ecliptic catalog query shape. Longitude and latitude are
// decimal degrees.
type EclipticRow struct {
	Name string

	ELon      float64
	ELat      float64
	ELonErr   *float64 // degrees
	ELatErr   *float64 // degrees
	PMELon    *float64 // mas/yr, already scaled by cos(elat)
	PMELat    *float64 // mas/yr
	PMELonErr *float64
	PMELatErr *float64

	PosEpoch *float64 // MJD

	Attrs map[string]string
}
