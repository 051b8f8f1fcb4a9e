package psrcat

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/model"
)

var (
	ErrNotFound        = errors.New("pulsar not found in catalog")
	ErrMalformedOutput = errors.New("malformed psrcat output")
)

const headerLines = 2

// Record is one catalog row keyed by column name. Missing values are absent.
type Record map[string]string

// Name returns the pulsar name column.
func (r Record) Name() string { return r["name"] }

// Float parses a column; missing columns yield nil.
func (r Record) Float(field string) (*float64, error) {
	raw, ok := r[field]
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrMalformedOutput, field, raw)
	}
	return &v, nil
}

// Ecliptic reports whether the record's authoritative position is ecliptic,
// which psrcat signals by citing the ecliptic latitude.
func (r Record) Ecliptic() bool {
	return len(r["elat"+citeSuffix]) > 1
}

// Covers reports whether r carries every column in fields, present or not,
// as recorded by a previous fetch.
func (r Record) Covers(fields []string) bool {
	cols := r[columnsKey]
	if cols == "" {
		return false
	}
	have := make(map[string]bool)
	for _, c := range strings.Split(cols, ",") {
		have[c] = true
	}
	for _, f := range fields {
		if !have[f] {
			return false
		}
	}
	return true
}

// columnsKey stores the requested column list alongside the values so cached
// rows can be checked against a later request.
const columnsKey = "_columns"

// ParseRecords parses psrcat long_error_csv output: two header lines, then
// rows split on ';' whose first len(fields) columns are named by fields.
// "*" and empty cells are missing values.
func ParseRecords(out []byte, fields []string) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if line <= headerLines {
			continue
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "WARNING") {
			continue
		}
		cols := strings.Split(text, ";")
		if len(cols) < len(fields) {
			return nil, fmt.Errorf("%w: line %d has %d columns, want %d", ErrMalformedOutput, line, len(cols), len(fields))
		}
		rec := make(Record, len(fields)+1)
		for i, field := range fields {
			v := strings.TrimSpace(cols[i])
			if v == "" || v == "*" {
				continue
			}
			rec[field] = v
		}
		rec[columnsKey] = strings.Join(fields, ",")
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return records, nil
}

// consumed lists the columns folded into the typed record shapes; every
// other present column becomes an opaque attribute.
var consumed = map[string]bool{
	"ra": true, "ra_err": true, "dec": true, "dec_err": true,
	"elon": true, "elon_err": true, "elat": true, "elat_err": true,
	"pmra": true, "pmra_err": true, "pmdec": true, "pmdec_err": true,
	"pmelon": true, "pmelon_err": true, "pmelat": true, "pmelat_err": true,
	"posepoch": true, "name": true, columnsKey: true,
}

func (r Record) attrs() map[string]string {
	out := make(map[string]string)
	for k, v := range r {
		if !consumed[k] {
			out[k] = v
		}
	}
	return out
}

type floatField struct {
	name string
	dst  **float64
}

func (r Record) floats(fields ...floatField) error {
	for _, f := range fields {
		v, err := r.Float(f.name)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}

// EquatorialRow converts r into the equatorial catalog shape.
func (r Record) EquatorialRow() (model.EquatorialRow, error) {
	row := model.EquatorialRow{Name: r.Name(), RA: r["ra"], Dec: r["dec"], Attrs: r.attrs()}
	if row.RA == "" || row.Dec == "" {
		return row, fmt.Errorf("%w: %s has no equatorial position", ErrMalformedOutput, row.Name)
	}
	err := r.floats(
		floatField{"ra_err", &row.RAErr},
		floatField{"dec_err", &row.DecErr},
		floatField{"pmra", &row.PMRA},
		floatField{"pmdec", &row.PMDec},
		floatField{"pmra_err", &row.PMRAErr},
		floatField{"pmdec_err", &row.PMDecErr},
		floatField{"posepoch", &row.PosEpoch},
	)
	return row, err
}

// EclipticRow converts r into the ecliptic catalog shape.
func (r Record) EclipticRow() (model.EclipticRow, error) {
	row := model.EclipticRow{Name: r.Name(), Attrs: r.attrs()}
	var elon, elat *float64
	err := r.floats(
		floatField{"elon", &elon},
		floatField{"elat", &elat},
		floatField{"elon_err", &row.ELonErr},
		floatField{"elat_err", &row.ELatErr},
		floatField{"pmelon", &row.PMELon},
		floatField{"pmelat", &row.PMELat},
		floatField{"pmelon_err", &row.PMELonErr},
		floatField{"pmelat_err", &row.PMELatErr},
		floatField{"posepoch", &row.PosEpoch},
	)
	if err != nil {
		return row, err
	}
	if elon == nil || elat == nil {
		return row, fmt.Errorf("%w: %s has no ecliptic position", ErrMalformedOutput, row.Name)
	}
	row.ELon, row.ELat = *elon, *elat
	return row, nil
}

// Pulsar builds a record in the frame psrcat treats as authoritative.
func (r Record) Pulsar(opts ...core.Option) (*core.Pulsar, error) {
	if r.Ecliptic() {
		row, err := r.EclipticRow()
		if err != nil {
			return nil, err
		}
		return core.NewFromEcliptic(row, opts...)
	}
	row, err := r.EquatorialRow()
	if err != nil {
		return nil, err
	}
	return core.NewFromEquatorial(row, opts...)
}
