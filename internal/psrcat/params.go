package psrcat

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownParam reports a parameter name psrcat does not define.
var ErrUnknownParam = errors.New("unrecognised psrcat parameter")

// ParamType is the value type of a psrcat column.
type ParamType string

const (
	TypeString      ParamType = "str"
	TypeDecimal     ParamType = "dec"
	TypeSexagesimal ParamType = "sexg"
	TypeMJD         ParamType = "mjd"
	TypeInteger     ParamType = "int"
)

const (
	numField      = "num"
	nameCiteField = "cite"
	errSuffix     = "_err"
	citeSuffix    = "_cite"
)

// DefaultParams are always requested; they carry what a record needs.
var DefaultParams = []string{
	"name", "raj", "decj", "elat", "elong", "dm",
	"pmra", "pmdec", "pmelat", "pmelong", "posepoch",
}

//go:embed params.yml
var paramsYAML []byte

var loadParams = sync.OnceValues(func() (map[string]ParamType, error) {
	var table map[string]ParamType
	if err := yaml.Unmarshal(paramsYAML, &table); err != nil {
		return nil, fmt.Errorf("parse params.yml: %w", err)
	}
	return table, nil
})

// LookupParam returns the type of a parameter, case-insensitively.
func LookupParam(name string) (ParamType, error) {
	table, err := loadParams()
	if err != nil {
		return "", err
	}
	t, ok := table[strings.ToUpper(name)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	return t, nil
}

// fieldName maps a parameter onto its column name. The four parameters
// whose psrcat name carries a trailing J or G drop it.
func fieldName(param string) string {
	switch strings.ToUpper(param) {
	case "RAJ", "DECJ", "ELONG", "PMELONG":
		return strings.ToLower(param[:len(param)-1])
	default:
		return strings.ToLower(param)
	}
}

// GenerateFields lists the long_error_csv column names psrcat produces for
// params: a leading "num", then per parameter its value, an "_err" column
// for dec and sexg types, and a citation column ("cite" for NAME).
func GenerateFields(params []string) ([]string, error) {
	fields := []string{numField}
	for _, param := range params {
		typ, err := LookupParam(param)
		if err != nil {
			return nil, err
		}
		name := fieldName(param)
		fields = append(fields, name)
		if typ == TypeDecimal || typ == TypeSexagesimal {
			fields = append(fields, name+errSuffix)
		}
		if strings.EqualFold(param, "NAME") {
			fields = append(fields, nameCiteField)
		} else {
			fields = append(fields, name+citeSuffix)
		}
	}
	return fields, nil
}

// withDefaults appends extra to DefaultParams, skipping duplicates.
func withDefaults(extra []string) []string {
	params := append([]string(nil), DefaultParams...)
	seen := make(map[string]bool, len(params)+len(extra))
	for _, p := range params {
		seen[strings.ToLower(p)] = true
	}
	for _, p := range extra {
		key := strings.ToLower(strings.TrimSpace(p))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		params = append(params, key)
	}
	return params
}
