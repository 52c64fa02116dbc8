package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TransformFunc converts one raw cell value into its persisted form.
type TransformFunc func(string) (any, error)

var transforms = map[string]TransformFunc{
	"trim":           func(s string) (any, error) { return strings.TrimSpace(s), nil },
	"uppercase":      func(s string) (any, error) { return strings.ToUpper(strings.TrimSpace(s)), nil },
	"lowercase":      func(s string) (any, error) { return strings.ToLower(strings.TrimSpace(s)), nil },
	"currency-parse": parseCurrency,
	"date-parse":     parseDate,
	"number-parse":   parseNumber,
	"boolean-parse":  parseBoolean,
}

// Transform applies the registered transform with the given id. An
// unknown id is a mapping configuration error, reported at use time so
// a bad admin edit cannot take the whole import down.
func Transform(id, value string) (any, error) {
	fn, ok := transforms[id]
	if !ok {
		return nil, fmt.Errorf("unknown transformation %q", id)
	}
	return fn(value)
}

// KnownTransform reports whether id names a registered transform.
func KnownTransform(id string) bool {
	_, ok := transforms[id]
	return ok
}

var currencyReplacer = strings.NewReplacer(
	"$", "", "€", "", "£", "", "¥", "", "R$", "", ",", "", " ", "", " ", "")

func parseCurrency(s string) (any, error) {
	cleaned := currencyReplacer.Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return nil, fmt.Errorf("empty currency value")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid currency value %q", s)
	}
	return v, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	"02-01-2006",
	"2006-01-02T15:04:05Z07:00",
}

// excelEpoch is day zero of the 1900 date system (serial 1 is
// 1899-12-31, with the historical off-by-one for the phantom leap day).
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

func parseDate(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty date value")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	// Cells formatted as dates arrive from the workbook as serial numbers.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 300000 {
		t := excelEpoch.Add(time.Duration(serial * 24 * float64(time.Hour)))
		return t.Format("2006-01-02"), nil
	}
	return nil, fmt.Errorf("invalid date value %q", s)
}

func parseNumber(s string) (any, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func parseBoolean(s string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "si", "sí", "1":
		return true, nil
	case "false", "no", "n", "0", "":
		return false, nil
	}
	return nil, fmt.Errorf("invalid boolean %q", s)
}
