package mapper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValidateFunc checks one raw cell value against a rule. It receives
// the value before transformation so rules always see what the
// spreadsheet actually contained.
type ValidateFunc func(string) error

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var validators = map[string]ValidateFunc{
	"non-empty": func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("must not be empty")
		}
		return nil
	},
	"numeric": func(s string) error {
		cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
			return fmt.Errorf("must be numeric, got %q", s)
		}
		return nil
	},
	"email": func(s string) error {
		if !emailPattern.MatchString(strings.TrimSpace(s)) {
			return fmt.Errorf("invalid email %q", s)
		}
		return nil
	},
	"date": func(s string) error {
		s = strings.TrimSpace(s)
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				return nil
			}
		}
		if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
			return nil
		}
		return fmt.Errorf("invalid date %q", s)
	},
	"max-length-255": func(s string) error {
		if len(s) > 255 {
			return fmt.Errorf("longer than 255 characters")
		}
		return nil
	},
}

// Validate runs the registered rule with the given id against value.
func Validate(id, value string) error {
	fn, ok := validators[id]
	if !ok {
		return fmt.Errorf("unknown validation rule %q", id)
	}
	return fn(value)
}

// KnownRule reports whether id names a registered validation rule.
func KnownRule(id string) bool {
	_, ok := validators[id]
	return ok
}
