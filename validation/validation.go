package validation

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Violations maps a form field to the first problem found with it.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// First returns one violation message in field order, or "".
func (v Violations) First(fields ...string) string {
	for _, f := range fields {
		if msg, ok := v[f]; ok {
			return msg
		}
	}
	return ""
}

func (v Violations) add(field, msg string) {
	if _, exists := v[field]; !exists {
		v[field] = msg
	}
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v.add(field, field+" is required")
	}
}

func Email(field, value string, v Violations) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(value[strings.LastIndex(value, "@"):], ".") {
		v.add(field, field+" is not a valid email address")
	}
}

func MinLength(field, value string, n int, v Violations) {
	if utf8.RuneCountInString(value) < n {
		v.add(field, field+" is too short")
	}
}

// MaxBytes limits the encoded length, not the rune count.
func MaxBytes(field, value string, n int, v Violations) {
	if len(value) > n {
		v.add(field, field+" is too long")
	}
}

func Equal(field, value, other string, v Violations) {
	if value != other {
		v.add(field, field+" does not match")
	}
}
