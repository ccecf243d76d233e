package runtime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Input validation kinds a step may declare.
const (
	ValidateNumber = "number"
	ValidateEmail  = "email"
	ValidatePhone  = "phone"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{5,18}[0-9]$`)
)

// ValidateInput checks a raw user value against a step's validation kind.
// The returned error carries a corrective, user-facing message.
func ValidateInput(kind, raw string) error {
	raw = strings.TrimSpace(raw)
	switch kind {
	case "", "none":
		return nil
	case ValidateNumber:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return &ValidationError{Kind: kind, Input: raw, Hint: "please enter a number"}
		}
	case ValidateEmail:
		if !emailRe.MatchString(raw) {
			return &ValidationError{Kind: kind, Input: raw, Hint: "please enter a valid email address"}
		}
	case ValidatePhone:
		if !phoneRe.MatchString(raw) {
			return &ValidationError{Kind: kind, Input: raw, Hint: "please enter a valid phone number"}
		}
	default:
		return fmt.Errorf("unknown validation kind %q", kind)
	}
	return nil
}

// CoerceInput converts a validated raw value into its stored form. Only the
// number kind coerces; everything else stays a string.
func CoerceInput(kind, raw string) any {
	raw = strings.TrimSpace(raw)
	if kind == ValidateNumber {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}
