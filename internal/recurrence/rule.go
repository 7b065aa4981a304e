// Package recurrence computes occurrence instants for scheduled-message rules.
// All functions are pure: the reference instant is always passed in explicitly,
// so occurrence math can be tested without touching the real clock.
package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the recurrence variant of a rule.
type Kind string

const (
	None    Kind = "NONE"
	Daily   Kind = "DAILY"
	Weekly  Kind = "WEEKLY"
	Monthly Kind = "MONTHLY"
)

// Rule is a tagged recurrence variant. Weekdays is meaningful only for
// Weekly rules, DayOfMonth only for Monthly ones; Validate rejects any
// other combination so invalid rules never reach the store.
type Rule struct {
	Kind       Kind
	Weekdays   []time.Weekday
	DayOfMonth int
}

// weekdayTokens is the fixed 7-token set accepted on the wire, indexed by
// time.Weekday (Sunday = 0).
var weekdayTokens = [7]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

// ParseWeekday converts a wire token such as "MON" into a time.Weekday.
func ParseWeekday(token string) (time.Weekday, error) {
	t := strings.ToUpper(strings.TrimSpace(token))
	for i, name := range weekdayTokens {
		if t == name {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday token %q", token)
}

// ParseWeekdays converts a slice of wire tokens, rejecting duplicates.
func ParseWeekdays(tokens []string) ([]time.Weekday, error) {
	seen := make(map[time.Weekday]bool, len(tokens))
	out := make([]time.Weekday, 0, len(tokens))
	for _, t := range tokens {
		d, err := ParseWeekday(t)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

// Token returns the wire token for a weekday.
func Token(d time.Weekday) string {
	return weekdayTokens[int(d)%7]
}

// Tokens converts weekdays back to wire tokens, preserving order.
func Tokens(days []time.Weekday) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = Token(d)
	}
	return out
}

// Validate checks the internal consistency of the rule.
func (r Rule) Validate() error {
	switch r.Kind {
	case None, Daily:
		if len(r.Weekdays) > 0 {
			return fmt.Errorf("weekdays are only valid for WEEKLY rules")
		}
		if r.DayOfMonth != 0 {
			return fmt.Errorf("dayOfMonth is only valid for MONTHLY rules")
		}
	case Weekly:
		if len(r.Weekdays) == 0 {
			return fmt.Errorf("WEEKLY rules require at least one weekday")
		}
		if r.DayOfMonth != 0 {
			return fmt.Errorf("dayOfMonth is only valid for MONTHLY rules")
		}
	case Monthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("dayOfMonth must be between 1 and 31, got %d", r.DayOfMonth)
		}
		if len(r.Weekdays) > 0 {
			return fmt.Errorf("weekdays are only valid for WEEKLY rules")
		}
	default:
		return fmt.Errorf("unknown recurrence kind %q", r.Kind)
	}
	return nil
}

// Recurring reports whether the rule produces more than one occurrence.
func (r Rule) Recurring() bool { return r.Kind != None }
