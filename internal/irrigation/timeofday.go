package irrigation

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationError reports malformed schedule input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TimeOfDay is a wall-clock time in 24h format.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (a single-digit hour is accepted).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || parts[0] == "" || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return TimeOfDay{}, &ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not in HH:MM format", s)}
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, &ValidationError{Field: "time", Reason: fmt.Sprintf("hour in %q must be 00-23", s)}
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, &ValidationError{Field: "time", Reason: fmt.Sprintf("minute in %q must be 00-59", s)}
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
