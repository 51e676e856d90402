package irrigation

import (
	"errors"
	"testing"
)

func TestParseTimeOfDay(t *testing.T) {
	testCases := []struct {
		input    string
		expected TimeOfDay
		wantErr  bool
	}{
		{input: "06:00", expected: TimeOfDay{Hour: 6}},
		{input: "6:05", expected: TimeOfDay{Hour: 6, Minute: 5}},
		{input: " 23:59 ", expected: TimeOfDay{Hour: 23, Minute: 59}},
		{input: "00:00", expected: TimeOfDay{}},
		{input: "24:00", wantErr: true},
		{input: "12:60", wantErr: true},
		{input: "12:5", wantErr: true},
		{input: "noon", wantErr: true},
		{input: "", wantErr: true},
		{input: "12:30:00", wantErr: true},
		{input: "-1:30", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tc.input)
			if tc.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("Expected ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestTimeOfDayString(t *testing.T) {
	if got := (TimeOfDay{Hour: 6, Minute: 5}).String(); got != "06:05" {
		t.Errorf("Expected 06:05, got %s", got)
	}
}
