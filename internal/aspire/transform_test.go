package aspire

import (
	"testing"
	"time"
)

func TestCleanPhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Plain Number", "902-579-3084", "902-579-3084"},
		{"Extension Cut", "902-579-3084 ext 123", "902-579-3084"},
		{"Trailing Letter", "1-952-947-0007 E", "1-952-947-0007"},
		{"Parentheses Kept", "(416) 555-0134", "(416) 555-0134"},
		{"Too Short", "12345", ""},
		{"Letters Only", "call reception", ""},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanPhone(tt.in); got != tt.want {
				t.Errorf("CleanPhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *time.Time
	}{
		{
			name: "RFC3339",
			in:   "2024-01-15T10:30:00Z",
			want: timePtr(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)),
		},
		{
			name: "Fractional Seconds",
			in:   "2024-01-15T10:30:00.123456",
			want: timePtr(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)),
		},
		{
			name: "Date Only",
			in:   "2024-01-15",
			want: timePtr(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)),
		},
		{"Empty", "", nil},
		{"Malformed", "15/01/2024", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDateTime(tt.in)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ParseDateTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Errorf("ParseDateTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	got := ParseDate("2024-01-15T13:45:00Z")
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Errorf("ParseDate() = %v, want %v", got, want)
	}
	if ParseDate("") != nil {
		t.Error("ParseDate(\"\") should be nil")
	}
}

func TestContractStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5. Won - Signed", "Won"},
		{"6. Lost to Competitor", "Lost"},
		{"2. Bidding", "Open"},
		{"", "Open"},
	}

	for _, tt := range tests {
		if got := ContractStatus(tt.in); got != tt.want {
			t.Errorf("ContractStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPropertyStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Customer", "Customer"},
		{"Prospect", "Prospect"},
		{"Former Customer", "Inactive"},
		{"", "Inactive"},
	}

	for _, tt := range tests {
		if got := PropertyStatus(tt.in); got != tt.want {
			t.Errorf("PropertyStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWorkTicketStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Open", "Scheduled"},
		{"Scheduled", "Scheduled"},
		{"In Progress", "In Progress"},
		{"Complete", "Complete"},
		{"Cancelled", "Cancelled"},
		{"Something Else", "Scheduled"},
	}

	for _, tt := range tests {
		if got := WorkTicketStatus(tt.in); got != tt.want {
			t.Errorf("WorkTicketStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPropertyDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		propName string
		city     string
		want     string
	}{
		{"With City", "Oakridge Mall", "Halifax", "Oakridge Mall - Halifax"},
		{"No City", "Oakridge Mall", "", "Oakridge Mall"},
		{"No Name", "", "Halifax", " - Halifax"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PropertyDisplayName(tt.propName, tt.city); got != tt.want {
				t.Errorf("PropertyDisplayName(%q, %q) = %q, want %q", tt.propName, tt.city, got, tt.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
