package model

import (
	"regexp"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestNewIDAtCarriesTimestamp(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	id := NewIDAt(at)

	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		t.Fatalf("ParseStrict(%q): %v", id, err)
	}
	if got := ulid.Time(parsed.Time()); !got.Equal(at) {
		t.Errorf("timestamp = %v, want %v", got, at)
	}
	if later := NewIDAt(at.Add(time.Millisecond)); later <= id {
		t.Errorf("NewIDAt(later) = %q does not sort after %q", later, id)
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{NewID(), true},
		{"", false},
		{"not-a-ulid", false},
		{"01ARZ3NDEKTSV4RRFFQ69G5FA", false},
		{"01ARZ3NDEKTSV4RRFFQ69G5FAV", true},
		{"01ARZ3NDEKTSV4RRFFQ69G5FAU", false},
	}
	for _, tt := range tests {
		if got := ValidID(tt.id); got != tt.want {
			t.Errorf("ValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestTransitionConstants(t *testing.T) {
	transitions := []struct {
		constant Transition
		expected string
	}{
		{TransitionAvailable, "became-available"},
		{TransitionUnavailable, "became-unavailable"},
	}
	for _, tr := range transitions {
		if string(tr.constant) != tr.expected {
			t.Errorf("transition constant = %q, want %q", tr.constant, tr.expected)
		}
	}
}

func TestTransitionRecordFailed(t *testing.T) {
	ok := &TransitionRecord{Result: ResultOK}
	if ok.Failed() {
		t.Error("Failed() = true for ok result")
	}
	failed := &TransitionRecord{Result: ResultFailed, Error: "boom"}
	if !failed.Failed() {
		t.Error("Failed() = false for failed result")
	}
}
