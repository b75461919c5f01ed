package events

import (
	"testing"
	"time"
)

func TestNormalizeDropsAttendanceEntries(t *testing.T) {
	raw := []RawEntry{
		{DateText: "3 March 2025", TitleText: "Attendance Check"},
		{DateText: "3 March 2025", TitleText: "ATTENDANCE - CS101"},
		{DateText: "4 March 2025", TitleText: "Guest Lecture"},
	}

	got := Normalize(raw)
	if len(got) != 1 {
		t.Fatalf("expected 1 event after attendance filtering, got %d", len(got))
	}
	if got[0].Title != "Guest Lecture" {
		t.Errorf("expected surviving event to be the lecture, got %q", got[0].Title)
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	raw := []RawEntry{
		{DateText: "", TitleText: "Quiz 1"},
		{DateText: "5 March 2025", TitleText: ""},
		{DateText: "   ", TitleText: "  Assignment 1  "},
	}

	got := Normalize(raw)
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}

	if got[0].DateText != "Unknown Date" {
		t.Errorf("empty date should map to placeholder, got %q", got[0].DateText)
	}
	if got[0].DateKnown {
		t.Error("placeholder date should not parse")
	}
	if got[1].Title != "Unknown Event" {
		t.Errorf("empty title should map to placeholder, got %q", got[1].Title)
	}
	if got[2].DateText != "Unknown Date" || got[2].Title != "Assignment 1" {
		t.Errorf("whitespace fields not trimmed: %q / %q", got[2].DateText, got[2].Title)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		title string
		want  Category
	}{
		{"Assignment 2 Submission", CategoryAssignment},
		{"Submit project proposal", CategoryAssignment},
		{"Quiz 1", CategoryQuiz},
		{"Mid-term TEST", CategoryQuiz},
		{"Guest Lecture", CategoryOther},
		{"", CategoryOther},
	}

	for _, tt := range tests {
		if got := Categorize(tt.title); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestNormalizeDateParsing(t *testing.T) {
	raw := []RawEntry{
		{DateText: "15 March 2025, 11:59 PM", TitleText: "Assignment 3"},
		{DateText: "1 January 2026", TitleText: "Quiz 4"},
		{DateText: "Rolling", TitleText: "Open Lab"},
	}

	got := Normalize(raw)
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}

	if !got[0].DateKnown {
		t.Fatal("date with trailing time should still parse")
	}
	want := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	if !got[0].Date.Equal(want) {
		t.Errorf("parsed date = %v, want %v", got[0].Date, want)
	}

	if !got[1].DateKnown {
		t.Error("plain day-month-year date should parse")
	}

	if got[2].DateKnown {
		t.Error("unparsable date text should fall back, not parse")
	}
	if got[2].DateText != "Rolling" {
		t.Errorf("raw date text should be preserved, got %q", got[2].DateText)
	}
}

func TestEventIdentityUsesRawText(t *testing.T) {
	raw := []RawEntry{{DateText: "Rolling", TitleText: "Open Lab"}}
	got := Normalize(raw)

	if id := got[0].Identity(); id != "Rolling|Open Lab" {
		t.Errorf("identity = %q, want raw date|title", id)
	}
}
