package events

import (
	"strings"
	"time"
)

// Category tags an event based on keywords in its title.
type Category string

const (
	CategoryAssignment Category = "assignment"
	CategoryQuiz       Category = "quiz"
	CategoryOther      Category = "other"
)

// RawEntry is a single calendar entry as scraped from the portal, before
// normalization. Either field may be empty when the page structure is off.
type RawEntry struct {
	DateText  string
	TitleText string
}

// Event is a normalized calendar entry.
type Event struct {
	// Date is the parsed calendar date. Only valid when DateKnown is true.
	Date      time.Time
	DateKnown bool

	// DateText and Title are the raw scraped strings, kept verbatim because
	// event identity is derived from them.
	DateText string
	Title    string

	Category Category
}

// Identity returns the stable dedup key for the event. It is built from the
// raw scraped text, not the parsed date: two entries with identical date and
// title text are the same event, even if the portal meant them to differ.
func (e Event) Identity() string {
	return e.DateText + "|" + e.Title
}

// Categorize derives an event category from keyword matching on the title.
func Categorize(title string) Category {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "assignment") || strings.Contains(t, "submit"):
		return CategoryAssignment
	case strings.Contains(t, "quiz") || strings.Contains(t, "test"):
		return CategoryQuiz
	default:
		return CategoryOther
	}
}
