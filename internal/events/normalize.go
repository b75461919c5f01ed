package events

import (
	"strings"
	"time"
)

const (
	unknownDate  = "Unknown Date"
	unknownTitle = "Unknown Event"

	// Portal dates look like "15 March 2025, 11:59 PM". The day-month-year
	// portion before the first comma is what gets parsed.
	dateLayout = "2 January 2006"
)

// Normalize converts raw scraped entries into canonical events.
//
// Entries whose title mentions attendance are dropped. Missing fields fall
// back to placeholder text. A date that fails to parse does not drop the
// event; it is emitted with DateKnown=false, which makes it pass every
// window filter. Normalize never fails and has no side effects.
func Normalize(raw []RawEntry) []Event {
	out := make([]Event, 0, len(raw))

	for _, entry := range raw {
		title := strings.TrimSpace(entry.TitleText)
		if title == "" {
			title = unknownTitle
		}

		if strings.Contains(strings.ToLower(title), "attendance") {
			continue
		}

		dateText := strings.TrimSpace(entry.DateText)
		if dateText == "" {
			dateText = unknownDate
		}

		ev := Event{
			DateText: dateText,
			Title:    title,
			Category: Categorize(title),
		}

		if d, ok := parseDate(dateText); ok {
			ev.Date = d
			ev.DateKnown = true
		}

		out = append(out, ev)
	}

	return out
}

// parseDate extracts a calendar date from the portion of portal date text
// before the first comma.
func parseDate(text string) (time.Time, bool) {
	datePart, _, _ := strings.Cut(text, ",")
	d, err := time.Parse(dateLayout, strings.TrimSpace(datePart))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
