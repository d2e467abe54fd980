package view

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/justyntemme/shelf/internal/model"
)

// Comparison operators for size/date directives
type operator int

const (
	opEquals operator = iota
	opGreater
	opLess
	opGreaterEq
	opLessEq
)

// ParseQuery turns a search box string into a Filter.
// Examples:
//   - "vac" -> name contains "vac"
//   - "kind:image,video" -> only images and videos
//   - "tag:beach tag:2024" -> both tags required
//   - "size:large", "size:>10MB" -> size bucket
//   - `modified:"last 7 days"`, "modified:>2024-01-01" -> date range
//
// Words that are not directives are joined back into the name text.
func ParseQuery(input string) Filter {
	var f Filter
	var words []string

	for _, part := range splitRespectingQuotes(strings.TrimSpace(input)) {
		if !applyDirective(&f, part) {
			words = append(words, part)
		}
	}

	f.Text = strings.Join(words, " ")
	return f
}

func splitRespectingQuotes(s string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, r := range s {
		switch {
		case (r == '"' || r == '\'') && !inQuotes:
			inQuotes = true
			quoteChar = r
		case r == quoteChar && inQuotes:
			inQuotes = false
			quoteChar = 0
		case r == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

// applyDirective folds a "directive:value" token into f. It returns false
// when the token is plain text.
func applyDirective(f *Filter, s string) bool {
	idx := strings.Index(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return false
	}
	directive := strings.ToLower(s[:idx])
	value := strings.Trim(s[idx+1:], "\"'")

	switch directive {
	case "kind", "type":
		added := false
		for _, v := range strings.Split(value, ",") {
			if k, ok := model.ParseKind(v); ok {
				f.Kinds = append(f.Kinds, k)
				added = true
			}
		}
		return added

	case "tag", "tags":
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				f.Tags = append(f.Tags, v)
			}
		}
		return true

	case "size":
		b, err := ParseSizeBucket(value)
		if err != nil {
			return false
		}
		f.Size = b
		return true

	case "modified", "date", "mtime":
		r, err := ParseDateRange(value, time.Now())
		if err != nil {
			return false
		}
		f.Date = r
		return true
	}

	return false
}

func parseOperator(s string) (operator, string) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, ">="):
		return opGreaterEq, strings.TrimSpace(s[2:])
	case strings.HasPrefix(s, "<="):
		return opLessEq, strings.TrimSpace(s[2:])
	case strings.HasPrefix(s, ">"):
		return opGreater, strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "<"):
		return opLess, strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "="):
		return opEquals, strings.TrimSpace(s[1:])
	default:
		return opEquals, s
	}
}

// ParseSizeBucket accepts a bucket name ("large") or a comparison such as
// ">10MB" or "<=512KiB".
func ParseSizeBucket(s string) (SizeBucket, error) {
	if b, ok := BucketByName(strings.TrimSpace(s)); ok {
		return b, nil
	}

	op, numStr := parseOperator(s)
	n, err := humanize.ParseBytes(numStr)
	if err != nil {
		return SizeAny, fmt.Errorf("size %q: %w", s, err)
	}
	v := int64(n)

	b := SizeBucket{Name: s}
	switch op {
	case opGreater:
		b.Min = v + 1
	case opGreaterEq:
		b.Min = v
	case opLess:
		b.Max = v
	case opLessEq:
		b.Max = v + 1
	default:
		b.Min, b.Max = v, v+1
	}
	return b, nil
}

var unitDurations = map[string]time.Duration{
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
	"m": 30 * 24 * time.Hour, "month": 30 * 24 * time.Hour, "months": 30 * 24 * time.Hour,
	"y": 365 * 24 * time.Hour, "year": 365 * 24 * time.Hour, "years": 365 * 24 * time.Hour,
}

// ParseRelative understands "today", "yesterday", "last 7 days", "past week",
// "7d", "24h" and "2 weeks".
func ParseRelative(s string, now time.Time) (DateRange, bool) {
	label := strings.TrimSpace(s)
	s = strings.ToLower(label)

	switch s {
	case "today":
		y, m, d := now.Date()
		return DateRange{From: time.Date(y, m, d, 0, 0, 0, 0, now.Location()), Label: label}, true
	case "yesterday":
		y, m, d := now.AddDate(0, 0, -1).Date()
		start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		return DateRange{From: start, To: start.Add(24*time.Hour - time.Nanosecond), Label: label}, true
	case "week", "month", "year":
		return DateRange{Within: unitDurations[s], Label: label}, true
	}

	s = strings.TrimPrefix(s, "last ")
	s = strings.TrimPrefix(s, "past ")
	s = strings.TrimSpace(s)

	fields := strings.Fields(s)
	var numStr, unit string
	switch len(fields) {
	case 1:
		i := strings.IndexFunc(fields[0], func(r rune) bool { return r < '0' || r > '9' })
		if i < 0 {
			return DateRange{}, false
		}
		if i == 0 {
			// "last week"
			numStr, unit = "1", fields[0]
		} else {
			numStr, unit = fields[0][:i], fields[0][i:]
		}
	case 2:
		numStr, unit = fields[0], fields[1]
	default:
		return DateRange{}, false
	}

	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return DateRange{}, false
	}
	d, ok := unitDurations[unit]
	if !ok {
		return DateRange{}, false
	}
	return DateRange{Within: time.Duration(n) * d, Label: label}, true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
}

// ParseDateRange accepts a relative token or an operator plus a date, e.g.
// ">2024-01-01" or "2024-03".
func ParseDateRange(s string, now time.Time) (DateRange, error) {
	if r, ok := ParseRelative(s, now); ok {
		return r, nil
	}

	op, dateStr := parseOperator(s)
	var t time.Time
	var layout string
	for _, l := range dateLayouts {
		if parsed, err := time.ParseInLocation(l, dateStr, now.Location()); err == nil {
			t, layout = parsed, l
			break
		}
	}
	if t.IsZero() {
		return DateRange{}, fmt.Errorf("unrecognized date %q", s)
	}

	span := 24 * time.Hour
	if layout == "2006-01" {
		span = t.AddDate(0, 1, 0).Sub(t)
	}
	end := t.Add(span - time.Nanosecond)

	r := DateRange{Label: strings.TrimSpace(s)}
	switch op {
	case opGreater:
		r.From = end.Add(time.Nanosecond)
	case opGreaterEq:
		r.From = t
	case opLess:
		r.To = t.Add(-time.Nanosecond)
	case opLessEq:
		r.To = end
	default:
		r.From, r.To = t, end
	}
	return r, nil
}
