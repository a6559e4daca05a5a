package store

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// QueryOptions filters and pages post listings.
type QueryOptions struct {
	Limit  int
	Offset int
	// Tag restricts the listing to posts carrying the tag or category slug.
	Tag string
	// Since restricts the listing to posts updated at or after the instant.
	Since *time.Time
}

// agePattern matches ages like "12h", "7d", "2w", "3m", "1y".
var agePattern = regexp.MustCompile(`^(\d+)([hdwmy])$`)

// ParseAge parses an age such as "7d" into a duration. Months count as 30
// days and years as 365.
func ParseAge(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("age is empty")
	}
	m := agePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid age %q (expected <number><unit>, e.g. 12h, 7d, 2w, 3m, 1y)", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number in age %q: %w", s, err)
	}

	day := 24 * time.Hour
	unit := map[string]time.Duration{
		"h": time.Hour,
		"d": day,
		"w": 7 * day,
		"m": 30 * day,
		"y": 365 * day,
	}[m[2]]
	return time.Duration(n) * unit, nil
}

// BuildQueryOptions turns listing flags into QueryOptions. since is an age
// relative to now and may be empty.
func BuildQueryOptions(limit, offset int, tag, since string, now time.Time) (QueryOptions, error) {
	if limit < 0 || offset < 0 {
		return QueryOptions{}, fmt.Errorf("limit and offset must not be negative")
	}
	opts := QueryOptions{Limit: limit, Offset: offset, Tag: tag}
	if since != "" {
		age, err := ParseAge(since)
		if err != nil {
			return opts, fmt.Errorf("failed to parse --since flag: %w", err)
		}
		t := now.Add(-age)
		opts.Since = &t
	}
	return opts, nil
}
