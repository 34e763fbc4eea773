package ics

import (
	"context"
	"time"

	"calmate/internal/model"
)

// ImportOptions bounds an import to a window of days starting today.
type ImportOptions struct {
	Location    *time.Location
	Today       time.Time
	HorizonDays int
}

// Import fetches src, parses it and expands it into schedule entries for
// [Today, Today+HorizonDays], ordered by start.
func Import(ctx context.Context, f *Fetcher, src Source, opts ImportOptions) ([]model.Event, error) {
	res, err := f.FetchOne(ctx, src)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseICS(res.Source, res.Body)
	if err != nil {
		return nil, err
	}

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	today := opts.Today.In(loc)
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)

	expanded, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      start,
		RangeEnd:        start.AddDate(0, 0, opts.HorizonDays),
	})
	if err != nil {
		return nil, err
	}
	return ToEvents(expanded.Occurrences), nil
}
