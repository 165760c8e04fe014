package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FilterTimeLayout is the minute-precision layout the source accepts in filters
const FilterTimeLayout = "2006-01-02T15:04"

// FilterMode selects how a last-modified filter bounds the listing
type FilterMode string

const (
	FilterModeAfter  FilterMode = "after"
	FilterModeBefore FilterMode = "before"
	FilterModeRange  FilterMode = "range"
)

// LastModifiedFilter bounds a catalog listing by last-modified time
type LastModifiedFilter struct {
	Mode  FilterMode
	Value time.Time
	Start time.Time
	End   time.Time
}

// ModifiedAfter filters to records modified after t
func ModifiedAfter(t time.Time) *LastModifiedFilter {
	return &LastModifiedFilter{Mode: FilterModeAfter, Value: t}
}

// ModifiedBefore filters to records modified before t
func ModifiedBefore(t time.Time) *LastModifiedFilter {
	return &LastModifiedFilter{Mode: FilterModeBefore, Value: t}
}

// ModifiedBetween filters to records modified between start and end
func ModifiedBetween(start, end time.Time) *LastModifiedFilter {
	return &LastModifiedFilter{Mode: FilterModeRange, Start: start, End: end}
}

type lastModifiedWire struct {
	C         FilterMode `json:"c"`
	V         string     `json:"v,omitempty"`
	DateStart string     `json:"dateStart,omitempty"`
	DateEnd   string     `json:"dateEnd,omitempty"`
}

// MarshalJSON encodes the filter as {"c":"after","v":"2024-07-01T00:00"} and friends
func (f LastModifiedFilter) MarshalJSON() ([]byte, error) {
	wire := lastModifiedWire{C: f.Mode}
	switch f.Mode {
	case FilterModeAfter, FilterModeBefore:
		wire.V = f.Value.UTC().Format(FilterTimeLayout)
	case FilterModeRange:
		if f.End.Before(f.Start) {
			return nil, fmt.Errorf("range filter ends (%s) before it starts (%s)", f.End, f.Start)
		}
		wire.DateStart = f.Start.UTC().Format(FilterTimeLayout)
		wire.DateEnd = f.End.UTC().Format(FilterTimeLayout)
	default:
		return nil, fmt.Errorf("unknown filter mode %q", f.Mode)
	}
	return json.Marshal(wire)
}

// RecordFilter narrows a catalog listing
type RecordFilter struct {
	Status       RecordStatus
	LastModified *LastModifiedFilter
}

// Encode renders the filter the way the source expects it in the `f` query parameter.
// It returns "" when there is nothing to filter on.
func (f RecordFilter) Encode() (string, error) {
	if f.LastModified == nil {
		return "", nil
	}
	b, err := json.Marshal(map[string]any{"lastmod": f.LastModified})
	if err != nil {
		return "", fmt.Errorf("failed to encode last modified filter: %w", err)
	}
	return string(b), nil
}
