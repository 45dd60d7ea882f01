// Package stats turns the state-change log into fixed-width time buckets.
//
// Buckets are identified by their upper boundary. Boundaries start at the
// range start and step by the granularity's width until they pass the
// range end, so an hourly series over one day has 25 boundaries. A change
// is counted in the first bucket whose boundary is at or after its
// timestamp.
package stats

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/entry"
)

// Granularity names a bucket width.
type Granularity string

const (
	Minute Granularity = "minute"
	Hour   Granularity = "hour"
	Day    Granularity = "day"
	Week   Granularity = "week"
	Month  Granularity = "month"
)

// Granularities lists the valid granularities in increasing width.
var Granularities = []Granularity{Minute, Hour, Day, Week, Month}

var bucketSizes = map[Granularity]time.Duration{
	Minute: 60_000 * time.Millisecond,
	Hour:   3_600_000 * time.Millisecond,
	Day:    86_400_000 * time.Millisecond,
	Week:   604_800_000 * time.Millisecond,
	Month:  2_629_800_000 * time.Millisecond,
}

// BucketSize returns the width of one bucket.
func (g Granularity) BucketSize() (time.Duration, error) {
	size, ok := bucketSizes[g]
	if !ok {
		names := make([]string, len(Granularities))
		for i, v := range Granularities {
			names[i] = string(v)
		}
		return 0, fmt.Errorf("%w (%s), must be one of: %s",
			jobqueue.ErrUnknownGranularity, string(g), strings.Join(names, ", "))
	}
	return size, nil
}

// ParseGranularity validates s as a granularity name.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	if _, err := g.BucketSize(); err != nil {
		return "", err
	}
	return g, nil
}

// Series is a bucketed count of transitions per state.
type Series struct {
	Granularity Granularity           `json:"granularity"`
	Boundaries  []time.Time           `json:"boundaries"`
	Counts      map[entry.State][]int `json:"-"`
}

// States returns the tracked states in series order.
func (s *Series) States() []entry.State {
	return entry.States
}

// For returns the bucket counts for state.
func (s *Series) For(state entry.State) []int {
	return s.Counts[state]
}

// Total returns the number of transitions counted for state.
func (s *Series) Total(state entry.State) int {
	n := 0
	for _, c := range s.Counts[state] {
		n += c
	}
	return n
}

// Boundaries returns the bucket boundaries for [start, end] at g.
func Boundaries(start, end time.Time, g Granularity) ([]time.Time, error) {
	size, err := g.BucketSize()
	if err != nil {
		return nil, err
	}
	out := []time.Time{start}
	for i := start; !i.After(end); {
		i = i.Add(size)
		out = append(out, i)
	}
	return out, nil
}

// NewSeries returns an empty series with boundaries for [start, end].
func NewSeries(start, end time.Time, g Granularity) (*Series, error) {
	bounds, err := Boundaries(start, end, g)
	if err != nil {
		return nil, err
	}
	s := &Series{
		Granularity: g,
		Boundaries:  bounds,
		Counts:      make(map[entry.State][]int, len(entry.States)),
	}
	for _, st := range entry.States {
		s.Counts[st] = make([]int, len(bounds))
	}
	return s, nil
}

// Add counts one transition. Changes outside [start, end] or with an
// unknown state are ignored and Add reports false.
func (s *Series) Add(c entry.StateChange) bool {
	counts, ok := s.Counts[c.State]
	if !ok || len(s.Boundaries) == 0 {
		return false
	}
	start := s.Boundaries[0]
	if c.Timestamp.Before(start) {
		return false
	}
	i := sort.Search(len(s.Boundaries), func(i int) bool {
		return !s.Boundaries[i].Before(c.Timestamp)
	})
	if i == len(s.Boundaries) {
		return false
	}
	counts[i]++
	return true
}

// Aggregate buckets every change whose timestamp lies in [start, end].
func Aggregate(changes []entry.StateChange, start, end time.Time, g Granularity) (*Series, error) {
	s, err := NewSeries(start, end, g)
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		if c.Timestamp.Before(start) || c.Timestamp.After(end) {
			continue
		}
		s.Add(c)
	}
	return s, nil
}

// StateSeries is the JSON form of one state's counts.
type StateSeries struct {
	State  string `json:"state"`
	Counts []int  `json:"counts"`
}

// MarshalJSON encodes the series with states in series order.
func (s *Series) MarshalJSON() ([]byte, error) {
	series := make([]StateSeries, 0, len(entry.States))
	for _, st := range s.States() {
		series = append(series, StateSeries{State: st.String(), Counts: s.Counts[st]})
	}
	return json.Marshal(struct {
		Granularity Granularity   `json:"granularity"`
		Boundaries  []time.Time   `json:"boundaries"`
		Series      []StateSeries `json:"series"`
	}{s.Granularity, s.Boundaries, series})
}
