package search

import (
	"slices"
	"strings"
	"time"

	"tunitrip/internal/locations"
	"tunitrip/internal/trips"
)

// Query selects one transport type and the locations and filters to apply.
//
// Louage and bus queries use the From*/To* governorate and delegation
// fields. Transporter queries use LocA and LocB, an unordered pair where
// a governorate name matches the departure city and anything else is a
// case-insensitive substring of the destination.
type Query struct {
	Type trips.Kind

	FromGovernorate string
	FromDelegation  string
	ToGovernorate   string
	ToDelegation    string

	LocA string
	LocB string

	MaxPrice    *float64
	MinSeats    *int
	DepartAfter *Clock
	// Location is the zone DepartAfter is compared in; nil means time.Local.
	Location *time.Location
}

// Search returns the trips matching q, in source order.
func Search(all []trips.Trip, ref *locations.Reference, q Query) []trips.Trip {
	out := make([]trips.Trip, 0)
	for _, t := range all {
		if Match(t, ref, q) && Filter(t, q) {
			out = append(out, t)
		}
	}
	return out
}

// Match applies the type gate and the location rules.
func Match(t trips.Trip, ref *locations.Reference, q Query) bool {
	if q.Type == "" || t.Type != q.Type {
		return false
	}
	switch t.Details.(type) {
	case *trips.Louage, *trips.Bus:
		return endpointMatches(ref, q.FromGovernorate, q.FromDelegation, t.FromCity) &&
			endpointMatches(ref, q.ToGovernorate, q.ToDelegation, t.ToCity)
	case *trips.Transporter:
		return transporterMatches(ref, q.LocA, q.LocB, t)
	default:
		return false
	}
}

func endpointMatches(ref *locations.Reference, governorate, delegation, city string) bool {
	if governorate == "" {
		return true
	}
	if delegation != "" {
		return city == delegation
	}
	return ref.HasDelegation(governorate, city)
}

func transporterMatches(ref *locations.Reference, a, b string, t trips.Trip) bool {
	if a == "" && b == "" {
		return true
	}
	fromA, toA := transporterTerm(ref, a, t)
	fromB, toB := transporterTerm(ref, b, t)
	switch {
	case a != "" && b != "":
		return (fromA && toB) || (fromB && toA)
	case a != "":
		return fromA || toA
	default:
		return fromB || toB
	}
}

// transporterTerm reports whether term matches the departure or the
// destination of t.
func transporterTerm(ref *locations.Reference, term string, t trips.Trip) (from, to bool) {
	if term == "" {
		return false, false
	}
	if ref.IsGovernorate(term) {
		return t.FromCity == term, false
	}
	return false, strings.Contains(strings.ToLower(t.ToCity), strings.ToLower(term))
}

// Filter applies the secondary price, seat and departure filters. Trips
// without a unit price or seats (transporters) pass those two filters.
func Filter(t trips.Trip, q Query) bool {
	if q.MaxPrice != nil {
		if price, ok := t.Price(); ok && price > *q.MaxPrice {
			return false
		}
	}
	if q.MinSeats != nil {
		if seats, ok := t.AvailableSeats(); ok && seats < *q.MinSeats {
			return false
		}
	}
	if q.DepartAfter != nil {
		loc := q.Location
		if loc == nil {
			loc = time.Local
		}
		if ClockOf(t.DepartureTime.In(loc)).Before(*q.DepartAfter) {
			return false
		}
	}
	return true
}

// SortByDeparture returns a copy of all ordered by departure time. Ties
// keep their source order.
func SortByDeparture(all []trips.Trip) []trips.Trip {
	out := slices.Clone(all)
	slices.SortStableFunc(out, func(a, b trips.Trip) int {
		return a.DepartureTime.Compare(b.DepartureTime)
	})
	return out
}
