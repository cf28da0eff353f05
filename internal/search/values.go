package search

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tunitrip/internal/trips"
)

// FromValues builds a Query from HTTP query parameters. Empty parameters
// are treated as absent.
func FromValues(v url.Values) (Query, error) {
	get := func(k string) string { return strings.TrimSpace(v.Get(k)) }
	q := Query{
		Type:            trips.Kind(strings.ToLower(get("type"))),
		FromGovernorate: get("fromGovernorate"),
		FromDelegation:  get("fromDelegation"),
		ToGovernorate:   get("toGovernorate"),
		ToDelegation:    get("toDelegation"),
		LocA:            get("locA"),
		LocB:            get("locB"),
	}
	if s := get("maxPrice"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Query{}, fmt.Errorf("invalid maxPrice %q", s)
		}
		q.MaxPrice = &f
	}
	if s := get("minSeats"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Query{}, fmt.Errorf("invalid minSeats %q", s)
		}
		q.MinSeats = &n
	}
	if s := get("departAfter"); s != "" {
		c, err := ParseClock(s)
		if err != nil {
			return Query{}, err
		}
		q.DepartAfter = &c
	}
	return q, nil
}
