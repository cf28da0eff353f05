package projection

import "sort"

// Diff is the change between two consecutive marker sets.
type Diff struct {
	Created []Marker `json:"created"`
	Moved   []Marker `json:"moved"`
	Removed []string `json:"removed"`
}

func (d Diff) Empty() bool {
	return len(d.Created) == 0 && len(d.Moved) == 0 && len(d.Removed) == 0
}

// Tracker remembers which trip ids currently have a marker. It is not
// safe for concurrent use.
type Tracker struct {
	active map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]struct{})}
}

// Apply records markers as the new active set and reports which markers
// are new, which moved, and which trip ids lost their marker.
func (t *Tracker) Apply(markers []Marker) Diff {
	d := Diff{Created: []Marker{}, Moved: []Marker{}, Removed: []string{}}
	next := make(map[string]struct{}, len(markers))
	for _, m := range markers {
		if _, dup := next[m.TripID]; dup {
			continue
		}
		next[m.TripID] = struct{}{}
		if _, ok := t.active[m.TripID]; ok {
			d.Moved = append(d.Moved, m)
		} else {
			d.Created = append(d.Created, m)
		}
	}
	for id := range t.active {
		if _, ok := next[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	sort.Strings(d.Removed)
	t.active = next
	return d
}

func (t *Tracker) Len() int { return len(t.active) }

// Active reports whether id currently has a marker.
func (t *Tracker) Active(id string) bool {
	_, ok := t.active[id]
	return ok
}
