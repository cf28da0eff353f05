package trips

import "tunitrip/internal/geo"

// Directory is a read-only index over a station list.
type Directory struct {
	stations []Station
	byID     map[string]Station
	byCity   map[string]Station
}

// NewDirectory indexes stations. When several stations share a city the
// first one in list order is the city's station.
func NewDirectory(stations []Station) *Directory {
	d := &Directory{
		stations: append([]Station(nil), stations...),
		byID:     make(map[string]Station, len(stations)),
		byCity:   make(map[string]Station, len(stations)),
	}
	for _, s := range stations {
		if _, ok := d.byID[s.ID]; !ok {
			d.byID[s.ID] = s
		}
		if _, ok := d.byCity[s.City]; !ok {
			d.byCity[s.City] = s
		}
	}
	return d
}

func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.stations)
}

// All returns a copy of the indexed stations in their original order.
func (d *Directory) All() []Station {
	if d == nil {
		return nil
	}
	return append([]Station(nil), d.stations...)
}

func (d *Directory) ByID(id string) (Station, bool) {
	if d == nil || id == "" {
		return Station{}, false
	}
	s, ok := d.byID[id]
	return s, ok
}

func (d *Directory) ByCity(city string) (Station, bool) {
	if d == nil || city == "" {
		return Station{}, false
	}
	s, ok := d.byCity[city]
	return s, ok
}

// CityCoordinate resolves a city name to its station's coordinate.
func (d *Directory) CityCoordinate(city string) (geo.Coordinate, bool) {
	s, ok := d.ByCity(city)
	return s.Coordinate, ok
}

// Attach returns a copy of t whose station references are resolved
// against the directory. References already attached are kept; those that
// do not resolve are left nil.
func (d *Directory) Attach(t Trip) Trip {
	switch det := t.Details.(type) {
	case *Louage:
		c := *det
		if c.Station == nil {
			c.Station = d.lookup(c.StationID)
		}
		t.Details = &c
	case *Bus:
		c := *det
		if c.DepartureStation == nil {
			c.DepartureStation = d.lookup(c.DepartureStationID)
		}
		if c.ArrivalStation == nil {
			c.ArrivalStation = d.lookup(c.ArrivalStationID)
		}
		t.Details = &c
	case *Transporter:
		// no station references
	default:
		// unknown variant, nothing to resolve
	}
	return t
}

func (d *Directory) lookup(id string) *Station {
	s, ok := d.ByID(id)
	if !ok {
		return nil
	}
	return &s
}
