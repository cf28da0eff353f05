package trips

import (
	"errors"
	"time"

	"tunitrip/internal/geo"
)

// Kind discriminates the trip variants.
type Kind string

const (
	KindLouage      Kind = "louage"
	KindBus         Kind = "bus"
	KindTransporter Kind = "transporter"
)

// Kinds lists the known variants in display order.
var Kinds = []Kind{KindLouage, KindBus, KindTransporter}

var (
	ErrUnknownKind            = errors.New("unknown trip type")
	ErrArrivalBeforeDeparture = errors.New("arrival time is before departure time")
)

// Valid reports whether k is one of the known variants.
func (k Kind) Valid() bool {
	switch k {
	case KindLouage, KindBus, KindTransporter:
		return true
	default:
		return false
	}
}

// Station is an entry of the station directory.
type Station struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"required"`
	City string `json:"city" validate:"required"`
	geo.Coordinate
}

// Details holds the variant-specific part of a trip. It is implemented
// only by *Louage, *Bus and *Transporter.
type Details interface {
	Kind() Kind
	details()
}

// Trip is the common envelope shared by all variants. Details is nil for
// trips whose Type is not a known Kind; such trips are carried through
// untouched but ignored by the engines.
type Trip struct {
	ID            string    `json:"id"`
	Type          Kind      `json:"type" validate:"required"`
	OperatorID    string    `json:"operatorId"`
	OperatorName  string    `json:"operatorName"`
	FromCity      string    `json:"fromCity" validate:"required"`
	ToCity        string    `json:"toCity" validate:"required"`
	DepartureTime time.Time `json:"departureTime" validate:"required"`
	ArrivalTime   time.Time `json:"arrivalTime" validate:"required"`
	Details       Details   `json:"-" validate:"-"`
}

// Louage is a shared-taxi trip leaving from a single station. IsFull and
// AvailableSeats are set independently by the operator.
type Louage struct {
	StationID         string   `json:"stationId,omitempty" validate:"required_without=CustomStationName"`
	Station           *Station `json:"station,omitempty" validate:"-"`
	CustomStationName string   `json:"customStationName,omitempty"`
	Price             float64  `json:"price" validate:"gte=0"`
	TotalSeats        int      `json:"totalSeats" validate:"gte=0"`
	AvailableSeats    int      `json:"availableSeats" validate:"gte=0,ltefield=TotalSeats"`
	IsFull            bool     `json:"isFull"`
	VehicleNumber     string   `json:"vehicleNumber,omitempty"`
	ContactInfo       string   `json:"contactInfo,omitempty"`
}

// Bus is a scheduled coach trip between two stations.
type Bus struct {
	DepartureStationID         string   `json:"departureStationId,omitempty" validate:"required_without=CustomDepartureStationName"`
	DepartureStation           *Station `json:"departureStation,omitempty" validate:"-"`
	ArrivalStationID           string   `json:"arrivalStationId,omitempty" validate:"required_without=CustomArrivalStationName"`
	ArrivalStation             *Station `json:"arrivalStation,omitempty" validate:"-"`
	CustomDepartureStationName string   `json:"customDepartureStationName,omitempty"`
	CustomArrivalStationName   string   `json:"customArrivalStationName,omitempty"`
	Price                      float64  `json:"price" validate:"gte=0"`
	TotalSeats                 int      `json:"totalSeats" validate:"gte=0"`
	AvailableSeats             int      `json:"availableSeats" validate:"gte=0,ltefield=TotalSeats"`
}

// Transporter is a freight trip. ToCity is usually a free-text
// "City, Country" and Route lists intermediate cities in travel order.
type Transporter struct {
	ContactInfo    string   `json:"contactInfo" validate:"required"`
	VehicleType    string   `json:"vehicleType" validate:"required"`
	AvailableSpace string   `json:"availableSpace"`
	ETA            string   `json:"eta"`
	Route          []string `json:"route,omitempty"`
}

func (*Louage) Kind() Kind      { return KindLouage }
func (*Bus) Kind() Kind         { return KindBus }
func (*Transporter) Kind() Kind { return KindTransporter }

func (*Louage) details()      {}
func (*Bus) details()         {}
func (*Transporter) details() {}

// New builds a trip envelope around d, deriving Type from it.
func New(d Details) Trip {
	return Trip{Type: d.Kind(), Details: d}
}

// Price returns the seat price of louage and bus trips.
func (t Trip) Price() (float64, bool) {
	switch d := t.Details.(type) {
	case *Louage:
		return d.Price, true
	case *Bus:
		return d.Price, true
	case *Transporter:
		return 0, false
	default:
		return 0, false
	}
}

// AvailableSeats returns the free seats of louage and bus trips.
func (t Trip) AvailableSeats() (int, bool) {
	switch d := t.Details.(type) {
	case *Louage:
		return d.AvailableSeats, true
	case *Bus:
		return d.AvailableSeats, true
	case *Transporter:
		return 0, false
	default:
		return 0, false
	}
}

// StationLabel names the departure station of a louage: the directory
// entry when bound, else the operator-supplied name.
func (l *Louage) StationLabel() string {
	if l.Station != nil {
		return l.Station.Name
	}
	return l.CustomStationName
}

func (b *Bus) DepartureLabel() string {
	if b.DepartureStation != nil {
		return b.DepartureStation.Name
	}
	return b.CustomDepartureStationName
}

func (b *Bus) ArrivalLabel() string {
	if b.ArrivalStation != nil {
		return b.ArrivalStation.Name
	}
	return b.CustomArrivalStationName
}
