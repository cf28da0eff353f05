package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunitrip/internal/db"
	"tunitrip/internal/trips"
)

func TestEmbeddedSeed(t *testing.T) {
	sf, err := parseSeed(seedYAML)
	require.NoError(t, err)
	assert.Len(t, sf.Stations, 29)

	stations := map[string]bool{}
	for _, s := range sf.Stations {
		assert.False(t, stations[s.ID], "duplicate station %s", s.ID)
		stations[s.ID] = true
		assert.NotEmpty(t, s.City)
	}

	users := map[string]bool{}
	for _, u := range sf.Users {
		_, ok := db.ParseRole(u.Role)
		assert.True(t, ok, u.Username)
		users[u.ID] = true
	}

	now := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	for _, st := range sf.Trips {
		tr, err := buildTrip(st, now)
		require.NoError(t, err)
		assert.True(t, users[tr.OperatorID], "unknown operator %s", tr.OperatorID)
		assert.True(t, tr.ArrivalTime.After(tr.DepartureTime))
		switch d := tr.Details.(type) {
		case *trips.Louage:
			assert.True(t, stations[d.StationID], d.StationID)
		case *trips.Bus:
			assert.True(t, stations[d.DepartureStationID], d.DepartureStationID)
			assert.True(t, stations[d.ArrivalStationID], d.ArrivalStationID)
		}
		assert.NoError(t, trips.Validate(tr))
	}
}

func TestBuildTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 6, 30, 0, 0, time.UTC)

	t.Run("relative departure", func(t *testing.T) {
		tr, err := buildTrip(seedTrip{
			Type: "louage", OperatorID: "op1", FromCity: "Tunis", ToCity: "Sousse",
			DepartIn: 10 * time.Minute, Duration: 2 * time.Hour,
			StationID: "tmb", TotalSeats: 8, AvailableSeats: 0, IsFull: true,
		}, now)
		require.NoError(t, err)
		assert.Equal(t, trips.KindLouage, tr.Type)
		assert.True(t, tr.DepartureTime.Equal(now.Add(10*time.Minute)))
		assert.True(t, tr.ArrivalTime.Equal(now.Add(130*time.Minute)))
		l := tr.Details.(*trips.Louage)
		assert.True(t, l.IsFull)
		assert.Equal(t, 0, l.AvailableSeats)
	})

	t.Run("clock departure", func(t *testing.T) {
		tr, err := buildTrip(seedTrip{
			Type: "bus", OperatorID: "sntri", FromCity: "Tunis", ToCity: "Sfax",
			DepartAt: "08:00", Duration: 4*time.Hour + 30*time.Minute,
			DepartureStationID: "tmb", ArrivalStationID: "sfl", TotalSeats: 50, AvailableSeats: 15,
		}, now)
		require.NoError(t, err)
		assert.True(t, tr.DepartureTime.Equal(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)))
		assert.Equal(t, 15, tr.Details.(*trips.Bus).AvailableSeats)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := buildTrip(seedTrip{Type: "ferry", Duration: time.Hour}, now)
		assert.ErrorIs(t, err, trips.ErrUnknownKind)

		_, err = buildTrip(seedTrip{Type: "bus", DepartAt: "8am", Duration: time.Hour}, now)
		assert.Error(t, err)

		_, err = buildTrip(seedTrip{Type: "bus"}, now)
		assert.Error(t, err)
	})
}

func TestParseSeedDurations(t *testing.T) {
	sf, err := parseSeed([]byte(`
trips:
  - {type: transporter, departIn: 48h, duration: 2h30m, route: [Nabeul]}
`))
	require.NoError(t, err)
	require.Len(t, sf.Trips, 1)
	assert.Equal(t, 48*time.Hour, sf.Trips[0].DepartIn)
	assert.Equal(t, 150*time.Minute, sf.Trips[0].Duration)
	assert.Equal(t, []string{"Nabeul"}, sf.Trips[0].Route)

	_, err = parseSeed([]byte("stations: {"))
	assert.Error(t, err)
}
