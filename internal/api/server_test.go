package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tunitrip/internal/catalog"
	"tunitrip/internal/db"
	"tunitrip/internal/geo"
	"tunitrip/internal/locations"
	"tunitrip/internal/trips"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func fixtureStore() *fakeStore {
	stations := []trips.Station{
		{ID: "tmb", Name: "Moncef Bey (Sud)", City: "Tunis", Coordinate: geo.Coordinate{Lat: 36.792, Lng: 10.183}},
		{ID: "sl", Name: "Station Louage Sousse", City: "Sousse", Coordinate: geo.Coordinate{Lat: 35.825, Lng: 10.641}},
		{ID: "sfl", Name: "Sidi Mansour", City: "Sfax", Coordinate: geo.Coordinate{Lat: 34.739, Lng: 10.759}},
		{ID: "bal", Name: "Station Louage Ben Arous", City: "Ben Arous", Coordinate: geo.Coordinate{Lat: 36.750, Lng: 10.229}},
		{ID: "nl", Name: "Station Louage Nabeul", City: "Nabeul", Coordinate: geo.Coordinate{Lat: 36.456, Lng: 10.734}},
	}

	l1 := trips.New(&trips.Louage{StationID: "tmb", Price: 15, TotalSeats: 8, AvailableSeats: 3, ContactInfo: "+216 21 111 222"})
	l1.ID, l1.OperatorID, l1.OperatorName = "L1", "op1", "Ali's Louage"
	l1.FromCity, l1.ToCity = "Tunis", "Sousse"
	l1.DepartureTime, l1.ArrivalTime = day.Add(8*time.Hour), day.Add(10*time.Hour)

	b1 := trips.New(&trips.Bus{DepartureStationID: "tmb", ArrivalStationID: "sfl", Price: 20, TotalSeats: 50, AvailableSeats: 15})
	b1.ID, b1.OperatorID, b1.OperatorName = "B1", "sntri", "SNTRI"
	b1.FromCity, b1.ToCity = "Tunis", "Sfax"
	b1.DepartureTime, b1.ArrivalTime = day.Add(9*time.Hour), day.Add(13*time.Hour+30*time.Minute)

	t1 := trips.New(&trips.Transporter{ContactInfo: "+216 22 123 456", VehicleType: "Semi-trailer truck", AvailableSpace: "10 m³", ETA: "2 days", Route: []string{"Ben Arous", "Nabeul"}})
	t1.ID, t1.OperatorID, t1.OperatorName = "T1", "trans1", "Euro-Trans"
	t1.FromCity, t1.ToCity = "Tunis", "Marseille, France"
	t1.DepartureTime, t1.ArrivalTime = day.Add(48*time.Hour), day.Add(96*time.Hour)

	return &fakeStore{
		trips:    []trips.Trip{l1, b1, t1},
		stations: stations,
		users: []db.User{
			{ID: "u-admin", Username: "admin", DisplayName: "Administrator", Role: db.RoleAdmin},
			{ID: "op1", Username: "ali", DisplayName: "Ali's Louage", Role: db.RoleOperator},
			{ID: "sntri", Username: "sntri_operator", DisplayName: "SNTRI", Role: db.RoleOperator},
		},
		passwords: map[string]string{"admin": "secret", "ali": "password123"},
	}
}

type metricsSpy struct {
	searches []string
	clients  int
}

func (m *metricsSpy) SearchObserved(kind string) { m.searches = append(m.searches, kind) }
func (m *metricsSpy) WSClientsAdd(delta int)     { m.clients += delta }

func newTestServer(t *testing.T, opts Options) (*Server, *fakeStore) {
	t.Helper()
	store := fixtureStore()
	cat := catalog.New(store, nil)
	require.NoError(t, cat.Refresh(context.Background()))
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s := New(store, cat, locations.Default(), opts)
	s.now = func() time.Time { return day.Add(time.Hour) }
	t.Cleanup(s.Close)
	return s, store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[errorBody](t, rec).Message
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s.Handler(), "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 3, body["trips"])

	t.Run("catalog not loaded", func(t *testing.T) {
		empty := New(fixtureStore(), catalog.New(fixtureStore(), nil), nil, Options{})
		defer empty.Close()
		rec := do(t, empty.Handler(), "GET", "/healthz", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		rec = do(t, empty.Handler(), "GET", "/api/trips", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "catalog not loaded", message(t, rec))
	})
}

func TestListTrips(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s.Handler(), "GET", "/api/trips", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[[]trips.Trip](t, rec)
	require.Len(t, got, 3)
	l, ok := got[0].Details.(*trips.Louage)
	require.True(t, ok)
	require.NotNil(t, l.Station)
	assert.Equal(t, "Moncef Bey (Sud)", l.Station.Name)
	assert.Equal(t, trips.KindTransporter, got[2].Type)
}

const newLouage = `{
	"type": "louage", "operatorId": "op1", "fromCity": "Tunis", "toCity": "Sousse",
	"departureTime": "2025-03-01T14:00:00Z", "arrivalTime": "2025-03-01T16:00:00Z",
	"stationId": "tmb", "price": 15, "totalSeats": 8, "availableSeats": 2, "isFull": true
}`

func TestCreateTrip(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	rec := do(t, h, "POST", "/api/trips", newLouage)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[trips.Trip](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Ali's Louage", created.OperatorName)
	l := created.Details.(*trips.Louage)
	assert.Equal(t, 8, l.AvailableSeats)
	assert.False(t, l.IsFull)
	require.NotNil(t, l.Station)
	assert.Equal(t, "Tunis", l.Station.City)

	rec = do(t, h, "GET", "/api/trips", "")
	assert.Len(t, decode[[]trips.Trip](t, rec), 4)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"unknown operator", strings.Replace(newLouage, `"op1"`, `"op9"`, 1), http.StatusNotFound},
		{"missing operator", strings.Replace(newLouage, `"operatorId": "op1",`, "", 1), http.StatusBadRequest},
		{"unknown type", strings.Replace(newLouage, `"louage"`, `"ferry"`, 1), http.StatusBadRequest},
		{"negative price", strings.Replace(newLouage, `"price": 15`, `"price": -1`, 1), http.StatusBadRequest},
		{"no station", strings.Replace(newLouage, `"stationId": "tmb",`, "", 1), http.StatusBadRequest},
		{"broken json", `{"type":`, http.StatusBadRequest},
		{"empty body", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/trips", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, message(t, rec))
		})
	}
}

func TestUpdateTrip(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	body := `{
		"type": "louage", "fromCity": "Tunis", "toCity": "Sousse",
		"departureTime": "2025-03-01T08:00:00Z", "arrivalTime": "2025-03-01T10:00:00Z",
		"stationId": "tmb", "price": 16, "totalSeats": 8, "availableSeats": 0, "isFull": true
	}`
	rec := do(t, h, "PUT", "/api/trips/L1", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[trips.Trip](t, rec)
	assert.Equal(t, "L1", got.ID)
	assert.Equal(t, "op1", got.OperatorID)
	l := got.Details.(*trips.Louage)
	assert.True(t, l.IsFull)
	assert.Equal(t, 16.0, l.Price)

	snap := s.catalog.Snapshot()
	stored, ok := snap.Trip("L1")
	require.True(t, ok)
	assert.True(t, stored.Details.(*trips.Louage).IsFull)

	rec = do(t, h, "PUT", "/api/trips/B1", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, "PUT", "/api/trips/nope", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTrip(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	rec := do(t, h, "DELETE", "/api/trips/B1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := s.catalog.Snapshot().Trip("B1")
	assert.False(t, ok)

	rec = do(t, h, "DELETE", "/api/trips/B1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTripPath(t *testing.T) {
	s, store := newTestServer(t, Options{})

	rec := do(t, s.Handler(), "GET", "/api/trips/T1/path", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[pathResponse](t, rec)
	assert.Equal(t, "T1", got.TripID)
	// Tunis, Ben Arous, Nabeul, then the synthetic point for Marseille.
	require.Len(t, got.Points, 4)
	assert.InDelta(t, 36.792+2.5, got.Points[3].Lat, 1e-9)
	assert.NotEmpty(t, got.Polyline)
	assert.Greater(t, got.DistanceMeters, 0.0)

	rec = do(t, s.Handler(), "GET", "/api/trips/missing/path", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	lost := trips.New(&trips.Louage{CustomStationName: "Somewhere", TotalSeats: 8})
	lost.ID, lost.FromCity, lost.ToCity = "L9", "Nowhere", "Sousse"
	lost.DepartureTime, lost.ArrivalTime = day, day.Add(time.Hour)
	store.trips = append(store.trips, lost)
	require.NoError(t, s.catalog.Refresh(context.Background()))

	rec = do(t, s.Handler(), "GET", "/api/trips/L9/path", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Trip has no resolvable route", message(t, rec))
}

func TestStations(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	rec := do(t, h, "GET", "/api/stations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]trips.Station](t, rec), 5)

	rec = do(t, h, "POST", "/api/stations", `{"id":"gl","name":"Station Louage Gabès","city":"Gabès","lat":33.881,"lng":10.098}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "gl", decode[trips.Station](t, rec).ID)

	_, ok := s.catalog.Snapshot().Stations.ByCity("Gabès")
	assert.True(t, ok)

	rec = do(t, h, "POST", "/api/stations", `{"id":"gl","name":"Again","city":"Gabès","lat":33.8,"lng":10.1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, "POST", "/api/stations", `{"city":"Gabès","lat":33.8,"lng":10.1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/stations", `{"name":"X","city":"Y","lat":123,"lng":10.1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "PUT", "/api/stations/gl", `{"name":"Gabès Centre","city":"Gabès","lat":33.88,"lng":10.1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	st, _ := s.catalog.Snapshot().Stations.ByID("gl")
	assert.Equal(t, "Gabès Centre", st.Name)

	rec = do(t, h, "PUT", "/api/stations/zz", `{"name":"Z","city":"Z","lat":1,"lng":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, "DELETE", "/api/stations/gl", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, "DELETE", "/api/stations/gl", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocations(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s.Handler(), "GET", "/api/locations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Governorates []locations.Governorate `json:"tunisianGovernorates"`
		Countries    []string                `json:"countries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Governorates, 24)
	assert.Contains(t, body.Countries, "France")
}

func TestSearch(t *testing.T) {
	spy := &metricsSpy{}
	s, _ := newTestServer(t, Options{Metrics: spy})
	h := s.Handler()

	ids := func(rec *httptest.ResponseRecorder) []string {
		var out []string
		for _, tr := range decode[[]trips.Trip](t, rec) {
			out = append(out, tr.ID)
		}
		return out
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"type=louage", []string{"L1"}},
		{"type=LOUAGE&maxPrice=10", nil},
		{"type=bus&minSeats=10&departAfter=08:30", []string{"B1"}},
		{"type=bus&departAfter=09:30", nil},
		{"type=transporter&locA=Tunis&locB=marseille", []string{"T1"}},
		{"type=transporter&locA=Italy", nil},
		{"type=transporter&maxPrice=1", []string{"T1"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, h, "GET", "/api/search?"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, ids(rec))
			assert.True(t, strings.HasPrefix(rec.Body.String(), "["))
		})
	}
	assert.Equal(t, []string{"louage", "louage", "bus", "bus", "transporter", "transporter", "transporter", ""}, spy.searches)

	rec := do(t, h, "GET", "/api/search?type=bus&maxPrice=cheap", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, "GET", "/api/search?type=bus&departAfter=25:00", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsers(t *testing.T) {
	s, store := newTestServer(t, Options{})
	h := s.Handler()

	rec := do(t, h, "GET", "/api/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]db.User](t, rec)
	require.Len(t, users, 3)
	assert.Equal(t, "admin", users[0].Username)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(t, h, "PUT", "/api/users/op1", `{"role":"ADMIN"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, db.RoleAdmin, decode[db.User](t, rec).Role)

	rec = do(t, h, "PUT", "/api/users/op1", `{"role":"pilot"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid role provided", message(t, rec))

	rec = do(t, h, "PUT", "/api/users/ghost", `{"role":"user"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, "DELETE", "/api/users/u-admin", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, "DELETE", "/api/users/sntri", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, store.users, 2)
	_, ok := s.catalog.Snapshot().Trip("B1")
	assert.False(t, ok, "trips of a deleted operator leave the catalog")
}

func TestAuth(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	rec := do(t, h, "POST", "/api/auth/signup", `{"username":"fatma","password":"pw","displayName":"Fatma Express","role":"OPERATOR"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	u := decode[db.User](t, rec)
	assert.Equal(t, db.RoleOperator, u.Role)
	assert.NotContains(t, rec.Body.String(), "pw")

	rec = do(t, h, "POST", "/api/auth/signup", `{"username":"fatma","password":"x","displayName":"Other","role":"user"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Username already exists", message(t, rec))

	rec = do(t, h, "POST", "/api/auth/signup", `{"username":"bob","password":"x","role":"user"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/auth/signup", `{"username":"bob","password":"x","displayName":"Bob","role":"driver"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/auth/login", `{"username":"fatma","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, u.ID, decode[db.User](t, rec).ID)

	rec = do(t, h, "POST", "/api/auth/login", `{"username":"fatma","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", message(t, rec))

	rec = do(t, h, "POST", "/api/auth/login", `{"username":"fatma"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLive(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	rec := do(t, h, "GET", "/api/live", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[liveResponse](t, rec)
	assert.True(t, day.Add(time.Hour).Equal(got.At))
	require.Len(t, got.Markers, 3)
	assert.Equal(t, "L1", got.Markers[0].TripID)
	assert.Equal(t, "Moncef Bey (Sud)", got.Markers[0].Origin)
	assert.Equal(t, "3 seats available", got.Markers[0].Detail)

	rec = do(t, h, "GET", "/api/live?type=bus", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[liveResponse](t, rec)
	require.Len(t, got.Markers, 1)
	assert.Equal(t, "B1", got.Markers[0].TripID)

	rec = do(t, h, "GET", "/api/live?type=bus&minSeats=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddleware(t *testing.T) {
	t.Run("cors preflight", func(t *testing.T) {
		s, _ := newTestServer(t, Options{})
		rec := do(t, s.Handler(), "OPTIONS", "/api/trips", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("gzip", func(t *testing.T) {
		s, _ := newTestServer(t, Options{})
		req := httptest.NewRequest("GET", "/api/locations", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

		zr, err := gzip.NewReader(rec.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Contains(t, string(body), "tunisianGovernorates")
	})

	t.Run("rate limit", func(t *testing.T) {
		s, _ := newTestServer(t, Options{RateLimitRPS: 0.001, RateLimitBurst: 2})
		h := s.Handler()
		assert.Equal(t, http.StatusOK, do(t, h, "GET", "/healthz", "").Code)
		assert.Equal(t, http.StatusOK, do(t, h, "GET", "/healthz", "").Code)
		rec := do(t, h, "GET", "/healthz", "")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, message(t, rec))

		req := httptest.NewRequest("GET", "/healthz", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.7, 172.16.0.1")
		other := httptest.NewRecorder()
		h.ServeHTTP(other, req)
		assert.Equal(t, http.StatusOK, other.Code)
	})

	t.Run("unknown route", func(t *testing.T) {
		s, _ := newTestServer(t, Options{})
		rec := do(t, s.Handler(), "GET", "/api/nothing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Not found", message(t, rec))
	})
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientKey(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientKey(r))
}
