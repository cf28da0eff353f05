package api

import (
	"math"
	"net/http"
	"time"

	"tunitrip/internal/projection"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/julienschmidt/httprouter"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const gtfsRealtimeVersion = "2.0"

// BuildFeed renders markers as a full-dataset GTFS-realtime vehicle
// positions feed. The trip type is used as route id.
func BuildFeed(markers []projection.Marker, at time.Time) *gtfsrtpb.FeedMessage {
	ts := uint64(at.Unix())
	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(ts),
		},
		Entity: make([]*gtfsrtpb.FeedEntity, 0, len(markers)),
	}
	for _, m := range markers {
		fm.Entity = append(fm.Entity, &gtfsrtpb.FeedEntity{
			Id: proto.String(m.TripID),
			Vehicle: &gtfsrtpb.VehiclePosition{
				Trip: &gtfsrtpb.TripDescriptor{
					TripId:  proto.String(m.TripID),
					RouteId: proto.String(string(m.Type)),
				},
				Vehicle: &gtfsrtpb.VehicleDescriptor{
					Id:    proto.String(m.TripID),
					Label: proto.String(m.OperatorName),
				},
				Position: &gtfsrtpb.Position{
					Latitude:  proto.Float32(float32(m.Position.Lat)),
					Longitude: proto.Float32(float32(m.Position.Lng)),
					Bearing:   proto.Float32(float32(compassBearing(m.Heading))),
				},
				Timestamp: proto.Uint64(ts),
			},
		})
	}
	return fm
}

// compassBearing converts a heading measured counterclockwise from east
// into degrees clockwise from north.
func compassBearing(heading float64) float64 {
	b := math.Mod(90-heading, 360)
	if b < 0 {
		b += 360
	}
	return b
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	at, markers, ok := s.currentMarkers(w, r)
	if !ok {
		return
	}
	fm := BuildFeed(markers, at)
	if r.URL.Query().Get("format") == "json" {
		b, err := protojson.Marshal(fm)
		if err != nil {
			writeStoreError(w, err, "Error encoding feed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		return
	}
	b, err := proto.Marshal(fm)
	if err != nil {
		writeStoreError(w, err, "Error encoding feed")
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	_, _ = w.Write(b)
}
