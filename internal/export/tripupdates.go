package export

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
)

// Feed encodings
const (
	FormatProtobuf = "protobuf"
	FormatJSON     = "json"
)

// TripUpdates builds a GTFS-Realtime feed with one TripUpdate per departure
// on the board. The home station carries the scheduled departure time;
// following stops are listed without times, skipped stops as SKIPPED.
func TripUpdates(snap *models.BoardSnapshot, now time.Time) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
	}

	platforms := make([]string, 0, len(snap.Platforms))
	for platform := range snap.Platforms {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)

	home := strconv.Itoa(snap.Station)
	for _, platform := range platforms {
		for _, dep := range snap.Platforms[platform] {
			feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
				Id:         proto.String(fmt.Sprintf("%s:%d:%s", platform, dep.Type, dep.Run)),
				TripUpdate: tripUpdate(dep, home),
			})
		}
	}
	return feed
}

func tripUpdate(dep models.Departure, home string) *gtfs.TripUpdate {
	updates := []*gtfs.TripUpdate_StopTimeUpdate{{
		StopSequence: proto.Uint32(0),
		StopId:       proto.String(home),
		Departure: &gtfs.TripUpdate_StopTimeEvent{
			Time: proto.Int64(dep.Time.Unix()),
		},
		ScheduleRelationship: gtfs.TripUpdate_StopTimeUpdate_SCHEDULED.Enum(),
	}}

	for i, stop := range dep.Stations {
		rel := gtfs.TripUpdate_StopTimeUpdate_NO_DATA
		if stop.Skipped {
			rel = gtfs.TripUpdate_StopTimeUpdate_SKIPPED
		}
		updates = append(updates, &gtfs.TripUpdate_StopTimeUpdate{
			StopSequence:         proto.Uint32(uint32(i + 1)),
			StopId:               proto.String(strconv.Itoa(stop.ID)),
			ScheduleRelationship: rel.Enum(),
		})
	}

	return &gtfs.TripUpdate{
		Trip: &gtfs.TripDescriptor{
			TripId:               proto.String(dep.Run),
			RouteId:              proto.String(strconv.Itoa(dep.RouteID)),
			ScheduleRelationship: gtfs.TripDescriptor_SCHEDULED.Enum(),
		},
		StopTimeUpdate: updates,
	}
}

// Encode serializes a feed as protobuf or, for debugging, JSON. It returns
// the body and its content type.
func Encode(feed *gtfs.FeedMessage, format string) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(feed)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode feed as JSON: %w", err)
		}
		return data, "application/json", nil
	case FormatProtobuf, "":
		data, err := proto.Marshal(feed)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode feed: %w", err)
		}
		return data, "application/x-protobuf", nil
	default:
		return nil, "", fmt.Errorf("unknown feed format %q", format)
	}
}
