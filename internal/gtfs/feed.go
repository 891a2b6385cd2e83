package gtfs

import (
	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// VehiclePositionsFromFeed extracts vehicle entities from a decoded
// vehicle-positions feed. The entity id is the vehicle id; entities with
// neither an entity id nor a vehicle descriptor id are dropped.
func VehiclePositionsFromFeed(fm *gtfsrtpb.FeedMessage) []VehiclePosition {
	if fm == nil {
		return nil
	}
	out := make([]VehiclePosition, 0, len(fm.Entity))
	for _, e := range fm.Entity {
		if e == nil || e.Vehicle == nil {
			continue
		}
		v := e.Vehicle
		id := e.GetId()
		if id == "" && v.Vehicle != nil {
			id = v.Vehicle.GetId()
		}
		if id == "" {
			continue
		}
		p := VehiclePosition{
			VehicleID:           id,
			CurrentStopSequence: v.CurrentStopSequence,
		}
		if v.Trip != nil {
			p.TripID = v.Trip.TripId
			p.RouteID = v.Trip.RouteId
		}
		if v.Vehicle != nil {
			p.RouteLabel = v.Vehicle.Label
		}
		out = append(out, p)
	}
	return out
}

// TripUpdatesFromFeed extracts trip-update entities from a decoded trip-updates
// feed, keeping the stop-time updates in feed order.
func TripUpdatesFromFeed(fm *gtfsrtpb.FeedMessage) []TripUpdate {
	if fm == nil {
		return nil
	}
	out := make([]TripUpdate, 0, len(fm.Entity))
	for _, e := range fm.Entity {
		if e == nil || e.TripUpdate == nil {
			continue
		}
		tu := e.TripUpdate
		u := TripUpdate{
			StopTimeUpdates: make([]StopTimeUpdate, 0, len(tu.StopTimeUpdate)),
		}
		if tu.Vehicle != nil {
			u.VehicleID = tu.Vehicle.Id
		}
		for _, stu := range tu.StopTimeUpdate {
			var s StopTimeUpdate
			if stu != nil {
				if stu.Arrival != nil {
					s.ArrivalDelay = stu.Arrival.Delay
				}
				if stu.Departure != nil {
					s.DepartureDelay = stu.Departure.Delay
				}
				s.ScheduleRelationship = int32(stu.GetScheduleRelationship())
			}
			u.StopTimeUpdates = append(u.StopTimeUpdates, s)
		}
		out = append(out, u)
	}
	return out
}
