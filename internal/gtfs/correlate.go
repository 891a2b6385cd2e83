package gtfs

// Correlate joins a vehicle-positions snapshot with a trip-updates snapshot by
// vehicle id.
//
// Every position produces an entry (a repeated id keeps the last one). Every
// trip update with a vehicle id then looks up the stop-time entry for the
// vehicle's current stop; a Status is attached only when that entry exists.
// Updates for vehicles without a position get an otherwise empty entry.
func Correlate(positions []VehiclePosition, updates []TripUpdate) map[string]*VehicleStatus {
	statuses := make(map[string]*VehicleStatus, len(positions))

	for _, p := range positions {
		statuses[p.VehicleID] = &VehicleStatus{
			StopInSequence: p.CurrentStopSequence,
			TripID:         p.TripID,
			RouteID:        p.RouteID,
			RouteLabel:     p.RouteLabel,
		}
	}

	for _, u := range updates {
		if u.VehicleID == nil {
			continue
		}
		vs, ok := statuses[*u.VehicleID]
		if !ok {
			vs = &VehicleStatus{}
			statuses[*u.VehicleID] = vs
		}

		stu, found := currentStopTime(u.StopTimeUpdates, vs.StopInSequence)
		if !found {
			continue
		}
		st := &Status{DataExists: stu.ScheduleRelationship != ScheduleRelationshipNoData}
		if st.DataExists {
			st.ArrivalDelaySeconds = stu.ArrivalDelay
			st.DepartureDelaySeconds = stu.DepartureDelay
		}
		vs.Status = st
	}

	return statuses
}

// currentStopTime returns the entry at stopInSequence-1. Absent, zero and
// out-of-range sequences resolve to no entry.
func currentStopTime(stus []StopTimeUpdate, stopInSequence *uint32) (StopTimeUpdate, bool) {
	if stopInSequence == nil {
		return StopTimeUpdate{}, false
	}
	idx := int64(*stopInSequence) - 1
	if idx < 0 || idx >= int64(len(stus)) {
		return StopTimeUpdate{}, false
	}
	return stus[idx], true
}
