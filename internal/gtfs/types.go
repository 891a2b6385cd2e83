package gtfs

// ScheduleRelationshipNoData marks a stop-time entry that carries no usable
// prediction. Its delays are ignored.
const ScheduleRelationshipNoData int32 = 2

// VehiclePosition is one vehicle entity of a vehicle-positions snapshot.
type VehiclePosition struct {
	VehicleID           string
	CurrentStopSequence *uint32 // position within the active trip's stop list
	TripID              *string
	RouteID             *string
	RouteLabel          *string
}

// TripUpdate is one trip-update entity. Updates without a vehicle id cannot be
// correlated.
type TripUpdate struct {
	VehicleID       *string
	StopTimeUpdates []StopTimeUpdate // indexed by stop sequence - 1
}

type StopTimeUpdate struct {
	ArrivalDelay         *int32 // seconds
	DepartureDelay       *int32 // seconds
	ScheduleRelationship int32
}

// Status is the delay derived for a vehicle's current stop.
type Status struct {
	DataExists            bool   `json:"dataExists"`
	ArrivalDelaySeconds   *int32 `json:"arrivalDelaySeconds"`
	DepartureDelaySeconds *int32 `json:"departureDelaySeconds"`
}

// VehicleStatus is rebuilt on every transit cycle and never persisted as-is.
type VehicleStatus struct {
	StopInSequence *uint32 `json:"stopInSequence"`
	TripID         *string `json:"tripId"`
	RouteID        *string `json:"routeId"`
	RouteLabel     *string `json:"routeLabel"`
	Status         *Status `json:"status,omitempty"`
}
