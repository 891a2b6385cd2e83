package gtfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }
func u32p(v uint32) *uint32 { return &v }
func i32p(v int32) *int32   { return &v }

func bluePosition(id string) VehiclePosition {
	return VehiclePosition{
		VehicleID:           id,
		CurrentStopSequence: u32p(3),
		TripID:              strp("55"),
		RouteID:             strp("20"),
		RouteLabel:          strp("Blue"),
	}
}

// stops returns n scheduled stop-time updates with distinct delays.
func stops(n int) []StopTimeUpdate {
	out := make([]StopTimeUpdate, n)
	for i := range out {
		out[i] = StopTimeUpdate{ArrivalDelay: i32p(int32(i * 10)), DepartureDelay: i32p(int32(i * 10))}
	}
	return out
}

func TestCorrelate_MatchedStop(t *testing.T) {
	stus := stops(5)
	stus[2] = StopTimeUpdate{ScheduleRelationship: 0, ArrivalDelay: i32p(45), DepartureDelay: i32p(30)}

	got := Correlate(
		[]VehiclePosition{bluePosition("1001")},
		[]TripUpdate{{VehicleID: strp("1001"), StopTimeUpdates: stus}},
	)

	require.Len(t, got, 1)
	vs := got["1001"]
	require.NotNil(t, vs)
	assert.Equal(t, uint32(3), *vs.StopInSequence)
	assert.Equal(t, "55", *vs.TripID)
	assert.Equal(t, "20", *vs.RouteID)
	assert.Equal(t, "Blue", *vs.RouteLabel)
	require.NotNil(t, vs.Status)
	assert.True(t, vs.Status.DataExists)
	assert.Equal(t, int32(45), *vs.Status.ArrivalDelaySeconds)
	assert.Equal(t, int32(30), *vs.Status.DepartureDelaySeconds)
}

func TestCorrelate_NoDataStopIgnoresDelays(t *testing.T) {
	stus := stops(5)
	stus[2] = StopTimeUpdate{ScheduleRelationship: ScheduleRelationshipNoData, ArrivalDelay: i32p(45), DepartureDelay: i32p(30)}

	got := Correlate(
		[]VehiclePosition{bluePosition("1001")},
		[]TripUpdate{{VehicleID: strp("1001"), StopTimeUpdates: stus}},
	)

	vs := got["1001"]
	require.NotNil(t, vs.Status)
	assert.False(t, vs.Status.DataExists)
	assert.Nil(t, vs.Status.ArrivalDelaySeconds)
	assert.Nil(t, vs.Status.DepartureDelaySeconds)
}

func TestCorrelate_PartialDelays(t *testing.T) {
	stus := stops(3)
	stus[2] = StopTimeUpdate{DepartureDelay: i32p(-12)}

	got := Correlate(
		[]VehiclePosition{bluePosition("7")},
		[]TripUpdate{{VehicleID: strp("7"), StopTimeUpdates: stus}},
	)

	st := got["7"].Status
	require.NotNil(t, st)
	assert.True(t, st.DataExists)
	assert.Nil(t, st.ArrivalDelaySeconds)
	assert.Equal(t, int32(-12), *st.DepartureDelaySeconds)
}

func TestCorrelate_PositionWithoutUpdate(t *testing.T) {
	got := Correlate(
		[]VehiclePosition{bluePosition("1001"), bluePosition("1002")},
		[]TripUpdate{{VehicleID: strp("1001"), StopTimeUpdates: stops(5)}},
	)

	require.Len(t, got, 2)
	assert.NotNil(t, got["1001"].Status)
	assert.Nil(t, got["1002"].Status)
}

func TestCorrelate_UpdateWithoutVehicleIDIsDiscarded(t *testing.T) {
	got := Correlate(
		[]VehiclePosition{bluePosition("1001")},
		[]TripUpdate{{VehicleID: nil, StopTimeUpdates: stops(5)}},
	)

	require.Len(t, got, 1)
	assert.Nil(t, got["1001"].Status)

	got = Correlate(nil, []TripUpdate{{StopTimeUpdates: stops(2)}})
	assert.Empty(t, got)
}

func TestCorrelate_UpdateWithoutPosition(t *testing.T) {
	got := Correlate(
		[]VehiclePosition{bluePosition("1001")},
		[]TripUpdate{{VehicleID: strp("2002"), StopTimeUpdates: stops(5)}},
	)

	require.Len(t, got, 2)
	vs := got["2002"]
	require.NotNil(t, vs)
	assert.Nil(t, vs.StopInSequence)
	assert.Nil(t, vs.TripID)
	assert.Nil(t, vs.RouteID)
	assert.Nil(t, vs.RouteLabel)
	assert.Nil(t, vs.Status)
}

func TestCorrelate_OutOfRangeStopSequence(t *testing.T) {
	tests := []struct {
		name string
		seq  uint32
	}{
		{name: "zero", seq: 0},
		{name: "one past end", seq: 4},
		{name: "far past end", seq: 400},
		{name: "max uint32", seq: ^uint32(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := bluePosition("1001")
			p.CurrentStopSequence = u32p(tt.seq)

			var got map[string]*VehicleStatus
			require.NotPanics(t, func() {
				got = Correlate(
					[]VehiclePosition{p},
					[]TripUpdate{{VehicleID: strp("1001"), StopTimeUpdates: stops(3)}},
				)
			})
			require.Contains(t, got, "1001")
			assert.Nil(t, got["1001"].Status)
		})
	}
}

func TestCorrelate_EmptyStopTimeUpdates(t *testing.T) {
	got := Correlate(
		[]VehiclePosition{bluePosition("1001")},
		[]TripUpdate{{VehicleID: strp("1001")}},
	)
	assert.Nil(t, got["1001"].Status)
}

func TestCorrelate_RepeatedPositionLastWins(t *testing.T) {
	first := bluePosition("1001")
	second := bluePosition("1001")
	second.RouteLabel = strp("Red")

	got := Correlate([]VehiclePosition{first, second}, nil)

	require.Len(t, got, 1)
	assert.Equal(t, "Red", *got["1001"].RouteLabel)
}
