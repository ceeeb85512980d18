package navigation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	dz := DefaultDeadZoneRad

	tests := []struct {
		name    string
		from    State
		bearing float64
		ok      bool
		want    State
	}{
		{"search stays without target", SearchCone, 0, false, SearchCone},
		{"search acquires centred target", SearchCone, 0.0, true, AlignToCone},
		{"search acquires off-centre target", SearchCone, 0.5, true, AlignToCone},
		{"align advances inside dead zone", AlignToCone, 0.04, true, ApproachCone},
		{"align advances inside dead zone on the left", AlignToCone, -0.04, true, ApproachCone},
		{"align holds outside dead zone", AlignToCone, 0.1, true, AlignToCone},
		{"align holds exactly at dead zone", AlignToCone, dz, true, AlignToCone},
		{"align loses target", AlignToCone, 0, false, SearchCone},
		{"approach keeps going when centred", ApproachCone, 0.01, true, ApproachCone},
		{"approach ignores large bearing", ApproachCone, 0.8, true, ApproachCone},
		{"approach loses target", ApproachCone, 0, false, SearchCone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.from, tt.bearing, tt.ok, dz))
		})
	}
}

func TestMachine(t *testing.T) {
	var zero Machine
	assert.Equal(t, SearchCone, zero.State())
	assert.Equal(t, AlignToCone, zero.Update(0.2, true), "zero value uses the default dead zone")
	assert.Equal(t, AlignToCone, zero.Update(0.2, true))
	assert.Equal(t, ApproachCone, zero.Update(0.01, true))
	assert.Equal(t, SearchCone, zero.Update(0, false))

	m := NewMachine(0.5)
	m.Update(0.1, true)
	assert.Equal(t, ApproachCone, m.Update(0.3, true), "custom dead zone")
}

func TestStateNames(t *testing.T) {
	for _, s := range []State{SearchCone, AlignToCone, ApproachCone} {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	assert.Equal(t, "SEARCH_CONE", SearchCone.String())
	assert.Equal(t, "ALIGN_TO_CONE", AlignToCone.String())
	assert.Equal(t, "APPROACH_CONE", ApproachCone.String())
	assert.Equal(t, "State(9)", State(9).String())

	_, err := ParseState("PARKED")
	assert.Error(t, err)

	b, err := json.Marshal(struct {
		S State `json:"s"`
	}{ApproachCone})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"APPROACH_CONE"}`, string(b))

	var back struct {
		S State `json:"s"`
	}
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, ApproachCone, back.S)
}

func TestDriveGains_Command(t *testing.T) {
	g := DefaultDriveGains()

	tests := []struct {
		name    string
		state   State
		bearing float64
		ok      bool
		want    DriveCommand
	}{
		{"search ignores bearing", SearchCone, 0.7, true, DriveCommand{0.35, 0.20}},
		{"search without target", SearchCone, 0, false, DriveCommand{0.35, 0.20}},
		{"align saturates right", AlignToCone, 10, true, DriveCommand{-1.0, 0.15}},
		{"align saturates left", AlignToCone, -10, true, DriveCommand{1.0, 0.15}},
		{"align proportional", AlignToCone, 0.25, true, DriveCommand{-0.3, 0.15}},
		{"approach proportional", ApproachCone, -0.1, true, DriveCommand{0.12, 0.35}},
		{"absent bearing counts as zero", ApproachCone, 0.5, false, DriveCommand{0, 0.35}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Command(tt.state, tt.bearing, tt.ok)
			assert.InDelta(t, tt.want.Steering, got.Steering, 1e-12)
			assert.InDelta(t, tt.want.Throttle, got.Throttle, 1e-12)
		})
	}
}

func TestNoDetectionsStaysInSearch(t *testing.T) {
	m := NewMachine(0)
	g := DefaultDriveGains()
	for i := 0; i < 100; i++ {
		s := m.Update(0, false)
		require.Equal(t, SearchCone, s)
		require.Equal(t, DriveCommand{Steering: 0.35, Throttle: 0.20}, g.Command(s, 0, false))
	}
}
