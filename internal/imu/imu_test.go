package imu

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompensate(t *testing.T) {
	fov := 1.0

	shift, anchor := Compensate(0, 5_000_000, 3.0, fov, 640)
	assert.Zero(t, shift, "no previous frame means no shift")
	assert.Equal(t, int64(5_000_000), anchor)

	// 0.5 rad/s over 100ms = 0.05 rad = 0.05 of the fov = 32px
	shift, anchor = Compensate(1_000_000_000, 1_100_000_000, 0.5, fov, 640)
	assert.InDelta(t, 32.0, shift, 1e-9)
	assert.Equal(t, int64(1_100_000_000), anchor)

	doubledRate, _ := Compensate(1_000_000_000, 1_100_000_000, 1.0, fov, 640)
	assert.InDelta(t, 2*shift, doubledRate, 1e-9)

	doubledDt, _ := Compensate(1_000_000_000, 1_200_000_000, 0.5, fov, 640)
	assert.InDelta(t, 2*shift, doubledDt, 1e-9)

	negative, _ := Compensate(1_000_000_000, 1_100_000_000, -0.5, fov, 640)
	assert.InDelta(t, -32.0, negative, 1e-9)

	// no clamping on a stalled frame
	stalled, _ := Compensate(1_000_000_000, 11_000_000_000, 0.5, fov, 640)
	assert.InDelta(t, 3200.0, stalled, 1e-6)
}

func TestCompensator(t *testing.T) {
	c := Compensator{FOVRad: 1.0}
	assert.Zero(t, c.Shift(1_000_000_000, 5, 640))
	assert.Equal(t, int64(1_000_000_000), c.LastTimestamp())

	assert.InDelta(t, 32.0, c.Shift(1_100_000_000, 0.5, 640), 1e-9)
	assert.Equal(t, int64(1_100_000_000), c.LastTimestamp())

	c.Reset()
	assert.Zero(t, c.LastTimestamp())
	assert.Zero(t, c.Shift(2_000_000_000, 0.5, 640))
}

func TestGyro(t *testing.T) {
	var g Gyro
	assert.Zero(t, g.YawRate())
	assert.Zero(t, g.Samples())

	g.Set(-0.25)
	g.Set(0.125)
	assert.Equal(t, 0.125, g.YawRate())
	assert.Equal(t, uint64(2), g.Samples())

	g.Set(math.Copysign(0, -1))
	assert.True(t, math.Signbit(g.YawRate()))
}

func TestGyro_ConcurrentReaders(t *testing.T) {
	var g Gyro
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			g.Set(float64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			v := g.YawRate()
			if v < 0 || v > 999 || v != math.Trunc(v) {
				t.Errorf("torn read: %v", v)
				return
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, 999.0, g.YawRate())
}

func TestParseGyroLine(t *testing.T) {
	tests := []struct {
		line    string
		want    float64
		wantErr bool
	}{
		{"G:0.01,-0.02,0.35", 0.35, false},
		{"G: 0.0, 0.0, -1.5 \r\n", -1.5, false},
		{"  G:1,2,3", 3, false},
		{"G:1,2", 0, true},
		{"G:1,2,x", 0, true},
		{"S:0.1;T:0.2", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseGyroLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
