package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cone.pilot/internal/config"
	"github.com/banshee-data/cone.pilot/internal/serialmux"
)

func TestParseFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		o, err := parseFlags(nil)
		require.NoError(t, err)
		assert.Equal(t, ":8080", o.listen)
		assert.Equal(t, "conepilot.db", o.dbPath)
		assert.False(t, o.devMode)
	})

	t.Run("environment provides defaults", func(t *testing.T) {
		t.Setenv("CONEPILOT_LISTEN", ":9090")
		t.Setenv("CONEPILOT_DEV", "true")
		o, err := parseFlags(nil)
		require.NoError(t, err)
		assert.Equal(t, ":9090", o.listen)
		assert.True(t, o.devMode)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("CONEPILOT_LISTEN", ":9090")
		o, err := parseFlags([]string{"-listen", "127.0.0.1:7000", "-fixtures", "run.jsonl", "-loop"})
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:7000", o.listen)
		assert.Equal(t, "run.jsonl", o.fixtures)
		assert.True(t, o.loop)
	})

	t.Run("empty listen rejected", func(t *testing.T) {
		_, err := parseFlags([]string{"-listen", ""})
		assert.Error(t, err)
	})
}

func TestOpenLink(t *testing.T) {
	cfg := config.EmptyTuningConfig()

	link, err := openLink(options{disableLink: true}, cfg)
	require.NoError(t, err)
	assert.IsType(t, &serialmux.DisabledSerialMux{}, link)
	assert.False(t, link.IsConnected())

	link, err = openLink(options{port: "/dev/ttyUSB0"}, cfg)
	require.NoError(t, err)
	assert.IsType(t, &serialmux.SerialMux{}, link)
	// the port is only opened by Connect
	assert.False(t, link.IsConnected())
}

func TestConnectLink_Disabled(t *testing.T) {
	link := serialmux.NewDisabledSerialMux()
	require.NoError(t, connectLink(t.Context(), link))
	assert.False(t, link.IsConnected())
}
