package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigFromArgs(t *testing.T) {
	config, err := NewConfigFromArgs("sweepviz", []string{
		"-db", "session.sqlite",
		"-s", "3",
		"-n", "12",
		"-o", "sweep.png",
		"-size", "400",
		"-batch-size", "4",
		"-blocking", "1500",
	})
	require.NoError(t, err)

	assert.Equal(t, "session.sqlite", config.DBPath)
	assert.EqualValues(t, 3, config.SessionID)
	assert.Equal(t, 12, config.SweepIndex)
	assert.Equal(t, "sweep.png", config.OutputFile)
	assert.Equal(t, 400, config.ImageSize)
	assert.Equal(t, defaultMaxDistance, config.MaxDistance)
	assert.Equal(t, 4, config.Avoidance.BatchSize)
	assert.Equal(t, 1500.0, config.Avoidance.BlockingDistance)
	assert.False(t, config.Bars)
}

func TestNewConfigFromArgs_Defaults(t *testing.T) {
	config, err := NewConfigFromArgs("sweepviz", []string{"-db", "session.sqlite", "-bars"})
	require.NoError(t, err)

	assert.EqualValues(t, 1, config.SessionID)
	assert.Equal(t, -1, config.SweepIndex)
	assert.Equal(t, defaultImageSize, config.ImageSize)
	assert.Equal(t, 8, config.Avoidance.BatchSize)
}

func TestNewConfigFromArgs_List(t *testing.T) {
	config, err := NewConfigFromArgs("sweepviz", []string{"-db", "session.sqlite", "-list", "-s", "0"})
	require.NoError(t, err)
	assert.True(t, config.List)
}

func TestNewConfigFromArgs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no db", []string{"-bars"}},
		{"no output", []string{"-db", "x.sqlite"}},
		{"no session", []string{"-db", "x.sqlite", "-bars", "-s", "0"}},
		{"small image", []string{"-db", "x.sqlite", "-o", "x.png", "-size", "10"}},
		{"max distance", []string{"-db", "x.sqlite", "-bars", "-max-distance", "0"}},
		{"batch size", []string{"-db", "x.sqlite", "-bars", "-batch-size", "0"}},
		{"unknown flag", []string{"-db", "x.sqlite", "-bars", "-colour", "red"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigFromArgs("sweepviz", tt.args)
			assert.Error(t, err)
		})
	}
}
