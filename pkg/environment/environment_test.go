package environment

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetENVDefaults(t *testing.T) {
	config, err := GetENV(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "results", config.ResultsDir)
	assert.Equal(t, "/proc", config.ProcMount)
	assert.Equal(t, 100*time.Millisecond, config.HoldTick)
	assert.Equal(t, 30*time.Second, config.RevertTimeout)
	assert.Equal(t, uint(1), config.ApplyAttempts)
	assert.Equal(t, 50, config.RecentLimit)
	assert.False(t, config.Objectives.Enabled())
}

func TestGetENVFromEnvironment(t *testing.T) {
	t.Setenv("CHAOS_RESULTS_DIR", "/var/lib/chaos")
	t.Setenv("CHAOS_HOLD_TICK", "250ms")
	t.Setenv("CHAOS_APPLY_ATTEMPTS", "3")
	t.Setenv("CHAOS_SLO_MIN_SUCCESS_RATE", "0.9")

	config, err := GetENV(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/chaos", config.ResultsDir)
	assert.Equal(t, 250*time.Millisecond, config.HoldTick)
	assert.Equal(t, uint(3), config.ApplyAttempts)
	assert.Equal(t, 0.9, config.Objectives.MinSuccessRate)
}

func TestGetENVFlagsWin(t *testing.T) {
	t.Setenv("CHAOS_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(LogLevel, "info", "")
	require.NoError(t, flags.Parse([]string{"--log-level=debug"}))

	v := viper.New()
	require.NoError(t, v.BindPFlags(flags))
	config, err := GetENV(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", config.LogLevel)
}

func TestGetENVInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"CHAOS_APPLY_ATTEMPTS", "0"},
		{"CHAOS_HOLD_TICK", "0s"},
		{"CHAOS_RECENT_LIMIT", "0"},
		{"CHAOS_SLO_MIN_SUCCESS_RATE", "1.5"},
		{"CHAOS_LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := GetENV(viper.New())
			assert.Error(t, err)
		})
	}
}
