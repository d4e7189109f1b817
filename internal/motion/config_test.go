package motion_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidish/internal/config"
	"pidish/internal/motion"
)

func TestOptionsFromConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := config.Default()
		opts, err := motion.OptionsFromConfig(&cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, motion.SixteenthStep, opts.Mode)
		assert.Equal(t, testPins, opts.Pins)
		assert.InDelta(t, 7.03125, opts.MicronsPerFullStep, 1e-9)
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := config.Default()
		cfg.Motion.MicrostepMode = "thirtysecond"
		_, err := motion.OptionsFromConfig(&cfg, nil)
		require.Error(t, err)
	})
}
