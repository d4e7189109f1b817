package printer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidish/internal/config"
	"pidish/internal/printer"
)

func TestOptionsFromConfig(t *testing.T) {
	t.Run("calibration layers follow height", func(t *testing.T) {
		cfg := config.Default()
		cfg.Calibration.Height = 1000
		cfg.Schedule.SliceThickness = 100
		opts, err := printer.OptionsFromConfig(&cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, 10, opts.Calibration.Layers)
		assert.Equal(t, cfg.Calibration.BoostLayers, opts.Calibration.BoostLayers)
		assert.Equal(t, cfg.Motion.ResinTop, opts.ResinTop)
		assert.Equal(t, cfg.PollInterval(), opts.PollInterval)
		require.Len(t, opts.Schedule.Breakpoints, len(cfg.Schedule.Breakpoints))
	})

	t.Run("bad breakpoints", func(t *testing.T) {
		cfg := config.Default()
		cfg.Schedule.Breakpoints = []config.Breakpoint{{Layer: 2, Method: "dip", Factor: 1}}
		_, err := printer.OptionsFromConfig(&cfg, nil)
		require.Error(t, err)
	})
}
