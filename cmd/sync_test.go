package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openparl/stenosync/internal/config"
)

func TestApplySyncFlagsOverridesConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Sync.StartLegislature = 19
	cfg.Sync.From = "2013-03-15"
	cfg.Mirror.Root = "./mirror"

	err := applySyncFlags(&cfg, syncFlags{
		legislature: 17,
		from:        "2015-01-01",
		to:          "2015-12-31",
		out:         "/tmp/mirror",
	})
	require.NoError(t, err)
	require.Equal(t, 17, cfg.Sync.StartLegislature)
	require.Equal(t, "2015-01-01", cfg.Sync.From)
	require.Equal(t, "2015-12-31", cfg.Sync.To)
	require.Equal(t, "/tmp/mirror", cfg.Mirror.Root)
}

func TestApplySyncFlagsLeavesConfigWhenUnset(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Sync.StartLegislature = 19
	cfg.Sync.From = "2013-03-15"
	cfg.Mirror.Root = "./mirror"

	require.NoError(t, applySyncFlags(&cfg, syncFlags{}))
	require.Equal(t, 19, cfg.Sync.StartLegislature)
	require.Equal(t, "2013-03-15", cfg.Sync.From)
	require.Equal(t, "./mirror", cfg.Mirror.Root)
}

func TestApplySyncFlagsRejectsBadDates(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	require.ErrorContains(t, applySyncFlags(&cfg, syncFlags{from: "01/02/2015"}), "--from")
	require.ErrorContains(t, applySyncFlags(&cfg, syncFlags{to: "yesterday"}), "--to")
}
