package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

const sampleYAML = `
enabled_rules:
  - stall_or_low_speed
  - excessive_sink_low_alt
thresholds:
  low_airspeed_kt: 48
speech_variants:
  stall_or_low_speed:
    - "Airspeed is low, lower the nose."
`

func TestLoadHazardProfileYAMLParsesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	profile, err := LoadHazardProfileYAML(path)
	require.NoError(t, err)
	require.True(t, profile.Enabled("stall_or_low_speed"))
	require.Equal(t, 48.0, profile.Threshold("low_airspeed_kt", -1))
	require.Len(t, profile.Variants("stall_or_low_speed"), 1)
}

func TestLoadHazardProfileYAMLMissingFileErrors(t *testing.T) {
	_, err := LoadHazardProfileYAML("/nonexistent/profile.yaml")
	require.Error(t, err)
}

func TestHazardProfileWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	reloaded := make(chan struct{}, 1)
	watcher := NewHazardProfileWatcher(path, nil, func(p flightmodel.HazardProfile) {
		reloaded <- struct{}{}
	})
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	time.Sleep(50 * time.Millisecond)
	updated := sampleYAML + "\n  # touch\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}
