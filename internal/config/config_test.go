package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://hyp3-api.asf.alaska.edu", cfg.Service.APIURL)
	assert.Equal(t, "20x4", cfg.Processing.Looks)
	assert.Equal(t, 50, cfg.Processing.BatchSize)
	assert.Equal(t, 10, cfg.Processing.MaxWorkers)
	assert.Equal(t, 0, cfg.Processing.MinTemporalBaseline)
	assert.Equal(t, 24, cfg.Processing.MaxTemporalBaseline)

	interval, err := cfg.PollInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, interval)
}

func TestFromYAMLOverridesKeepDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("processing:\n  looks: 10x2\n  batch_size: 25\n"))
	require.NoError(t, err)
	assert.Equal(t, "10x2", cfg.Processing.Looks)
	assert.Equal(t, 25, cfg.Processing.BatchSize)
	assert.Equal(t, "https://hyp3-api.asf.alaska.edu", cfg.Service.APIURL, "unset fields keep defaults")
	assert.Equal(t, 10, cfg.Processing.MaxWorkers)
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero batch size", "processing:\n  batch_size: 0\n"},
		{"negative workers", "processing:\n  max_workers: -1\n"},
		{"negative baseline", "processing:\n  min_temporal_baseline: -5\n"},
		{"bad poll interval", "processing:\n  poll_interval: soon\n"},
		{"zero cost", "credits:\n  costs:\n    INSAR_GAMMA:\n      20x4: 0\n"},
		{"not yaml", ": ["},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestCostPerPair(t *testing.T) {
	cfg := Default()

	cost, err := cfg.CostPerPair("INSAR_GAMMA", "10x2")
	require.NoError(t, err)
	assert.Equal(t, 15, cost)

	cost, err = cfg.CostPerPair("INSAR_ISCE_BURST", "20x5")
	require.NoError(t, err)
	assert.Equal(t, 5, cost)

	_, err = cfg.CostPerPair("RTC_GAMMA", "20x4")
	assert.Error(t, err)
	_, err = cfg.CostPerPair("INSAR_GAMMA", "1x1")
	assert.Error(t, err)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sarbatch.yml")
	require.NoError(t, os.WriteFile(path, []byte("processing:\n  max_temporal_baseline: 48\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 48, cfg.Processing.MaxTemporalBaseline)
}

func TestCredentials(t *testing.T) {
	t.Setenv("HYP3_USERNAME", "someone")
	t.Setenv("HYP3_PASSWORD", "secret")
	user, pass, err := Credentials()
	require.NoError(t, err)
	assert.Equal(t, "someone", user)
	assert.Equal(t, "secret", pass)

	t.Setenv("HYP3_PASSWORD", "")
	_, _, err = Credentials()
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
