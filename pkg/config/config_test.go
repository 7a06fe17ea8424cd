package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "coarsen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "~/.cache/coarsen", cfg.Cache.Directory)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.InDelta(t, 0.0, cfg.Telemetry.SampleRatio, 1e-12)
	assert.False(t, cfg.Telemetry.OTLPInsecure)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
forcefield:
  directory: /opt/martini3
  mappings: /opt/custom-mappings
cache:
  enabled: false
logging:
  level: debug
  format: json
telemetry:
  otlp_endpoint: collector:4317
  sample_ratio: 0.25
  environment: staging
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/martini3", cfg.ForceField.Directory)
	assert.Equal(t, "/opt/custom-mappings", cfg.ForceField.Mappings)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-12)
	assert.Equal(t, "staging", cfg.Telemetry.Environment)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "bad log level",
			content: "logging:\n  level: chatty\n",
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "bad log format",
			content: "logging:\n  format: xml\n",
			wantErr: ErrInvalidLogFormat,
		},
		{
			name:    "sample ratio above one",
			content: "telemetry:\n  sample_ratio: 1.5\n",
			wantErr: ErrInvalidSampleRatio,
		},
		{
			name:    "negative sample ratio",
			content: "telemetry:\n  sample_ratio: -0.1\n",
			wantErr: ErrInvalidSampleRatio,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("COARSEN_LOGGING_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
