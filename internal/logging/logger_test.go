package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docqd/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr string
	}{
		{
			name: "json format",
			cfg:  config.LoggingConfig{Level: "info", Format: "json"},
		},
		{
			name: "console format",
			cfg:  config.LoggingConfig{Level: "debug", Format: "console"},
		},
		{
			name: "constant fields",
			cfg: config.LoggingConfig{
				Level:  "warn",
				Format: "json",
				Fields: map[string]string{"env": "test"},
			},
		},
		{
			name:    "invalid level",
			cfg:     config.LoggingConfig{Level: "verbose", Format: "json"},
			wantErr: "invalid log level",
		},
		{
			name:    "invalid format",
			cfg:     config.LoggingConfig{Level: "info", Format: "xml"},
			wantErr: "logging format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Info("test entry")
			_ = Sync(logger)
		})
	}
}

func TestNew_LevelEnabled(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(-1)) // debug
	assert.True(t, logger.Core().Enabled(1))   // warn
}
