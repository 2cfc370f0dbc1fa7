package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig([]string{})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.False(t, cfg.Memory)
	assert.Empty(t, cfg.Scanner)
	assert.Equal(t, 10, cfg.FPS)
	assert.Equal(t, time.Second, cfg.MissCooldown)
	assert.Equal(t, 2*time.Second, cfg.PaymentDelay)
	assert.Equal(t, 2*time.Second, cfg.SuccessDelay)
}

func TestLoadConfig_EnvAndFlags(t *testing.T) {
	t.Setenv("SCANGO_KIOSK_API_URL", "http://catalog:8080")
	t.Setenv("SCANGO_KIOSK_API_KEY", "admin-key")

	cfg, err := loadConfig([]string{"--memory=true", "--payment-delay=500ms"})
	require.NoError(t, err)

	assert.Equal(t, "http://catalog:8080", cfg.APIURL)
	assert.Equal(t, "admin-key", cfg.APIKey)
	assert.True(t, cfg.Memory)
	assert.Equal(t, 500*time.Millisecond, cfg.PaymentDelay)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config
		wantErr string
	}{
		{name: "api", cfg: config{APIURL: "http://x", FPS: 10}},
		{name: "memory without api", cfg: config{Memory: true, FPS: 10}},
		{name: "no catalog", cfg: config{FPS: 10}, wantErr: "api url is required"},
		{name: "zero fps", cfg: config{Memory: true}, wantErr: "fps must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
