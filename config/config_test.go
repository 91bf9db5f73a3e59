package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		AppMode:            "debug",
		StagingStore:       "postgres",
		SigningSecret:      "signing",
		CleanupSecret:      "cleanup",
		RecaptchaBypass:    true,
		RelayURL:           "https://relay.example/exec",
		RelaySharedSecret:  "shared",
		RelayDeleteBackend: "relay",
		CleanupConcurrency: 4,
		Upload: UploadConfig{
			MaxFiles:     10,
			MaxFileBytes: 20 << 20,
			AllowedMIME:  DefaultAllowedMIME,
			TokenTTL:     10 * time.Minute,
			StagingTTL:   24 * time.Hour,
		},
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_MODE", "debug")
	cfg := LoadConfig()

	assert.Equal(t, 10, cfg.Upload.MaxFiles)
	assert.Equal(t, int64(20*1024*1024), cfg.Upload.MaxFileBytes)
	assert.Equal(t, DefaultAllowedMIME, cfg.Upload.AllowedMIME)
	assert.Equal(t, 10*time.Minute, cfg.Upload.TokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.Upload.StagingTTL)
	assert.Equal(t, 24*time.Hour, cfg.Upload.StaleRetention)
	assert.Equal(t, 7*24*time.Hour, cfg.Upload.FinalizedRetention)
	assert.True(t, cfg.RecaptchaBypass)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_MODE", ReleaseMode)
	t.Setenv("UPLOAD_MAX_FILES", "3")
	t.Setenv("UPLOAD_ALLOWED_MIME", "application/pdf, IMAGE/PNG")
	t.Setenv("UPLOAD_TOKEN_TTL", "5m")

	cfg := LoadConfig()
	assert.Equal(t, 3, cfg.Upload.MaxFiles)
	assert.Equal(t, []string{"application/pdf", "image/png"}, cfg.Upload.AllowedMIME)
	assert.Equal(t, 5*time.Minute, cfg.Upload.TokenTTL)
	assert.False(t, cfg.RecaptchaBypass)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.SigningSecret = ""
	assert.ErrorContains(t, cfg.Validate(), "UPLOAD_SIGNING_SECRET")

	cfg = validConfig()
	cfg.CleanupSecret = cfg.SigningSecret
	assert.ErrorContains(t, cfg.Validate(), "must differ")

	cfg = validConfig()
	cfg.RecaptchaBypass = false
	assert.ErrorContains(t, cfg.Validate(), "RECAPTCHA_SECRET")

	cfg = validConfig()
	cfg.Upload.TokenTTL = 48 * time.Hour
	assert.ErrorContains(t, cfg.Validate(), "shorter")

	cfg = validConfig()
	cfg.RelayDeleteBackend = "s3"
	assert.ErrorContains(t, cfg.Validate(), "S3_BUCKET")

	cfg = validConfig()
	cfg.StagingStore = "memory"
	require.NoError(t, cfg.Validate())
	cfg.AppMode = ReleaseMode
	cfg.RecaptchaSecret = "captcha"
	assert.ErrorContains(t, cfg.Validate(), "STAGING_STORE=memory")
}
