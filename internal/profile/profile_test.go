package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile(t *testing.T) *Profile {
	t.Helper()
	return &Profile{
		BotToken: "123:abc",
		Mode:     "dev",
		Driver:   "sqlite",
		Data:     t.TempDir(),
	}
}

// TestFromEnv_Defaults checks the defaults applied without any environment.
func TestFromEnv_Defaults(t *testing.T) {
	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "http://localhost:8090", p.MLServiceURL)
	assert.Equal(t, "https://nominatim.openstreetmap.org", p.NominatimBaseURL)
	assert.InDelta(t, 0.82, p.ImageMatchThreshold, 1e-9)
	assert.InDelta(t, 0.25, p.TextMatchThreshold, 1e-9)
	assert.Equal(t, 5, p.TextSearchLimit)
	assert.Equal(t, 15*time.Minute, p.SessionTTL)
}

// TestFromEnv_Overrides checks environment variables take precedence.
func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PEBBLETRAIL_BOT_TOKEN", "tok")
	t.Setenv("PEBBLETRAIL_IMAGE_MATCH_THRESHOLD", "0.9")
	t.Setenv("PEBBLETRAIL_SESSION_TTL_MINUTES", "5")
	t.Setenv("PEBBLETRAIL_ML_SERVICE_URL", "http://ml.internal:9000")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "tok", p.BotToken)
	assert.InDelta(t, 0.9, p.ImageMatchThreshold, 1e-9)
	assert.Equal(t, 5*time.Minute, p.SessionTTL)
	assert.Equal(t, "http://ml.internal:9000", p.MLServiceURL)
}

// TestValidate covers the main validation rules.
func TestValidate(t *testing.T) {
	t.Run("valid profile passes", func(t *testing.T) {
		p := validProfile(t)
		p.FromEnv()
		require.NoError(t, p.Validate())
	})

	t.Run("missing bot token fails", func(t *testing.T) {
		p := validProfile(t)
		p.FromEnv()
		p.BotToken = ""
		assert.Error(t, p.Validate())
	})

	t.Run("unknown mode is normalized to demo", func(t *testing.T) {
		p := validProfile(t)
		p.FromEnv()
		p.Mode = "weird"
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})

	t.Run("threshold out of range fails", func(t *testing.T) {
		p := validProfile(t)
		p.FromEnv()
		p.ImageMatchThreshold = 1.5
		assert.Error(t, p.Validate())
	})

	t.Run("sqlite dsn defaults into the data dir", func(t *testing.T) {
		p := validProfile(t)
		p.FromEnv()
		require.NoError(t, p.Validate())
		assert.Contains(t, p.DSN, "pebbletrail_dev.db")
	})

	t.Run("postgres requires a dsn", func(t *testing.T) {
		p := validProfile(t)
		p.FromEnv()
		p.Driver = "postgres"
		p.DSN = ""
		assert.Error(t, p.Validate())
	})

	t.Run("non-positive session ttl falls back", func(t *testing.T) {
		p := validProfile(t)
		p.FromEnv()
		p.SessionTTL = 0
		require.NoError(t, p.Validate())
		assert.Equal(t, 15*time.Minute, p.SessionTTL)
	})
}
