package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Telegram configuration
	BotToken string // Telegram bot API token

	// ML inference service configuration (CLIP embeddings + subject cropping)
	MLServiceURL    string // Base URL of the inference service
	MLServiceAPIKey string // Optional bearer token
	MLTimeout       int    // Request timeout in seconds (default: 60)

	// Geocoding configuration
	NominatimBaseURL string // Nominatim endpoint (default: public OSM instance)

	// Matching configuration
	ImageMatchThreshold  float64 // Minimum cosine similarity for an identity match
	TextMatchThreshold   float64 // Minimum cosine similarity for text search results
	StoneDetectThreshold float64 // Stone-vs-not-stone gate margin
	TextSearchLimit      int     // Maximum results returned by text search

	// Session configuration
	SessionTTL time.Duration // Idle conversation expiry

	// Other configurations
	Mode    string
	Addr    string
	Port    int
	Data    string
	Driver  string
	DSN     string
	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvOrDefaultFloat returns environment variable value as float64 or default value.
func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.BotToken = getEnvOrDefault("PEBBLETRAIL_BOT_TOKEN", p.BotToken)

	p.MLServiceURL = getEnvOrDefault("PEBBLETRAIL_ML_SERVICE_URL", "http://localhost:8090")
	p.MLServiceAPIKey = getEnvOrDefault("PEBBLETRAIL_ML_SERVICE_API_KEY", "")
	p.MLTimeout = getEnvOrDefaultInt("PEBBLETRAIL_ML_TIMEOUT_SECONDS", 60)

	p.NominatimBaseURL = getEnvOrDefault("PEBBLETRAIL_NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org")

	p.ImageMatchThreshold = getEnvOrDefaultFloat("PEBBLETRAIL_IMAGE_MATCH_THRESHOLD", 0.82)
	p.TextMatchThreshold = getEnvOrDefaultFloat("PEBBLETRAIL_TEXT_MATCH_THRESHOLD", 0.25)
	p.StoneDetectThreshold = getEnvOrDefaultFloat("PEBBLETRAIL_STONE_DETECT_THRESHOLD", 0.05)
	p.TextSearchLimit = getEnvOrDefaultInt("PEBBLETRAIL_TEXT_SEARCH_LIMIT", 5)

	p.SessionTTL = time.Duration(getEnvOrDefaultInt("PEBBLETRAIL_SESSION_TTL_MINUTES", 15)) * time.Minute
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes and checks the profile. It must be called after FromEnv.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.BotToken == "" {
		return errors.New("bot token required (PEBBLETRAIL_BOT_TOKEN)")
	}

	if p.ImageMatchThreshold <= 0 || p.ImageMatchThreshold > 1 {
		return errors.Errorf("image match threshold out of range: %f", p.ImageMatchThreshold)
	}
	if p.TextMatchThreshold <= 0 || p.TextMatchThreshold > 1 {
		return errors.Errorf("text match threshold out of range: %f", p.TextMatchThreshold)
	}
	if p.SessionTTL <= 0 {
		p.SessionTTL = 15 * time.Minute
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "pebbletrail")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					return errors.Wrapf(err, "failed to create data directory %s", p.Data)
				}
			}
		} else {
			p.Data = "/var/opt/pebbletrail"
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("pebbletrail_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn required for postgres driver")
	}

	return nil
}
