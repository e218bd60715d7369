package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port               int    `envconfig:"PORT" default:"3000"`
	Environment        string `envconfig:"ENV" default:"development"`
	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"600"`

	// Persistence
	StoreBackend  string `envconfig:"STORE_BACKEND" default:"file"`
	DataDir       string `envconfig:"DATA_DIR" default:"data"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RedisURL      string `envconfig:"REDIS_URL"`
	IdentityIndex string `envconfig:"IDENTITY_INDEX" default:"linear"`

	// Providers
	FaceProvider     string `envconfig:"FACE_PROVIDER" default:"deepface"`
	LandmarkProvider string `envconfig:"LANDMARK_PROVIDER" default:"deepface"`
	DeepFaceURL      string `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	AWSRegion        string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Engagement model
	EngagementModel    string `envconfig:"ENGAGEMENT_MODEL" default:"local"`
	EngagementModelURL string `envconfig:"ENGAGEMENT_MODEL_URL" default:"http://localhost:5010"`

	// Recognition policy
	VerifyDistanceThreshold float64 `envconfig:"VERIFY_DISTANCE_THRESHOLD" default:"0.6"`
	EnrollDistanceThreshold float64 `envconfig:"ENROLL_DISTANCE_THRESHOLD" default:"0.6"`

	// Anomaly baseline
	AnomalyWindowSize    int     `envconfig:"ANOMALY_WINDOW_SIZE" default:"10"`
	AnomalyMinSamples    int     `envconfig:"ANOMALY_MIN_SAMPLES" default:"5"`
	AnomalyContamination float64 `envconfig:"ANOMALY_CONTAMINATION" default:"0.1"`

	// Attendance check-in
	BackendURL    string `envconfig:"BACKEND_URL"`
	CheckinSecret string `envconfig:"CHECKIN_SECRET"`

	// Bearer tokens
	AuthJWTSecret string        `envconfig:"AUTH_JWT_SECRET"`
	AuthJWTIssuer string        `envconfig:"AUTH_JWT_ISSUER" default:"trace-backend"`
	AuthTokenTTL  time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"24h"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "memory", "file", "redis":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.StoreBackend == "redis" && c.RedisURL == "" {
		return errors.New("REDIS_URL is required for the redis store")
	}

	switch c.IdentityIndex {
	case "linear", "hnsw":
	case "pgvector":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the pgvector index")
		}
	default:
		return fmt.Errorf("unknown IDENTITY_INDEX %q", c.IdentityIndex)
	}

	switch c.FaceProvider {
	case "deepface", "mock":
	default:
		return fmt.Errorf("unknown FACE_PROVIDER %q", c.FaceProvider)
	}

	switch c.LandmarkProvider {
	case "deepface", "rekognition", "mock":
	default:
		return fmt.Errorf("unknown LANDMARK_PROVIDER %q", c.LandmarkProvider)
	}

	switch c.EngagementModel {
	case "local", "remote":
	default:
		return fmt.Errorf("unknown ENGAGEMENT_MODEL %q", c.EngagementModel)
	}

	for name, v := range map[string]float64{
		"VERIFY_DISTANCE_THRESHOLD": c.VerifyDistanceThreshold,
		"ENROLL_DISTANCE_THRESHOLD": c.EnrollDistanceThreshold,
	} {
		if v <= 0 || v > 2 {
			return fmt.Errorf("%s must be in (0, 2], got %v", name, v)
		}
	}

	if c.AnomalyMinSamples < 2 {
		return fmt.Errorf("ANOMALY_MIN_SAMPLES must be at least 2, got %d", c.AnomalyMinSamples)
	}
	if c.AnomalyWindowSize < c.AnomalyMinSamples {
		return fmt.Errorf("ANOMALY_WINDOW_SIZE (%d) must not be smaller than ANOMALY_MIN_SAMPLES (%d)",
			c.AnomalyWindowSize, c.AnomalyMinSamples)
	}
	if c.AnomalyContamination <= 0 || c.AnomalyContamination > 0.5 {
		return fmt.Errorf("ANOMALY_CONTAMINATION must be in (0, 0.5], got %v", c.AnomalyContamination)
	}

	if c.AuthEnabled() && len(c.AuthJWTSecret) < 16 {
		return errors.New("AUTH_JWT_SECRET must be at least 16 characters")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CheckinEnabled reports whether stream matches are forwarded to the attendance backend.
func (c *Config) CheckinEnabled() bool {
	return c.BackendURL != ""
}

// AuthEnabled reports whether /api/v1 and /ws require a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.AuthJWTSecret != ""
}
