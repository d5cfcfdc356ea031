package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/salehop/salehop-api/internal/pkg/validator"
)

// ErrInvalid is returned by Validate when required settings are missing or malformed.
var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	// Server
	Port string `env:"PORT" env-default:"8080"`
	Env  string `env:"ENV" env-default:"development"`

	// Database
	DatabaseURL  string `env:"DATABASE_URL" validate:"required"`
	DatabaseName string `env:"DATABASE_NAME" validate:"required"`

	// Redis (optional: locking and reconciler wake-ups are skipped without it)
	RedisURL string `env:"REDIS_URL"`

	// Object storage (S3 compatible)
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION" env-default:"us-east-1"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	DefaultBucket     string `env:"DEFAULT_BUCKET" env-default:"salehop-uploads"`
	PublicBaseURL     string `env:"PUBLIC_BASE_URL" env-default:"https://cdn.salehop.app" validate:"required,url"`

	// Moderation
	ModerationDeadline time.Duration `env:"MODERATION_DEADLINE" env-default:"60s" validate:"gt=0"`
	LockTTL            time.Duration `env:"MODERATION_LOCK_TTL" env-default:"90s"`

	// Classifier
	ClassifierProvider    string        `env:"CLASSIFIER_PROVIDER" env-default:"vision" validate:"oneof=vision tencent static"`
	ClassifierMaxRetries  int           `env:"CLASSIFIER_MAX_RETRIES" env-default:"2" validate:"gte=0,lte=10"`
	ClassifierRetryDelay  time.Duration `env:"CLASSIFIER_RETRY_DELAY" env-default:"500ms"`
	ClassifierMaxSide     int           `env:"CLASSIFIER_MAX_SIDE" env-default:"1600" validate:"gte=0"`
	VisionEndpoint        string        `env:"VISION_ENDPOINT" env-default:"https://vision.googleapis.com/v1/images:annotate"`
	VisionAPIKey          string        `env:"VISION_API_KEY"`
	TencentSecretID       string        `env:"TENCENT_SECRET_ID"`
	TencentSecretKey      string        `env:"TENCENT_SECRET_KEY"`
	TencentRegion         string        `env:"TENCENT_REGION" env-default:"ap-guangzhou"`
	TencentBizType        string        `env:"TENCENT_BIZ_TYPE"`
	SafetyThreshold       string        `env:"SAFETY_THRESHOLD" env-default:"LIKELY" validate:"likelihood"`
	SafetyGatedCategories []string      `env:"SAFETY_GATED_CATEGORIES" env-default:"adult,violence" env-separator:","`

	// Reconciler
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" env-default:"5m"`
	ReconcileGrace    time.Duration `env:"RECONCILE_GRACE" env-default:"10m"`
	ReconcileBatch    int           `env:"RECONCILE_BATCH" env-default:"100" validate:"gt=0"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" env-default:"debug"`
}

// Load reads configuration from the environment (and a .env file in development).
// It does not validate; callers decide whether a missing setting is fatal.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}

// Validate checks required settings. The returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	fieldErrors := validator.Validate(c)
	if fieldErrors == nil {
		return nil
	}

	fields := make([]string, 0, len(fieldErrors))
	for field, msg := range fieldErrors {
		fields = append(fields, field+": "+msg)
	}
	sort.Strings(fields)
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, "; "))
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
