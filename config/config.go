package config

import (
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server struct {
		Port           int      `env:"PORT" envDefault:"5250"`
		AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	}

	Storage StorageConfig

	Upstream UpstreamConfig

	Sync SyncConfig

	Query QueryConfig

	Refresh RefreshConfig
}

// StorageConfig selects and configures the record and metadata backends.
type StorageConfig struct {
	// sqlite, postgres or mongodb
	Backend     string `env:"STORAGE_BACKEND" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"database/zipsales.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	MongoURI      string `env:"MONGODB_URI"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"zipsales"`

	// Empty means "same as Backend". dynamodb moves only the fetch metadata.
	MetadataBackend string `env:"METADATA_BACKEND"`
	AWSRegion       string `env:"AWS_REGION" envDefault:"us-west-2"`
	DynamoTable     string `env:"DYNAMODB_TABLE" envDefault:"zipcode_fetch_metadata"`
	DynamoEndpoint  string `env:"DYNAMODB_ENDPOINT"`
}

type UpstreamConfig struct {
	BaseURL  string        `env:"ATTOM_BASE_URL"`
	APIKey   string        `env:"ATTOM_API_KEY"`
	PageSize int           `env:"UPSTREAM_PAGE_SIZE" envDefault:"100"`
	Timeout  time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
}

type SyncConfig struct {
	// Maximum age of a zipcode's last fetch before it is refreshed
	TTL time.Duration `env:"SYNC_TTL" envDefault:"168h"`

	// Window start for a zipcode that has never been fetched (YYYY-MM-DD)
	DefaultStartDate string `env:"SYNC_DEFAULT_START" envDefault:"2022-01-01"`

	// Subtracted from lastFetchDate when building an incremental window
	Overlap time.Duration `env:"SYNC_OVERLAP" envDefault:"0s"`

	// local, redis or none
	Lock          string        `env:"SYNC_LOCK" envDefault:"local"`
	LockTTL       time.Duration `env:"SYNC_LOCK_TTL" envDefault:"2m"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
}

type QueryConfig struct {
	// Page size used when the client does not send one
	DefaultLimit int `env:"QUERY_DEFAULT_LIMIT" envDefault:"12"`

	// Upper bound for a client supplied page size
	MaxLimit int `env:"QUERY_MAX_LIMIT" envDefault:"100"`
}

type RefreshConfig struct {
	TrackedZipcodes []string      `env:"TRACKED_ZIPCODES" envSeparator:","`
	Interval        time.Duration `env:"REFRESH_INTERVAL" envDefault:"6h"`
	Workers         int           `env:"REFRESH_WORKERS" envDefault:"2"`
	QueueSize       int           `env:"REFRESH_QUEUE_SIZE" envDefault:"100"`

	// Maximum number of retries for a failed zipcode refresh
	MaxRetries int `env:"REFRESH_MAX_RETRIES" envDefault:"3"`

	// Delay between retries
	RetryDelay time.Duration `env:"REFRESH_RETRY_DELAY" envDefault:"5s"`
}

// DefaultStart parses Sync.DefaultStartDate, falling back to 2022-01-01.
func (c SyncConfig) DefaultStart() time.Time {
	t, err := time.Parse("2006-01-02", c.DefaultStartDate)
	if err != nil {
		return time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

func LoadConfig() (*Config, error) {
	// A missing .env file is fine, the environment may be set directly
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
