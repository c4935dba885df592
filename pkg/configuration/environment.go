package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"payroll"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"8"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type LogOptions struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	Path  string `env:"LOG_PATH" envDefault:""`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"payroll-reconciler"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
	Addr    string `env:"OPS_ADDR" envDefault:"localhost:9464"`
}

type ReviewQueueOptions struct {
	Storage           string        `env:"REVIEW_QUEUE_STORAGE" envDefault:"redis"` // memory or redis
	RedisURL          string        `env:"REVIEW_QUEUE_REDIS_URL" envDefault:"localhost:6379"`
	RedisDB           int           `env:"REVIEW_QUEUE_REDIS_DB" envDefault:"0"`
	KeyPrefix         string        `env:"REVIEW_QUEUE_KEY_PREFIX" envDefault:"payroll:review:v1"`
	AutocleanInterval time.Duration `env:"REVIEW_QUEUE_AUTOCLEAN_INTERVAL" envDefault:"150s"`
	PollInterval      time.Duration `env:"REVIEW_QUEUE_POLL_INTERVAL" envDefault:"250ms"`
}

func (r *ReviewQueueOptions) Validate() error {
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("review queue Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("review queue RedisURL is required when Storage is 'redis'")
	}
	if r.AutocleanInterval <= 0 {
		return fmt.Errorf("review queue AutocleanInterval must be positive, got %s", r.AutocleanInterval)
	}
	return nil
}

type TaskOptions struct {
	Table string `env:"TASKS_TABLE" envDefault:"public.data_import_outbox"`

	RelayEnabled         bool          `env:"TASKS_RELAY_ENABLED" envDefault:"true"`
	RelayWorkers         int           `env:"TASKS_RELAY_WORKERS" envDefault:"2"`
	RelayPollInterval    time.Duration `env:"TASKS_RELAY_POLL_INTERVAL" envDefault:"1s"`
	RelayBatchSize       int           `env:"TASKS_RELAY_BATCH_SIZE" envDefault:"1"`
	RelayLockTTL         time.Duration `env:"TASKS_RELAY_LOCK_TTL" envDefault:"30m"`
	RelayMaxAttempts     int           `env:"TASKS_RELAY_MAX_ATTEMPTS" envDefault:"1"`
	RelayDispatchTimeout time.Duration `env:"TASKS_RELAY_DISPATCH_TIMEOUT" envDefault:"25m"`
	RevokeChannel        string        `env:"TASKS_REVOKE_CHANNEL" envDefault:"payroll_task_revoke"`

	LastErrorMaxBytes int `env:"TASKS_LAST_ERROR_MAX_BYTES" envDefault:"2048"`

	CleanerEnabled   bool          `env:"TASKS_CLEANER_ENABLED" envDefault:"true"`
	CleanerInterval  time.Duration `env:"TASKS_CLEANER_INTERVAL" envDefault:"1h"`
	CleanerRetention time.Duration `env:"TASKS_CLEANER_RETENTION" envDefault:"168h"`
}

func (t *TaskOptions) Validate() error {
	if t.RelayWorkers < 1 {
		return fmt.Errorf("TASKS_RELAY_WORKERS must be >= 1, got %d", t.RelayWorkers)
	}
	if t.RelayMaxAttempts < 1 {
		return fmt.Errorf("TASKS_RELAY_MAX_ATTEMPTS must be >= 1, got %d", t.RelayMaxAttempts)
	}
	if t.RelayDispatchTimeout >= t.RelayLockTTL {
		return fmt.Errorf("TASKS_RELAY_DISPATCH_TIMEOUT (%s) must be shorter than TASKS_RELAY_LOCK_TTL (%s)", t.RelayDispatchTimeout, t.RelayLockTTL)
	}
	return nil
}

type SearchOptions struct {
	ElasticURL string `env:"ELASTIC_URL" envDefault:""`
	Index      string `env:"ELASTIC_INDEX" envDefault:"payroll"`
	BulkSize   int    `env:"ELASTIC_BULK_SIZE" envDefault:"500"`
	Sniff      bool   `env:"ELASTIC_SNIFF" envDefault:"false"`
}

type Configuration struct {
	Database      DatabaseOptions
	Log           LogOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	ReviewQueue   ReviewQueueOptions
	Tasks         TaskOptions
	Search        SearchOptions

	UploadsPath      string `env:"UPLOADS_PATH" envDefault:"uploads"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// ResolveUpload maps a stored file reference to a path on disk.
func (c *Configuration) ResolveUpload(ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(c.UploadsPath, ref)
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.Log.Path)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

func (c *Configuration) validate() error {
	if err := c.ReviewQueue.Validate(); err != nil {
		return fmt.Errorf("review queue configuration error: %w", err)
	}
	if err := c.Tasks.Validate(); err != nil {
		return fmt.Errorf("task configuration error: %w", err)
	}
	if c.Search.BulkSize <= 0 {
		return fmt.Errorf("invalid ELASTIC_BULK_SIZE=%d (expected > 0)", c.Search.BulkSize)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
