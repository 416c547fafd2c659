package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yonalabs/commerce-relay/pkg/logging"
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
		if _, err := os.Stat(file); err == nil {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Enabled  bool   `env:"DB_ENABLED" envDefault:"false"`
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"commerce_relay"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type ShopifyOptions struct {
	WebhookSecret string `env:"SHOPIFY_WEBHOOK_SECRET"`
	MaxBodyBytes  int64  `env:"WEBHOOK_MAX_BODY_BYTES" envDefault:"1048576"`
}

type CoreServiceOptions struct {
	URL     string        `env:"CORE_SERVICE_URL" envDefault:"http://localhost:8000"`
	APIKey  string        `env:"CORE_SERVICE_API_KEY"`
	Timeout time.Duration `env:"CORE_SERVICE_TIMEOUT" envDefault:"10s"`
}

type ForwarderOptions struct {
	BatchSize        int           `env:"FORWARDER_BATCH_SIZE" envDefault:"10"`
	MaxRetries       int           `env:"FORWARDER_MAX_RETRIES" envDefault:"5"`
	BaseDelay        time.Duration `env:"FORWARDER_BASE_DELAY" envDefault:"1s"`
	MaxBackoff       time.Duration `env:"FORWARDER_MAX_BACKOFF" envDefault:"60s"`
	JitterMax        time.Duration `env:"FORWARDER_JITTER_MAX" envDefault:"200ms"`
	DispatchTimeout  time.Duration `env:"FORWARDER_DISPATCH_TIMEOUT" envDefault:"30s"`
	IdleSleep        time.Duration `env:"FORWARDER_IDLE_SLEEP" envDefault:"100ms"`
	ErrorSleep       time.Duration `env:"FORWARDER_ERROR_SLEEP" envDefault:"1s"`
	MaxQueueSize     int           `env:"FORWARDER_MAX_QUEUE_SIZE" envDefault:"10000"`
	BreakerThreshold int           `env:"FORWARDER_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerTimeout   time.Duration `env:"FORWARDER_BREAKER_TIMEOUT" envDefault:"30s"`
}

func (f *ForwarderOptions) Validate() error {
	if f.BatchSize <= 0 {
		return fmt.Errorf("forwarder BatchSize must be positive, got %d", f.BatchSize)
	}
	if f.MaxRetries <= 0 {
		return fmt.Errorf("forwarder MaxRetries must be positive, got %d", f.MaxRetries)
	}
	if f.MaxQueueSize <= 0 {
		return fmt.Errorf("forwarder MaxQueueSize must be positive, got %d", f.MaxQueueSize)
	}
	if f.BreakerThreshold <= 0 {
		return fmt.Errorf("forwarder BreakerThreshold must be positive, got %d", f.BreakerThreshold)
	}
	return nil
}

type RateLimitOptions struct {
	Enabled         bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	EventsPerMinute int64  `env:"RATE_LIMIT_EVENTS_PER_MINUTE" envDefault:"100"`
	Storage         string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL        string `env:"RATE_LIMIT_REDIS_URL"`
}

func (r *RateLimitOptions) Validate() error {
	if r.EventsPerMinute < 0 {
		return fmt.Errorf("rate limit EventsPerMinute must be non-negative, got %d", r.EventsPerMinute)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type DedupeOptions struct {
	TTL        time.Duration `env:"DEDUPE_TTL" envDefault:"30m"`
	MaxEntries int           `env:"DEDUPE_MAX_ENTRIES" envDefault:"1000"`
}

type MonitorOptions struct {
	Interval           time.Duration `env:"MONITOR_INTERVAL" envDefault:"30s"`
	QueueWarnThreshold int           `env:"MONITOR_QUEUE_WARN_THRESHOLD" envDefault:"1000"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type Configuration struct {
	Database    DatabaseOptions
	Shopify     ShopifyOptions
	CoreService CoreServiceOptions
	Forwarder   ForwarderOptions
	RateLimit   RateLimitOptions
	Dedupe      DedupeOptions
	Monitor     MonitorOptions
	Prometheus  PrometheusOptions

	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	// Relay will look for this header in the request, if it's not present, it will generate a random uuidv4
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	// Relay will look for this header in the request, if it's not present, it will use request.RemoteAddr
	RealIPHeader string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
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

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.Forwarder.Validate(); err != nil {
		return fmt.Errorf("forwarder configuration error: %w", err)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
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
