package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Hub        HubConfig
	Snapshot   SnapshotConfig
	Analyzer   AnalyzerConfig
	NATS       NATSConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	S3         S3Config
	CloudWatch CloudWatchConfig
	Prometheus PrometheusConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// HubConfig управляет ядром ингестии: лимиты колец, liveness sweep,
// предельный размер кадра от агента.
type HubConfig struct {
	MetricsPerService int
	AlertsCap         int
	InitialAlerts     int
	InactivityTimeout time.Duration
	SweepInterval     time.Duration
	MaxMessageBytes   int64
}

type SnapshotConfig struct {
	Dir                  string
	UploadRatePerMinute  int
	MaxUploadBytes       int64
}

type AnalyzerConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	ThresholdBytes int64
}

type NATSConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	TTL          time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

type CloudWatchConfig struct {
	MetricsEnabled       bool
	LogsEnabled          bool
	Region               string
	Endpoint             string
	AccessKeyID          string
	SecretAccessKey      string
	MetricsNamespace     string
	MetricsBufferSize    int
	MetricsFlushInterval time.Duration
	LogGroupName         string
	LogStreamName        string
	LogsBufferSize       int
	LogsFlushInterval    time.Duration
}

type PrometheusConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	readTimeout, err := parseDuration(getEnv("SERVER_READ_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := parseDuration(getEnv("SERVER_WRITE_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT: %w", err)
	}
	idleTimeout, err := parseDuration(getEnv("SERVER_IDLE_TIMEOUT", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_IDLE_TIMEOUT: %w", err)
	}
	shutdownTimeout, err := parseDuration(getEnv("SERVER_SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT: %w", err)
	}

	metricsPerService, err := strconv.Atoi(getEnv("HUB_METRICS_PER_SERVICE", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid HUB_METRICS_PER_SERVICE: %w", err)
	}
	alertsCap, err := strconv.Atoi(getEnv("HUB_ALERTS_CAP", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid HUB_ALERTS_CAP: %w", err)
	}
	inactivityTimeout, err := parseDuration(getEnv("HUB_INACTIVITY_TIMEOUT", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HUB_INACTIVITY_TIMEOUT: %w", err)
	}
	sweepInterval, err := parseDuration(getEnv("HUB_SWEEP_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HUB_SWEEP_INTERVAL: %w", err)
	}
	maxMessageMB, err := strconv.Atoi(getEnv("HUB_MAX_MESSAGE_MB", "16"))
	if err != nil {
		return nil, fmt.Errorf("invalid HUB_MAX_MESSAGE_MB: %w", err)
	}

	uploadRate, err := strconv.Atoi(getEnv("SNAPSHOT_UPLOAD_RATE_PER_MINUTE", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SNAPSHOT_UPLOAD_RATE_PER_MINUTE: %w", err)
	}
	maxUploadMB, err := strconv.Atoi(getEnv("SNAPSHOT_MAX_UPLOAD_MB", "256"))
	if err != nil {
		return nil, fmt.Errorf("invalid SNAPSHOT_MAX_UPLOAD_MB: %w", err)
	}

	analyzerTimeout, err := parseDuration(getEnv("ANALYZER_REQUEST_TIMEOUT", "120s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYZER_REQUEST_TIMEOUT: %w", err)
	}
	thresholdMB, err := strconv.Atoi(getEnv("ANALYZER_THRESHOLD_MB", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYZER_THRESHOLD_MB: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	redisTTL, err := parseDuration(getEnv("REDIS_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_TTL: %w", err)
	}

	cwMetricsFlush, err := parseDuration(getEnv("CLOUDWATCH_METRICS_FLUSH_INTERVAL", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLOUDWATCH_METRICS_FLUSH_INTERVAL: %w", err)
	}
	cwLogsFlush, err := parseDuration(getEnv("CLOUDWATCH_LOGS_FLUSH_INTERVAL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLOUDWATCH_LOGS_FLUSH_INTERVAL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "4000"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			IdleTimeout:     idleTimeout,
			ShutdownTimeout: shutdownTimeout,
			AllowedOrigins:  splitAndTrim(getEnv("DASHBOARD_ALLOWED_ORIGINS", "*")),
		},
		Hub: HubConfig{
			MetricsPerService: metricsPerService,
			AlertsCap:         alertsCap,
			InitialAlerts:     10,
			InactivityTimeout: inactivityTimeout,
			SweepInterval:     sweepInterval,
			MaxMessageBytes:   int64(maxMessageMB) << 20,
		},
		Snapshot: SnapshotConfig{
			Dir:                 getEnv("SNAPSHOT_DIR", "./dashboard-snapshots"),
			UploadRatePerMinute: uploadRate,
			MaxUploadBytes:      int64(maxUploadMB) << 20,
		},
		Analyzer: AnalyzerConfig{
			BaseURL:        getEnv("ANALYZER_BASE_URL", ""),
			RequestTimeout: analyzerTimeout,
			ThresholdBytes: int64(thresholdMB) << 20,
		},
		NATS: NATSConfig{
			Enabled:       getEnvBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "memdash.events"),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           redisDB,
			TTL:          redisTTL,
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Database: DatabaseConfig{
			Enabled:         getEnvBool("DB_ARCHIVE_ENABLED", false),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "memdash"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "memdash"),
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		S3: S3Config{
			Enabled:         getEnvBool("S3_ENABLED", false),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "snapshots"),
		},
		CloudWatch: CloudWatchConfig{
			MetricsEnabled:       getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
			LogsEnabled:          getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			Region:               getEnv("CLOUDWATCH_REGION", "us-east-1"),
			Endpoint:             getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:          getEnv("CLOUDWATCH_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("CLOUDWATCH_SECRET_ACCESS_KEY", ""),
			MetricsNamespace:     getEnv("CLOUDWATCH_METRICS_NAMESPACE", "MemleakDashboard/Ingest"),
			MetricsBufferSize:    100,
			MetricsFlushInterval: cwMetricsFlush,
			LogGroupName:         getEnv("CLOUDWATCH_LOG_GROUP", "/memleak-dashboard/server"),
			LogStreamName:        getEnv("CLOUDWATCH_LOG_STREAM", "hub"),
			LogsBufferSize:       50,
			LogsFlushInterval:    cwLogsFlush,
		},
		Prometheus: PrometheusConfig{
			Enabled: getEnvBool("PROMETHEUS_ENABLED", true),
		},
	}

	if cfg.Hub.MetricsPerService <= 0 {
		return nil, fmt.Errorf("HUB_METRICS_PER_SERVICE must be positive")
	}
	if cfg.Hub.AlertsCap <= 0 {
		return nil, fmt.Errorf("HUB_ALERTS_CAP must be positive")
	}

	return cfg, nil
}

// DSN собирает строку подключения к postgres
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Database)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDuration(value string) (time.Duration, error) {
	return time.ParseDuration(value)
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
