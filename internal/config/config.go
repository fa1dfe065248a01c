package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP
	HTTPPort string

	// Kafka
	KafkaBrokers     []string
	KafkaGroupID     string
	CoreSensorTopic  string
	HealthTopic      string
	BehaviorTopic    string
	EnvironmentTopic string
	MaintenanceTopic string
	AdTopic          string

	// Postgres
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Ingestion loop tuning
	BatchSize       int
	BatchMaxWait    time.Duration
	PollTimeout     time.Duration
	ErrorBackoff    time.Duration
	DispatchTimeout time.Duration

	// Correlation
	SnapshotTTL time.Duration

	// Record builder thresholds
	MaintenanceThreshold float64
	HealthScoreThreshold float64

	// Auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string
}

func Load() *Config {
	return &Config{
		HTTPPort:             getEnv("HTTP_PORT", "8004"),
		KafkaBrokers:         strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "data-processor-group"),
		CoreSensorTopic:      getEnv("CORE_SENSOR_TOPIC", "sensor-data-topic"),
		HealthTopic:          getEnv("HEALTH_TOPIC", "health-data-topic"),
		BehaviorTopic:        getEnv("BEHAVIOR_TOPIC", "behavior-topic"),
		EnvironmentTopic:     getEnv("ENVIRONMENT_TOPIC", "environment-topic"),
		MaintenanceTopic:     getEnv("MAINTENANCE_TOPIC", "maintenance-topic"),
		AdTopic:              getEnv("AD_TOPIC", "ad-input-topic"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "telematics_user"),
		DBPassword:           getEnv("DB_PASSWORD", "telematics_password"),
		DBName:               getEnv("DB_NAME", "vehicle_data"),
		DBMaxConns:           int32(getEnvInt("DB_MAX_CONNS", 10)),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		BatchSize:            getEnvInt("BATCH_SIZE", 10),
		BatchMaxWait:         getEnvDuration("BATCH_MAX_WAIT", time.Second),
		PollTimeout:          getEnvDuration("POLL_TIMEOUT", time.Second),
		ErrorBackoff:         getEnvDuration("ERROR_BACKOFF", 5*time.Second),
		DispatchTimeout:      getEnvDuration("DISPATCH_TIMEOUT", 30*time.Second),
		SnapshotTTL:          getEnvDuration("SNAPSHOT_TTL", 5*time.Minute),
		MaintenanceThreshold: getEnvFloat("MAINTENANCE_THRESHOLD", 0.3),
		HealthScoreThreshold: getEnvFloat("HEALTH_SCORE_THRESHOLD", 0.7),
		AuthCacheTTLSeconds:  getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:         strings.Split(getEnv("VALID_API_KEYS", ""), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
