package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers
const (
	DriverFirestore = "firestore"
	DriverPostgres  = "postgres"
	DriverMemory    = "memory"
)

// Config holds all application configuration
type Config struct {
	Port        string `mapstructure:"port"`
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`

	Storage    StorageConfig    `mapstructure:"storage"`
	Firebase   FirebaseConfig   `mapstructure:"firebase"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // firestore, postgres, memory
}

type FirebaseConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Collection      string `mapstructure:"collection"`
}

type EscalationConfig struct {
	ManualWaitDays int            `mapstructure:"manual_wait_days"`
	MaxAttempts    int            `mapstructure:"max_attempts"`
	DefaultSLADays int            `mapstructure:"default_sla_days"`
	CategorySLA    map[string]int `mapstructure:"category_sla"`
}

type WorkerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	BatchSize   int           `mapstructure:"batch_size"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`

	// MetricsPort serves /metrics from the worker; it must differ from Port
	// when the API server runs on the same host
	MetricsPort string `mapstructure:"metrics_port"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// .env is a local development convenience; production injects env vars
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("dev.config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("grievance")

	// Standard environment variable names (Docker/deploy compatibility)
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")

	_ = v.BindEnv("firebase.project_id", "FIREBASE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	_ = v.BindEnv("firebase.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
	_ = v.BindEnv("firebase.collection", "FIRESTORE_ISSUES_COLLECTION")

	_ = v.BindEnv("escalation.manual_wait_days", "ESCALATION_MANUAL_WAIT_DAYS")
	_ = v.BindEnv("escalation.max_attempts", "ESCALATION_MAX_ATTEMPTS")
	_ = v.BindEnv("escalation.default_sla_days", "ESCALATION_DEFAULT_SLA_DAYS")

	_ = v.BindEnv("worker.interval", "WORKER_INTERVAL")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("worker.batch_size", "WORKER_BATCH_SIZE")
	_ = v.BindEnv("worker.lock_ttl", "WORKER_LOCK_TTL")
	_ = v.BindEnv("worker.metrics_port", "WORKER_METRICS_PORT")

	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and environment variables")
		} else if os.IsNotExist(err) && path == "" {
			log.Println("No config file found, using defaults and environment variables")
		} else {
			return err
		}
	} else {
		log.Printf("Loaded config from: %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return err
	}
	App = cfg
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("storage.driver", DriverFirestore)
	v.SetDefault("firebase.collection", "issues")

	v.SetDefault("escalation.manual_wait_days", 4)
	v.SetDefault("escalation.max_attempts", 3)
	v.SetDefault("escalation.default_sla_days", 7)

	v.SetDefault("worker.interval", time.Hour)
	v.SetDefault("worker.concurrency", 8)
	v.SetDefault("worker.batch_size", 500)
	v.SetDefault("worker.lock_ttl", 10*time.Minute)
	v.SetDefault("worker.metrics_port", "9091")
}
