// Package config reads process configuration from the environment, after
// loading an optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const (
	DefaultServerAddr         = ":8080"
	DefaultWorkerAddr         = ":8081"
	DefaultGRPCAddr           = ":9090"
	DefaultToolsRoot          = "/opt/task-tools"
	DefaultSweepInterval      = 5 * time.Second
	DefaultExecutionRetention = 24 * time.Hour
	DefaultPingInterval       = 30 * time.Second
	DefaultResultEventsTopic  = "task_execution_events"
	DefaultManagerURL         = "ws://localhost:8081/ws/worker"
	DefaultMaxConcurrent      = 4
	DefaultWorkerShell        = "/bin/bash"
)

// Manager is the control plane configuration.
type Manager struct {
	ServerAddr         string
	WorkerAddr         string
	GRPCAddr           string
	DBType             string
	DBDSN              string
	WorkerSecret       string
	ToolsRoot          string
	SweepInterval      time.Duration
	ExecutionRetention time.Duration
	PingInterval       time.Duration
	KafkaBrokers       []string
	ResultEventsTopic  string
	LogLevel           string
	LogFormat          string
}

// Worker is the worker runtime configuration.
type Worker struct {
	ManagerURL      string
	WorkerSecret    string
	Name            string
	ToolsRoot       string
	MaxConcurrent   int
	AggressiveTasks bool
	Shell           string
	TaskTimeout     time.Duration
	LogLevel        string
	LogFormat       string
}

// LoadDotEnv loads .env (or the given files) into the environment. A missing
// file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "load %s", f)
		}
	}
	return nil
}

// LoadManager builds the manager configuration from the environment.
func LoadManager() (Manager, error) {
	cfg := Manager{
		ServerAddr:        getEnv("SERVER_ADDR", DefaultServerAddr),
		WorkerAddr:        getEnv("WORKER_ADDR", DefaultWorkerAddr),
		GRPCAddr:          os.Getenv("GRPC_ADDR"),
		DBType:            os.Getenv("DB_TYPE"),
		DBDSN:             os.Getenv("DB_DSN"),
		WorkerSecret:      os.Getenv("WORKER_SECRET"),
		ToolsRoot:         getEnv("TOOLS_ROOT", DefaultToolsRoot),
		ResultEventsTopic: getEnv("RESULT_EVENTS_TOPIC", DefaultResultEventsTopic),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		LogFormat:         os.Getenv("LOG_FORMAT"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", DefaultSweepInterval); err != nil {
		return cfg, err
	}
	if cfg.ExecutionRetention, err = getDuration("EXECUTION_RETENTION", DefaultExecutionRetention); err != nil {
		return cfg, err
	}
	if cfg.PingInterval, err = getDuration("PING_INTERVAL", DefaultPingInterval); err != nil {
		return cfg, err
	}
	if cfg.WorkerSecret == "" {
		return cfg, errors.New("WORKER_SECRET must be set")
	}
	if cfg.SweepInterval <= 0 {
		return cfg, errors.Newf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	return cfg, nil
}

// LoadWorker builds the worker configuration from the environment.
func LoadWorker() (Worker, error) {
	hostname, _ := os.Hostname()
	cfg := Worker{
		ManagerURL:   getEnv("MANAGER_URL", DefaultManagerURL),
		WorkerSecret: os.Getenv("WORKER_SECRET"),
		Name:         getEnv("WORKER_NAME", hostname),
		ToolsRoot:    getEnv("TOOLS_ROOT", DefaultToolsRoot),
		Shell:        getEnv("WORKER_SHELL", DefaultWorkerShell),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		LogFormat:    os.Getenv("LOG_FORMAT"),
	}

	var err error
	if cfg.MaxConcurrent, err = getInt("MAX_CONCURRENT", DefaultMaxConcurrent); err != nil {
		return cfg, err
	}
	if cfg.AggressiveTasks, err = getBool("AGGRESSIVE_TASKS", false); err != nil {
		return cfg, err
	}
	if cfg.TaskTimeout, err = getDuration("TASK_TIMEOUT", 0); err != nil {
		return cfg, err
	}
	if cfg.WorkerSecret == "" {
		return cfg, errors.New("WORKER_SECRET must be set")
	}
	if cfg.MaxConcurrent < 1 {
		return cfg, errors.Newf("MAX_CONCURRENT must be at least 1, got %d", cfg.MaxConcurrent)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "invalid %s", key)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return d, nil
}
