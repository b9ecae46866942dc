// Package config loads runtime configuration from the environment and the
// static association tables from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SourceConfig holds connection parameters for the upstream MySQL store.
type SourceConfig struct {
	Name     string
	User     string
	Password string
	Host     string
	Port     int
}

// DSN renders the go-sql-driver connection string.
func (c SourceConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", c.User, c.Password, c.Host, c.Port, c.Name)
}

// Config contains everything the synchronizer needs at startup.
type Config struct {
	BatchLimit int
	Interval   time.Duration

	Source     SourceConfig
	SQLitePath string

	Endpoint      string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration

	TerminalsFile string
	TokensFile    string
}

// Load reads configuration from environment variables. Required variables
// (source credentials and the billing endpoint) error out when missing;
// the rest carry defaults matching production.
func Load() (Config, error) {
	src := SourceConfig{
		Name:     strings.TrimSpace(os.Getenv("DB_NAME")),
		User:     strings.TrimSpace(os.Getenv("DB_USER")),
		Password: os.Getenv("DB_PASSWORD"),
		Host:     strings.TrimSpace(os.Getenv("DB_HOST")),
	}
	if src.Name == "" || src.User == "" || src.Host == "" {
		return Config{}, errors.New("DB_NAME, DB_USER and DB_HOST are required")
	}

	port, err := intEnv("DB_PORT", 3306)
	if err != nil {
		return Config{}, err
	}
	src.Port = port

	endpoint := strings.TrimSpace(os.Getenv("BILLS_ENDPOINT"))
	if endpoint == "" {
		return Config{}, errors.New("BILLS_ENDPOINT is required")
	}

	batchLimit, err := intEnv("BATCH_DATA_LIMIT", 5000)
	if err != nil {
		return Config{}, err
	}

	intervalMin, err := intEnv("PERFORM_TASKS_EVERY_MINUTES", 5)
	if err != nil {
		return Config{}, err
	}

	timeoutSec, err := intEnv("BILLS_TIMEOUT_SECONDS", 30)
	if err != nil {
		return Config{}, err
	}

	attempts, err := intEnv("BILLS_RETRY_ATTEMPTS", 3)
	if err != nil {
		return Config{}, err
	}

	delaySec, err := intEnv("BILLS_RETRY_DELAY_SECONDS", 2)
	if err != nil {
		return Config{}, err
	}

	sqliteDir := strings.TrimSpace(os.Getenv("SQLITE_DIR"))
	if sqliteDir == "" {
		sqliteDir = "./db-data"
	}

	terminalsFile := strings.TrimSpace(os.Getenv("TERMINALS_FILE"))
	if terminalsFile == "" {
		terminalsFile = "./configs/terminals.yaml"
	}
	tokensFile := strings.TrimSpace(os.Getenv("TOKENS_FILE"))
	if tokensFile == "" {
		tokensFile = "./configs/tokens.yaml"
	}

	return Config{
		BatchLimit:    batchLimit,
		Interval:      time.Duration(intervalMin) * time.Minute,
		Source:        src,
		SQLitePath:    filepath.Join(sqliteDir, src.Name+".db"),
		Endpoint:      endpoint,
		Timeout:       time.Duration(timeoutSec) * time.Second,
		RetryAttempts: attempts,
		RetryDelay:    time.Duration(delaySec) * time.Second,
		TerminalsFile: terminalsFile,
		TokensFile:    tokensFile,
	}, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return v, nil
}
