package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"hermannm.dev/wrap"
)

type Config struct {
	BaseConfig
	BigQuery   BigQueryConfig
	ClickHouse ClickHouseConfig
}

type BaseConfig struct {
	DB       SupportedDB `env:"DATABASE"`
	LogLevel LogLevel    `env:"LOG_LEVEL" envDefault:"INFO"`
	API      API
	Query    Query
}

type API struct {
	Port string `env:"API_PORT"`
}

// Query configures cost control for analytical queries.
type Query struct {
	// Cumulative bytes processed allowed before queries are refused. 0 means no limit.
	BudgetBytes int64 `env:"QUERY_BUDGET_BYTES" envDefault:"0"`
	// If positive, each query is capped at this many bytes billed by the warehouse.
	MaxBytesBilled int64 `env:"QUERY_MAX_BYTES_BILLED" envDefault:"0"`
	// Whether to estimate a query's bytes before running it, and refuse it up front if the
	// estimate would exceed the budget. Only supported by warehouses that can dry-run queries.
	PreflightEstimate bool `env:"QUERY_PREFLIGHT_ESTIMATE" envDefault:"false"`
}

// Tables holds the warehouse table reference for each table scope, and the timestamp column the
// tables are partitioned on. The time column must be an allow-listed TIMESTAMP column, and
// _PARTITIONTIME is the only one: BigQuery's partitioned tables have it as a pseudo-column, while
// ClickHouse tables must have a DateTime column named _PARTITIONTIME. This is checked against the
// warehouse at startup.
type Tables struct {
	Events     string `env:"EVENTS_TABLE"`
	GKG        string `env:"GKG_TABLE" envDefault:""`
	Mentions   string `env:"MENTIONS_TABLE" envDefault:""`
	TimeColumn string `env:"TIME_COLUMN" envDefault:"_PARTITIONTIME"`
}

type BigQueryConfig struct {
	ProjectID string `env:"BIGQUERY_PROJECT_ID"`
	Location  string `env:"BIGQUERY_LOCATION" envDefault:""`
	// If empty, application default credentials are used.
	CredentialsFile string `env:"BIGQUERY_CREDENTIALS_FILE" envDefault:""`
	Tables          Tables `envPrefix:"BIGQUERY_"`
}

type ClickHouseConfig struct {
	Address      string `env:"CLICKHOUSE_ADDRESS"`
	DatabaseName string `env:"CLICKHOUSE_DB_NAME"`
	Username     string `env:"CLICKHOUSE_USERNAME"`
	Password     string `env:"CLICKHOUSE_PASSWORD"`
	Debug        bool   `env:"CLICKHOUSE_DEBUG_ENABLED" envDefault:"false"`
	Tables       Tables `envPrefix:"CLICKHOUSE_"`
}

type SupportedDB string

const (
	DBBigQuery   SupportedDB = "bigquery"
	DBClickHouse SupportedDB = "clickhouse"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
)

func (level LogLevel) SlogLevel() slog.Level {
	if level == LogLevelDebug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// ReadFromEnv loads a .env file if present, then parses the environment. Backend-specific
// variables are only required for the selected DATABASE.
func ReadFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, wrap.Error(err, "failed to load .env file")
	}

	return parse(env.Options{RequiredIfNoDef: true})
}

func parse(parseOptions env.Options) (Config, error) {
	var config Config

	if err := env.ParseWithOptions(&config.BaseConfig, parseOptions); err != nil {
		return Config{}, err
	}

	switch config.LogLevel {
	case LogLevelDebug, LogLevelInfo:
	default:
		return Config{}, fmt.Errorf(
			"unsupported value '%s' for LOG_LEVEL in env (must be '%s' or '%s')",
			config.LogLevel,
			LogLevelDebug,
			LogLevelInfo,
		)
	}

	if config.Query.BudgetBytes < 0 {
		return Config{}, fmt.Errorf(
			"QUERY_BUDGET_BYTES cannot be negative, got %d",
			config.Query.BudgetBytes,
		)
	}

	switch config.DB {
	case DBBigQuery:
		if err := env.ParseWithOptions(&config.BigQuery, parseOptions); err != nil {
			return Config{}, err
		}
	case DBClickHouse:
		if err := env.ParseWithOptions(&config.ClickHouse, parseOptions); err != nil {
			return Config{}, err
		}
	default:
		err := fmt.Errorf("must be one of: '%s', '%s'", DBBigQuery, DBClickHouse)
		return Config{}, wrap.Errorf(err, "unsupported value '%s' for DATABASE in env", config.DB)
	}

	return config, nil
}

// Tables returns the table configuration of the selected database.
func (config Config) Tables() Tables {
	if config.DB == DBClickHouse {
		return config.ClickHouse.Tables
	}
	return config.BigQuery.Tables
}
